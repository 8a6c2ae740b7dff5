package harvest

import (
	"errors"

	"github.com/jmylchreest/bidharvest/internal/auth"
	"github.com/jmylchreest/bidharvest/internal/browser"
)

// Failure classes returned by Run. Use errors.Is to test for them.
var (
	// ErrMissingCredentials means login was required but no credential pair
	// was supplied.
	ErrMissingCredentials = auth.ErrMissingCredentials
	// ErrBrowserLaunch means no browser could be started.
	ErrBrowserLaunch = browser.ErrBrowserLaunch
	// ErrAuthentication means the portal did not accept the login.
	ErrAuthentication = auth.ErrAuthentication
	// ErrInvalidConfig means Config.Validate failed.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RejectedError carries the details of an authentication failure.
// Use errors.As to retrieve it.
type RejectedError = auth.RejectedError

// Class groups errors by how a caller should react to them.
type Class int

const (
	// ClassNone is a nil error.
	ClassNone Class = iota
	// ClassFatal covers precondition failures: bad config, missing
	// credentials, no browser, or a cancelled run.
	ClassFatal
	// ClassAuthentication means the login was rejected.
	ClassAuthentication
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassFatal:
		return "fatal"
	case ClassAuthentication:
		return "authentication"
	}
	return "unknown"
}

// Classify maps an error returned by Run to its Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrAuthentication):
		return ClassAuthentication
	default:
		return ClassFatal
	}
}
