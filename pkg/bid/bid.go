// Package bid defines the record produced for every bid notice found on the
// portal.
package bid

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// StatusOpen is the only status assigned at extraction time.
const StatusOpen = "open"

// Document is a file attached to a bid notice.
type Document struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url" validate:"required"`
}

// ExtractedBid is one bid notice as read from a listing row.
// Portal + TitleHash is the natural key used by stores.
type ExtractedBid struct {
	Portal      string     `json:"portal" yaml:"portal" validate:"required"`
	Title       string     `json:"title" yaml:"title" validate:"required"`
	Link        string     `json:"link,omitempty" yaml:"link,omitempty" validate:"omitempty,url"`
	PostedDate  *time.Time `json:"posted_date,omitempty" yaml:"posted_date,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Amount      string     `json:"amount,omitempty" yaml:"amount,omitempty"`
	Quantity    string     `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	ExternalID  string     `json:"external_id,omitempty" yaml:"external_id,omitempty"`
	Description string     `json:"description" yaml:"description"`
	Documents   []Document `json:"documents,omitempty" yaml:"documents,omitempty" validate:"dive"`
	TitleHash   string     `json:"title_hash" yaml:"title_hash" validate:"required,hexadecimal"`
	Status      string     `json:"status" yaml:"status" validate:"oneof=open"`
}

var validate = validator.New()

// Validate checks the record's required fields.
func (b ExtractedBid) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("bid title is empty")
	}
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("invalid bid %q: %w", b.Title, err)
	}
	return nil
}

// Expired reports whether the due date lies strictly before now. Bids without
// a due date never expire.
func (b ExtractedBid) Expired(now time.Time) bool {
	return b.DueDate != nil && b.DueDate.Before(now)
}

// Key returns the natural identity of the record.
func (b ExtractedBid) Key() string {
	return b.Portal + ":" + b.TitleHash
}
