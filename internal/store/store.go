// Package store persists extracted bids, upserting on (portal, title_hash).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/bidharvest/pkg/bid"
)

// ErrUnsupportedDSN is returned by Open for an unknown scheme.
var ErrUnsupportedDSN = errors.New("unsupported store DSN")

// Result counts what an Upsert did.
type Result struct {
	Inserted int
	Updated  int
}

// Store writes bids. Re-seeing a bid refreshes its fields and last_seen.
type Store interface {
	Upsert(ctx context.Context, bids []bid.ExtractedBid) (Result, error)
	Close() error
}

// Open connects to the store named by dsn: postgres://... (or postgresql://)
// or sqlite://path, with sqlite://:memory: for a throwaway database.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
}

// redact hides everything after the scheme, which may hold a password.
func redact(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i+3] + "..."
	}
	return "..."
}

const dateLayout = "2006-01-02"

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func documentsJSON(docs []bid.Document) (string, error) {
	if docs == nil {
		docs = []bid.Document{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("encode documents: %w", err)
	}
	return string(b), nil
}
