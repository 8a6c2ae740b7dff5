package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jmylchreest/bidharvest/internal/logger"
	"github.com/jmylchreest/bidharvest/pkg/bid"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLite is a Store backed by a local database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDSN)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A :memory: database exists per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	logger.Debug("sqlite store ready", "path", path)
	return &SQLite{db: db, now: time.Now}, nil
}

const sqliteUpsert = `
INSERT INTO bids (portal, title_hash, title, link, posted_date, due_date, amount,
    quantity, external_id, description, documents, status, first_seen, last_seen)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (portal, title_hash) DO UPDATE SET
    title = excluded.title,
    link = excluded.link,
    posted_date = excluded.posted_date,
    due_date = excluded.due_date,
    amount = excluded.amount,
    quantity = excluded.quantity,
    external_id = excluded.external_id,
    description = excluded.description,
    documents = excluded.documents,
    status = excluded.status,
    last_seen = excluded.last_seen`

// Upsert writes bids in one transaction.
func (s *SQLite) Upsert(ctx context.Context, bids []bid.ExtractedBid) (Result, error) {
	var res Result
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	seen := s.now().UTC().Format(time.RFC3339)
	for _, b := range bids {
		docs, err := documentsJSON(b.Documents)
		if err != nil {
			return Result{}, err
		}
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM bids WHERE portal = ? AND title_hash = ?)`,
			b.Portal, b.TitleHash,
		).Scan(&exists); err != nil {
			return Result{}, fmt.Errorf("lookup %s: %w", b.Key(), err)
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsert,
			b.Portal, b.TitleHash, b.Title, b.Link,
			dateString(b.PostedDate), dateString(b.DueDate),
			b.Amount, b.Quantity, b.ExternalID, b.Description, docs, b.Status,
			seen, seen,
		); err != nil {
			return Result{}, fmt.Errorf("upsert %s: %w", b.Key(), err)
		}
		if exists {
			res.Updated++
		} else {
			res.Inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit: %w", err)
	}
	logger.Debug("sqlite upsert", "inserted", res.Inserted, "updated", res.Updated)
	return res, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
