package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmylchreest/bidharvest/internal/logger"
	"github.com/jmylchreest/bidharvest/pkg/bid"
)

//go:embed schema_postgres.sql
var postgresSchema string

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres connects, pings and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	logger.Debug("postgres store ready")
	return &Postgres{pool: pool, now: time.Now}, nil
}

// xmax is zero only for a freshly inserted row version.
const postgresUpsert = `
INSERT INTO bids (portal, title_hash, title, link, posted_date, due_date, amount,
    quantity, external_id, description, documents, status, first_seen, last_seen)
VALUES ($1, $2, $3, $4, $5::date, $6::date, $7, $8, $9, $10, $11::jsonb, $12, $13, $13)
ON CONFLICT (portal, title_hash) DO UPDATE SET
    title = EXCLUDED.title,
    link = EXCLUDED.link,
    posted_date = EXCLUDED.posted_date,
    due_date = EXCLUDED.due_date,
    amount = EXCLUDED.amount,
    quantity = EXCLUDED.quantity,
    external_id = EXCLUDED.external_id,
    description = EXCLUDED.description,
    documents = EXCLUDED.documents,
    status = EXCLUDED.status,
    last_seen = EXCLUDED.last_seen
RETURNING (xmax = 0)`

// Upsert sends all bids as one batch inside a transaction.
func (p *Postgres) Upsert(ctx context.Context, bids []bid.ExtractedBid) (Result, error) {
	var res Result
	if len(bids) == 0 {
		return res, nil
	}
	seen := p.now().UTC()

	batch := &pgx.Batch{}
	for _, b := range bids {
		docs, err := documentsJSON(b.Documents)
		if err != nil {
			return res, err
		}
		batch.Queue(postgresUpsert,
			b.Portal, b.TitleHash, b.Title, b.Link,
			dateString(b.PostedDate), dateString(b.DueDate),
			b.Amount, b.Quantity, b.ExternalID, b.Description, docs, b.Status,
			seen,
		)
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for _, b := range bids {
			var inserted bool
			if err := br.QueryRow().Scan(&inserted); err != nil {
				return fmt.Errorf("upsert %s: %w", b.Key(), err)
			}
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		}
		return br.Close()
	})
	if err != nil {
		return Result{}, err
	}
	logger.Debug("postgres upsert", "inserted", res.Inserted, "updated", res.Updated)
	return res, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
