// Package repository provides data persistence for the transactional
// outbox: the durable hand-off table between the Scheduler and the Pump.
package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/leadsequencer/internal/database"
	"github.com/allisson/leadsequencer/internal/domain"
)

// PostgreSQLOutboxRepository handles outbox row persistence for PostgreSQL.
type PostgreSQLOutboxRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxRepository creates a new PostgreSQLOutboxRepository.
func NewPostgreSQLOutboxRepository(db *sql.DB) *PostgreSQLOutboxRepository {
	return &PostgreSQLOutboxRepository{db: db}
}

// ExistsByIdemKey reports whether an outbox row with the given idemKey
// already exists. Used by the Scheduler's enqueue transaction before
// inserting, so the caller can skip a lead whose send is already in flight
// without relying on the unique constraint alone.
func (r *PostgreSQLOutboxRepository) ExistsByIdemKey(ctx context.Context, idemKey string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	var count int
	err := querier.QueryRowContext(
		ctx,
		`SELECT count(*) FROM outbox WHERE idem_key = $1`,
		idemKey,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a new outbox row within the caller's transaction.
func (r *PostgreSQLOutboxRepository) Create(ctx context.Context, o *domain.Outbox) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox (id, topic, payload, idem_key, processed, retries, max_retries, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, err := querier.ExecContext(ctx, query,
		o.ID, o.Topic, o.Payload, o.IdemKey, o.Processed, o.Retries, o.MaxRetries,
	)
	return err
}

// ClaimBatch atomically claims up to limit unprocessed rows and marks them
// processed: SKIP LOCKED makes concurrent Pump instances horizontally
// scalable, and incrementing retries in the same statement bounds
// republish storms.
func (r *PostgreSQLOutboxRepository) ClaimBatch(ctx context.Context, limit int) ([]*domain.Outbox, error) {
	querier := database.GetTx(ctx, r.db)

	query := `
UPDATE outbox SET processed = true, processed_at = NOW(), retries = retries + 1
WHERE id IN (
  SELECT id FROM outbox
  WHERE processed = false AND retries < max_retries
  ORDER BY created_at
  LIMIT $1
  FOR UPDATE SKIP LOCKED
)
RETURNING id, topic, payload, idem_key, retries`

	rows, err := querier.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var claimed []*domain.Outbox
	for rows.Next() {
		var o domain.Outbox
		if err := rows.Scan(&o.ID, &o.Topic, &o.Payload, &o.IdemKey, &o.Retries); err != nil {
			return nil, err
		}
		claimed = append(claimed, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return claimed, nil
}

// Revert marks a claimed row unprocessed again after a publish failure, so
// a later Pump attempt retries it (bounded by max_retries).
func (r *PostgreSQLOutboxRepository) Revert(ctx context.Context, id string) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox SET processed = false, processed_at = NULL WHERE id = $1`
	_, err := querier.ExecContext(ctx, query, id)
	return err
}
