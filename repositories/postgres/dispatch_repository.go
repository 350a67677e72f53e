package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loomcast/script-gateway/services/audit"
)

// DispatchRepository persists dispatch audit records to Postgres
type DispatchRepository struct {
	db *sql.DB
}

// NewDispatchRepository creates a new dispatch repository
func NewDispatchRepository(db *sql.DB) *DispatchRepository {
	return &DispatchRepository{db: db}
}

// InsertDispatch stores one dispatch attempt
func (r *DispatchRepository) InsertDispatch(ctx context.Context, rec *audit.Record) error {
	const query = `
		INSERT INTO dispatch_audit (id, request_id, provider, task, outcome, upstream_status, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.Provider,
		rec.Task,
		rec.Outcome,
		rec.UpstreamStatus,
		rec.LatencyMs,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dispatch audit: %w", err)
	}
	return nil
}

var _ audit.Repository = (*DispatchRepository)(nil)
