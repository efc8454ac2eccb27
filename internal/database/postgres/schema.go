package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docshift/docshift/internal/engine"
)

// Reconciler implements engine.SchemaReconciler: it verifies, before any
// collection is materialized, that a target table carries the unique
// source_id column the idempotency check depends on, adding it when absent.
type Reconciler struct {
	pool *pgxpool.Pool
}

// NewReconciler creates a reconciler for the given pool
func NewReconciler(pool *pgxpool.Pool) *Reconciler {
	return &Reconciler{pool: pool}
}

// EnsureSourceID adds the source_id column and its unique index to a table if
// they are missing
func (r *Reconciler) EnsureSourceID(ctx context.Context, tableName string) error {
	if tableName == "" {
		return fmt.Errorf("table name cannot be empty")
	}

	var columnExists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM information_schema.columns WHERE table_name = $1 AND column_name = $2)",
		tableName, engine.SourceIDField).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("error checking column on %s: %w", tableName, err)
	}

	if !columnExists {
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s text",
			quoteIdentifier(tableName), quoteIdentifier(engine.SourceIDField))
		if _, err := r.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("error adding %s column to %s: %w", engine.SourceIDField, tableName, err)
		}
	}

	// The unique index is what makes re-runs safe across processes
	indexName := fmt.Sprintf("%s_%s_key", tableName, engine.SourceIDField)
	query := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdentifier(indexName), quoteIdentifier(tableName), quoteIdentifier(engine.SourceIDField))
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("error ensuring unique index on %s: %w", tableName, err)
	}

	return nil
}
