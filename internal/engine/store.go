package engine

import (
	"context"
)

// TargetStore is the engine's view of the relational target. The engine owns
// the migration semantics; the store owns SQL and connection handling.
type TargetStore interface {
	// Begin opens the atomic unit of work wrapping one collection's upsert
	// and link phases
	Begin(ctx context.Context) (TargetTx, error)
}

// TargetTx is one transaction against the target store. Rollback after a
// successful Commit must be a no-op so it can run deferred.
type TargetTx interface {
	// ExistingRows returns the target ids of already-migrated rows, keyed by
	// source id, for the given candidates
	ExistingRows(ctx context.Context, table string, sourceIDs []string) (map[string]int64, error)

	// InsertRows writes new primary rows in a single batch and returns the
	// assigned target ids in input order
	InsertRows(ctx context.Context, table string, rows []Row) ([]int64, error)

	// InsertLinks writes association rows. Duplicate-key conflicts, assumed
	// to stem from a prior partial run, are not errors; they are counted and
	// reported separately.
	InsertLinks(ctx context.Context, table string, rows []Row) (inserted, conflicts int, err error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SchemaReconciler is the pre-flight schema contract: before any collection is
// materialized the target tables must carry a unique source_id column. Schema
// reconciliation never runs inside the data path.
type SchemaReconciler interface {
	EnsureSourceID(ctx context.Context, table string) error
}
