package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docshift/docshift/pkg/logger"
)

// Collection is one unit of migration work: a named source collection, its
// configuration, and the records extracted from the source store. The caller
// supplies collections in dependency order; every collection a later one
// references must appear earlier.
type Collection struct {
	Name    string
	Config  *CollectionConfig
	Records []Record
}

// Result summarizes one collection's materialization
type Result struct {
	Collection string
	Skipped    int
	Inserted   int
	LinkRows   int
	Warnings   []Warning
}

// Migrator coordinates the migration of an ordered list of collections into
// the target store. Each collection runs inside a single transaction wrapping
// transform, upsert, and link materialization; an unrecoverable failure rolls
// the whole unit back and aborts the run fail-fast, since downstream
// collections may depend on this collection's registry entries.
//
// The migrator owns the translation registry for the duration of one run;
// independent migrators are fully isolated.
type Migrator struct {
	store    TargetStore
	schema   SchemaReconciler
	registry *TranslationRegistry
	logger   *logger.Logger

	// Workers bounds the parallel transform fan-out per collection.
	// Zero means one worker per CPU.
	Workers int
}

// NewMigrator creates a migrator writing to the given store. The reconciler
// may be nil when the target schema is known to carry source_id columns.
func NewMigrator(store TargetStore, schema SchemaReconciler, logger *logger.Logger) *Migrator {
	return &Migrator{
		store:    store,
		schema:   schema,
		registry: NewTranslationRegistry(),
		logger:   logger,
	}
}

// Registry exposes the run's translation registry, mainly so callers can
// inspect mappings after a run
func (m *Migrator) Registry() *TranslationRegistry {
	return m.registry
}

// Migrate materializes the given collections in order. It validates every
// configuration before processing any row, and returns the results of all
// collections completed so far together with the first fatal error, if any.
func (m *Migrator) Migrate(ctx context.Context, collections []Collection) ([]Result, error) {
	for _, collection := range collections {
		if collection.Config == nil {
			return nil, &ConfigurationError{Collection: collection.Name, Detail: "no configuration"}
		}
		if err := collection.Config.Validate(collection.Name); err != nil {
			return nil, err
		}
	}

	runID := uuid.New().String()
	m.logger.Infof("Starting migration run %s with %d collection(s)", runID, len(collections))

	results := make([]Result, 0, len(collections))
	for _, collection := range collections {
		result, err := m.migrateCollection(ctx, collection)
		if err != nil {
			m.logger.Errorf("Migration run %s aborted at collection %s: %v", runID, collection.Name, err)
			return results, err
		}
		results = append(results, result)
		m.logger.WithFields(map[string]string{
			"run":        runID,
			"collection": collection.Name,
			"table":      collection.Config.TableName(collection.Name),
		}).Info(fmt.Sprintf("Materialized: %d inserted, %d skipped, %d link rows, %d warnings",
			result.Inserted, result.Skipped, result.LinkRows, len(result.Warnings)))
	}

	m.logger.Infof("Migration run %s complete", runID)
	return results, nil
}

func (m *Migrator) migrateCollection(ctx context.Context, collection Collection) (Result, error) {
	result := Result{Collection: collection.Name}
	table := collection.Config.TableName(collection.Name)

	// Pre-flight schema reconciliation stays out of the data path. Drift is
	// not fatal; the migration proceeds optimistically and the store's own
	// constraints surface any real problem.
	if m.schema != nil {
		if err := m.schema.EnsureSourceID(ctx, table); err != nil {
			result.Warnings = append(result.Warnings, Warning{
				Code:       WarnSchemaDrift,
				Collection: collection.Name,
				Detail:     fmt.Sprintf("cannot verify source_id column on %s: %v", table, err),
			})
		}
	}

	transformer := NewTransformer(m.registry, m.logger)
	rows, warnings := transformer.TransformAll(collection.Name, collection.Records, collection.Config, m.Workers)
	result.Warnings = append(result.Warnings, warnings...)

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return result, &TransactionFailure{Collection: collection.Name, Phase: "begin", Err: err}
	}
	defer func() {
		// No-op after a successful commit
		_ = tx.Rollback(ctx)
	}()

	upserter := NewUpserter(m.registry, m.logger)
	skipped, inserted, warnings, err := upserter.UpsertRows(ctx, tx, collection.Name, collection.Config, rows)
	result.Warnings = append(result.Warnings, warnings...)
	if err != nil {
		m.registry.Discard(collection.Name)
		return result, &TransactionFailure{Collection: collection.Name, Phase: "upsert", Err: err}
	}
	result.Skipped = skipped
	result.Inserted = inserted

	materializer := NewLinkMaterializer(m.registry, m.logger)
	linkRows, warnings, err := materializer.MaterializeLinks(ctx, tx, collection.Name, collection.Config, collection.Records)
	result.Warnings = append(result.Warnings, warnings...)
	if err != nil {
		m.registry.Discard(collection.Name)
		return result, &TransactionFailure{Collection: collection.Name, Phase: "links", Err: err}
	}
	result.LinkRows = linkRows

	if err := tx.Commit(ctx); err != nil {
		m.registry.Discard(collection.Name)
		return result, &TransactionFailure{Collection: collection.Name, Phase: "commit", Err: err}
	}

	// Registry entries become visible to later collections only now, across
	// the commit boundary
	m.registry.Commit(collection.Name)

	return result, nil
}
