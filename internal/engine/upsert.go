package engine

import (
	"context"
	"fmt"

	"github.com/docshift/docshift/pkg/logger"
)

// Upserter writes transformed rows for one collection, skipping rows whose
// source id is already present in the target table. Both pre-existing and
// newly assigned target ids are staged into the translation registry; they
// become durable only when the enclosing transaction commits.
type Upserter struct {
	registry *TranslationRegistry
	logger   *logger.Logger
}

// NewUpserter creates a new upserter staging into the given registry
func NewUpserter(registry *TranslationRegistry, logger *logger.Logger) *Upserter {
	return &Upserter{
		registry: registry,
		logger:   logger,
	}
}

// UpsertRows partitions candidates into already-migrated and new, inserts only
// the new ones, and stages registry entries for both partitions. At most one
// row per source id is ever created; re-running with identical input inserts
// nothing.
func (u *Upserter) UpsertRows(ctx context.Context, tx TargetTx, collection string, cfg *CollectionConfig, candidates []Row) (skipped, inserted int, warnings []Warning, err error) {
	if len(candidates) == 0 {
		return 0, 0, nil, nil
	}

	table := cfg.TableName(collection)

	// Candidates without a usable source id cannot be made idempotent and are
	// not written
	seen := make(map[string]bool, len(candidates))
	usable := make([]Row, 0, len(candidates))
	sourceIDs := make([]string, 0, len(candidates))
	for _, row := range candidates {
		sourceID, ok := row[SourceIDField].(string)
		if !ok || sourceID == "" {
			warnings = append(warnings, Warning{
				Code:       WarnMissingID,
				Collection: collection,
				Detail:     "candidate row has no source id, dropped",
			})
			continue
		}
		if seen[sourceID] {
			warnings = append(warnings, Warning{
				Code:       WarnMissingID,
				Collection: collection,
				SourceID:   sourceID,
				Detail:     "duplicate source id within batch, dropped",
			})
			continue
		}
		seen[sourceID] = true
		usable = append(usable, row)
		sourceIDs = append(sourceIDs, sourceID)
	}
	if len(usable) == 0 {
		return 0, 0, warnings, nil
	}

	existing, err := tx.ExistingRows(ctx, table, sourceIDs)
	if err != nil {
		return 0, 0, warnings, fmt.Errorf("existence check on %s: %w", table, err)
	}

	toInsert := make([]Row, 0, len(usable))
	for _, row := range usable {
		sourceID := row[SourceIDField].(string)
		targetID, present := existing[sourceID]
		if present {
			if err := u.registry.Register(collection, sourceID, targetID); err != nil {
				return 0, 0, warnings, err
			}
			skipped++
			continue
		}
		toInsert = append(toInsert, row)
	}

	if len(toInsert) > 0 {
		targetIDs, err := tx.InsertRows(ctx, table, toInsert)
		if err != nil {
			return 0, 0, warnings, fmt.Errorf("batch insert into %s: %w", table, err)
		}
		if len(targetIDs) != len(toInsert) {
			return 0, 0, warnings, fmt.Errorf("batch insert into %s returned %d ids for %d rows", table, len(targetIDs), len(toInsert))
		}
		for i, row := range toInsert {
			sourceID := row[SourceIDField].(string)
			if err := u.registry.Register(collection, sourceID, targetIDs[i]); err != nil {
				return 0, 0, warnings, err
			}
		}
		inserted = len(toInsert)
	}

	u.logger.Debugf("Upserted collection %s into %s: %d inserted, %d skipped", collection, table, inserted, skipped)
	return skipped, inserted, warnings, nil
}
