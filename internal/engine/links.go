package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/docshift/docshift/pkg/logger"
)

// LinkMaterializer writes association rows for the array fields a collection
// declares as links. It operates on the original pre-transform records, since
// array fields were elided from the target rows, and on the registry as
// updated by the collection's own upsert.
type LinkMaterializer struct {
	registry *TranslationRegistry
	logger   *logger.Logger
}

// NewLinkMaterializer creates a new link materializer reading the given registry
func NewLinkMaterializer(registry *TranslationRegistry, logger *logger.Logger) *LinkMaterializer {
	return &LinkMaterializer{
		registry: registry,
		logger:   logger,
	}
}

// MaterializeLinks resolves every element of every configured array field and
// batch-inserts one link row per resolved element. Unresolvable elements are
// dropped with a warning: absent targets are assumed to be deleted or invalid
// references on the source side. Duplicate link rows from a prior partial run
// surface as conflicts and are swallowed.
func (m *LinkMaterializer) MaterializeLinks(ctx context.Context, tx TargetTx, collection string, cfg *CollectionConfig, records []Record) (linkRows int, warnings []Warning, err error) {
	if len(cfg.Links) == 0 || len(records) == 0 {
		return 0, nil, nil
	}

	// Fixed field order keeps warnings and insert batches deterministic
	fields := make([]string, 0, len(cfg.Links))
	for field := range cfg.Links {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	batches := make(map[string][]Row, len(cfg.Links))

	for _, record := range records {
		sourceID, _ := record[SourceIDField].(string)

		selfID, ok := m.registry.Resolve(collection, sourceID)
		if !ok {
			// The primary upsert for this record did not succeed
			warnings = append(warnings, Warning{
				Code:       WarnResolution,
				Collection: collection,
				SourceID:   sourceID,
				Detail:     "record has no target id, links skipped",
			})
			continue
		}

		for _, field := range fields {
			link := cfg.Links[field]

			value, ok := record[field]
			if !ok || value == nil {
				continue
			}
			elements, isArray := asSlice(value)
			if !isArray {
				warnings = append(warnings, Warning{
					Code:       WarnResolution,
					Collection: collection,
					Field:      field,
					SourceID:   sourceID,
					Detail:     "link field is not an array, skipped",
				})
				continue
			}

			for _, element := range elements {
				elementID := asSourceID(element)
				foreignID, resolved := m.resolveElement(link, elementID)
				if !resolved {
					warnings = append(warnings, Warning{
						Code:       WarnResolution,
						Collection: collection,
						Field:      field,
						SourceID:   sourceID,
						Detail:     fmt.Sprintf("link element %s has no target, dropped", elementID),
					})
					continue
				}

				row := Row{
					link.SelfColumn:    selfID,
					link.ForeignColumn: foreignID,
				}
				if link.ExtraAttrs != nil {
					for column, attr := range link.ExtraAttrs(selfID, foreignID, record) {
						row[column] = attr
					}
				}
				batches[field] = append(batches[field], row)
			}
		}
	}

	for _, field := range fields {
		rows := batches[field]
		if len(rows) == 0 {
			continue
		}
		link := cfg.Links[field]

		inserted, conflicts, err := tx.InsertLinks(ctx, link.Table, rows)
		if err != nil {
			return linkRows, warnings, fmt.Errorf("link insert into %s: %w", link.Table, err)
		}
		linkRows += inserted
		if conflicts > 0 {
			warnings = append(warnings, Warning{
				Code:       WarnLinkConflict,
				Collection: collection,
				Field:      field,
				Detail:     fmt.Sprintf("%d duplicate link row(s) in %s, assumed prior partial run", conflicts, link.Table),
			})
		}
	}

	m.logger.Debugf("Materialized %d link rows for collection %s", linkRows, collection)
	return linkRows, warnings, nil
}

// resolveElement resolves one link element, preferring the statically declared
// owning collection and falling back to a scan of every known collection.
func (m *LinkMaterializer) resolveElement(link LinkConfig, elementID string) (int64, bool) {
	if link.Collection != "" {
		return m.registry.Resolve(link.Collection, elementID)
	}

	owner, targetID, ok := m.registry.ResolveAny(elementID)
	if ok {
		// The scan is ambiguous when identifiers are not globally unique
		m.logger.Debugf("Link element %s resolved by global scan to collection %s; declare the owning collection to avoid ambiguity", elementID, owner)
	}
	return targetID, ok
}
