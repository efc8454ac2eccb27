package engine

import (
	"fmt"
	"reflect"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/docshift/docshift/pkg/logger"
)

// Transformer turns one source record into a target-row candidate: rename,
// redefine, foreign-key substitution, array elision, in that fixed order.
// Transformation is a pure function of (record, config, registry snapshot)
// and never writes the registry, so records of one collection may be
// transformed in parallel.
type Transformer struct {
	registry *TranslationRegistry
	logger   *logger.Logger
}

// NewTransformer creates a new transformer reading from the given registry
func NewTransformer(registry *TranslationRegistry, logger *logger.Logger) *Transformer {
	return &Transformer{
		registry: registry,
		logger:   logger,
	}
}

// TransformRecord produces a target-row candidate for one record. Soft
// failures (unresolvable references, failing redefine functions, stray
// arrays) are reported as warnings; the row is still produced.
func (t *Transformer) TransformRecord(collection string, record Record, cfg *CollectionConfig) (Row, []Warning) {
	var warnings []Warning

	sourceID, _ := record[SourceIDField].(string)

	// Transformations never mutate the source record
	row := make(Row, len(record))
	for field, value := range record {
		row[field] = value
	}

	// Step 1: rename
	for from, to := range cfg.Rename {
		if value, ok := row[from]; ok {
			row[to] = value
			delete(row, from)
		}
	}

	// Step 2: redefine
	for field, fn := range cfg.Redefine {
		old, ok := row[field]
		if !ok {
			continue
		}
		redefined, err := fn(old, record)
		if err != nil {
			warnings = append(warnings, Warning{
				Code:       WarnRedefine,
				Collection: collection,
				Field:      field,
				SourceID:   sourceID,
				Detail:     fmt.Sprintf("redefine failed, field left unchanged: %v", err),
			})
			continue
		}
		row[field] = redefined
	}

	// Step 3: foreign-key substitution
	for field, refCollection := range cfg.ForeignKeys {
		value, ok := row[field]
		if !ok || value == nil {
			continue
		}

		if elements, isArray := asSlice(value); isArray {
			// Scalar reference expected; salvage the first resolvable element
			row[field] = nil
			resolved := false
			for i, element := range elements {
				targetID, ok := t.registry.Resolve(refCollection, asSourceID(element))
				if !ok {
					continue
				}
				row[field] = targetID
				resolved = true
				if rest := len(elements) - i - 1; rest > 0 {
					warnings = append(warnings, Warning{
						Code:       WarnResolution,
						Collection: collection,
						Field:      field,
						SourceID:   sourceID,
						Detail:     fmt.Sprintf("array value for scalar foreign key, %d extra element(s) dropped", rest),
					})
				}
				break
			}
			if !resolved {
				warnings = append(warnings, Warning{
					Code:       WarnResolution,
					Collection: collection,
					Field:      field,
					SourceID:   sourceID,
					Detail:     fmt.Sprintf("no element of array foreign key resolves in %s, set to null", refCollection),
				})
			}
			continue
		}

		targetID, resolved := t.registry.Resolve(refCollection, asSourceID(value))
		if !resolved {
			row[field] = nil
			warnings = append(warnings, Warning{
				Code:       WarnResolution,
				Collection: collection,
				Field:      field,
				SourceID:   sourceID,
				Detail:     fmt.Sprintf("reference %v not found in %s, set to null", value, refCollection),
			})
			continue
		}
		row[field] = targetID
	}

	// Step 4: array elision. Arrays have no representation in a flat row and
	// must be explicitly routed through link configuration.
	for field, value := range row {
		if _, isArray := asSlice(value); !isArray {
			continue
		}
		if _, linked := cfg.Links[field]; linked {
			delete(row, field)
			continue
		}
		delete(row, field)
		warnings = append(warnings, Warning{
			Code:       WarnArrayElided,
			Collection: collection,
			Field:      field,
			SourceID:   sourceID,
			Detail:     "array field not declared as a link, dropped",
		})
	}

	return row, warnings
}

// TransformAll transforms a batch of records, fanning out across workers.
// Row order matches record order; warnings are concatenated in record order.
func (t *Transformer) TransformAll(collection string, records []Record, cfg *CollectionConfig, workers int) ([]Row, []Warning) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	rows := make([]Row, len(records))
	perRecord := make([][]Warning, len(records))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, record := range records {
		g.Go(func() error {
			rows[i], perRecord[i] = t.TransformRecord(collection, record, cfg)
			return nil
		})
	}
	// Workers never return errors; soft failures are warnings
	_ = g.Wait()

	var warnings []Warning
	for _, w := range perRecord {
		warnings = append(warnings, w...)
	}

	t.logger.Debugf("Transformed %d records for collection %s (%d warnings)", len(records), collection, len(warnings))
	return rows, warnings
}

// asSlice reports whether a value is an array-shaped field. Byte slices are
// scalars (binary column values), not associations.
func asSlice(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []byte:
		return nil, false
	case []interface{}:
		return v, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	elements := make([]interface{}, rv.Len())
	for i := range elements {
		elements[i] = rv.Index(i).Interface()
	}
	return elements, true
}

// asSourceID renders a reference value as a stable-identifier string
func asSourceID(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
