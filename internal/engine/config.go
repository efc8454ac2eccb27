package engine

import (
	"fmt"
)

// SourceIDField is the column carrying the stable identifier of a record in the
// source store. Every source record must have it and every target table keeps
// it as a unique column for idempotency checks.
const SourceIDField = "source_id"

// Record is one document-shaped record from the source store. Values may be
// scalars, nested maps, or arrays. Records are never mutated in place.
type Record map[string]interface{}

// Row is a flat target-row candidate, column name to value
type Row map[string]interface{}

// RedefineFunc computes a replacement value for a field from its old value and
// the whole record. Returning an error leaves the field unchanged and records
// a warning; it does not abort the record.
type RedefineFunc func(old interface{}, record Record) (interface{}, error)

// ExtraAttrsFunc computes additional link-row attributes from the two resolved
// identifiers and the original record
type ExtraAttrsFunc func(selfID, foreignID int64, record Record) map[string]interface{}

// LinkConfig routes one array field into a link table realizing a many-to-many
// association.
type LinkConfig struct {
	// Table is the link table name
	Table string
	// SelfColumn holds the owning record's target id
	SelfColumn string
	// ForeignColumn holds the resolved element's target id
	ForeignColumn string
	// Collection optionally names the collection the array elements belong to.
	// When empty, elements are resolved by scanning every known collection,
	// which is ambiguous if identifiers are not globally unique. Prefer
	// setting it.
	Collection string
	// ExtraAttrs optionally supplies additional link-row columns
	ExtraAttrs ExtraAttrsFunc
}

// CollectionConfig describes how one source collection materializes into the
// relational schema. Owned by the caller; immutable during a migration run.
type CollectionConfig struct {
	// Table is the target table name; defaults to the collection name
	Table string
	// Rename maps old field names to new ones, applied before Redefine
	Rename map[string]string
	// Redefine maps field names to value-rewriting functions
	Redefine map[string]RedefineFunc
	// ForeignKeys maps scalar reference fields to the collection they reference
	ForeignKeys map[string]string
	// Links maps array fields to link-table configurations
	Links map[string]LinkConfig
}

// TableName returns the configured target table, falling back to the
// collection name
func (c *CollectionConfig) TableName(collection string) string {
	if c.Table != "" {
		return c.Table
	}
	return collection
}

// Validate checks a collection configuration for inconsistencies that would
// otherwise surface as silent first-write-wins behavior at runtime. It runs
// once per collection before any row is processed.
func (c *CollectionConfig) Validate(collection string) error {
	fail := func(format string, args ...interface{}) error {
		return &ConfigurationError{Collection: collection, Detail: fmt.Sprintf(format, args...)}
	}

	seen := make(map[string]string, len(c.Rename))
	for from, to := range c.Rename {
		if from == to {
			return fail("rename %q to itself", from)
		}
		if to == "" {
			return fail("rename %q to empty field name", from)
		}
		if from == SourceIDField {
			return fail("rename of %s is not allowed", SourceIDField)
		}
		if prev, dup := seen[to]; dup {
			return fail("fields %q and %q both rename to %q", prev, from, to)
		}
		seen[to] = from
	}
	// A rename whose target is itself renamed makes the outcome depend on map
	// iteration order. Covers two-cycles and longer chains alike.
	for from, to := range c.Rename {
		if _, chained := c.Rename[to]; chained {
			return fail("rename %q to %q collides with another rename source", from, to)
		}
	}

	for field, fn := range c.Redefine {
		if fn == nil {
			return fail("redefine for %q has no function", field)
		}
	}

	for field, ref := range c.ForeignKeys {
		if ref == "" {
			return fail("foreign key %q references no collection", field)
		}
		if _, linked := c.Links[field]; linked {
			return fail("field %q is configured as both a foreign key and a link", field)
		}
	}

	for field, link := range c.Links {
		if link.Table == "" {
			return fail("link %q has no table", field)
		}
		if link.SelfColumn == "" || link.ForeignColumn == "" {
			return fail("link %q must name both id columns", field)
		}
		if link.SelfColumn == link.ForeignColumn {
			return fail("link %q uses the same column %q for both ids", field, link.SelfColumn)
		}
	}

	return nil
}
