package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/docshift/docshift/internal/engine"
)

// Manifest is the YAML migration manifest supplied to the CLI. The collection
// order encodes the dependency resolution the operator must have already
// computed: every collection a later one references appears earlier.
type Manifest struct {
	Source      SourceSpec       `yaml:"source"`
	Target      TargetSpec       `yaml:"target"`
	Collections []CollectionSpec `yaml:"collections"`
}

// SourceSpec identifies the source MongoDB database
type SourceSpec struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// TargetSpec identifies the target PostgreSQL database
type TargetSpec struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// CollectionSpec describes one collection's materialization in the manifest
type CollectionSpec struct {
	Name        string              `yaml:"name"`
	Table       string              `yaml:"table"`
	Limit       int                 `yaml:"limit"`
	Rename      map[string]string   `yaml:"rename"`
	Redefine    map[string]string   `yaml:"redefine"`
	ForeignKeys map[string]string   `yaml:"foreign_keys"`
	Links       map[string]LinkSpec `yaml:"links"`
}

// LinkSpec describes one array field routed into a link table
type LinkSpec struct {
	Table         string `yaml:"table"`
	SelfColumn    string `yaml:"self_column"`
	ForeignColumn string `yaml:"foreign_column"`
	// Collection names the collection the array elements belong to. Leaving
	// it empty falls back to scanning every migrated collection, which is
	// ambiguous when identifiers are not globally unique.
	Collection string `yaml:"collection"`
}

// Load reads and parses a manifest file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if manifest.Source.URI == "" {
		return nil, fmt.Errorf("manifest has no source.uri")
	}
	if manifest.Source.Database == "" {
		return nil, fmt.Errorf("manifest has no source.database")
	}
	if len(manifest.Collections) == 0 {
		return nil, fmt.Errorf("manifest has no collections")
	}
	for i, collection := range manifest.Collections {
		if collection.Name == "" {
			return nil, fmt.Errorf("collection %d has no name", i)
		}
	}

	return &manifest, nil
}

// EngineConfig converts one collection spec into the engine configuration,
// resolving redefine function names against the registry
func (c *CollectionSpec) EngineConfig(redefines *engine.RedefineRegistry) (*engine.CollectionConfig, error) {
	cfg := &engine.CollectionConfig{
		Table:       c.Table,
		Rename:      c.Rename,
		ForeignKeys: c.ForeignKeys,
	}

	if len(c.Redefine) > 0 {
		cfg.Redefine = make(map[string]engine.RedefineFunc, len(c.Redefine))
		for field, name := range c.Redefine {
			fn, err := redefines.Get(name)
			if err != nil {
				return nil, fmt.Errorf("collection %s, field %s: %w", c.Name, field, err)
			}
			cfg.Redefine[field] = fn
		}
	}

	if len(c.Links) > 0 {
		cfg.Links = make(map[string]engine.LinkConfig, len(c.Links))
		for field, link := range c.Links {
			cfg.Links[field] = engine.LinkConfig{
				Table:         link.Table,
				SelfColumn:    link.SelfColumn,
				ForeignColumn: link.ForeignColumn,
				Collection:    link.Collection,
			}
		}
	}

	return cfg, nil
}
