package config

import (
	"sync"
)

// Config manages runtime configuration for a migration run
type Config struct {
	mu     sync.RWMutex
	values map[string]string

	// Keys that cannot change while a run is in progress
	frozenKeys []string
}

// New creates a new configuration manager
func New() *Config {
	return &Config{
		values: make(map[string]string),
		frozenKeys: []string{
			"source.uri",
			"source.database",
			"target.host",
			"target.port",
			"target.database",
		},
	}
}

// Get retrieves a configuration value
func (c *Config) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetAll returns a copy of all configuration values
func (c *Config) GetAll() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copy := make(map[string]string)
	for k, v := range c.values {
		copy[k] = v
	}
	return copy
}

// Update updates configuration values
func (c *Config) Update(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.values[k] = v
	}
}

// IsFrozen reports whether a key is pinned for the duration of a run
func (c *Config) IsFrozen(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, k := range c.frozenKeys {
		if k == key {
			return true
		}
	}
	return false
}
