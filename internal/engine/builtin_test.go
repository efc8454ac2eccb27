package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedefineRegistry(t *testing.T) {
	registry := NewRedefineRegistry()

	t.Run("built-ins are registered", func(t *testing.T) {
		names := registry.Names()
		assert.Contains(t, names, "uppercase")
		assert.Contains(t, names, "epoch_to_rfc3339")
	})

	t.Run("unknown names error", func(t *testing.T) {
		_, err := registry.Get("no_such_function")
		assert.Error(t, err)
	})

	t.Run("custom functions can be registered", func(t *testing.T) {
		registry.Register("constant", func(interface{}, Record) (interface{}, error) {
			return 42, nil
		})
		fn, err := registry.Get("constant")
		require.NoError(t, err)
		value, err := fn(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 42, value)
	})
}

func TestBuiltinRedefines(t *testing.T) {
	registry := NewRedefineRegistry()

	apply := func(t *testing.T, name string, old interface{}) (interface{}, error) {
		t.Helper()
		fn, err := registry.Get(name)
		require.NoError(t, err)
		return fn(old, nil)
	}

	t.Run("uppercase", func(t *testing.T) {
		value, err := apply(t, "uppercase", "eng")
		require.NoError(t, err)
		assert.Equal(t, "ENG", value)
	})

	t.Run("uppercase rejects non-strings", func(t *testing.T) {
		_, err := apply(t, "uppercase", 7)
		assert.Error(t, err)
	})

	t.Run("trim", func(t *testing.T) {
		value, err := apply(t, "trim", "  x ")
		require.NoError(t, err)
		assert.Equal(t, "x", value)
	})

	t.Run("to_string", func(t *testing.T) {
		value, err := apply(t, "to_string", 42)
		require.NoError(t, err)
		assert.Equal(t, "42", value)
	})

	t.Run("epoch_to_rfc3339", func(t *testing.T) {
		value, err := apply(t, "epoch_to_rfc3339", int64(0))
		require.NoError(t, err)
		assert.Equal(t, "1970-01-01T00:00:00Z", value)

		value, err = apply(t, "epoch_to_rfc3339", float64(86400))
		require.NoError(t, err)
		assert.Equal(t, "1970-01-02T00:00:00Z", value)

		_, err = apply(t, "epoch_to_rfc3339", "not an epoch")
		assert.Error(t, err)
	})

	t.Run("json_encode", func(t *testing.T) {
		value, err := apply(t, "json_encode", map[string]interface{}{"a": 1})
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, value.(string))
	})
}
