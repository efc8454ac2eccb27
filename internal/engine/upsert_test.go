package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertRowsPartition(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	// Pre-populate the target with e1 as if migrated by a prior run
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertRows(ctx, "employees", []Row{{"source_id": "e1", "name": "Ann"}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	registry := NewTranslationRegistry()
	upserter := NewUpserter(registry, testLogger())
	cfg := &CollectionConfig{}

	tx, err = store.Begin(ctx)
	require.NoError(t, err)

	candidates := []Row{
		{"source_id": "e1", "name": "Ann"},
		{"source_id": "e2", "name": "Bob"},
	}
	skipped, inserted, warnings, err := upserter.UpsertRows(ctx, tx, "employees", cfg, candidates)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, inserted)
	assert.Empty(t, warnings)

	t.Run("registry staged both pre-existing and new ids", func(t *testing.T) {
		id, ok := registry.Resolve("employees", "e1")
		assert.True(t, ok)
		assert.Equal(t, int64(1), id)

		id, ok = registry.Resolve("employees", "e2")
		assert.True(t, ok)
		assert.Equal(t, int64(2), id)
	})

	assert.Equal(t, 2, store.rowCount("employees"))
}

func TestUpsertRowsDefects(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch writes nothing", func(t *testing.T) {
		store := newMemStore()
		tx, err := store.Begin(ctx)
		require.NoError(t, err)

		upserter := NewUpserter(NewTranslationRegistry(), testLogger())
		skipped, inserted, warnings, err := upserter.UpsertRows(ctx, tx, "employees", &CollectionConfig{}, nil)
		assert.NoError(t, err)
		assert.Zero(t, skipped)
		assert.Zero(t, inserted)
		assert.Empty(t, warnings)
	})

	t.Run("candidates without source id are dropped with a warning", func(t *testing.T) {
		store := newMemStore()
		tx, err := store.Begin(ctx)
		require.NoError(t, err)

		upserter := NewUpserter(NewTranslationRegistry(), testLogger())
		_, inserted, warnings, err := upserter.UpsertRows(ctx, tx, "employees", &CollectionConfig{},
			[]Row{{"name": "Ann"}, {"source_id": "e1", "name": "Bob"}})
		require.NoError(t, err)
		assert.Equal(t, 1, inserted)
		require.Len(t, warnings, 1)
		assert.Equal(t, WarnMissingID, warnings[0].Code)
	})

	t.Run("duplicate source ids within a batch keep the first row", func(t *testing.T) {
		store := newMemStore()
		tx, err := store.Begin(ctx)
		require.NoError(t, err)

		registry := NewTranslationRegistry()
		upserter := NewUpserter(registry, testLogger())
		_, inserted, warnings, err := upserter.UpsertRows(ctx, tx, "employees", &CollectionConfig{},
			[]Row{{"source_id": "e1", "name": "Ann"}, {"source_id": "e1", "name": "Ann again"}})
		require.NoError(t, err)
		assert.Equal(t, 1, inserted)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Detail, "duplicate")
	})

	t.Run("insert failure propagates", func(t *testing.T) {
		store := newMemStore()
		store.failInsert = true
		tx, err := store.Begin(ctx)
		require.NoError(t, err)

		upserter := NewUpserter(NewTranslationRegistry(), testLogger())
		_, _, _, err = upserter.UpsertRows(ctx, tx, "employees", &CollectionConfig{},
			[]Row{{"source_id": "e1"}})
		assert.Error(t, err)
	})
}

func TestUpsertRerunInsertsNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	cfg := &CollectionConfig{}

	candidates := []Row{
		{"source_id": "e1", "name": "Ann"},
		{"source_id": "e2", "name": "Bob"},
	}

	run := func(registry *TranslationRegistry) (int, int) {
		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		upserter := NewUpserter(registry, testLogger())
		skipped, inserted, _, err := upserter.UpsertRows(ctx, tx, "employees", cfg, candidates)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
		return skipped, inserted
	}

	skipped, inserted := run(NewTranslationRegistry())
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 2, inserted)

	// Second run with a fresh registry, as happens across processes
	skipped, inserted = run(NewTranslationRegistry())
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 0, inserted)

	assert.Equal(t, 2, store.rowCount("employees"))
}
