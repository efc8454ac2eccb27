package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// memStore is an in-memory TargetStore with real transaction semantics:
// writes land in the store only on Commit. Link tables carry a uniqueness
// constraint over the full row, mirroring the recommended mitigation for
// duplicate link rows.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	tables map[string]map[string]int64 // table -> source_id -> id
	links  map[string][]Row
	linked map[string]map[string]bool // table -> row key -> present

	failInsert bool
	failLinks  bool
	failCommit bool
}

func newMemStore() *memStore {
	return &memStore{
		tables: make(map[string]map[string]int64),
		links:  make(map[string][]Row),
		linked: make(map[string]map[string]bool),
	}
}

func (s *memStore) Begin(ctx context.Context) (TargetTx, error) {
	return &memTx{store: s}, nil
}

func (s *memStore) rowCount(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

func (s *memStore) linkCount(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links[table])
}

type stagedRow struct {
	table    string
	sourceID string
	targetID int64
}

type stagedLink struct {
	table string
	row   Row
	key   string
}

type memTx struct {
	store       *memStore
	stagedRows  []stagedRow
	stagedLinks []stagedLink
	done        bool
}

func (t *memTx) ExistingRows(ctx context.Context, table string, sourceIDs []string) (map[string]int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	existing := make(map[string]int64)
	for _, sourceID := range sourceIDs {
		if id, ok := t.store.tables[table][sourceID]; ok {
			existing[sourceID] = id
		}
	}
	return existing, nil
}

func (t *memTx) InsertRows(ctx context.Context, table string, rows []Row) ([]int64, error) {
	if t.store.failInsert {
		return nil, fmt.Errorf("induced insert failure")
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	ids := make([]int64, len(rows))
	for i, row := range rows {
		t.store.nextID++
		ids[i] = t.store.nextID
		t.stagedRows = append(t.stagedRows, stagedRow{
			table:    table,
			sourceID: row[SourceIDField].(string),
			targetID: t.store.nextID,
		})
	}
	return ids, nil
}

func (t *memTx) InsertLinks(ctx context.Context, table string, rows []Row) (int, int, error) {
	if t.store.failLinks {
		return 0, 0, fmt.Errorf("induced link failure")
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	inserted, conflicts := 0, 0
	for _, row := range rows {
		key := rowKey(row)
		if t.store.linked[table][key] {
			conflicts++
			continue
		}
		duplicate := false
		for _, staged := range t.stagedLinks {
			if staged.table == table && staged.key == key {
				duplicate = true
				break
			}
		}
		if duplicate {
			conflicts++
			continue
		}
		t.stagedLinks = append(t.stagedLinks, stagedLink{table: table, row: row, key: key})
		inserted++
	}
	return inserted, conflicts, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.store.failCommit {
		return fmt.Errorf("induced commit failure")
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, staged := range t.stagedRows {
		table, ok := t.store.tables[staged.table]
		if !ok {
			table = make(map[string]int64)
			t.store.tables[staged.table] = table
		}
		table[staged.sourceID] = staged.targetID
	}
	for _, staged := range t.stagedLinks {
		t.store.links[staged.table] = append(t.store.links[staged.table], staged.row)
		keys, ok := t.store.linked[staged.table]
		if !ok {
			keys = make(map[string]bool)
			t.store.linked[staged.table] = keys
		}
		keys[staged.key] = true
	}
	t.done = true
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.stagedRows = nil
	t.stagedLinks = nil
	return nil
}

func rowKey(row Row) string {
	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = fmt.Sprintf("%s=%v", column, row[column])
	}
	return strings.Join(parts, "|")
}

// driftingSchema is a SchemaReconciler that always fails
type driftingSchema struct{}

func (driftingSchema) EnsureSourceID(ctx context.Context, table string) error {
	return fmt.Errorf("induced schema failure")
}
