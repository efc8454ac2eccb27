package engine

import (
	"fmt"
	"sort"
	"sync"
)

// TranslationRegistry maps each collection's stable source identifiers to the
// target identifiers assigned during materialization. Entries are append-only
// within a run: once a (collection, source_id) pair is entered its target id
// never changes.
//
// Writes land in a per-collection staging area first and become visible to
// other collections only after Commit, mirroring the enclosing database
// transaction. The upserter of a collection is the sole writer of its own
// sub-map; everything else is a read-only consumer.
type TranslationRegistry struct {
	mu        sync.RWMutex
	committed map[string]map[string]int64
	staged    map[string]map[string]int64
}

// NewTranslationRegistry creates an empty registry. The registry is owned by
// the migrator for the duration of one run; it is never a process-wide
// singleton and is not persisted between runs.
func NewTranslationRegistry() *TranslationRegistry {
	return &TranslationRegistry{
		committed: make(map[string]map[string]int64),
		staged:    make(map[string]map[string]int64),
	}
}

// Register stages a (collection, source_id) -> target_id entry. Registering an
// existing pair with the same target id is a no-op; a different target id is a
// conflict and should never occur given the append-only discipline.
func (r *TranslationRegistry) Register(collection, sourceID string, targetID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.committed[collection][sourceID]; ok {
		if existing != targetID {
			return fmt.Errorf("%w: %s/%s already mapped to %d, refusing %d",
				ErrConflict, collection, sourceID, existing, targetID)
		}
		return nil
	}
	if existing, ok := r.staged[collection][sourceID]; ok {
		if existing != targetID {
			return fmt.Errorf("%w: %s/%s already staged as %d, refusing %d",
				ErrConflict, collection, sourceID, existing, targetID)
		}
		return nil
	}

	stage, ok := r.staged[collection]
	if !ok {
		stage = make(map[string]int64)
		r.staged[collection] = stage
	}
	stage[sourceID] = targetID
	return nil
}

// Commit merges a collection's staged entries into the shared maps, making
// them visible to later collections. Called after the enclosing database
// transaction commits.
func (r *TranslationRegistry) Commit(collection string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stage, ok := r.staged[collection]
	if !ok {
		return
	}
	sub, ok := r.committed[collection]
	if !ok {
		sub = make(map[string]int64, len(stage))
		r.committed[collection] = sub
	}
	for sourceID, targetID := range stage {
		sub[sourceID] = targetID
	}
	delete(r.staged, collection)
}

// Discard drops a collection's staged entries. Called when the enclosing
// database transaction rolls back.
func (r *TranslationRegistry) Discard(collection string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.staged, collection)
}

// Resolve returns the target id for a source id within one collection. Staged
// entries of the same collection are visible, so a collection's link phase can
// see the ids its own upsert just assigned.
func (r *TranslationRegistry) Resolve(collection, sourceID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if targetID, ok := r.staged[collection][sourceID]; ok {
		return targetID, true
	}
	targetID, ok := r.committed[collection][sourceID]
	return targetID, ok
}

// ResolveAny scans every known collection for a source id. It is inherently
// ambiguous when identifiers are not globally unique; collections are scanned
// in sorted order so the outcome is at least deterministic. Callers should
// prefer an explicit collection binding wherever the configuration allows it.
func (r *TranslationRegistry) ResolveAny(sourceID string) (string, int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.committed)+len(r.staged))
	for name := range r.committed {
		names = append(names, name)
	}
	for name := range r.staged {
		if _, dup := r.committed[name]; !dup {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if targetID, ok := r.staged[name][sourceID]; ok {
			return name, targetID, true
		}
		if targetID, ok := r.committed[name][sourceID]; ok {
			return name, targetID, true
		}
	}
	return "", 0, false
}

// Size returns the number of committed entries for a collection
func (r *TranslationRegistry) Size(collection string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.committed[collection])
}
