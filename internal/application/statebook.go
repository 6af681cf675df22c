package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// StateBook owns the in-memory state of one concern during a batch. A task
// checks out a private copy of its repository's entry, holding that key's
// lock until it releases it, and commits the copy back when it succeeds.
// Every commit rewrites the whole state through the store, one write at a
// time.
type StateBook struct {
	store driven.StateStore

	mu       sync.Mutex
	entries  model.PersistedState
	keyLocks map[model.RepositoryKey]*sync.Mutex

	writeMu sync.Mutex
}

// NewStateBook creates a StateBook over initial with a lock for each of keys.
// A nil store keeps commits in memory only.
func NewStateBook(store driven.StateStore, initial model.PersistedState, keys []model.RepositoryKey) *StateBook {
	entries := initial.Clone()
	if entries == nil {
		entries = make(model.PersistedState)
	}

	locks := make(map[model.RepositoryKey]*sync.Mutex, len(keys))
	for _, k := range keys {
		locks[k] = &sync.Mutex{}
	}

	return &StateBook{
		store:    store,
		entries:  entries,
		keyLocks: locks,
	}
}

func (b *StateBook) lockFor(key model.RepositoryKey) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		b.keyLocks[key] = l
	}
	return l
}

// Checkout locks key and returns a copy of its entry, which is the zero
// RepositoryState for an unseen key. The caller must call release exactly
// once.
func (b *StateBook) Checkout(key model.RepositoryKey) (rs model.RepositoryState, release func()) {
	l := b.lockFor(key)
	l.Lock()

	b.mu.Lock()
	rs = b.entries[key].Clone()
	b.mu.Unlock()

	var once sync.Once
	return rs, func() { once.Do(l.Unlock) }
}

// Commit stores rs as the entry for key and flushes the whole state. The
// in-memory entry is kept even when the flush fails, so a later flush can
// still persist it.
func (b *StateBook) Commit(ctx context.Context, key model.RepositoryKey, rs model.RepositoryState) error {
	b.mu.Lock()
	b.entries[key] = rs.Clone()
	b.mu.Unlock()

	return b.flush(ctx)
}

// Remove deletes the entries for keys and flushes. It returns how many
// entries existed.
func (b *StateBook) Remove(ctx context.Context, keys ...model.RepositoryKey) (int, error) {
	b.mu.Lock()
	removed := 0
	for _, k := range keys {
		if _, ok := b.entries[k]; ok {
			delete(b.entries, k)
			removed++
		}
	}
	b.mu.Unlock()

	if removed == 0 {
		return 0, nil
	}
	return removed, b.flush(ctx)
}

// Reset deletes every entry and flushes. It returns how many entries existed.
func (b *StateBook) Reset(ctx context.Context) (int, error) {
	b.mu.Lock()
	removed := len(b.entries)
	b.entries = make(model.PersistedState)
	b.mu.Unlock()

	return removed, b.flush(ctx)
}

// Snapshot returns a copy of the current state.
func (b *StateBook) Snapshot() model.PersistedState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.Clone()
}

// flush writes the state as of the moment the write lock is held, so a
// later flush never persists an older snapshot than an earlier one.
func (b *StateBook) flush(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.store.Save(ctx, b.Snapshot()); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}
