// Package jsonstate implements the StateStore port as one JSON document per
// concern, replaced atomically on every save.
package jsonstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StateStore = (*Store)(nil)

// FileName returns the state file name used for a concern.
func FileName(concern model.Concern) string {
	return string(concern) + "_state.json"
}

// Store persists one concern's state as a JSON object keyed by repository.
type Store struct {
	path string
}

// NewStore creates a Store for concern inside dir.
func NewStore(dir string, concern model.Concern) *Store {
	return &Store{path: filepath.Join(dir, FileName(concern))}
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing or empty file yields an empty state;
// content that does not decode yields driven.ErrStateCorrupt.
func (s *Store) Load(_ context.Context) (model.PersistedState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.PersistedState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	return decode(s.path, data)
}

// Save writes the whole state through a temp file and an atomic rename, so a
// crash leaves either the previous or the new document on disk.
func (s *Store) Save(_ context.Context, state model.PersistedState) error {
	data, err := encode(state)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write state %s: %w", s.path, err)
	}

	return nil
}

func encode(state model.PersistedState) ([]byte, error) {
	if state == nil {
		state = model.PersistedState{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return append(data, '\n'), nil
}

func decode(path string, data []byte) (model.PersistedState, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return model.PersistedState{}, nil
	}

	var raw map[string]model.RepositoryState
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", driven.ErrStateCorrupt, path, err)
	}

	state := make(model.PersistedState, len(raw))
	for key, rs := range raw {
		k := model.RepositoryKey(strings.ToLower(key))
		if _, dup := state[k]; dup {
			return nil, fmt.Errorf("%w: %s: repository %s appears under more than one spelling", driven.ErrStateCorrupt, path, k)
		}
		state[k] = rs
	}
	return state, nil
}
