package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StateStore = (*StateRepo)(nil)

// StateRepo implements driven.StateStore with one row per repository and
// concern. Each row holds the repository's state as a JSON document so the
// on-disk shape matches the JSON file backend.
type StateRepo struct {
	db      *DB
	concern model.Concern
}

// NewStateRepo creates a StateRepo for one concern.
func NewStateRepo(db *DB, concern model.Concern) *StateRepo {
	return &StateRepo{db: db, concern: concern}
}

// Load returns every stored repository state for the concern.
func (r *StateRepo) Load(ctx context.Context) (model.PersistedState, error) {
	rows, err := r.db.Reader.QueryContext(ctx,
		"SELECT repo_key, state_json FROM repository_state WHERE concern = ? ORDER BY repo_key",
		string(r.concern),
	)
	if err != nil {
		return nil, fmt.Errorf("load %s state: %w", r.concern, err)
	}
	defer func() { _ = rows.Close() }()

	state := model.PersistedState{}
	for rows.Next() {
		var key, doc string
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, fmt.Errorf("scan %s state: %w", r.concern, err)
		}

		var rs model.RepositoryState
		if err := json.Unmarshal([]byte(doc), &rs); err != nil {
			return nil, fmt.Errorf("%w: %s state for %s: %v", driven.ErrStateCorrupt, r.concern, key, err)
		}
		state[model.RepositoryKey(key)] = rs
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s state: %w", r.concern, err)
	}

	return state, nil
}

// Save replaces the stored state for the concern in a single transaction.
func (r *StateRepo) Save(ctx context.Context, state model.PersistedState) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s state save: %w", r.concern, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM repository_state WHERE concern = ?", string(r.concern)); err != nil {
		return fmt.Errorf("clear %s state: %w", r.concern, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO repository_state (concern, repo_key, state_json, updated_at) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("prepare %s state insert: %w", r.concern, err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, rs := range state {
		doc, err := json.Marshal(rs)
		if err != nil {
			return fmt.Errorf("encode %s state for %s: %w", r.concern, key, err)
		}
		if _, err := stmt.ExecContext(ctx, string(r.concern), string(key), string(doc), now); err != nil {
			return fmt.Errorf("insert %s state for %s: %w", r.concern, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s state save: %w", r.concern, err)
	}

	return nil
}
