package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// ErrStateCorrupt indicates the persisted state exists but cannot be decoded.
var ErrStateCorrupt = errors.New("state corrupt")

// StateStore defines the driven port for persisting the bookkeeping of one
// concern. Load returns an empty state when nothing has been saved yet and
// ErrStateCorrupt when the stored document is malformed. Save replaces the
// stored document atomically.
type StateStore interface {
	Load(ctx context.Context) (model.PersistedState, error)
	Save(ctx context.Context, state model.PersistedState) error
}
