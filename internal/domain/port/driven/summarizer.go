package driven

import (
	"context"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// Summarizer turns a set of new commits, releases, or fork branches into
// human-readable text. A returned error means the unit was not summarized
// and its bookkeeping must not advance.
type Summarizer interface {
	Summarize(ctx context.Context, req model.SummaryRequest) (string, error)
}
