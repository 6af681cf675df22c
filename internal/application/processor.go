package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// Task is one repository's unit of work in a batch. State is the task's
// private working copy; the orchestrator commits it only if Process returns
// nil.
type Task struct {
	Repo   model.Repository
	State  model.RepositoryState
	Report driven.Report
	Logger *slog.Logger
}

// RepositoryProcessor runs change detection for one concern on one repository.
// A returned error marks the task failed and discards the working copy;
// failures of individual branches or forks are handled inside Process.
type RepositoryProcessor interface {
	Concern() model.Concern
	Process(ctx context.Context, task *Task) error
}

// ProcessorDeps are the collaborators shared by every processor.
type ProcessorDeps struct {
	Fetcher    driven.RemoteFetcher
	Summarizer driven.Summarizer
	Options    Options
	Metrics    *Metrics
	Now        func() time.Time
}

// NewProcessors builds the processor for every concern.
func NewProcessors(deps ProcessorDeps) map[model.Concern]RepositoryProcessor {
	return map[model.Concern]RepositoryProcessor{
		model.ConcernNews:  NewNewsProcessor(deps),
		model.ConcernForks: NewForksProcessor(deps),
	}
}

func capCommits(commits []model.CommitRef, limit int) []model.CommitRef {
	if limit > 0 && len(commits) > limit {
		return commits[len(commits)-limit:]
	}
	return commits
}
