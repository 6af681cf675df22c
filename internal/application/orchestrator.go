package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// ErrUnknownConcern is returned by Run for a concern with no processor or
// state store.
var ErrUnknownConcern = errors.New("unknown concern")

// TaskResult is the outcome of one repository task.
type TaskResult struct {
	Repo     model.Repository
	Status   model.TaskStatus
	Err      error
	Duration time.Duration
}

// BatchResult is the outcome of one batch. Tasks are in input order.
type BatchResult struct {
	RunID    string
	Concern  model.Concern
	Started  time.Time
	Finished time.Time
	Tasks    []TaskResult
}

// Count returns the number of tasks that ended with status.
func (r BatchResult) Count(status model.TaskStatus) int {
	n := 0
	for _, t := range r.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// OrchestratorDeps are the collaborators of an Orchestrator. Stores may omit
// a concern only when SaveState is false.
type OrchestratorDeps struct {
	Processors map[model.Concern]RepositoryProcessor
	Stores     map[model.Concern]driven.StateStore
	Display    driven.Display
	Batch      BatchOptions
	SaveState  bool
	Metrics    *Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Orchestrator runs one concern's processor over a set of repositories with a
// bounded worker pool, flushing state after every successful task.
type Orchestrator struct {
	processors map[model.Concern]RepositoryProcessor
	stores     map[model.Concern]driven.StateStore
	display    driven.Display
	batch      BatchOptions
	saveState  bool
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	batch := deps.Batch
	d := DefaultBatchOptions()
	if batch.MaxWorkers <= 0 {
		batch.MaxWorkers = d.MaxWorkers
	}
	if batch.RepoTimeout <= 0 {
		batch.RepoTimeout = d.RepoTimeout
	}
	if batch.BatchTimeout <= 0 {
		batch.BatchTimeout = d.BatchTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		processors: deps.Processors,
		stores:     deps.Stores,
		display:    deps.Display,
		batch:      batch,
		saveState:  deps.SaveState,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        now,
	}
}

// Run processes repos for concern. Per-repository failures and timeouts are
// reported on the display and in the result; the returned error is non-nil
// only when state could not be loaded or written.
func (o *Orchestrator) Run(ctx context.Context, concern model.Concern, repos []model.Repository) (BatchResult, error) {
	proc, ok := o.processors[concern]
	if !ok {
		return BatchResult{}, fmt.Errorf("%w: %s", ErrUnknownConcern, concern)
	}

	var store driven.StateStore
	initial := model.PersistedState{}
	if o.saveState {
		store, ok = o.stores[concern]
		if !ok {
			return BatchResult{}, fmt.Errorf("%w: no state store for %s", ErrUnknownConcern, concern)
		}
		loaded, err := store.Load(ctx)
		if err != nil {
			return BatchResult{}, fmt.Errorf("loading %s state: %w", concern, err)
		}
		initial = loaded
	}

	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID, "concern", string(concern))

	repos = o.dedupe(logger, repos)
	keys := make([]model.RepositoryKey, len(repos))
	for i, r := range repos {
		keys[i] = r.Key
	}
	book := NewStateBook(store, initial, keys)

	result := BatchResult{
		RunID:   runID,
		Concern: concern,
		Started: o.now(),
		Tasks:   make([]TaskResult, len(repos)),
	}
	for i, r := range repos {
		result.Tasks[i] = TaskResult{Repo: r, Status: model.TaskPending}
	}

	workers := min(o.batch.MaxWorkers, len(repos))
	logger.Info("batch started", "repos", len(repos), "workers", workers)

	batchCtx, cancel := context.WithTimeout(ctx, o.batch.BatchTimeout)
	defer cancel()

	var (
		flushMu   sync.Mutex
		flushErrs []error
	)

	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(max(workers, 1))

	for i, repo := range repos {
		g.Go(func() error {
			tr := &result.Tasks[i]
			if gctx.Err() != nil {
				tr.Status = model.TaskTimedOut
				tr.Err = fmt.Errorf("not started before batch deadline: %w", gctx.Err())
				o.reportOutcome(logger.With("repo", repo.FullName()), concern, *tr)
				report := o.display.Open(repo)
				report.Error(tr.Err)
				report.Close()
				return nil
			}

			if err := o.runTask(gctx, logger, proc, book, tr); err != nil {
				o.metrics.flushError(concern)
				flushMu.Lock()
				flushErrs = append(flushErrs, err)
				flushMu.Unlock()
			}
			return nil
		})
	}

	// Tasks never return an error to the group.
	_ = g.Wait()

	result.Finished = o.now()
	o.metrics.observeBatch(concern, result.Finished.Sub(result.Started), result.Finished)

	logger.Info("batch finished",
		"succeeded", result.Count(model.TaskSucceeded),
		"failed", result.Count(model.TaskFailed),
		"timed_out", result.Count(model.TaskTimedOut),
		"duration", result.Finished.Sub(result.Started).Round(time.Millisecond),
	)

	return result, errors.Join(flushErrs...)
}

// runTask processes one repository and records the outcome in tr. The
// returned error is a state write failure; processing failures only land in
// tr.
func (o *Orchestrator) runTask(
	ctx context.Context,
	batchLogger *slog.Logger,
	proc RepositoryProcessor,
	book *StateBook,
	tr *TaskResult,
) error {
	repo := tr.Repo
	logger := batchLogger.With("repo", repo.FullName())
	start := o.now()
	tr.Status = model.TaskRunning

	report := o.display.Open(repo)
	defer report.Close()

	rs, release := book.Checkout(repo.Key)
	defer release()

	task := &Task{
		Repo:   repo,
		State:  rs,
		Report: report,
		Logger: logger,
	}

	taskCtx, cancel := context.WithTimeout(ctx, o.batch.RepoTimeout)
	defer cancel()

	// The processor runs in its own goroutine so a call that ignores
	// cancellation cannot hold the worker past the deadline. An abandoned
	// processor only ever touches its own working copy.
	done := make(chan error, 1)
	go func() {
		done <- proc.Process(taskCtx, task)
	}()

	var procErr error
	select {
	case procErr = <-done:
	case <-taskCtx.Done():
		procErr = taskCtx.Err()
	}
	tr.Duration = o.now().Sub(start)

	var flushErr error
	switch {
	case procErr == nil:
		tr.Status = model.TaskSucceeded
		// A finished task is flushed even when the batch deadline has passed.
		if err := book.Commit(context.WithoutCancel(ctx), repo.Key, task.State); err != nil {
			logger.Error("state flush failed", "error", err)
			report.Error(fmt.Errorf("state not saved: %w", err))
			flushErr = fmt.Errorf("%s: %w", repo.FullName(), err)
		}
	case errors.Is(procErr, context.DeadlineExceeded):
		tr.Status = model.TaskTimedOut
		tr.Err = fmt.Errorf("timed out after %s: %w", o.batch.RepoTimeout, procErr)
	default:
		tr.Status = model.TaskFailed
		tr.Err = procErr
	}

	o.reportOutcome(logger, proc.Concern(), *tr)
	if tr.Err != nil {
		report.Error(tr.Err)
	}

	return flushErr
}

func (o *Orchestrator) reportOutcome(logger *slog.Logger, concern model.Concern, tr TaskResult) {
	o.metrics.observeTask(concern, tr.Status, tr.Duration)

	switch tr.Status {
	case model.TaskSucceeded:
		logger.Debug("repository processed", "duration", tr.Duration.Round(time.Millisecond))
	case model.TaskTimedOut:
		logger.Warn("repository timed out", "error", tr.Err)
	default:
		logger.Warn("repository failed", "error", tr.Err)
	}
}

// dedupe drops repositories whose key was already seen, keeping the first.
func (o *Orchestrator) dedupe(logger *slog.Logger, repos []model.Repository) []model.Repository {
	seen := make(map[model.RepositoryKey]bool, len(repos))
	out := make([]model.Repository, 0, len(repos))
	for _, r := range repos {
		if seen[r.Key] {
			logger.Warn("duplicate repository ignored", "name", r.Name, "repo", r.FullName())
			continue
		}
		seen[r.Key] = true
		out = append(out, r)
	}
	return out
}
