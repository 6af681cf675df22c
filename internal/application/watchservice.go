package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// ErrRepositoryNotTracked is returned by Refresh for a name that matches no
// tracked repository.
var ErrRepositoryNotTracked = errors.New("repository not tracked")

// BatchRunner runs one concern over a set of repositories.
type BatchRunner interface {
	Run(ctx context.Context, concern model.Concern, repos []model.Repository) (BatchResult, error)
}

// refreshRequest represents a manual refresh trigger.
type refreshRequest struct {
	repos []model.Repository
	done  chan error
}

// ConcernStatus is the outcome of the most recent batch of one concern.
type ConcernStatus struct {
	RunID     string
	Finished  time.Time
	Succeeded int
	Failed    int
	TimedOut  int
	Err       error
}

// WatchStatus is a point-in-time view of the watch loop.
type WatchStatus struct {
	Started  time.Time
	Cycles   int
	Concerns map[model.Concern]ConcernStatus
}

// Healthy reports whether the last batch of every concern could load and
// write state.
func (s WatchStatus) Healthy() bool {
	for _, c := range s.Concerns {
		if c.Err != nil {
			return false
		}
	}
	return true
}

// WatchService runs the configured concerns on an interval and on demand.
// Batches never overlap: ticks and manual refreshes are served by one loop.
type WatchService struct {
	runner   BatchRunner
	repos    []model.Repository
	concerns []model.Concern
	interval time.Duration
	logger   *slog.Logger

	refreshCh chan refreshRequest

	mu     sync.RWMutex
	status WatchStatus
}

// NewWatchService creates a WatchService.
func NewWatchService(
	runner BatchRunner,
	repos []model.Repository,
	concerns []model.Concern,
	interval time.Duration,
	logger *slog.Logger,
) *WatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchService{
		runner:    runner,
		repos:     repos,
		concerns:  concerns,
		interval:  interval,
		logger:    logger,
		refreshCh: make(chan refreshRequest),
		status: WatchStatus{
			Concerns: make(map[model.Concern]ConcernStatus, len(concerns)),
		},
	}
}

// Start runs an immediate cycle, then one per interval, and serves refresh
// requests in between. Start blocks until the context is canceled.
func (s *WatchService) Start(ctx context.Context) {
	s.mu.Lock()
	s.status.Started = time.Now()
	s.mu.Unlock()

	s.cycle(ctx, s.repos)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watch service stopped")
			return
		case <-ticker.C:
			s.cycle(ctx, s.repos)
		case req := <-s.refreshCh:
			req.done <- s.cycle(ctx, req.repos)
		}
	}
}

// Refresh runs every concern now, for the repository matching name or for all
// repositories when name is empty. It blocks until the cycle completes or the
// context is canceled.
func (s *WatchService) Refresh(ctx context.Context, name string) error {
	repos := s.repos
	if name != "" {
		repo, ok := s.lookup(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrRepositoryNotTracked, name)
		}
		repos = []model.Repository{repo}
	}

	done := make(chan error, 1)
	req := refreshRequest{repos: repos, done: done}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the outcome of the most recent cycle.
func (s *WatchService) Status() WatchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.status
	out.Concerns = make(map[model.Concern]ConcernStatus, len(s.status.Concerns))
	for c, st := range s.status.Concerns {
		out.Concerns[c] = st
	}
	return out
}

// cycle runs every concern over repos and returns the joined state errors.
func (s *WatchService) cycle(ctx context.Context, repos []model.Repository) error {
	start := time.Now()
	var errs []error

	for _, concern := range s.concerns {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result, err := s.runner.Run(ctx, concern, repos)
		if err != nil {
			s.logger.Error("batch failed", "concern", string(concern), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", concern, err))
		}

		s.mu.Lock()
		s.status.Concerns[concern] = ConcernStatus{
			RunID:     result.RunID,
			Finished:  time.Now(),
			Succeeded: result.Count(model.TaskSucceeded),
			Failed:    result.Count(model.TaskFailed),
			TimedOut:  result.Count(model.TaskTimedOut),
			Err:       err,
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.status.Cycles++
	s.mu.Unlock()

	s.logger.Info("watch cycle complete",
		"repos", len(repos),
		"concerns", len(s.concerns),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return errors.Join(errs...)
}

// lookup finds a tracked repository by alias, owner/name, or key.
func (s *WatchService) lookup(name string) (model.Repository, bool) {
	for _, r := range s.repos {
		if strings.EqualFold(r.Name, name) ||
			strings.EqualFold(r.FullName(), name) ||
			string(r.Key) == strings.ToLower(name) {
			return r, true
		}
	}
	return model.Repository{}, false
}
