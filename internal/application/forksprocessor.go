package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ RepositoryProcessor = (*ForksProcessor)(nil)

// ForksProcessor reports fork branches that carry commits the tracked
// repository does not have.
type ForksProcessor struct {
	fetcher    driven.RemoteFetcher
	summarizer driven.Summarizer
	detector   *ChangeDetector
	selector   *ForkSelector
	opts       Options
	metrics    *Metrics
	now        func() time.Time
}

// NewForksProcessor creates a ForksProcessor.
func NewForksProcessor(deps ProcessorDeps) *ForksProcessor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	opts := deps.Options.WithDefaults()
	return &ForksProcessor{
		fetcher:    deps.Fetcher,
		summarizer: deps.Summarizer,
		detector:   NewChangeDetector(deps.Fetcher, opts, now),
		selector:   NewForkSelector(deps.Fetcher, opts.MaxForks, opts.TrackState),
		opts:       opts,
		metrics:    deps.Metrics,
		now:        now,
	}
}

// Concern implements RepositoryProcessor.
func (p *ForksProcessor) Concern() model.Concern {
	return model.ConcernForks
}

// Process implements RepositoryProcessor. A fork that fails is logged and
// skipped; its siblings are still processed.
func (p *ForksProcessor) Process(ctx context.Context, task *Task) error {
	repo := task.Repo
	rs := &task.State
	logger := task.Logger

	defaultBranch, err := p.fetcher.GetDefaultBranch(ctx, repo.Owner, repo.Repo)
	if err != nil {
		return repositoryError(repo, err)
	}

	parentHead, err := p.fetcher.GetBranchHead(ctx, repo.Owner, repo.Repo, defaultBranch)
	if err != nil {
		logger.Debug("reading default branch head failed, comparing every fork", "error", err)
		parentHead = ""
	}

	sel, err := p.selector.Select(ctx, repo, *rs, parentHead)
	if err != nil {
		return repositoryError(repo, err)
	}

	comparator := NewBranchComparator(p.fetcher, repo, defaultBranch, logger)

	active := 0
	// settled stays true while every candidate is recorded from a complete
	// comparison; only then may the parent head advance.
	settled := true
	for _, fork := range sel.Candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		forkLogger := logger.With("fork", fork.FullName)

		analysis, compared, complete, err := p.analyzeFork(ctx, comparator, forkLogger, repo, defaultBranch, fork, *rs)
		if err != nil {
			forkLogger.Warn("fork analysis failed", "error", err)
			task.Report.Warn(fmt.Sprintf("skipped fork %s: %v", fork.FullName, err))
			settled = false
			continue
		}

		if len(analysis.Branches) > 0 && p.detector.ShouldProcessFork(*rs, fork.FullName, analysis.Branches) {
			summary, err := p.summarizer.Summarize(ctx, model.SummaryRequest{
				Kind:       model.SummaryFork,
				Repository: repo,
				Subject:    fork.FullName,
				Branches:   analysis.Branches,
			})
			if err != nil {
				forkLogger.Warn("fork summary failed", "error", err)
				task.Report.Warn(fmt.Sprintf("summary failed for fork %s: %v", fork.FullName, err))
				settled = false
				continue
			}

			analysis.Summary = summary
			task.Report.Fork(analysis)
			active++

			for _, b := range analysis.Branches {
				p.metrics.newCommits(model.ConcernForks, len(b.NewCommits))
			}
		}

		if len(compared) > 0 {
			p.detector.RecordFork(rs, fork, compared, complete)
		}
		if !complete {
			settled = false
		}
	}

	if settled && parentHead != "" {
		rs.ParentHead = parentHead
	}

	if p.opts.PruneStale && len(sel.Listed) < p.opts.MaxForks {
		if pruned := PruneForks(rs, sel.Listed); len(pruned) > 0 {
			logger.Info("pruned deleted forks", "forks", pruned)
		}
	}

	now := model.NewTimestamp(p.now())
	rs.LastCheck = now
	rs.LastForkCheck = now

	logger.Debug("forks processed",
		"listed", len(sel.Listed),
		"candidates", len(sel.Candidates),
		"skipped", len(sel.Skipped),
		"active", active,
		"parent_head", parentHead,
		"comparisons", comparator.Calls(),
	)

	if active == 0 {
		task.Report.NoUpdates("no new fork activity")
	}
	task.Report.ForkTotals(active, len(sel.Listed))

	return nil
}

// analyzeFork compares the prioritized branches of fork against the tracked
// repository's default branch. It returns the branches retained for output
// and every branch that was compared, for bookkeeping. complete is false when
// any comparison failed.
func (p *ForksProcessor) analyzeFork(
	ctx context.Context,
	comparator *BranchComparator,
	logger *slog.Logger,
	repo model.Repository,
	defaultBranch string,
	fork model.ForkInfo,
	rs model.RepositoryState,
) (analysis model.ForkAnalysis, compared []comparedBranch, complete bool, err error) {
	branches, err := p.fetcher.ListBranches(ctx, fork.Owner, fork.Name)
	if err != nil {
		return model.ForkAnalysis{}, nil, false, fmt.Errorf("listing branches: %w", err)
	}

	stored := rs.ProcessedForks[fork.FullName]
	analysis = model.ForkAnalysis{Fork: fork}
	complete = true

	for _, b := range PrioritizeBranches(branches, fork.DefaultBranch, p.opts.MaxBranchesPerFork) {
		isDefault := b.Name == fork.DefaultBranch

		cmp, ok := comparator.Compare(ctx, repo.Owner, repo.Repo, defaultBranch, fork.Owner, fork.Name, b.Name)
		if !ok {
			complete = false
			continue
		}

		commits := p.detector.branchCommits(ctx, logger, fork.Owner, fork.Name, b.Name, cmp)
		compared = append(compared, comparedBranch{name: b.Name, aheadBy: cmp.AheadBy, commits: commits})

		ahead := cmp.AheadBy
		if cmp.Unrelated() {
			ahead = len(commits)
		}
		if !p.detector.retained(isDefault, ahead) {
			continue
		}

		fresh := p.detector.filter(commits, stored.Branches[b.Name].LastAheadCommit)
		if len(fresh) == 0 {
			logger.Debug("fork branch has nothing new", "branch", b.Name, "ahead_by", cmp.AheadBy)
			continue
		}

		fresh = capCommits(fresh, p.opts.MaxCommits)
		analysis.Branches = append(analysis.Branches, model.NewBranchAnalysis(b.Name, isDefault, cmp, fresh))
		analysis.TotalAhead += len(fresh)
	}

	return analysis, compared, complete, nil
}
