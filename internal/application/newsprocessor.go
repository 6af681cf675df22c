package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ RepositoryProcessor = (*NewsProcessor)(nil)

// NewsProcessor reports new default-branch commits, new releases, and new
// commits on other branches of a tracked repository.
type NewsProcessor struct {
	fetcher    driven.RemoteFetcher
	summarizer driven.Summarizer
	detector   *ChangeDetector
	opts       Options
	metrics    *Metrics
	now        func() time.Time
}

// NewNewsProcessor creates a NewsProcessor.
func NewNewsProcessor(deps ProcessorDeps) *NewsProcessor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	opts := deps.Options.WithDefaults()
	return &NewsProcessor{
		fetcher:    deps.Fetcher,
		summarizer: deps.Summarizer,
		detector:   NewChangeDetector(deps.Fetcher, opts, now),
		opts:       opts,
		metrics:    deps.Metrics,
		now:        now,
	}
}

// Concern implements RepositoryProcessor.
func (p *NewsProcessor) Concern() model.Concern {
	return model.ConcernNews
}

// pendingBranch is a branch observation waiting for the summary outcome.
type pendingBranch struct {
	ref      model.BranchRef
	cmp      model.Comparison
	commits  []model.CommitRef
	reported bool
}

// Process implements RepositoryProcessor.
func (p *NewsProcessor) Process(ctx context.Context, task *Task) error {
	repo := task.Repo
	rs := &task.State
	logger := task.Logger

	snap, err := p.detector.Snapshot(ctx, repo)
	if err != nil {
		return repositoryError(repo, err)
	}

	if p.detector.Unchanged(*rs, snap) {
		rs.LastCheck = model.NewTimestamp(p.now())
		p.metrics.fastPath(model.ConcernNews)
		logger.Debug("repository unchanged", "head", snap.DefaultHead)
		task.Report.NoUpdates("no changes since last check")
		return nil
	}

	listed, err := p.fetcher.ListCommits(ctx, repo.Owner, repo.Repo, snap.DefaultBranch, p.opts.MaxCommits)
	if err != nil {
		return repositoryError(repo, err)
	}
	commits := reverseCommits(listed)
	newCommits := p.detector.filter(commits, rs.LastCommit)

	releases, err := p.fetcher.ListReleases(ctx, repo.Owner, repo.Repo, p.opts.MaxReleases)
	if err != nil {
		logger.Debug("listing releases failed", "error", err)
		releases = nil
	}
	newReleases := releases
	if p.opts.TrackState {
		newReleases = ReleasesSince(releases, rs.LastRelease)
	}

	comparator := NewBranchComparator(p.fetcher, repo, snap.DefaultBranch, logger)

	var pending []pendingBranch
	var analyses []model.BranchAnalysis
	newCount := len(newCommits)

	for _, b := range snap.Candidates {
		if b.Name == snap.DefaultBranch {
			continue
		}

		cmp, ok := comparator.CompareBranch(ctx, b.Name)
		if !ok {
			continue
		}

		branchCommits := p.detector.branchCommits(ctx, logger, repo.Owner, repo.Repo, b.Name, cmp)
		pb := pendingBranch{ref: b, cmp: cmp, commits: branchCommits}

		if p.detector.ShouldProcessBranch(*rs, b.Name, branchCommits) {
			fresh := p.detector.filter(branchCommits, rs.Branches[b.Name].LastCommit)
			if len(fresh) > 0 {
				fresh = capCommits(fresh, p.opts.MaxCommits)
				analyses = append(analyses, model.NewBranchAnalysis(b.Name, false, cmp, fresh))
				newCount += len(fresh)
				pb.reported = true
			}
		}
		pending = append(pending, pb)
	}

	report := model.NewsReport{
		Repository:    repo,
		DefaultBranch: snap.DefaultBranch,
		Commits:       newCommits,
		Releases:      newReleases,
		Branches:      analyses,
	}

	summarized := true
	if report.Empty() {
		task.Report.NoUpdates("no new commits or releases")
	} else {
		summary, err := p.summarizer.Summarize(ctx, model.SummaryRequest{
			Kind:       model.SummaryNews,
			Repository: repo,
			Commits:    newCommits,
			Releases:   newReleases,
			Branches:   analyses,
		})
		if err != nil {
			summarized = false
			logger.Warn("summary failed", "error", err)
			task.Report.Warn(fmt.Sprintf("summary failed: %v", err))
		} else {
			report.Summary = summary
			task.Report.News(report)
			p.metrics.newCommits(model.ConcernNews, newCount)
		}
	}

	rs.LastCheck = model.NewTimestamp(p.now())
	if summarized {
		if len(commits) > 0 {
			rs.LastCommit = commits[len(commits)-1].SHA
		} else if snap.DefaultHead != "" {
			rs.LastCommit = snap.DefaultHead
		}
		if len(releases) > 0 {
			rs.LastRelease = strconv.FormatInt(releases[0].ID, 10)
		}
	}

	for _, pb := range pending {
		if pb.reported && !summarized {
			continue
		}
		p.detector.RecordBranch(rs, pb.ref, pb.cmp, pb.commits)
	}

	if p.opts.PruneStale {
		if pruned := PruneBranches(rs, snap.All); len(pruned) > 0 {
			logger.Info("pruned deleted branches", "branches", pruned)
		}
	}

	logger.Debug("news processed",
		"new_commits", len(newCommits),
		"new_releases", len(newReleases),
		"branches_reported", len(analyses),
		"comparisons", comparator.Calls(),
	)

	return nil
}
