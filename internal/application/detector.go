package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// ChangeDetector decides whether a repository, branch, or fork needs
// reprocessing and records what was observed into a repository's state.
type ChangeDetector struct {
	fetcher driven.RemoteFetcher
	opts    Options
	now     func() time.Time
}

// NewChangeDetector creates a ChangeDetector.
func NewChangeDetector(fetcher driven.RemoteFetcher, opts Options, now func() time.Time) *ChangeDetector {
	if now == nil {
		now = time.Now
	}
	return &ChangeDetector{
		fetcher: fetcher,
		opts:    opts.WithDefaults(),
		now:     now,
	}
}

// HeadSnapshot is the cheap view of a repository used by the fast path.
type HeadSnapshot struct {
	DefaultBranch string
	DefaultHead   string
	// Candidates are the branches worth comparing, in priority order and
	// capped, default branch first.
	Candidates []model.BranchRef
	// All is the full branch listing.
	All []model.BranchRef
}

// Snapshot fetches the default branch, its head, and the branch listing.
// Errors here are repository-level: a repository that cannot be read at all
// is not processed.
func (d *ChangeDetector) Snapshot(ctx context.Context, repo model.Repository) (HeadSnapshot, error) {
	defaultBranch, err := d.fetcher.GetDefaultBranch(ctx, repo.Owner, repo.Repo)
	if err != nil {
		return HeadSnapshot{}, err
	}

	head, err := d.fetcher.GetBranchHead(ctx, repo.Owner, repo.Repo, defaultBranch)
	if err != nil {
		return HeadSnapshot{}, err
	}

	branches, err := d.fetcher.ListBranches(ctx, repo.Owner, repo.Repo)
	if err != nil {
		return HeadSnapshot{}, err
	}

	return HeadSnapshot{
		DefaultBranch: defaultBranch,
		DefaultHead:   head,
		Candidates:    PrioritizeBranches(branches, defaultBranch, d.opts.MaxBranches),
		All:           branches,
	}, nil
}

// Unchanged reports whether nothing moved since rs was recorded: the default
// head equals the stored last commit, every candidate branch head equals its
// stored head, and no candidate branch is new.
func (d *ChangeDetector) Unchanged(rs model.RepositoryState, snap HeadSnapshot) bool {
	if !d.opts.TrackState {
		return false
	}
	if rs.LastCommit == "" || !strings.HasPrefix(snap.DefaultHead, rs.LastCommit) {
		return false
	}

	for _, b := range snap.Candidates {
		if b.Name == snap.DefaultBranch {
			continue
		}
		stored, ok := rs.Branches[b.Name]
		if !ok || stored.HeadSHA != b.SHA {
			return false
		}
	}

	return true
}

// ShouldProcessBranch reports whether branch has commits not yet recorded.
// commits is the branch's oldest-first commit list. It is true for an unseen
// branch, or when the latest commit differs from the stored one, and always
// true when state tracking is off.
func (d *ChangeDetector) ShouldProcessBranch(rs model.RepositoryState, branch string, commits []model.CommitRef) bool {
	if !d.opts.TrackState {
		return true
	}
	if len(commits) == 0 {
		return false
	}

	stored, ok := rs.Branches[branch]
	if !ok {
		return true
	}

	return commits[len(commits)-1].SHA != stored.LastCommit
}

// ShouldProcessFork reports whether fork is unseen or any analysed branch's
// latest new commit differs from the stored one. It is always true when
// state tracking is off.
func (d *ChangeDetector) ShouldProcessFork(rs model.RepositoryState, fork string, analyses []model.BranchAnalysis) bool {
	if !d.opts.TrackState {
		return true
	}

	stored, ok := rs.ProcessedForks[fork]
	if !ok {
		return true
	}

	for _, a := range analyses {
		if len(a.NewCommits) == 0 {
			continue
		}
		latest := a.NewCommits[len(a.NewCommits)-1].SHA
		if latest != stored.Branches[a.Branch].LastAheadCommit {
			return true
		}
	}

	return false
}

// filter applies the configured anchor policy.
func (d *ChangeDetector) filter(commits []model.CommitRef, lastSeen string) []model.CommitRef {
	if !d.opts.TrackState {
		return commits
	}
	return filterCommits(commits, lastSeen, d.opts.StrictAnchor)
}

// branchCommits returns the oldest-first commits a branch contributes. For
// branches with no shared history the comparison carries no commits, so the
// branch's own recent history stands in for them.
func (d *ChangeDetector) branchCommits(ctx context.Context, logger *slog.Logger, owner, repo, branch string, cmp model.Comparison) []model.CommitRef {
	if !cmp.Unrelated() {
		return cmp.Commits
	}

	commits, err := d.fetcher.ListCommits(ctx, owner, repo, branch, d.opts.MaxCommits)
	if err != nil {
		logger.Debug("listing unrelated branch history failed",
			"repo", owner+"/"+repo,
			"branch", branch,
			"error", err,
		)
		return nil
	}

	return reverseCommits(commits)
}

// RecordBranch stores the observation of a tracked repository branch. The
// last commit always comes from the unfiltered commit list so a branch whose
// new commits were all reported is not reported again.
func (d *ChangeDetector) RecordBranch(rs *model.RepositoryState, branch model.BranchRef, cmp model.Comparison, commits []model.CommitRef) {
	now := model.NewTimestamp(d.now())
	if rs.Branches == nil {
		rs.Branches = make(map[string]model.BranchState)
	}

	rs.Branches[branch.Name] = model.BranchState{
		LastCommit:   model.LatestSHA(commits),
		HeadSHA:      branch.SHA,
		CommitsAhead: cmp.AheadBy,
		LastCheck:    now,
	}
	rs.LastBranchCheck = now
}

// comparedBranch is one fork branch comparison kept for bookkeeping.
type comparedBranch struct {
	name    string
	aheadBy int
	commits []model.CommitRef // Unfiltered, oldest-first.
}

// RecordFork stores every compared branch of a fork, retained for output or
// not, merging into what was stored before. Previously stored branches that
// were not compared this run are kept. The fork's check time only advances
// when complete is set, so a fork with failed comparisons is selected again
// next run.
func (d *ChangeDetector) RecordFork(rs *model.RepositoryState, fork model.ForkInfo, compared []comparedBranch, complete bool) {
	now := model.NewTimestamp(d.now())
	if rs.ProcessedForks == nil {
		rs.ProcessedForks = make(map[string]model.ForkState)
	}

	fs := rs.ProcessedForks[fork.FullName].Clone()
	if fs.Branches == nil {
		fs.Branches = make(map[string]model.ForkBranchState)
	}

	for _, b := range compared {
		fs.Branches[b.name] = model.ForkBranchState{
			LastAheadCommit: model.LatestSHA(b.commits),
			CommitsAhead:    b.aheadBy,
			LastCheck:       now,
		}
	}

	total := 0
	for _, b := range fs.Branches {
		if b.CommitsAhead > 0 {
			total += b.CommitsAhead
		}
	}

	fs.DefaultBranch = fork.DefaultBranch
	fs.TotalCommitsAhead = total
	if complete {
		fs.LastCheck = now
	}
	rs.ProcessedForks[fork.FullName] = fs
	rs.LastForkCheck = now
}

// PruneBranches removes stored branches absent from the listing and returns
// their names.
func PruneBranches(rs *model.RepositoryState, listing []model.BranchRef) []string {
	present := make(map[string]bool, len(listing))
	for _, b := range listing {
		present[b.Name] = true
	}

	var pruned []string
	for name := range rs.Branches {
		if !present[name] {
			delete(rs.Branches, name)
			pruned = append(pruned, name)
		}
	}
	slices.Sort(pruned)
	return pruned
}

// PruneForks removes stored forks absent from the listing and returns their
// names.
func PruneForks(rs *model.RepositoryState, listing []model.ForkInfo) []string {
	present := make(map[string]bool, len(listing))
	for _, f := range listing {
		present[f.FullName] = true
	}

	var pruned []string
	for name := range rs.ProcessedForks {
		if !present[name] {
			delete(rs.ProcessedForks, name)
			pruned = append(pruned, name)
		}
	}
	slices.Sort(pruned)
	return pruned
}

// PrioritizeBranches orders branches default first, then by name, and caps
// the result at limit. A non-positive limit means no cap.
func PrioritizeBranches(branches []model.BranchRef, defaultBranch string, limit int) []model.BranchRef {
	out := make([]model.BranchRef, 0, len(branches))
	var rest []model.BranchRef

	for _, b := range branches {
		if b.Name == defaultBranch {
			out = append(out, b)
		} else {
			rest = append(rest, b)
		}
	}

	slices.SortFunc(rest, func(a, b model.BranchRef) int {
		return strings.Compare(a.Name, b.Name)
	})
	out = append(out, rest...)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// retained reports whether a fork branch is worth showing.
func (d *ChangeDetector) retained(isDefault bool, aheadBy int) bool {
	if aheadBy >= d.opts.MinCommitsAhead {
		return true
	}
	return isDefault && d.opts.AnalyzeDefaultAlways && aheadBy >= 1
}

// repositoryError adds a repository to a repository-level failure.
func repositoryError(repo model.Repository, err error) error {
	return fmt.Errorf("repository %s: %w", repo.FullName(), err)
}
