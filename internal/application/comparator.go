package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// compareBase is the ref branches of a tracked repository are compared against.
type compareBase struct {
	owner  string
	repo   string
	branch string
}

// BranchComparator compares branches against a base and never fails: remote
// errors become a zero Comparison so one bad branch cannot abort a
// repository. It lives for one repository task.
type BranchComparator struct {
	fetcher       driven.RemoteFetcher
	repo          model.Repository
	defaultBranch string
	logger        *slog.Logger

	base     *compareBase
	compared int
}

// NewBranchComparator creates a comparator for repo, whose own default
// branch is defaultBranch.
func NewBranchComparator(fetcher driven.RemoteFetcher, repo model.Repository, defaultBranch string, logger *slog.Logger) *BranchComparator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BranchComparator{
		fetcher:       fetcher,
		repo:          repo,
		defaultBranch: defaultBranch,
		logger:        logger,
	}
}

// Compare compares head against base. Comparisons whose refs share no
// history report AheadBy = model.AheadUnrelated. Any other failure yields a
// zero Comparison with ok false and a debug log, so the caller can keep what
// it already knew about the branch.
func (c *BranchComparator) Compare(ctx context.Context, baseOwner, baseRepo, baseBranch, headOwner, headRepo, headBranch string) (cmp model.Comparison, ok bool) {
	c.compared++

	res, err := c.fetcher.CompareRefs(ctx, baseOwner, baseRepo, baseBranch, headOwner, headRepo, headBranch)
	if err != nil {
		if errors.Is(err, driven.ErrNoCommonAncestor) {
			c.logger.Debug("branch has no common ancestor with base",
				"base", baseOwner+"/"+baseRepo+"@"+baseBranch,
				"head", headOwner+"/"+headRepo+"@"+headBranch,
			)
			return model.Comparison{AheadBy: model.AheadUnrelated}, true
		}
		c.logger.Debug("branch comparison failed",
			"base", baseOwner+"/"+baseRepo+"@"+baseBranch,
			"head", headOwner+"/"+headRepo+"@"+headBranch,
			"error", err,
		)
		return model.Comparison{}, false
	}
	if res == nil {
		return model.Comparison{}, false
	}

	return *res, true
}

// CompareBranch compares a branch of the tracked repository against its base:
// the parent's default branch when the repository is a fork, otherwise its
// own default branch.
func (c *BranchComparator) CompareBranch(ctx context.Context, branch string) (model.Comparison, bool) {
	base := c.resolveBase(ctx)
	return c.Compare(ctx, base.owner, base.repo, base.branch, c.repo.Owner, c.repo.Repo, branch)
}

// Calls returns how many comparisons were issued.
func (c *BranchComparator) Calls() int {
	return c.compared
}

// resolveBase asks the remote once whether the repository is a fork and
// caches the answer for the comparator's lifetime.
func (c *BranchComparator) resolveBase(ctx context.Context) compareBase {
	if c.base != nil {
		return *c.base
	}

	base := compareBase{owner: c.repo.Owner, repo: c.repo.Repo, branch: c.defaultBranch}

	parent, err := c.fetcher.GetForkParent(ctx, c.repo.Owner, c.repo.Repo)
	switch {
	case err != nil:
		c.logger.Debug("fork parent lookup failed, comparing within repository", "error", err)
	case parent != nil && parent.DefaultBranch != "":
		base = compareBase{owner: parent.Owner, repo: parent.Name, branch: parent.DefaultBranch}
		c.logger.Debug("comparing against fork parent",
			"parent", parent.Owner+"/"+parent.Name,
			"branch", parent.DefaultBranch,
		)
	}

	c.base = &base
	return base
}
