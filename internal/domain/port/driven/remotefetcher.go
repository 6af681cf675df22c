package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// Sentinel errors returned by RemoteFetcher implementations.
var (
	// ErrNotFound indicates the repository, branch, or ref does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates the token cannot read the resource.
	ErrAccessDenied = errors.New("access denied")

	// ErrNoCommonAncestor indicates two refs share no history.
	ErrNoCommonAncestor = errors.New("no common ancestor")

	// ErrRateLimited indicates the remote refused the call because of rate limiting.
	ErrRateLimited = errors.New("rate limited")
)

// RemoteFetcher defines the driven port for reading repository data from the
// hosting service. List methods return results in the order the remote
// returns them; ListCommits is newest-first.
type RemoteFetcher interface {
	GetDefaultBranch(ctx context.Context, owner, repo string) (string, error)
	// GetBranchHead returns the head SHA of a branch.
	GetBranchHead(ctx context.Context, owner, repo, branch string) (string, error)
	ListBranches(ctx context.Context, owner, repo string) ([]model.BranchRef, error)
	// CompareRefs compares head against base. When head lives in another
	// repository the comparison is cross-repository.
	CompareRefs(ctx context.Context, baseOwner, baseRepo, base, headOwner, headRepo, head string) (*model.Comparison, error)
	ListForks(ctx context.Context, owner, repo string, limit int) ([]model.ForkInfo, error)
	// GetForkParent returns nil when the repository is not a fork.
	GetForkParent(ctx context.Context, owner, repo string) (*model.ForkParent, error)
	ListCommits(ctx context.Context, owner, repo, branch string, limit int) ([]model.CommitRef, error)
	ListReleases(ctx context.Context, owner, repo string, limit int) ([]model.Release, error)
}
