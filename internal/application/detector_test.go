package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/repowatch/internal/application"
	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

func branchNames(branches []model.BranchRef) []string {
	names := make([]string, 0, len(branches))
	for _, b := range branches {
		names = append(names, b.Name)
	}
	return names
}

func TestPrioritizeBranches(t *testing.T) {
	branches := []model.BranchRef{
		{Name: "zeta"}, {Name: "alpha"}, {Name: "main"}, {Name: "beta"},
	}

	t.Run("default first then by name", func(t *testing.T) {
		got := application.PrioritizeBranches(branches, "main", 0)
		assert.Equal(t, []string{"main", "alpha", "beta", "zeta"}, branchNames(got))
	})

	t.Run("capped at limit", func(t *testing.T) {
		got := application.PrioritizeBranches(branches, "main", 2)
		assert.Equal(t, []string{"main", "alpha"}, branchNames(got))
	})

	t.Run("missing default branch", func(t *testing.T) {
		got := application.PrioritizeBranches(branches, "trunk", 3)
		assert.Equal(t, []string{"alpha", "beta", "main"}, branchNames(got))
	})
}

func TestPruneBranches(t *testing.T) {
	rs := model.RepositoryState{
		Branches: map[string]model.BranchState{
			"feature": {LastCommit: "a"},
			"deleted": {LastCommit: "b"},
			"gone":    {LastCommit: "c"},
		},
	}

	pruned := application.PruneBranches(&rs, []model.BranchRef{{Name: "main"}, {Name: "feature"}})

	assert.Equal(t, []string{"deleted", "gone"}, pruned)
	assert.Contains(t, rs.Branches, "feature")
	assert.Len(t, rs.Branches, 1)
}

func TestPruneForks(t *testing.T) {
	rs := model.RepositoryState{
		ProcessedForks: map[string]model.ForkState{
			"alice/widgets": {},
			"bob/widgets":   {},
		},
	}

	pruned := application.PruneForks(&rs, []model.ForkInfo{{FullName: "alice/widgets"}})

	assert.Equal(t, []string{"bob/widgets"}, pruned)
	assert.Contains(t, rs.ProcessedForks, "alice/widgets")
	assert.NotContains(t, rs.ProcessedForks, "bob/widgets")
}

func TestChangeDetector_Unchanged(t *testing.T) {
	detector := application.NewChangeDetector(newFakeFetcher(), application.DefaultOptions(), nil)

	snap := application.HeadSnapshot{
		DefaultBranch: "main",
		DefaultHead:   "main-005",
		Candidates: []model.BranchRef{
			{Name: "main", SHA: "main-005"},
			{Name: "feature", SHA: "feat-003"},
		},
	}

	stored := model.RepositoryState{
		LastCommit: "main-005",
		Branches: map[string]model.BranchState{
			"feature": {LastCommit: "feat-003", HeadSHA: "feat-003"},
		},
	}

	t.Run("nothing moved", func(t *testing.T) {
		assert.True(t, detector.Unchanged(stored, snap))
	})

	t.Run("default head moved", func(t *testing.T) {
		moved := snap
		moved.DefaultHead = "main-006"
		assert.False(t, detector.Unchanged(stored, moved))
	})

	t.Run("branch head moved", func(t *testing.T) {
		moved := snap
		moved.Candidates = []model.BranchRef{{Name: "main"}, {Name: "feature", SHA: "feat-004"}}
		assert.False(t, detector.Unchanged(stored, moved))
	})

	t.Run("new branch", func(t *testing.T) {
		moved := snap
		moved.Candidates = append(moved.Candidates, model.BranchRef{Name: "fresh", SHA: "x"})
		assert.False(t, detector.Unchanged(stored, moved))
	})

	t.Run("never checked", func(t *testing.T) {
		assert.False(t, detector.Unchanged(model.RepositoryState{}, snap))
	})

	t.Run("state tracking off", func(t *testing.T) {
		opts := application.DefaultOptions()
		opts.TrackState = false
		untracked := application.NewChangeDetector(newFakeFetcher(), opts, nil)
		assert.False(t, untracked.Unchanged(stored, snap))
	})
}

func TestChangeDetector_ShouldProcessBranch(t *testing.T) {
	detector := application.NewChangeDetector(newFakeFetcher(), application.DefaultOptions(), nil)
	commits := makeCommits("feat", 3)

	rs := model.RepositoryState{
		Branches: map[string]model.BranchState{
			"seen":  {LastCommit: "feat-003"},
			"stale": {LastCommit: "feat-001"},
		},
	}

	assert.True(t, detector.ShouldProcessBranch(rs, "unseen", commits))
	assert.False(t, detector.ShouldProcessBranch(rs, "seen", commits))
	assert.True(t, detector.ShouldProcessBranch(rs, "stale", commits))
	assert.False(t, detector.ShouldProcessBranch(rs, "unseen", nil))

	opts := application.DefaultOptions()
	opts.TrackState = false
	untracked := application.NewChangeDetector(newFakeFetcher(), opts, nil)
	assert.True(t, untracked.ShouldProcessBranch(rs, "seen", commits))
}

func TestChangeDetector_ShouldProcessFork(t *testing.T) {
	detector := application.NewChangeDetector(newFakeFetcher(), application.DefaultOptions(), nil)

	rs := model.RepositoryState{
		ProcessedForks: map[string]model.ForkState{
			"alice/widgets": {
				Branches: map[string]model.ForkBranchState{
					"patch": {LastAheadCommit: "patch-002", CommitsAhead: 2},
				},
			},
		},
	}

	same := []model.BranchAnalysis{{Branch: "patch", NewCommits: makeCommits("patch", 2)}}
	moved := []model.BranchAnalysis{{Branch: "patch", NewCommits: makeCommits("patch", 3)}}

	assert.True(t, detector.ShouldProcessFork(rs, "bob/widgets", same))
	assert.False(t, detector.ShouldProcessFork(rs, "alice/widgets", same))
	assert.True(t, detector.ShouldProcessFork(rs, "alice/widgets", moved))
}

func TestIsForkCandidate(t *testing.T) {
	lastCheck := baseTime

	rs := model.RepositoryState{
		ParentHead: "up-001",
		ProcessedForks: map[string]model.ForkState{
			"alice/widgets": {LastCheck: model.NewTimestamp(lastCheck)},
			"carol/widgets": {},
		},
	}
	quiet := model.ForkInfo{FullName: "alice/widgets", UpdatedAt: lastCheck.Add(-time.Hour), PushedAt: lastCheck.Add(-2 * time.Hour)}

	tests := []struct {
		name       string
		fork       model.ForkInfo
		parentHead string
		want       bool
	}{
		{"unseen fork", model.ForkInfo{FullName: "bob/widgets"}, "up-001", true},
		{"never completed a check", model.ForkInfo{FullName: "carol/widgets", UpdatedAt: lastCheck.Add(-time.Hour)}, "up-001", true},
		{"no activity timestamps", model.ForkInfo{FullName: "alice/widgets"}, "up-001", true},
		{"updated after check", model.ForkInfo{FullName: "alice/widgets", UpdatedAt: lastCheck.Add(time.Minute)}, "up-001", true},
		{"pushed after check", model.ForkInfo{FullName: "alice/widgets", UpdatedAt: lastCheck.Add(-time.Hour), PushedAt: lastCheck.Add(time.Minute)}, "up-001", true},
		{"quiet since check", quiet, "up-001", false},
		{"quiet fork but parent moved", quiet, "up-002", true},
		{"quiet fork and parent head unknown", quiet, "", true},
		{"activity exactly at check", model.ForkInfo{FullName: "alice/widgets", PushedAt: lastCheck}, "up-001", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, application.IsForkCandidate(tt.fork, rs, tt.parentHead))
		})
	}
}

func TestForkSelector_Select(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set("octo/widgets", &fakeRepo{
		defaultBranch: "main",
		forks: []model.ForkInfo{
			{Owner: "alice", Name: "widgets", FullName: "alice/widgets", PushedAt: baseTime.Add(time.Hour)},
			{Owner: "bob", Name: "widgets", FullName: "bob/widgets", PushedAt: baseTime.Add(-time.Hour)},
			{Owner: "carol", Name: "widgets", FullName: "carol/widgets", PushedAt: baseTime.Add(-time.Hour)},
		},
	})
	repo := mustRepo(t, "octo/widgets")

	rs := model.RepositoryState{
		ParentHead: "up-001",
		ProcessedForks: map[string]model.ForkState{
			"alice/widgets": {LastCheck: model.NewTimestamp(baseTime)},
			"bob/widgets":   {LastCheck: model.NewTimestamp(baseTime)},
		},
	}

	t.Run("splits by activity", func(t *testing.T) {
		sel, err := application.NewForkSelector(fetcher, 20, true).Select(context.Background(), repo, rs, "up-001")
		require.NoError(t, err)

		assert.Len(t, sel.Listed, 3)
		assert.Equal(t, []string{"alice/widgets", "carol/widgets"}, forkNames(sel.Candidates))
		assert.Equal(t, []string{"bob/widgets"}, forkNames(sel.Skipped))
	})

	t.Run("parent moved selects every fork", func(t *testing.T) {
		sel, err := application.NewForkSelector(fetcher, 20, true).Select(context.Background(), repo, rs, "up-002")
		require.NoError(t, err)

		assert.Len(t, sel.Candidates, 3)
		assert.Empty(t, sel.Skipped)
	})

	t.Run("respects the listing cap", func(t *testing.T) {
		sel, err := application.NewForkSelector(fetcher, 2, true).Select(context.Background(), repo, rs, "up-001")
		require.NoError(t, err)
		assert.Len(t, sel.Listed, 2)
	})

	t.Run("untracked selects everything", func(t *testing.T) {
		sel, err := application.NewForkSelector(fetcher, 20, false).Select(context.Background(), repo, rs, "up-001")
		require.NoError(t, err)
		assert.Len(t, sel.Candidates, 3)
		assert.Empty(t, sel.Skipped)
	})

	t.Run("listing error", func(t *testing.T) {
		_, err := application.NewForkSelector(fetcher, 20, true).Select(context.Background(), mustRepo(t, "octo/missing"), rs, "up-001")
		require.Error(t, err)
	})
}

func forkNames(forks []model.ForkInfo) []string {
	names := make([]string, 0, len(forks))
	for _, f := range forks {
		names = append(names, f.FullName)
	}
	return names
}
