package terminal

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDisplay(out *bytes.Buffer) *Display {
	d := NewDisplay(out, false)
	d.now = func() time.Time { return testNow }
	return d
}

func repo(t *testing.T, url, alias string) model.Repository {
	t.Helper()
	r, err := model.ParseRepositoryURL(url, alias)
	require.NoError(t, err)
	return r
}

func TestReport_NothingWrittenUntilClose(t *testing.T) {
	var out bytes.Buffer
	d := newTestDisplay(&out)

	r := d.Open(repo(t, "octo/widgets", ""))
	r.NoUpdates("no changes since last check")
	assert.Empty(t, out.String())

	r.Close()
	assert.Equal(t, "━━ octo/widgets\n  ✓ no changes since last check\n\n", out.String())
}

func TestReport_EmptyReportWritesNothing(t *testing.T) {
	var out bytes.Buffer
	d := newTestDisplay(&out)

	d.Open(repo(t, "octo/widgets", "")).Close()

	assert.Empty(t, out.String())
}

func TestReport_IgnoresEventsAfterClose(t *testing.T) {
	var out bytes.Buffer
	d := newTestDisplay(&out)

	r := d.Open(repo(t, "octo/widgets", ""))
	r.Warn("first")
	r.Close()
	r.Warn("late")
	r.Close()

	assert.Equal(t, 1, strings.Count(out.String(), "━━"))
	assert.NotContains(t, out.String(), "late")
}

func TestReport_News(t *testing.T) {
	var out bytes.Buffer
	d := newTestDisplay(&out)

	r := d.Open(repo(t, "https://github.com/octo/widgets", "gadgets"))
	r.News(model.NewsReport{
		DefaultBranch: "main",
		Commits:       make([]model.CommitRef, 3),
		Releases:      make([]model.Release, 1),
		Branches:      make([]model.BranchAnalysis, 2),
		Summary:       "• one\n• two\n",
	})
	r.Close()

	assert.Equal(t, "━━ gadgets (octo/widgets)\n"+
		"  3 new commits on main, 1 release, 2 active branches\n"+
		"  • one\n"+
		"  • two\n\n", out.String())
}

func TestReport_ForkAndTotals(t *testing.T) {
	var out bytes.Buffer
	d := newTestDisplay(&out)

	r := d.Open(repo(t, "octo/widgets", ""))
	r.Fork(model.ForkAnalysis{
		Fork:       model.ForkInfo{FullName: "alice/widgets", PushedAt: testNow.Add(-3 * 24 * time.Hour)},
		TotalAhead: 1500,
		Summary:    "• faster parser",
	})
	r.ForkTotals(1, 4)
	r.Close()

	s := out.String()
	assert.Contains(t, s, "  ⑂ alice/widgets (1,500 ahead, active 3 days ago)\n")
	assert.Contains(t, s, "  • faster parser\n")
	assert.Contains(t, s, "  1 of 4 forks with new activity\n")
}

func TestReport_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", fmt.Errorf("getting default branch: %w", driven.ErrNotFound), "✗ not found or not accessible"},
		{"access denied", fmt.Errorf("listing forks: %w", driven.ErrAccessDenied), "✗ not found or not accessible"},
		{"other", errors.New("timed out after 1m0s"), "✗ timed out after 1m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			r := newTestDisplay(&out).Open(repo(t, "octo/widgets", ""))
			r.Error(tt.err)
			r.Error(nil)
			r.Close()
			assert.Contains(t, out.String(), tt.want)
			assert.Equal(t, 1, strings.Count(out.String(), "✗"))
		})
	}
}

func TestDisplay_ConcurrentReportsDoNotInterleave(t *testing.T) {
	var out bytes.Buffer
	d := newTestDisplay(&out)

	repos := make([]model.Repository, 8)
	for i := range repos {
		repos[i] = repo(t, fmt.Sprintf("octo/repo%d", i), "")
	}

	var wg sync.WaitGroup
	for i := range repos {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := d.Open(repos[i])
			for j := range 20 {
				r.Warn(fmt.Sprintf("repo%d line %d", i, j))
			}
			r.Close()
		}()
	}
	wg.Wait()

	blocks := strings.Split(strings.TrimSuffix(out.String(), "\n\n"), "\n\n")
	require.Len(t, blocks, 8)
	for _, block := range blocks {
		lines := strings.Split(block, "\n")
		require.Len(t, lines, 21)
		name := strings.TrimPrefix(lines[0], "━━ octo/")
		for _, line := range lines[1:] {
			assert.Contains(t, line, name+" line")
		}
	}
}

func TestDisplay_Repositories(t *testing.T) {
	var out bytes.Buffer
	d := newTestDisplay(&out)

	tracked := repo(t, "octo/widgets", "")
	fresh := repo(t, "octo/gears", "")
	state := model.PersistedState{
		tracked.Key: {
			LastCommit: "0123456789abcdef",
			LastCheck:  model.NewTimestamp(testNow.Add(-2 * time.Hour)),
		},
	}

	d.Repositories([]model.Repository{tracked, fresh}, state)

	s := out.String()
	assert.Contains(t, s, "  widgets -> https://github.com/octo/widgets\n")
	assert.Contains(t, s, "    last commit: 01234567\n")
	assert.Contains(t, s, "    last check:  2026-03-01 10:00 (2 hours ago)\n")
	assert.Contains(t, s, "    last commit: not tracked\n")
	assert.Contains(t, s, "    last check:  never\n")
}

func TestDisplay_RepositoriesEmpty(t *testing.T) {
	var out bytes.Buffer
	newTestDisplay(&out).Repositories(nil, nil)
	assert.Equal(t, "No repositories configured\n", out.String())
}
