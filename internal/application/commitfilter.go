package application

import (
	"slices"
	"strconv"
	"strings"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// FilterSince returns the commits that come after lastSeen in an oldest-first
// sequence. lastSeen may be an abbreviated SHA; the first commit whose SHA
// starts with it is the anchor.
//
// An empty anchor, or one that cannot be found in commits, yields commits
// unchanged: a rewritten history or a window that no longer reaches the
// anchor is reported in full rather than silently dropped.
func FilterSince(commits []model.CommitRef, lastSeen string) []model.CommitRef {
	if lastSeen == "" || len(commits) == 0 {
		return commits
	}

	if i := anchorIndex(commits, lastSeen); i >= 0 {
		return commits[i+1:]
	}

	return commits
}

// filterCommits applies FilterSince, or with strict set, treats a lost
// anchor as "nothing new".
func filterCommits(commits []model.CommitRef, lastSeen string, strict bool) []model.CommitRef {
	if strict && lastSeen != "" && len(commits) > 0 && anchorIndex(commits, lastSeen) < 0 {
		return nil
	}
	return FilterSince(commits, lastSeen)
}

func anchorIndex(commits []model.CommitRef, lastSeen string) int {
	return slices.IndexFunc(commits, func(c model.CommitRef) bool {
		return strings.HasPrefix(c.SHA, lastSeen)
	})
}

// ReleasesSince returns the releases published after the release with
// lastID, newest first. Releases must be ordered newest first. An unknown
// or empty lastID yields every release.
func ReleasesSince(releases []model.Release, lastID string) []model.Release {
	if lastID == "" {
		return releases
	}

	for i, r := range releases {
		if strconv.FormatInt(r.ID, 10) == lastID {
			return releases[:i]
		}
	}

	return releases
}

// reverseCommits returns a reversed copy of commits.
func reverseCommits(commits []model.CommitRef) []model.CommitRef {
	out := slices.Clone(commits)
	slices.Reverse(out)
	return out
}
