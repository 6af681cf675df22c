package application

import (
	"context"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// ForkSelector triages forks so that only forks with activity since their
// last check get the expensive per-branch comparison.
type ForkSelector struct {
	fetcher  driven.RemoteFetcher
	maxForks int
	track    bool
}

// NewForkSelector creates a ForkSelector that lists at most maxForks forks.
// With track false every listed fork is a candidate.
func NewForkSelector(fetcher driven.RemoteFetcher, maxForks int, track bool) *ForkSelector {
	return &ForkSelector{fetcher: fetcher, maxForks: maxForks, track: track}
}

// ForkSelection is the outcome of triage.
type ForkSelection struct {
	Listed     []model.ForkInfo
	Candidates []model.ForkInfo
	Skipped    []model.ForkInfo
}

// Select lists forks of repo (stage 1) and splits them into candidates and
// skipped forks against rs (stage 2). parentHead is the tracked repository's
// current default-branch head, or "" when it could not be read.
func (s *ForkSelector) Select(ctx context.Context, repo model.Repository, rs model.RepositoryState, parentHead string) (ForkSelection, error) {
	forks, err := s.fetcher.ListForks(ctx, repo.Owner, repo.Repo, s.maxForks)
	if err != nil {
		return ForkSelection{}, err
	}

	sel := ForkSelection{Listed: forks}
	for _, f := range forks {
		if !s.track || IsForkCandidate(f, rs, parentHead) {
			sel.Candidates = append(sel.Candidates, f)
		} else {
			sel.Skipped = append(sel.Skipped, f)
		}
	}

	return sel, nil
}

// IsForkCandidate reports whether fork needs a full comparison: it was never
// checked, the parent head moved since the last pass (ahead counts change
// when upstream catches up), or the fork shows activity after its last
// check. Activity is the later of the fork's updated and pushed times, since
// a push does not always bump the updated time.
func IsForkCandidate(fork model.ForkInfo, rs model.RepositoryState, parentHead string) bool {
	stored, ok := rs.ProcessedForks[fork.FullName]
	if !ok || stored.LastCheck.IsZero() {
		return true
	}

	if parentHead == "" || parentHead != rs.ParentHead {
		return true
	}

	activity := fork.LastActivity()
	if activity.IsZero() {
		return true
	}

	return activity.After(stored.LastCheck.Time)
}
