// Package application contains the change-detection engine: commit filtering,
// branch comparison, fork triage, the per-concern processors, and the batch
// orchestrator that runs them.
package application

import "time"

// Options tunes change detection. Zero values are replaced by the defaults
// from DefaultOptions when passed through WithDefaults.
type Options struct {
	// TrackState disables all state-based skipping when false; every branch
	// and fork is then treated as new.
	TrackState bool

	MaxCommits         int
	MaxReleases        int
	MaxBranches        int
	MaxForks           int
	MaxBranchesPerFork int
	MinCommitsAhead    int

	// AnalyzeDefaultAlways retains a fork's default branch for output when it
	// has at least one commit ahead, even below MinCommitsAhead.
	AnalyzeDefaultAlways bool

	// PruneStale drops stored branches and forks that no longer exist remotely.
	PruneStale bool

	// StrictAnchor treats a stored commit missing from the fetched window as
	// "nothing new" instead of reporting the whole window.
	StrictAnchor bool
}

// DefaultOptions returns the stock detection settings.
func DefaultOptions() Options {
	return Options{
		TrackState:           true,
		MaxCommits:           10,
		MaxReleases:          10,
		MaxBranches:          5,
		MaxForks:             20,
		MaxBranchesPerFork:   5,
		MinCommitsAhead:      1,
		AnalyzeDefaultAlways: true,
	}
}

// WithDefaults fills non-positive limits from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.MaxCommits <= 0 {
		o.MaxCommits = d.MaxCommits
	}
	if o.MaxReleases <= 0 {
		o.MaxReleases = d.MaxReleases
	}
	if o.MaxBranches <= 0 {
		o.MaxBranches = d.MaxBranches
	}
	if o.MaxForks <= 0 {
		o.MaxForks = d.MaxForks
	}
	if o.MaxBranchesPerFork <= 0 {
		o.MaxBranchesPerFork = d.MaxBranchesPerFork
	}
	if o.MinCommitsAhead <= 0 {
		o.MinCommitsAhead = d.MinCommitsAhead
	}
	return o
}

// BatchOptions bounds a batch run.
type BatchOptions struct {
	MaxWorkers   int
	RepoTimeout  time.Duration
	BatchTimeout time.Duration
}

// DefaultBatchOptions returns the stock pool size and timeouts.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		MaxWorkers:   4,
		RepoTimeout:  60 * time.Second,
		BatchTimeout: 180 * time.Second,
	}
}
