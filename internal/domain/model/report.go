package model

import (
	"strings"
	"time"
)

// BranchAnalysis is the outcome of comparing one branch against its base.
// NewCommits holds only commits not yet reported.
type BranchAnalysis struct {
	Branch         string
	IsDefault      bool
	AheadBy        int
	BehindBy       int
	NewCommits     []CommitRef
	LatestCommitAt time.Time
	ReadmeTouched  bool
}

// Unrelated reports whether the branch shares no history with its base.
func (b BranchAnalysis) Unrelated() bool {
	return b.AheadBy == AheadUnrelated
}

// NewBranchAnalysis derives an analysis from a comparison and the subset of
// its commits that are new.
func NewBranchAnalysis(branch string, isDefault bool, cmp Comparison, newCommits []CommitRef) BranchAnalysis {
	a := BranchAnalysis{
		Branch:     branch,
		IsDefault:  isDefault,
		AheadBy:    cmp.AheadBy,
		BehindBy:   cmp.BehindBy,
		NewCommits: newCommits,
	}
	for _, c := range cmp.Commits {
		if c.AuthorDate.After(a.LatestCommitAt) {
			a.LatestCommitAt = c.AuthorDate
		}
	}
	for _, f := range cmp.TouchedFiles {
		if strings.HasPrefix(strings.ToLower(baseName(f)), "readme") {
			a.ReadmeTouched = true
			break
		}
	}
	return a
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// NewsReport collects what changed in a tracked repository since the last run.
type NewsReport struct {
	Repository    Repository
	DefaultBranch string
	Commits       []CommitRef
	Releases      []Release
	Branches      []BranchAnalysis
	Summary       string
}

// Empty reports whether there is nothing to show.
func (r NewsReport) Empty() bool {
	return len(r.Commits) == 0 && len(r.Releases) == 0 && len(r.Branches) == 0
}

// ForkAnalysis collects the retained branches of one fork.
type ForkAnalysis struct {
	Fork       ForkInfo
	Branches   []BranchAnalysis
	TotalAhead int
	Summary    string
}

// SummaryKind selects the prompt shape for a summary.
type SummaryKind string

const (
	SummaryNews SummaryKind = "news"
	SummaryFork SummaryKind = "fork"
)

// SummaryRequest is the input handed to a Summarizer.
type SummaryRequest struct {
	Kind       SummaryKind
	Repository Repository
	Subject    string // Fork full name for fork summaries.
	Commits    []CommitRef
	Releases   []Release
	Branches   []BranchAnalysis
}
