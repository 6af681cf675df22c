package model

import "time"

// AheadUnrelated is the AheadBy value recorded when two refs share no
// common ancestor.
const AheadUnrelated = -1

// CommitRef is a single commit as returned by the remote.
type CommitRef struct {
	SHA        string
	Message    string
	AuthorName string
	AuthorDate time.Time
}

// Title returns the first line of the commit message.
func (c CommitRef) Title() string {
	for i := 0; i < len(c.Message); i++ {
		if c.Message[i] == '\n' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// BranchRef is a branch name and its current head.
type BranchRef struct {
	Name string
	SHA  string
}

// Comparison is the result of comparing a head ref against a base ref.
// Commits are ordered oldest-first.
type Comparison struct {
	AheadBy      int
	BehindBy     int
	Commits      []CommitRef
	TouchedFiles []string
}

// Unrelated reports whether the refs have no common ancestor.
func (c Comparison) Unrelated() bool {
	return c.AheadBy == AheadUnrelated
}

// LatestSHA returns the SHA of the newest commit of an oldest-first list, or
// "" when there are none.
func LatestSHA(commits []CommitRef) string {
	if len(commits) == 0 {
		return ""
	}
	return commits[len(commits)-1].SHA
}

// ForkInfo describes a fork returned by the fork listing.
type ForkInfo struct {
	Owner         string
	Name          string
	FullName      string
	DefaultBranch string
	UpdatedAt     time.Time
	PushedAt      time.Time
	Private       bool
}

// LastActivity returns the later of UpdatedAt and PushedAt.
func (f ForkInfo) LastActivity() time.Time {
	if f.PushedAt.After(f.UpdatedAt) {
		return f.PushedAt
	}
	return f.UpdatedAt
}

// ForkParent identifies the parent of a forked repository.
type ForkParent struct {
	Owner         string
	Name          string
	DefaultBranch string
}

// Release is a published release of a repository.
type Release struct {
	ID          int64
	TagName     string
	Name        string
	PublishedAt time.Time
}
