package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is a time.Time that encodes as RFC 3339 and decodes from RFC 3339
// or the naive ISO-8601 form written by older state files. The zero value
// encodes as null.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp tries each supported format. Values without a zone are
// read as local time.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, format := range timestampFormats {
		if t, err := time.ParseInLocation(format, s, time.Local); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized time format: %s", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// BranchState is the bookkeeping for one branch of a tracked repository.
// LastCommit is the newest commit ahead of the base branch; HeadSHA is the
// branch head observed at the last check.
type BranchState struct {
	LastCommit   string    `json:"last_commit"`
	HeadSHA      string    `json:"head_sha,omitempty"`
	CommitsAhead int       `json:"commits_ahead"`
	LastCheck    Timestamp `json:"last_check"`
}

// ForkBranchState is the bookkeeping for one branch of a fork.
type ForkBranchState struct {
	LastAheadCommit string    `json:"last_ahead_commit"`
	CommitsAhead    int       `json:"commits_ahead"`
	LastCheck       Timestamp `json:"last_check"`
}

// ForkState is the bookkeeping for one fork of a tracked repository.
type ForkState struct {
	Branches          map[string]ForkBranchState `json:"branches"`
	DefaultBranch     string                     `json:"default_branch"`
	TotalCommitsAhead int                        `json:"total_commits_ahead"`
	LastCheck         Timestamp                  `json:"last_check"`
}

// RepositoryState is the bookkeeping for one tracked repository within a
// single concern.
type RepositoryState struct {
	LastCommit      string                 `json:"last_commit,omitempty"`
	LastRelease     string                 `json:"last_release,omitempty"`
	LastCheck       Timestamp              `json:"last_check"`
	Branches        map[string]BranchState `json:"branches,omitempty"`
	LastBranchCheck Timestamp              `json:"last_branch_check,omitzero"`
	ProcessedForks  map[string]ForkState   `json:"processed_forks,omitempty"`
	LastForkCheck   Timestamp              `json:"last_fork_check,omitzero"`
	// ParentHead is the default-branch head every stored fork was last
	// compared against.
	ParentHead string `json:"parent_head,omitempty"`
}

// Clone returns a deep copy of the state.
func (s RepositoryState) Clone() RepositoryState {
	out := s
	if s.Branches != nil {
		out.Branches = make(map[string]BranchState, len(s.Branches))
		for name, b := range s.Branches {
			out.Branches[name] = b
		}
	}
	if s.ProcessedForks != nil {
		out.ProcessedForks = make(map[string]ForkState, len(s.ProcessedForks))
		for name, f := range s.ProcessedForks {
			out.ProcessedForks[name] = f.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the fork state.
func (f ForkState) Clone() ForkState {
	out := f
	if f.Branches != nil {
		out.Branches = make(map[string]ForkBranchState, len(f.Branches))
		for name, b := range f.Branches {
			out.Branches[name] = b
		}
	}
	return out
}

// PersistedState is every repository's bookkeeping for one concern.
type PersistedState map[RepositoryKey]RepositoryState

// Clone returns a deep copy of the whole state.
func (p PersistedState) Clone() PersistedState {
	out := make(PersistedState, len(p))
	for key, s := range p {
		out[key] = s.Clone()
	}
	return out
}
