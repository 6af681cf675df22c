package model

import (
	"fmt"
	"net/url"
	"strings"
)

// RepositoryKey identifies a tracked repository in persisted state.
// It is always the lowercase "owner/name" form.
type RepositoryKey string

// NewRepositoryKey builds the canonical key for owner/name.
func NewRepositoryKey(owner, name string) RepositoryKey {
	return RepositoryKey(strings.ToLower(owner + "/" + name))
}

// Repository represents a GitHub repository tracked by repowatch.
type Repository struct {
	Name  string // Display alias from the configuration file.
	URL   string
	Owner string
	Repo  string
	Key   RepositoryKey
}

// FullName returns the "owner/repo" form with the original casing.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Repo
}

// ParseRepositoryURL accepts https URLs, SSH remotes, and bare "owner/repo"
// references and returns the repository they name. The alias defaults to
// the repository name when empty.
func ParseRepositoryURL(raw, alias string) (Repository, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Repository{}, fmt.Errorf("empty repository URL")
	}

	var path string
	switch {
	case strings.HasPrefix(s, "git@"):
		_, rest, ok := strings.Cut(s, ":")
		if !ok {
			return Repository{}, fmt.Errorf("invalid repository URL %q", raw)
		}
		path = rest
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return Repository{}, fmt.Errorf("invalid repository URL %q: %w", raw, err)
		}
		path = u.Path
	default:
		path = s
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")

	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Repository{}, fmt.Errorf("invalid repository URL %q: expected owner/repo", raw)
	}
	owner, repo := parts[0], parts[1]

	if alias == "" {
		alias = repo
	}

	return Repository{
		Name:  alias,
		URL:   "https://github.com/" + owner + "/" + repo,
		Owner: owner,
		Repo:  repo,
		Key:   NewRepositoryKey(owner, repo),
	}, nil
}
