// Package github implements the RemoteFetcher port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RemoteFetcher = (*Client)(nil)

const maxPerPage = 100

// Client implements the driven.RemoteFetcher port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client, PAT auth when a token is set)
//
// An empty token produces an anonymous client limited to public repositories.
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// GetDefaultBranch returns the default branch name of owner/repo.
func (c *Client) GetDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("getting repository %s/%s: %w", owner, repo, classify(err))
	}

	logRateLimit(resp, owner+"/"+repo, 0, 1)

	return r.GetDefaultBranch(), nil
}

// GetBranchHead returns the head SHA of branch using the SHA media type,
// which avoids transferring the full commit payload.
func (c *Client) GetBranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	sha, resp, err := c.gh.Repositories.GetCommitSHA1(ctx, owner, repo, branch, "")
	if err != nil {
		return "", fmt.Errorf("getting head of %s/%s@%s: %w", owner, repo, branch, classify(err))
	}

	logRateLimit(resp, owner+"/"+repo+"/commits/"+branch, 0, 1)

	return strings.TrimSpace(sha), nil
}

// ListBranches returns every branch of owner/repo with its head SHA.
// It handles pagination automatically.
func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]model.BranchRef, error) {
	opts := &gh.BranchListOptions{
		ListOptions: gh.ListOptions{PerPage: maxPerPage},
	}

	var all []model.BranchRef

	for {
		branches, resp, err := c.gh.Repositories.ListBranches(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing branches for %s/%s (page %d): %w", owner, repo, opts.Page, classify(err))
		}

		logRateLimit(resp, owner+"/"+repo+"/branches", opts.Page, len(branches))

		for _, b := range branches {
			all = append(all, model.BranchRef{
				Name: b.GetName(),
				SHA:  b.GetCommit().GetSHA(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.BranchRef{}
	}

	return all, nil
}

// CompareRefs compares head against base in baseOwner/baseRepo. A head in a
// different repository of the same network is addressed as "owner:branch".
// Commits are paged oldest-first, so every page is read to reach the newest.
func (c *Client) CompareRefs(ctx context.Context, baseOwner, baseRepo, base, headOwner, headRepo, head string) (*model.Comparison, error) {
	headRef := head
	if !strings.EqualFold(baseOwner, headOwner) || !strings.EqualFold(baseRepo, headRepo) {
		headRef = headOwner + ":" + head
	}

	opts := &gh.ListOptions{PerPage: maxPerPage}
	var out *model.Comparison

	for {
		cmp, resp, err := c.gh.Repositories.CompareCommits(ctx, baseOwner, baseRepo, base, headRef, opts)
		if err != nil {
			return nil, fmt.Errorf("comparing %s/%s %s...%s (page %d): %w", baseOwner, baseRepo, base, headRef, opts.Page, classify(err))
		}

		logRateLimit(resp, baseOwner+"/"+baseRepo+"/compare", opts.Page, len(cmp.Commits))

		if out == nil {
			out = &model.Comparison{
				AheadBy:  cmp.GetAheadBy(),
				BehindBy: cmp.GetBehindBy(),
				Commits:  make([]model.CommitRef, 0, len(cmp.Commits)),
			}
			// The file list is the same on every page.
			for _, f := range cmp.Files {
				out.TouchedFiles = append(out.TouchedFiles, f.GetFilename())
			}
		}
		for _, rc := range cmp.Commits {
			out.Commits = append(out.Commits, mapCommit(rc))
		}

		if resp.NextPage == 0 || len(cmp.Commits) == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return out, nil
}

// ListForks returns up to limit forks of owner/repo, newest first.
func (c *Client) ListForks(ctx context.Context, owner, repo string, limit int) ([]model.ForkInfo, error) {
	opts := &gh.RepositoryListForksOptions{
		Sort:        "newest",
		ListOptions: gh.ListOptions{PerPage: perPage(limit)},
	}

	var all []model.ForkInfo

	for len(all) < limit {
		forks, resp, err := c.gh.Repositories.ListForks(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing forks for %s/%s (page %d): %w", owner, repo, opts.Page, classify(err))
		}

		logRateLimit(resp, owner+"/"+repo+"/forks", opts.Page, len(forks))

		for _, f := range forks {
			if len(all) == limit {
				break
			}
			all = append(all, mapFork(f))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.ForkInfo{}
	}

	return all, nil
}

// GetForkParent returns the parent of owner/repo, or nil when it is not a fork.
func (c *Client) GetForkParent(ctx context.Context, owner, repo string) (*model.ForkParent, error) {
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, repo, classify(err))
	}

	logRateLimit(resp, owner+"/"+repo, 0, 1)

	if !r.GetFork() || r.Parent == nil {
		return nil, nil
	}

	parent := r.GetParent()
	return &model.ForkParent{
		Owner:         parent.GetOwner().GetLogin(),
		Name:          parent.GetName(),
		DefaultBranch: parent.GetDefaultBranch(),
	}, nil
}

// ListCommits returns up to limit commits of branch, newest first.
func (c *Client) ListCommits(ctx context.Context, owner, repo, branch string, limit int) ([]model.CommitRef, error) {
	opts := &gh.CommitsListOptions{
		SHA:         branch,
		ListOptions: gh.ListOptions{PerPage: perPage(limit)},
	}

	var all []model.CommitRef

	for len(all) < limit {
		commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s/%s@%s (page %d): %w", owner, repo, branch, opts.Page, classify(err))
		}

		logRateLimit(resp, owner+"/"+repo+"/commits", opts.Page, len(commits))

		for _, rc := range commits {
			if len(all) == limit {
				break
			}
			all = append(all, mapCommit(rc))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.CommitRef{}
	}

	return all, nil
}

// ListReleases returns up to limit releases, newest first.
func (c *Client) ListReleases(ctx context.Context, owner, repo string, limit int) ([]model.Release, error) {
	releases, resp, err := c.gh.Repositories.ListReleases(ctx, owner, repo, &gh.ListOptions{PerPage: perPage(limit)})
	if err != nil {
		return nil, fmt.Errorf("listing releases for %s/%s: %w", owner, repo, classify(err))
	}

	logRateLimit(resp, owner+"/"+repo+"/releases", 0, len(releases))

	out := make([]model.Release, 0, len(releases))
	for _, r := range releases {
		if len(out) == limit {
			break
		}
		out = append(out, model.Release{
			ID:          r.GetID(),
			TagName:     r.GetTagName(),
			Name:        r.GetName(),
			PublishedAt: r.GetPublishedAt().Time,
		})
	}

	return out, nil
}

// classify attaches the matching port sentinel to a go-github error so
// callers can branch on it with errors.Is.
func classify(err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %w", driven.ErrRateLimited, err)
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %w", driven.ErrRateLimited, err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) {
		if strings.Contains(strings.ToLower(respErr.Message), "no common ancestor") {
			return fmt.Errorf("%w: %w", driven.ErrNoCommonAncestor, err)
		}
		if respErr.Response != nil {
			switch respErr.Response.StatusCode {
			case http.StatusNotFound:
				return fmt.Errorf("%w: %w", driven.ErrNotFound, err)
			case http.StatusForbidden, http.StatusUnauthorized, http.StatusUnavailableForLegalReasons:
				return fmt.Errorf("%w: %w", driven.ErrAccessDenied, err)
			}
		}
	}

	return err
}

// logRateLimit logs rate limit information from a GitHub API response.
// It warns when the remaining quota drops below 100 requests.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// mapCommit converts a go-github RepositoryCommit to a domain CommitRef.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapCommit(rc *gh.RepositoryCommit) model.CommitRef {
	author := rc.GetCommit().GetAuthor()
	name := author.GetName()
	if name == "" {
		name = rc.GetAuthor().GetLogin()
	}

	return model.CommitRef{
		SHA:        rc.GetSHA(),
		Message:    rc.GetCommit().GetMessage(),
		AuthorName: name,
		AuthorDate: author.GetDate().Time,
	}
}

// mapFork converts a go-github Repository to a domain ForkInfo.
func mapFork(r *gh.Repository) model.ForkInfo {
	return model.ForkInfo{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		DefaultBranch: r.GetDefaultBranch(),
		UpdatedAt:     r.GetUpdatedAt().Time,
		PushedAt:      r.GetPushedAt().Time,
		Private:       r.GetPrivate(),
	}
}

func perPage(limit int) int {
	if limit <= 0 || limit > maxPerPage {
		return maxPerPage
	}
	return limit
}
