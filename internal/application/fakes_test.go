package application_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/repowatch/internal/application"
	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// --- Remote fetcher ---

// fakeRepo is the remote view of one repository.
type fakeRepo struct {
	defaultBranch string
	branches      []model.BranchRef
	commits       map[string][]model.CommitRef // Newest first, per branch.
	releases      []model.Release              // Newest first.
	forks         []model.ForkInfo
	parent        *model.ForkParent
	err           error
}

type fakeFetcher struct {
	mu    sync.Mutex
	repos map[string]*fakeRepo
	calls map[string]int

	// compare answers CompareRefs; refs are "owner/repo@branch".
	compare func(base, head string) (*model.Comparison, error)
	// onRepo runs at the start of GetDefaultBranch.
	onRepo func(ctx context.Context, fullName string)
}

// Compile-time interface satisfaction check.
var _ driven.RemoteFetcher = (*fakeFetcher)(nil)

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		repos: make(map[string]*fakeRepo),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) set(fullName string, r *fakeRepo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[strings.ToLower(fullName)] = r
}

func (f *fakeFetcher) update(fullName string, fn func(r *fakeRepo)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.repos[strings.ToLower(fullName)])
}

func (f *fakeFetcher) lookup(method, owner, repo string) (*fakeRepo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++

	r, ok := f.repos[strings.ToLower(owner+"/"+repo)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", owner, repo, driven.ErrNotFound)
	}
	if r.err != nil {
		return nil, r.err
	}
	return r, nil
}

func (f *fakeFetcher) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeFetcher) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *fakeFetcher) GetDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	if f.onRepo != nil {
		f.onRepo(ctx, owner+"/"+repo)
	}
	r, err := f.lookup("GetDefaultBranch", owner, repo)
	if err != nil {
		return "", err
	}
	return r.defaultBranch, nil
}

func (f *fakeFetcher) GetBranchHead(_ context.Context, owner, repo, branch string) (string, error) {
	r, err := f.lookup("GetBranchHead", owner, repo)
	if err != nil {
		return "", err
	}
	for _, b := range r.branches {
		if b.Name == branch {
			return b.SHA, nil
		}
	}
	return "", fmt.Errorf("branch %s: %w", branch, driven.ErrNotFound)
}

func (f *fakeFetcher) ListBranches(_ context.Context, owner, repo string) ([]model.BranchRef, error) {
	r, err := f.lookup("ListBranches", owner, repo)
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.branches), nil
}

func (f *fakeFetcher) CompareRefs(_ context.Context, baseOwner, baseRepo, base, headOwner, headRepo, head string) (*model.Comparison, error) {
	f.mu.Lock()
	f.calls["CompareRefs"]++
	compare := f.compare
	f.mu.Unlock()

	if compare == nil {
		return nil, driven.ErrNotFound
	}
	return compare(baseOwner+"/"+baseRepo+"@"+base, headOwner+"/"+headRepo+"@"+head)
}

func (f *fakeFetcher) ListForks(_ context.Context, owner, repo string, limit int) ([]model.ForkInfo, error) {
	r, err := f.lookup("ListForks", owner, repo)
	if err != nil {
		return nil, err
	}
	forks := slices.Clone(r.forks)
	if limit > 0 && len(forks) > limit {
		forks = forks[:limit]
	}
	return forks, nil
}

func (f *fakeFetcher) GetForkParent(_ context.Context, owner, repo string) (*model.ForkParent, error) {
	r, err := f.lookup("GetForkParent", owner, repo)
	if err != nil {
		return nil, err
	}
	return r.parent, nil
}

func (f *fakeFetcher) ListCommits(_ context.Context, owner, repo, branch string, limit int) ([]model.CommitRef, error) {
	r, err := f.lookup("ListCommits", owner, repo)
	if err != nil {
		return nil, err
	}
	commits := slices.Clone(r.commits[branch])
	if limit > 0 && len(commits) > limit {
		commits = commits[:limit]
	}
	return commits, nil
}

func (f *fakeFetcher) ListReleases(_ context.Context, owner, repo string, limit int) ([]model.Release, error) {
	r, err := f.lookup("ListReleases", owner, repo)
	if err != nil {
		return nil, err
	}
	releases := slices.Clone(r.releases)
	if limit > 0 && len(releases) > limit {
		releases = releases[:limit]
	}
	return releases, nil
}

// --- Summarizer ---

type fakeSummarizer struct {
	mu        sync.Mutex
	summarize func(req model.SummaryRequest) (string, error)
	requests  []model.SummaryRequest
}

func (s *fakeSummarizer) Summarize(_ context.Context, req model.SummaryRequest) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	fn := s.summarize
	s.mu.Unlock()

	if fn == nil {
		return "summary of " + req.Repository.FullName(), nil
	}
	return fn(req)
}

func (s *fakeSummarizer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *fakeSummarizer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// --- Display ---

type recordingReport struct {
	mu        sync.Mutex
	news      []model.NewsReport
	noUpdates []string
	forks     []model.ForkAnalysis
	active    int
	listed    int
	warnings  []string
	errs      []error
	closed    bool
}

func (r *recordingReport) News(report model.NewsReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.news = append(r.news, report)
}

func (r *recordingReport) NoUpdates(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noUpdates = append(r.noUpdates, reason)
}

func (r *recordingReport) Fork(analysis model.ForkAnalysis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forks = append(r.forks, analysis)
}

func (r *recordingReport) ForkTotals(active, listed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active, r.listed = active, listed
}

func (r *recordingReport) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

func (r *recordingReport) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReport) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

type recordingDisplay struct {
	mu      sync.Mutex
	reports map[model.RepositoryKey]*recordingReport
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{reports: make(map[model.RepositoryKey]*recordingReport)}
}

func (d *recordingDisplay) Open(repo model.Repository) driven.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := &recordingReport{}
	d.reports[repo.Key] = r
	return r
}

func (d *recordingDisplay) report(key model.RepositoryKey) *recordingReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reports[key]
}

// --- State store ---

type memStore struct {
	mu      sync.Mutex
	state   model.PersistedState
	saves   int
	loadErr error
	saveErr error
}

func (m *memStore) Load(_ context.Context) (model.PersistedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.state.Clone(), nil
}

func (m *memStore) Save(_ context.Context, state model.PersistedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.state = state.Clone()
	return nil
}

func (m *memStore) get(key model.RepositoryKey) (model.RepositoryState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.state[key]
	return rs, ok
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// --- Helpers ---

// fixedClock returns a settable clock starting at t.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mustRepo(t *testing.T, fullName string) model.Repository {
	t.Helper()
	repo, err := model.ParseRepositoryURL(fullName, "")
	require.NoError(t, err)
	return repo
}

// makeCommits returns n oldest-first commits with SHAs "<prefix>-001" and up.
func makeCommits(prefix string, n int) []model.CommitRef {
	out := make([]model.CommitRef, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.CommitRef{
			SHA:        fmt.Sprintf("%s-%03d", prefix, i),
			Message:    fmt.Sprintf("%s change %d", prefix, i),
			AuthorName: "dev",
			AuthorDate: baseTime.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

// newestFirst returns a reversed copy of oldest-first commits.
func newestFirst(commits []model.CommitRef) []model.CommitRef {
	out := slices.Clone(commits)
	slices.Reverse(out)
	return out
}

func lastSHA(commits []model.CommitRef) string {
	return commits[len(commits)-1].SHA
}

// harness wires processors, a store, and a display into an orchestrator.
// Each run gets a fresh display.
type harness struct {
	fetcher    *fakeFetcher
	summarizer *fakeSummarizer
	display    *recordingDisplay
	stores     map[model.Concern]*memStore
	clock      *fixedClock
	opts       application.Options
	batch      application.BatchOptions
}

func newHarness(fetcher *fakeFetcher, opts application.Options, batch application.BatchOptions) *harness {
	return &harness{
		fetcher:    fetcher,
		summarizer: &fakeSummarizer{},
		display:    newRecordingDisplay(),
		stores: map[model.Concern]*memStore{
			model.ConcernNews:  {},
			model.ConcernForks: {},
		},
		clock: &fixedClock{t: baseTime},
		opts:  opts,
		batch: batch,
	}
}

func (h *harness) orchestrator() *application.Orchestrator {
	stores := make(map[model.Concern]driven.StateStore, len(h.stores))
	for c, s := range h.stores {
		stores[c] = s
	}

	return application.NewOrchestrator(application.OrchestratorDeps{
		Processors: application.NewProcessors(application.ProcessorDeps{
			Fetcher:    h.fetcher,
			Summarizer: h.summarizer,
			Options:    h.opts,
			Now:        h.clock.Now,
		}),
		Stores:    stores,
		Display:   h.display,
		Batch:     h.batch,
		SaveState: h.opts.TrackState,
		Now:       h.clock.Now,
	})
}

// runErr runs one batch and returns the orchestrator's error.
func (h *harness) runErr(concern model.Concern, repos ...model.Repository) (application.BatchResult, error) {
	h.display = newRecordingDisplay()
	return h.orchestrator().Run(context.Background(), concern, repos)
}

func (h *harness) run(t *testing.T, concern model.Concern, repos ...model.Repository) application.BatchResult {
	t.Helper()
	result, err := h.runErr(concern, repos...)
	require.NoError(t, err)
	return result
}
