package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	githubadapter "github.com/ericfisherdev/repowatch/internal/adapter/driven/github"
	"github.com/ericfisherdev/repowatch/internal/adapter/driven/jsonstate"
	sqliteadapter "github.com/ericfisherdev/repowatch/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/repowatch/internal/adapter/driven/summary"
	"github.com/ericfisherdev/repowatch/internal/adapter/driving/terminal"
	"github.com/ericfisherdev/repowatch/internal/application"
	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// sqliteFileName is the database created in state_dir by the sqlite backend.
const sqliteFileName = "repowatch.db"

// stateStores are the per-concern stores of the configured backend.
type stateStores struct {
	stores map[model.Concern]driven.StateStore
	close  func() error
}

// openStores opens the configured state backend. For the JSON backend a
// legacy combined state file is split first; a failed split is logged and
// left for the next run.
func (o *RootOptions) openStores(ctx context.Context) (*stateStores, error) {
	cfg := o.Config
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	switch cfg.StateBackend {
	case "sqlite":
		path := filepath.Join(cfg.StateDir, sqliteFileName)
		db, err := sqliteadapter.NewDB(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening state database: %w", err)
		}
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, err
		}
		o.Logger.Debug("state database ready", "path", db.Path())

		stores := make(map[model.Concern]driven.StateStore, len(model.Concerns))
		for _, c := range model.Concerns {
			stores[c] = sqliteadapter.NewStateRepo(db, c)
		}
		return &stateStores{stores: stores, close: db.Close}, nil

	default:
		if _, err := jsonstate.MigrateLegacy(ctx, cfg.StateDir, o.Now()); err != nil {
			o.Logger.Warn("legacy state migration failed, legacy file left in place",
				"dir", cfg.StateDir,
				"error", err,
			)
		}

		stores := make(map[model.Concern]driven.StateStore, len(model.Concerns))
		for _, c := range model.Concerns {
			store := jsonstate.NewStore(cfg.StateDir, c)
			o.Logger.Debug("state file ready", "concern", string(c), "path", store.Path())
			stores[c] = store
		}
		return &stateStores{stores: stores, close: func() error { return nil }}, nil
	}
}

func (o *RootOptions) newFetcher() driven.RemoteFetcher {
	if o.NewFetcher != nil {
		return o.NewFetcher(o.Config)
	}
	if o.Config.GitHubToken == "" {
		o.Logger.Warn("no GitHub token configured, using anonymous API access with a low rate limit")
	}
	return githubadapter.NewClient(o.Config.GitHubToken)
}

func (o *RootOptions) newSummarizer() (driven.Summarizer, error) {
	cfg := o.Config
	if cfg.Summarizer == "command" {
		return summary.NewCommand(cfg.SummarizerArgv(), cfg.SummaryBullets, cfg.SummaryTimeout, o.Logger)
	}
	return summary.NewDigest(cfg.SummaryBullets), nil
}

func (o *RootOptions) detectionOptions() application.Options {
	cfg := o.Config
	return application.Options{
		TrackState:           cfg.SaveState,
		MaxCommits:           cfg.MaxCommits,
		MaxReleases:          cfg.MaxReleases,
		MaxBranches:          cfg.MaxBranches,
		MaxForks:             cfg.MaxForks,
		MaxBranchesPerFork:   cfg.MaxBranchesPerFork,
		MinCommitsAhead:      cfg.MinCommitsAhead,
		AnalyzeDefaultAlways: cfg.AnalyzeDefaultBranchAlways,
		PruneStale:           cfg.PruneStale,
		StrictAnchor:         cfg.StrictAnchor,
	}.WithDefaults()
}

// engine is a fully wired orchestrator plus the resources it holds open.
type engine struct {
	orchestrator *application.Orchestrator
	stores       *stateStores
}

func (e *engine) Close() error {
	return e.stores.close()
}

// newEngine wires the fetcher, summarizer, processors, and stores into an
// orchestrator rendering to out. A nil reg records no metrics.
func (o *RootOptions) newEngine(ctx context.Context, out io.Writer, reg prometheus.Registerer) (*engine, error) {
	summarizer, err := o.newSummarizer()
	if err != nil {
		return nil, err
	}
	stores, err := o.openStores(ctx)
	if err != nil {
		return nil, err
	}

	var metrics *application.Metrics
	if reg != nil {
		metrics = application.NewMetrics(reg)
	}

	processors := application.NewProcessors(application.ProcessorDeps{
		Fetcher:    o.newFetcher(),
		Summarizer: summarizer,
		Options:    o.detectionOptions(),
		Metrics:    metrics,
		Now:        o.Now,
	})

	cfg := o.Config
	orch := application.NewOrchestrator(application.OrchestratorDeps{
		Processors: processors,
		Stores:     stores.stores,
		Display:    terminal.NewDisplay(out, o.colored(out)),
		Batch: application.BatchOptions{
			MaxWorkers:   cfg.MaxWorkers,
			RepoTimeout:  cfg.RepoTimeout,
			BatchTimeout: cfg.BatchTimeout,
		},
		SaveState: cfg.SaveState,
		Metrics:   metrics,
		Logger:    o.Logger,
		Now:       o.Now,
	})

	return &engine{orchestrator: orch, stores: stores}, nil
}
