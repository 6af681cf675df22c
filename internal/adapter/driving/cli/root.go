// Package cli is the repowatch command line: batch runs per concern,
// configuration edits, state maintenance, and watch mode.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/repowatch/internal/config"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// RootOptions holds global flags and the state shared by every command once
// the configuration is loaded.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	NoColor    bool

	Config *config.Config
	Logger *slog.Logger

	// NewFetcher overrides the GitHub client (for testing).
	NewFetcher func(cfg *config.Config) driven.RemoteFetcher

	// Now overrides the clock (for testing).
	Now func() time.Time
}

// NewRootCommand creates the root command for the repowatch CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repowatch",
		Short: "Track new commits, releases, branches, and fork activity on GitHub repositories",
		Long: `repowatch reports what changed in a set of GitHub repositories since the
last run: new commits on the default branch, releases, active branches, and
forks with commits ahead of their parent. Bookkeeping is kept per concern in
the state directory, so repeated runs only show what is new.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.initialize(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the configuration file (default: ./repowatch.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "override the configured log format (text|json)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newConcernCommand(opts, "news", "Show new commits, releases, and active branches"))
	cmd.AddCommand(newConcernCommand(opts, "forks", "Show forks with new commits ahead of their parent"))
	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newRemoveCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newClearCommand(opts))
	cmd.AddCommand(newMigrateStateCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

// initialize loads the configuration, applies flag overrides, and installs
// the logger as the slog default.
func (o *RootOptions) initialize(logOut io.Writer) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}

	logger, err := newLogger(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	o.Config = cfg
	o.Logger = logger
	if o.Now == nil {
		o.Now = time.Now
	}

	logger.Debug("configuration loaded",
		"config_file", cfg.File(),
		"state_dir", cfg.StateDir,
		"state_backend", cfg.StateBackend,
		"repositories", len(cfg.Repositories),
	)
	return nil
}

// newLogger builds a slog logger writing text or JSON records at level.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
}

// colored reports whether output to w should carry ANSI colors.
func (o *RootOptions) colored(w io.Writer) bool {
	if o.NoColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
