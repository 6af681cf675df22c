// Package config loads repowatch settings from repowatch.yaml, REPOWATCH_
// environment variables, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

const (
	// FileName is the configuration file written when none exists yet.
	FileName = "repowatch.yaml"

	envPrefix = "REPOWATCH"
)

// Sentinel errors returned by repository lookups and edits.
var (
	ErrRepositoryNotConfigured = errors.New("repository not configured")
	ErrDuplicateRepository     = errors.New("repository already configured")
)

// Repository is one entry of the repositories list.
type Repository struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
}

// Config holds every repowatch setting.
type Config struct {
	GitHubToken string `mapstructure:"github_token"`

	StateDir     string `mapstructure:"state_dir"`
	StateBackend string `mapstructure:"state_backend"`
	SaveState    bool   `mapstructure:"save_state"`

	MaxWorkers   int           `mapstructure:"max_workers"`
	RepoTimeout  time.Duration `mapstructure:"repo_timeout"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`

	MaxCommits                 int  `mapstructure:"max_commits"`
	MaxReleases                int  `mapstructure:"max_releases"`
	MaxBranches                int  `mapstructure:"max_branches"`
	MaxForks                   int  `mapstructure:"max_forks"`
	MaxBranchesPerFork         int  `mapstructure:"max_branches_per_fork"`
	MinCommitsAhead            int  `mapstructure:"min_commits_ahead"`
	AnalyzeDefaultBranchAlways bool `mapstructure:"analyze_default_branch_always"`
	PruneStale                 bool `mapstructure:"prune_stale"`
	StrictAnchor               bool `mapstructure:"strict_anchor"`

	Summarizer        string        `mapstructure:"summarizer"`
	SummarizerCommand string        `mapstructure:"summarizer_command"`
	SummaryBullets    int           `mapstructure:"summary_bullets"`
	SummaryTimeout    time.Duration `mapstructure:"summary_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	WatchInterval time.Duration `mapstructure:"watch_interval"`
	WatchConcerns []string      `mapstructure:"watch_concerns"`
	ListenAddr    string        `mapstructure:"listen_addr"`

	Repositories []Repository `mapstructure:"repositories"`

	file string
}

// Defaults returns every setting's default value keyed by its config name.
func Defaults() map[string]any {
	return map[string]any{
		"github_token":                  "",
		"state_dir":                     ".",
		"state_backend":                 "json",
		"save_state":                    true,
		"max_workers":                   4,
		"repo_timeout":                  "60s",
		"batch_timeout":                 "180s",
		"max_commits":                   10,
		"max_releases":                  10,
		"max_branches":                  5,
		"max_forks":                     20,
		"max_branches_per_fork":         5,
		"min_commits_ahead":             1,
		"analyze_default_branch_always": true,
		"prune_stale":                   false,
		"strict_anchor":                 false,
		"summarizer":                    "digest",
		"summarizer_command":            "",
		"summary_bullets":               5,
		"summary_timeout":               "120s",
		"log_level":                     "info",
		"log_format":                    "text",
		"watch_interval":                "15m",
		"watch_concerns":                []string{"news", "forks"},
		"listen_addr":                   "127.0.0.1:9464",
	}
}

// Load reads the configuration. When path is empty, repowatch.yaml is
// searched in the working directory and then $HOME/.config/repowatch; a
// missing file is not an error. Environment variables override the file:
// REPOWATCH_<KEY>, with GITHUB_TOKEN as a fallback for the token.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "repowatch"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("github_token", envPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("binding token environment: %w", err)
	}

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading configuration: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		trimStringsHook(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	cfg.file = v.ConfigFileUsed()
	if cfg.file == "" {
		cfg.file = path
	}
	if cfg.file == "" {
		cfg.file = FileName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// trimStringsHook strips the whitespace that comma-separated environment
// values leave around list items.
func trimStringsHook() mapstructure.DecodeHookFuncType {
	return func(_, _ reflect.Type, data any) (any, error) {
		items, ok := data.([]string)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	}
}

// Validate checks enumerated settings and limits.
func (c *Config) Validate() error {
	var errs []error
	if c.StateBackend != "json" && c.StateBackend != "sqlite" {
		errs = append(errs, fmt.Errorf("state_backend must be json or sqlite, got %q", c.StateBackend))
	}
	switch c.Summarizer {
	case "digest":
	case "command":
		if strings.TrimSpace(c.SummarizerCommand) == "" {
			errs = append(errs, errors.New("summarizer_command is required when summarizer is command"))
		}
	default:
		errs = append(errs, fmt.Errorf("summarizer must be digest or command, got %q", c.Summarizer))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max_workers must be at least 1, got %d", c.MaxWorkers))
	}
	if c.RepoTimeout <= 0 || c.BatchTimeout <= 0 {
		errs = append(errs, errors.New("repo_timeout and batch_timeout must be positive"))
	}
	if c.WatchInterval <= 0 {
		errs = append(errs, errors.New("watch_interval must be positive"))
	}
	for _, name := range c.WatchConcerns {
		if !model.Concern(name).Valid() {
			errs = append(errs, fmt.Errorf("watch_concerns: unknown concern %q", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// File returns the configuration file in use, or the one add would create.
func (c *Config) File() string {
	return c.file
}

// SummarizerArgv splits the summarizer command on whitespace.
func (c *Config) SummarizerArgv() []string {
	return strings.Fields(c.SummarizerCommand)
}

// Concerns returns the concerns watch mode runs each cycle.
func (c *Config) Concerns() []model.Concern {
	out := make([]model.Concern, 0, len(c.WatchConcerns))
	for _, name := range c.WatchConcerns {
		concern := model.Concern(name)
		if !slices.Contains(out, concern) {
			out = append(out, concern)
		}
	}
	return out
}

// Repos parses every configured repository.
func (c *Config) Repos() ([]model.Repository, error) {
	out := make([]model.Repository, 0, len(c.Repositories))
	for _, r := range c.Repositories {
		repo, err := model.ParseRepositoryURL(r.URL, r.Name)
		if err != nil {
			return nil, fmt.Errorf("repository %q: %w", r.Name, err)
		}
		out = append(out, repo)
	}
	return out, nil
}

// Resolve turns a command-line argument into a repository. A configured
// alias wins; anything containing a slash is parsed as a URL or
// "owner/repo", keeping the configured alias when the repository is
// tracked.
func (c *Config) Resolve(arg string) (model.Repository, error) {
	repos, err := c.Repos()
	if err != nil {
		return model.Repository{}, err
	}
	for _, r := range repos {
		if strings.EqualFold(r.Name, arg) {
			return r, nil
		}
	}
	if !strings.Contains(arg, "/") {
		return model.Repository{}, fmt.Errorf("%w: %s", ErrRepositoryNotConfigured, arg)
	}

	parsed, err := model.ParseRepositoryURL(arg, "")
	if err != nil {
		return model.Repository{}, err
	}
	for _, r := range repos {
		if r.Key == parsed.Key {
			return r, nil
		}
	}
	return parsed, nil
}
