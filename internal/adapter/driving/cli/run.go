package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// newConcernCommand creates the batch command for one concern: news or forks.
func newConcernCommand(opts *RootOptions, concern model.Concern, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(concern) + " [repo]",
		Short: short,
		Long: fmt.Sprintf(`Run the %s check on every configured repository, or on one repository
given as a configured alias, an owner/repo pair, or a GitHub URL.

Examples:
  repowatch %[1]s
  repowatch %[1]s widgets
  repowatch %[1]s https://github.com/octo/widgets`, concern),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConcern(cmd, opts, concern, args)
		},
	}
}

func runConcern(cmd *cobra.Command, opts *RootOptions, concern model.Concern, args []string) error {
	var repos []model.Repository
	if len(args) == 1 {
		repo, err := opts.Config.Resolve(args[0])
		if err != nil {
			return err
		}
		repos = []model.Repository{repo}
	} else {
		var err error
		repos, err = opts.Config.Repos()
		if err != nil {
			return err
		}
	}

	if len(repos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No repositories configured. Add one with: repowatch add <url> [name]")
		return nil
	}

	eng, err := opts.newEngine(cmd.Context(), cmd.OutOrStdout(), nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			opts.Logger.Error("error closing state store", "error", closeErr)
		}
	}()

	result, err := eng.orchestrator.Run(cmd.Context(), concern, repos)
	if result.RunID == "" {
		return err
	}

	opts.Logger.Info("batch complete",
		"concern", string(concern),
		"run_id", result.RunID,
		"succeeded", result.Count(model.TaskSucceeded),
		"failed", result.Count(model.TaskFailed),
		"timed_out", result.Count(model.TaskTimedOut),
		"duration", result.Finished.Sub(result.Started),
	)
	return err
}
