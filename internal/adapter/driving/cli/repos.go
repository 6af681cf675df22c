package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/repowatch/internal/adapter/driving/terminal"
	"github.com/ericfisherdev/repowatch/internal/config"
	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

func newAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <url> [name]",
		Short: "Add a repository to the configuration",
		Long: `Add a repository to the repositories list of the configuration file,
creating the file when needed. The name defaults to the repository name.

Examples:
  repowatch add https://github.com/octo/widgets
  repowatch add git@github.com:octo/widgets.git gadgets`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var alias string
			if len(args) == 2 {
				alias = args[1]
			}
			repo, err := config.AddRepository(opts.Config.File(), args[0], alias)
			if err != nil {
				return err
			}
			opts.Logger.Debug("repository added", "repo", repo.FullName(), "file", opts.Config.File())
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s -> %s\n", repo.Name, repo.URL)
			return nil
		},
	}
}

func newRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name|url>",
		Short: "Remove a repository from the configuration",
		Long: `Remove a repository from the configuration file by alias, owner/repo,
or URL. Its bookkeeping is kept; use clear to drop it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := config.RemoveRepository(opts.Config.File(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s -> %s\n", removed.Name, removed.URL)
			return nil
		},
	}
}

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured repositories with their last recorded commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repos, err := opts.Config.Repos()
			if err != nil {
				return err
			}

			state := model.PersistedState{}
			if opts.Config.SaveState && len(repos) > 0 {
				stores, err := opts.openStores(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = stores.close() }()

				state, err = stores.stores[model.ConcernNews].Load(cmd.Context())
				if err != nil {
					return fmt.Errorf("loading news state: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			terminal.NewDisplay(out, opts.colored(out)).Repositories(repos, state)
			return nil
		},
	}
}
