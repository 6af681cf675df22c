package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/repowatch/internal/adapter/driven/jsonstate"
	"github.com/ericfisherdev/repowatch/internal/application"
	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

func newClearCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear <name|url> | --all",
		Short: "Forget the recorded state of a repository",
		Long: `Drop the bookkeeping of one repository, or of every repository with --all,
from both the news and the forks state. The next run treats it as new and
shows all recent activity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return errors.New("clear takes either a repository or --all, not both")
			case !all && len(args) != 1:
				return errors.New("clear needs a repository or --all")
			}

			var key model.RepositoryKey
			label := "all repositories"
			if !all {
				repo, err := opts.Config.Resolve(args[0])
				if err != nil {
					return err
				}
				key, label = repo.Key, repo.Name
			}

			stores, err := opts.openStores(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = stores.close() }()

			total := 0
			for _, concern := range model.Concerns {
				store := stores.stores[concern]
				loaded, err := store.Load(cmd.Context())
				if err != nil {
					return fmt.Errorf("loading %s state: %w", concern, err)
				}

				book := application.NewStateBook(store, loaded, nil)
				var n int
				if all {
					n, err = book.Reset(cmd.Context())
				} else {
					n, err = book.Remove(cmd.Context(), key)
				}
				if err != nil {
					return fmt.Errorf("clearing %s state: %w", concern, err)
				}
				total += n
			}

			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintf(out, "No state to clear for %s\n", label)
				return nil
			}
			fmt.Fprintf(out, "Cleared state for %s; the next run shows all recent activity\n", label)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "clear every repository")
	return cmd
}

func newMigrateStateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-state",
		Short: "Split a legacy combined state.json into per-concern files",
		Long: `Split the legacy state.json in the state directory into news_state.json
and forks_state.json. The legacy file is archived, never deleted. The news
and forks commands run this automatically; this command reports the outcome
and fails loudly when the split is not possible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Config.StateBackend != "json" {
				return fmt.Errorf("migrate-state applies to the json state backend, not %s", opts.Config.StateBackend)
			}

			res, err := jsonstate.MigrateLegacy(cmd.Context(), opts.Config.StateDir, opts.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !res.Migrated {
				fmt.Fprintln(out, "Nothing to migrate")
				return nil
			}
			fmt.Fprintf(out, "Migrated %d repositories\n", res.Repositories)
			if res.ArchivePath != "" {
				fmt.Fprintf(out, "Legacy state archived to %s\n", res.ArchivePath)
			}
			return nil
		},
	}
}
