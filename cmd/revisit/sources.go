package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Track every synced solved problem not tracked yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.tracker.ImportSolvedProblems(cmd.Context(), a.cfg.User)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s problems\n", humanize.Comma(int64(n)))
			return nil
		},
	}
}

func newSourceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage where solved problems are synced from",
	}

	add := &cobra.Command{
		Use:   "add <path-or-git-url>",
		Short: "Register a directory or git repository of solved problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.syncer.AddSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Source %d: %s\n", id, args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := a.db.GetAllSources(cmd.Context())
			if err != nil {
				return err
			}
			now := a.clock.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSYNCED\tPATH")
			for _, s := range sources {
				synced := "never"
				if s.LastScanned.Valid {
					synced = humanize.RelTime(s.LastScanned.Time, now, "ago", "from now")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Type, synced, s.Path)
			}
			return w.Flush()
		},
	}

	remove := &cobra.Command{
		Use:   "remove <path-or-git-url>",
		Short: "Unregister a source and drop its solved problems from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.syncer.RemoveSource(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed source %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull every source and refresh the solved-problem registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			for _, path := range a.cfg.Registry.Sources {
				if _, err := a.syncer.AddSource(ctx, path); err != nil {
					return err
				}
			}

			results, err := a.syncer.RunSync(ctx)
			if err != nil {
				return err
			}
			var failed []error
			for _, r := range results {
				if r.Err != nil {
					failed = append(failed, fmt.Errorf("%s: %w", r.Source.Path, r.Err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d problems\n", r.Source.Path, r.Problems)
			}
			return errors.Join(failed...)
		},
	}
}
