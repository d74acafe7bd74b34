package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sha1n/relic-gitindex/internal/app"
	"github.com/sha1n/relic-gitindex/internal/config"
	"github.com/sha1n/relic-gitindex/internal/gitindex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "relic-gitindex"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := newRootCommand(version, programName)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

func newRootCommand(version, programName string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "RELIC gitindex server",
		Long:    "Keeps a full-text index of git repositories in sync and serves it over MCP",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithFlags(cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	app.RegisterServerFlags(rootCmd.Flags())
	app.RegisterIndexFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(newSyncCommand(), newSearchCommand())

	return rootCmd
}

func runWithFlags(flags *pflag.FlagSet, version string) error {
	return app.RunWithDeps(context.Background(), app.DefaultRunParams(), flags, version)
}

// openService loads settings from flags and opens the index service
func openService(flags *pflag.FlagSet) (*gitindex.Service, *config.Settings, error) {
	settings, err := config.LoadSettingsWithFlags(flags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := config.ValidateSettings(settings); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app.ConfigureLogging()
	svc, err := app.NewService(settings, nil)
	if err != nil {
		return nil, nil, err
	}
	return svc, settings, nil
}

func newSyncCommand() *cobra.Command {
	var (
		repo        string
		from, to    string
		blobsOnly   bool
		commitsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the index with the configured repositories and exit",
		Long: "Synchronize the index with the configured repositories and exit.\n" +
			"With --from or --to, index only the changes between two revisions of --repo.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ranged := from != "" || to != ""
			if ranged && repo == "" {
				return fmt.Errorf("--from and --to require --repo")
			}
			if blobsOnly && commitsOnly {
				return fmt.Errorf("--blobs-only and --commits-only are mutually exclusive")
			}

			svc, _, err := openService(cmd.Flags())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			switch {
			case ranged:
				if to == "" {
					to = "HEAD"
				}
				res, err := svc.SyncRange(ctx, repo, from, to, !commitsOnly, !blobsOnly)
				if err != nil {
					return err
				}
				printSyncResult(out, res)
			case repo != "":
				res, err := svc.SyncOne(ctx, repo)
				if err != nil {
					return err
				}
				printSyncResult(out, res)
			default:
				results, err := svc.SyncAll(ctx)
				for _, res := range results {
					printSyncResult(out, res)
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Repository id to sync")
	cmd.Flags().StringVar(&from, "from", "", "Revision the index already reflects")
	cmd.Flags().StringVar(&to, "to", "", "Revision to index up to (default: HEAD)")
	cmd.Flags().BoolVar(&blobsOnly, "blobs-only", false, "Index file contents only")
	cmd.Flags().BoolVar(&commitsOnly, "commits-only", false, "Index commits only")
	return cmd
}

func printSyncResult(w io.Writer, res gitindex.RepoSyncResult) {
	switch {
	case res.UpToDate:
		_, _ = fmt.Fprintf(w, "%s: up to date\n", res.RepositoryID)
	default:
		kind := "delta"
		if res.Full {
			kind = "full"
		}
		_, _ = fmt.Fprintf(w, "%s: %s sync to %s, blobs +%d -%d (%d skipped), commits +%d\n",
			res.RepositoryID, kind, shortRevision(res.Blobs.Revision, res.Commits.Revision),
			res.Blobs.Upserted, res.Blobs.Deleted, res.Blobs.Skipped, res.Commits.Upserted)
	}
}

func shortRevision(revs ...string) string {
	for _, r := range revs {
		if len(r) > 12 {
			return r[:12]
		}
		if r != "" {
			return r
		}
	}
	return "-"
}

func newSearchCommand() *cobra.Command {
	var (
		repo      string
		kind      string
		page      int
		per       int
		highlight []string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the index and print the results as JSON",
		Long: "Search the index and print the results as JSON.\n" +
			"Every term must match. An empty query lists all commits.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			searchMode, err := gitindex.ParseSearchMode(kind)
			if err != nil {
				return err
			}

			svc, settings, err := openService(cmd.Flags())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if per <= 0 {
				per = settings.Search.PerPage
			}
			params := gitindex.SearchParams{
				Mode: searchMode,
				SearchOptions: gitindex.SearchOptions{
					Page:         page,
					Per:          per,
					Highlight:    highlight,
					RepositoryID: repo,
				},
			}

			results, err := svc.Search(cmd.Context(), strings.Join(args, " "), params, settings.Search.MaxPerPage)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Restrict results to one repository id")
	cmd.Flags().StringVar(&kind, "type", "all", "Documents to search: all, commits or blobs")
	cmd.Flags().IntVar(&page, "page", 1, "Result page, starting at 1")
	cmd.Flags().IntVar(&per, "per", 0, "Results per page (default: search-per-page)")
	cmd.Flags().StringSliceVar(&highlight, "highlight", nil, "Fields to highlight, e.g. blob.content,commit.message")
	return cmd
}
