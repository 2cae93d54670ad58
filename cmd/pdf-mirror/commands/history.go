package commands

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ned1313/pdf-mirror/internal/database"
	"github.com/spf13/cobra"
)

var errDatabaseDisabled = errors.New("download history is disabled (database.enabled = false)")

func (c *CLI) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query and maintain the download history database",
	}

	cmd.AddCommand(
		c.newHistoryListCmd(),
		c.newHistorySummaryCmd(),
		c.newHistoryBackupCmd(),
		c.newHistoryPruneCmd(),
	)

	return cmd
}

// withDB runs fn against the history database from the loaded configuration
func (c *CLI) withDB(fn func(*database.DB) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return errDatabaseDisabled
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return fn(db)
}

func (c *CLI) newHistoryListCmd() *cobra.Command {
	var (
		limit  int
		rawURL string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDB(func(db *database.DB) error {
				repo := database.NewHistoryRepository(db)

				var (
					records []*database.DownloadRecord
					err     error
				)
				if rawURL != "" {
					records, err = repo.ListByURL(cmd.Context(), rawURL, limit)
				} else {
					records, err = repo.ListRecent(cmd.Context(), limit, 0)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "no downloads recorded")
					return nil
				}
				for _, rec := range records {
					status := "ok"
					switch {
					case !rec.Success:
						status = "failed:" + rec.ErrorKind.String
					case rec.FromCache:
						status = "cached"
					}
					fmt.Fprintf(out, "%s  %-28s %9s  %s\n",
						rec.CreatedAt.Local().Format(time.DateTime),
						status,
						humanize.IBytes(uint64(rec.SizeBytes)),
						rec.URL)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	cmd.Flags().StringVar(&rawURL, "url", "", "Only show downloads of this URL")
	return cmd
}

func (c *CLI) newHistorySummaryCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate download outcomes over a time window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDB(func(db *database.DB) error {
				var since time.Time
				if window > 0 {
					since = time.Now().Add(-window)
				}

				summary, err := database.NewHistoryRepository(db).Summary(cmd.Context(), since)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Downloads:  %s (%s succeeded, %s failed)\n",
					humanize.Comma(summary.Total), humanize.Comma(summary.Succeeded), humanize.Comma(summary.Failed))
				fmt.Fprintf(out, "Cache hits: %s\n", humanize.Comma(summary.CacheHits))
				fmt.Fprintf(out, "Fetched:    %s\n", humanize.IBytes(uint64(summary.BytesDownloaded)))

				kinds := make([]string, 0, len(summary.ByErrorKind))
				for kind := range summary.ByErrorKind {
					kinds = append(kinds, kind)
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					fmt.Fprintf(out, "  %-20s %d\n", kind, summary.ByErrorKind[kind])
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "How far back to aggregate (0 for all time)")
	return cmd
}

func (c *CLI) newHistoryBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup DEST",
		Short: "Write a consistent copy of the history database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(func(db *database.DB) error {
				if err := db.Backup(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("backup failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backed up %s to %s\n", db.Path(), args[0])
				return nil
			})
		},
	}
}

func (c *CLI) newHistoryPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history and audit records older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			return c.withDB(func(db *database.DB) error {
				cutoff := time.Now().Add(-olderThan)

				downloads, err := database.NewHistoryRepository(db).DeleteOlderThan(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				actions, err := database.NewAuditRepository(db).DeleteOlderThan(cmd.Context(), cutoff)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d download records and %d audit records older than %s\n",
					downloads, actions, cutoff.Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")
	return cmd
}
