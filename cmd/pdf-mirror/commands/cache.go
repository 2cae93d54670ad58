package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ned1313/pdf-mirror/internal/cache"
	"github.com/spf13/cobra"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the local PDF cache",
	}

	cmd.AddCommand(
		c.newCacheStatsCmd(),
		c.newCacheListCmd(),
		c.newCacheSweepCmd(),
		c.newCacheVerifyCmd(),
		c.newCacheRemoveCmd(),
		newCacheKeyCmd(),
	)

	return cmd
}

// withCache runs fn against a cache opened from the loaded configuration
func (c *CLI) withCache(cmd *cobra.Command, fn func(*cache.Manager) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	return fn(a.cache)
}

func (c *CLI) newCacheStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withCache(cmd, func(m *cache.Manager) error {
				stats := m.Stats()
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, stats)
				}

				fmt.Fprintf(out, "Directory:   %s\n", m.Dir())
				fmt.Fprintf(out, "Entries:     %d\n", stats.TotalEntries)
				fmt.Fprintf(out, "Size:        %s of %s\n",
					humanize.IBytes(uint64(m.SizeBytes())),
					humanize.IBytes(uint64(stats.MaxSizeMB*bytesPerMB)))
				fmt.Fprintf(out, "Evictions:   %s\n", humanize.Comma(stats.EvictionsPerformed))
				fmt.Fprintf(out, "Expirations: %s\n", humanize.Comma(stats.ExpiredEntriesCleared))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statistics as JSON")
	return cmd
}

func (c *CLI) newCacheListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached documents, most recently cached first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withCache(cmd, func(m *cache.Manager) error {
				var entries []*cache.Entry
				for _, key := range m.Keys() {
					if e, ok := m.Entry(key); ok {
						entries = append(entries, e)
					}
				}
				sort.Slice(entries, func(i, j int) bool {
					return entries[i].CacheTime.After(entries[j].CacheTime)
				})

				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "cache is empty")
					return nil
				}

				now := time.Now()
				for _, e := range entries {
					expiry := "expires " + humanize.Time(e.ExpiryTime)
					if e.Expired(now) {
						expiry = "expired " + humanize.Time(e.ExpiryTime)
					}
					fmt.Fprintf(out, "%s  %9s  %s", e.Key, humanize.IBytes(uint64(e.Size)), expiry)
					if u := e.Metadata["url"]; u != "" {
						fmt.Fprintf(out, "  %s", u)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func (c *CLI) newCacheSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withCache(cmd, func(m *cache.Manager) error {
				cleared, err := m.ClearExpired()
				if err != nil {
					return fmt.Errorf("sweep failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", cleared)
				return nil
			})
		},
	}
}

func (c *CLI) newCacheVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [KEY|URL...]",
		Short: "Recompute checksums of cached content (all entries by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCache(cmd, func(m *cache.Manager) error {
				keys := make([]string, 0, len(args))
				for _, arg := range args {
					keys = append(keys, resolveKey(arg))
				}
				if len(keys) == 0 {
					keys = m.Keys()
				}

				out := cmd.OutOrStdout()
				bad := 0
				for _, key := range keys {
					err := m.VerifyIntegrity(key)
					var integrityErr *cache.IntegrityError
					switch {
					case err == nil:
						fmt.Fprintf(out, "OK       %s\n", key)
					case errors.As(err, &integrityErr):
						bad++
						fmt.Fprintf(out, "CORRUPT  %s expected %s, got %s\n", key, integrityErr.Expected, integrityErr.Actual)
					case errors.Is(err, cache.ErrNotCached):
						bad++
						fmt.Fprintf(out, "MISSING  %s\n", key)
					default:
						return err
					}
				}

				if bad > 0 {
					return &ExitError{Code: 2, Err: fmt.Errorf("%d of %d entries failed verification", bad, len(keys))}
				}
				return nil
			})
		},
	}
}

func (c *CLI) newCacheRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove KEY|URL...",
		Short: "Remove documents from the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCache(cmd, func(m *cache.Manager) error {
				for _, arg := range args {
					key := resolveKey(arg)
					if _, ok := m.Entry(key); !ok {
						return fmt.Errorf("%s is not cached", arg)
					}
					if err := m.Remove(key); err != nil {
						return fmt.Errorf("failed to remove %s: %w", arg, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
				}
				return nil
			})
		},
	}
}

func newCacheKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key URL",
		Short: "Print the cache key for a URL",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cache.Key(args[0]))
		},
	}
}

// resolveKey accepts either a cache key or the URL it was derived from
func resolveKey(arg string) string {
	if strings.Contains(arg, "://") {
		return cache.Key(arg)
	}
	return arg
}

const bytesPerMB = 1024 * 1024
