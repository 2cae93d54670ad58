package commands

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ned1313/pdf-mirror/internal/downloader"
	"github.com/spf13/cobra"
)

func (c *CLI) newFetchCmd() *cobra.Command {
	var (
		workers   int
		outputDir string
		asJSON    bool
		progress  bool
	)

	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Download, validate and cache one or more PDFs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(ctx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			var results []*downloader.Result
			if len(args) == 1 {
				var report downloader.ProgressFunc
				if progress {
					report = func(status string) {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", args[0], status)
					}
				}
				res, _ := a.downloader.Download(ctx, args[0], report)
				results = []*downloader.Result{res}
			} else {
				results = a.downloader.DownloadConcurrent(ctx, args, workers)
			}

			if outputDir != "" {
				if err := saveResults(outputDir, results); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else {
				printResults(out, results)
			}

			failed := 0
			for _, res := range results {
				if !res.Success {
					failed++
				}
			}
			if failed > 0 {
				return &ExitError{Code: 2, Err: fmt.Errorf("%d of %d downloads failed", failed, len(results))}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent downloads (default from fetcher.max_workers)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Also write each downloaded PDF into this directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().BoolVar(&progress, "progress", false, "Report progress on stderr for a single URL")

	return cmd
}

func printResults(w io.Writer, results []*downloader.Result) {
	for _, res := range results {
		if !res.Success {
			fmt.Fprintf(w, "FAIL  %s\n      %s: %s (retries: %d)\n", res.URL, res.ErrorKind, res.ErrorMessage, res.RetriesAttempted)
			continue
		}

		source := "downloaded"
		switch {
		case res.FromCache:
			source = "cached"
		case res.FromArchive:
			source = "restored"
		}
		fmt.Fprintf(w, "OK    %s\n      %s, %s, key %s", res.URL, source, humanize.IBytes(uint64(res.SizeBytes())), res.CacheKey)
		if v := res.Validation; v != nil && v.PDFVersion != "" {
			fmt.Fprintf(w, ", PDF %s, %d pages", v.PDFVersion, v.PageCount)
		}
		if res.Archived {
			fmt.Fprintf(w, ", archived as %s", res.ArchiveKey)
		}
		fmt.Fprintln(w)
	}
}

// saveResults writes successful downloads into dir named after their URL
func saveResults(dir string, results []*downloader.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, res := range results {
		if !res.Success {
			continue
		}
		dest := filepath.Join(dir, outputName(res))
		if err := os.WriteFile(dest, res.Content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
	}
	return nil
}

// outputName uses the URL's file name when it ends in .pdf, else the cache key
func outputName(res *downloader.Result) string {
	if u, err := url.Parse(res.URL); err == nil {
		base := path.Base(u.Path)
		if strings.EqualFold(path.Ext(base), ".pdf") {
			return base
		}
	}
	return res.CacheKey + ".pdf"
}
