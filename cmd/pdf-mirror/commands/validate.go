package commands

import (
	"fmt"
	"os"

	"github.com/ned1313/pdf-mirror/internal/pdf"
	"github.com/spf13/cobra"
)

func (c *CLI) newValidateCmd() *cobra.Command {
	var (
		repair bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate local PDF files without caching them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			validator := pdf.NewValidator(policyFromConfig(cfg.Validation))

			type fileResult struct {
				File string `json:"file"`
				*pdf.ValidationResult
			}

			var results []fileResult
			invalid := 0
			for _, file := range args {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}

				var result *pdf.ValidationResult
				if repair {
					result = validator.ValidateWithRepair(data)
				} else {
					result = validator.Validate(data)
				}
				if !result.IsValid {
					invalid++
				}
				results = append(results, fileResult{File: file, ValidationResult: result})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.IsValid {
						fmt.Fprintf(out, "VALID    %s (PDF %s, %d pages, %.2f MB)\n", r.File, r.PDFVersion, r.PageCount, r.FileSizeMB)
					} else {
						fmt.Fprintf(out, "INVALID  %s [%s] %s\n", r.File, r.Failure, r.Error)
					}
				}
			}

			if invalid > 0 {
				return &ExitError{Code: 2, Err: fmt.Errorf("%d of %d files are invalid", invalid, len(args))}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Attempt registered repairs on invalid files")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}
