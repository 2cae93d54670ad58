package commands

import (
	"errors"
	"fmt"

	"github.com/ned1313/pdf-mirror/internal/storage"
	"github.com/spf13/cobra"
)

var errArchiveDisabled = errors.New("archive storage is disabled (storage.type is empty)")

func (c *CLI) newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the long-term PDF archive",
	}

	cmd.AddCommand(c.newArchiveListCmd())

	return cmd
}

type archivedObject struct {
	Key      string            `json:"key"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (c *CLI) newArchiveListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list [PREFIX]",
		Short: "List archived documents (under storage.prefix by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Storage.ArchiveEnabled() {
				return errArchiveDisabled
			}

			ctx := cmd.Context()
			store, err := storage.NewFromConfig(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to open archive storage: %w", err)
			}
			defer store.Close()

			prefix := cfg.Storage.Prefix
			if len(args) == 1 {
				prefix = args[0]
			}

			keys, err := store.ListObjects(ctx, prefix)
			if err != nil {
				return fmt.Errorf("failed to list archive: %w", err)
			}

			objects := make([]archivedObject, 0, len(keys))
			for _, key := range keys {
				obj := archivedObject{Key: key}
				if md, err := store.GetMetadata(ctx, key); err == nil {
					obj.Metadata = md
				}
				objects = append(objects, obj)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, objects)
			}
			if len(objects) == 0 {
				fmt.Fprintln(out, "archive is empty")
				return nil
			}
			for _, obj := range objects {
				fmt.Fprint(out, obj.Key)
				if u := obj.Metadata["url"]; u != "" {
					fmt.Fprintf(out, "  %s", u)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print archived objects as JSON")
	return cmd
}
