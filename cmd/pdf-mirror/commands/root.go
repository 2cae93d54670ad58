// Package commands implements the pdf-mirror command line interface.
package commands

import (
	"context"
	"errors"

	"github.com/ned1313/pdf-mirror/internal/config"
	"github.com/ned1313/pdf-mirror/internal/version"
	"github.com/spf13/cobra"
)

// ExitError carries a process exit code for failures that were already reported
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code for an error returned by Execute
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// CLI represents the pdf-mirror command line interface
type CLI struct {
	rootCmd    *cobra.Command
	configPath string
	envFile    string
}

// New creates the command tree
func New() *CLI {
	c := &CLI{}

	rootCmd := &cobra.Command{
		Use:           "pdf-mirror",
		Short:         "Download, validate and cache PDF guides",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to configuration file (HCL)")
	rootCmd.PersistentFlags().StringVar(&c.envFile, "env-file", "", "Dotenv file loaded before PDFM_ environment overrides")

	rootCmd.AddCommand(
		c.newServeCmd(),
		c.newFetchCmd(),
		c.newValidateCmd(),
		c.newCacheCmd(),
		c.newArchiveCmd(),
		c.newHistoryCmd(),
		c.newHashPasswordCmd(),
		c.newVerifyPasswordCmd(),
		c.newHealthcheckCmd(),
		c.newVersionCmd(),
	)

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// Root returns the root command. Used for testing.
func (c *CLI) Root() *cobra.Command {
	return c.rootCmd
}

func (c *CLI) loadConfig() (*config.Config, error) {
	return config.LoadWithEnvFile(c.configPath, c.envFile)
}
