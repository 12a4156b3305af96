// Package app provides the commands of the lens-server binary.
package app

import (
	"github.com/spf13/cobra"
)

// Build information, set with -ldflags at release time.
var (
	Version = "dev"
	Commit  = "unknown"
)

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "lens-server",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Serve an API behind a pluggable authentication strategy",
		Long: `lens-server hosts an HTTP API whose requests are authenticated by one of
three strategies: anonymous, a shared-secret API key header, or bearer tokens
from an allow-listed set of issuers. The strategy is selected by auth.type.`,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newOpenAPICmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
