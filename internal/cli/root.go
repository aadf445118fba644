// Package cli provides the command-line interface for labelq.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tberndt/labelq/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	// apiClient talks to the labelq server. Authentication comes from the
	// LABELQ_TOKEN environment variable.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "labelq",
	Short: "Review backlog allocation client",
	Long: `labelq drives the review work-allocation server: sample candidate
items, claim them for review, release or resolve them, and inspect the
backlog.

Reviewer identity comes from the JWT in the LABELQ_TOKEN environment
variable; the server address from --server or LABELQ_SERVER_URL.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server URL (default LABELQ_SERVER_URL or http://localhost:8585)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
}
