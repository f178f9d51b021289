// Package main implements the incidentd CLI.
//
// incidentd retrieves the most relevant prior incidents for an
// operational issue description and returns ranked, confidence-scored
// remediation suggestions.
//
// Usage:
//
//	# Start the HTTP daemon
//	incidentd serve
//
//	# Ask once from the terminal
//	incidentd analyze "docker pull access denied for hello-world"
//
//	# Load records into the knowledge base
//	incidentd ingest incidents.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "incidentd",
	Short: "Incident retrieval and remediation suggestion service",
	Long: `incidentd matches free-text operational issue descriptions against a
knowledge base of past incidents and returns ranked remediation
suggestions with confidence scores.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("incidentd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
