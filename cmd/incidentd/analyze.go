package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/incidentd/internal/engine"
)

var analyzeMax int

var analyzeCmd = &cobra.Command{
	Use:   "analyze <issue description>",
	Short: "Analyze an issue once and print ranked suggestions",
	Long: `Analyze a free-text issue description against the knowledge base and
print ranked remediation suggestions with confidence scores.

Examples:
  incidentd analyze "docker pull access denied for hello-world"
  incidentd analyze --max 3 "pod stuck in CrashLoopBackOff"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeMax, "max", 0, "maximum number of suggestions (0 uses the configured default)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	query := strings.Join(args, " ")

	result, err := a.engine.Analyze(ctx, query, analyzeMax)
	if err != nil {
		return err
	}

	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, result *engine.Result) {
	if result.Status == engine.StatusNoMatch {
		cmd.Println("No known incident matches this issue with sufficient confidence.")
		return
	}

	cmd.Printf("%d match(es), showing %d:\n\n", result.TotalMatches, len(result.Candidates))
	for i, c := range result.Candidates {
		cmd.Printf("%d. [confidence %.2f] %s\n", i+1, c.Confidence, c.Record.Failure)
		cmd.Printf("   root cause: %s\n", c.Record.RootCause)
		cmd.Printf("   solution:   %s\n", c.Record.Solution)
		if c.Reasoning != "" {
			cmd.Printf("   reasoning:  %s\n", c.Reasoning)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
}
