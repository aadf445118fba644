package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sampleLimit   int
	sampleExclude []string
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Propose candidate items without claiming them",
	Long: `Sample candidate items for review. The result is a proposal only:
nothing is claimed, and another reviewer may take any of these items before
you do. Use "labelq claim" to actually claim work.

Examples:
  labelq sample
  labelq sample --limit 20
  labelq sample --exclude "medical|b0|item-1"`,
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().IntVarP(&sampleLimit, "limit", "n", 10, "max candidates")
	sampleCmd.Flags().StringSliceVarP(&sampleExclude, "exclude", "x", nil, "item keys to skip")
}

func runSample(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	items, err := apiClient.Sample(ctx, sampleLimit, sampleExclude)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}

	if len(items) == 0 {
		fmt.Println("No candidates available.")
		return nil
	}

	fmt.Printf("Candidates (%d):\n\n", len(items))
	for _, item := range items {
		marker := ""
		if item.AssignedTo != nil {
			marker = " [yours]"
		}
		fmt.Printf("- %s%s\n", item.Key(), marker)
		if verbose {
			fmt.Printf("  %s\n", item.Question)
			if len(item.Tags) > 0 {
				fmt.Printf("  Tags: %v\n", item.Tags)
			}
		}
	}
	return nil
}
