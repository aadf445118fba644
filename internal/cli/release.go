package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var releaseStatus string

var releaseCmd = &cobra.Command{
	Use:   "release <key>",
	Short: "Release or resolve a claimed item",
	Long: `Release an item back to the pool, or resolve it with --status.

A plain release keeps the item as a draft and makes it claimable again.
With --status the item moves on instead: "approved" and "deleted" finish
it, "skipped" passes it to other reviewers while keeping you off it.

Examples:
  labelq release "medical|b0|item-1"
  labelq release "medical|b0|item-1" --status approved
  labelq release "medical|b0|item-1" --status skipped`,
	Args: cobra.ExactArgs(1),
	RunE: runRelease,
}

func init() {
	releaseCmd.Flags().StringVar(&releaseStatus, "status", "", "resolve instead of release: approved, deleted or skipped")
}

func runRelease(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	key := args[0]

	if releaseStatus == "" {
		item, err := apiClient.Release(ctx, key)
		if err != nil {
			return fmt.Errorf("release: %w", err)
		}
		fmt.Printf("Released %s\n", item.Key())
		return nil
	}

	item, err := apiClient.Transition(ctx, key, releaseStatus)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	fmt.Printf("%s is now %s\n", item.Key(), item.Status)
	return nil
}
