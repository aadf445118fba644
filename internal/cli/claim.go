package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tberndt/labelq/internal/client"
)

var (
	claimForce bool
	claimLimit int
)

var claimCmd = &cobra.Command{
	Use:   "claim [key]",
	Short: "Claim an item, or a batch of sampled items",
	Long: `Claim work for review. With a key, claims that specific item; a
conflict with another reviewer reports who holds it. Without a key, samples
and claims up to --limit items in one go.

Examples:
  labelq claim "medical|b0|item-1"
  labelq claim "medical|b0|item-1" --force
  labelq claim --limit 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClaim,
}

func init() {
	claimCmd.Flags().BoolVarP(&claimForce, "force", "f", false, "take the item from its current holder (needs admin or team-lead role)")
	claimCmd.Flags().IntVarP(&claimLimit, "limit", "n", 10, "batch size when no key is given")
}

func runClaim(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		item, err := apiClient.Claim(ctx, args[0], claimForce)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Holder != "" {
				return fmt.Errorf("item is held by %s (since %s); use --force to take it", apiErr.Holder, apiErr.HolderSince)
			}
			return fmt.Errorf("claim: %w", err)
		}
		fmt.Printf("Claimed %s\n", item.Key())
		return nil
	}

	items, err := apiClient.ClaimBatch(ctx, claimLimit)
	if err != nil {
		return fmt.Errorf("claim batch: %w", err)
	}

	if len(items) == 0 {
		fmt.Println("Nothing claimable right now.")
		return nil
	}

	fmt.Printf("Claimed %d item(s):\n\n", len(items))
	for _, item := range items {
		fmt.Printf("- %s\n", item.Key())
		if verbose {
			fmt.Printf("  %s\n", item.Question)
		}
	}
	if len(items) < claimLimit {
		fmt.Printf("\nBacklog could only supply %d of %d requested.\n", len(items), claimLimit)
	}
	return nil
}
