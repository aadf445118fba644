package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tberndt/labelq/internal/client"
)

var (
	listStatuses   []string
	listDataset    string
	listAssignedTo string
	listUnassigned bool
	listTags       []string
	listText       string
	listSort       string
	listDesc       bool
	listPage       int
	listPageSize   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backlog items",
	Long: `List backlog items with filtering, sorting and pagination.

Sort fields: id, updatedAt, reviewedAt, hasAnswer, totalReferenceCount.

Examples:
  labelq list
  labelq list --status draft --unassigned
  labelq list --dataset medical --tag urgent
  labelq list --query diabetes --sort updatedAt --desc
  labelq list --page 2 --page-size 50`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringSliceVar(&listStatuses, "status", nil, "filter by status (repeatable)")
	listCmd.Flags().StringVarP(&listDataset, "dataset", "d", "", "filter by dataset")
	listCmd.Flags().StringVar(&listAssignedTo, "assigned-to", "", "filter by holder")
	listCmd.Flags().BoolVar(&listUnassigned, "unassigned", false, "only unassigned items")
	listCmd.Flags().StringSliceVarP(&listTags, "tag", "t", nil, "filter by tag (repeatable)")
	listCmd.Flags().StringVarP(&listText, "query", "q", "", "text search over question, answer and turns")
	listCmd.Flags().StringVar(&listSort, "sort", "", "sort field")
	listCmd.Flags().BoolVar(&listDesc, "desc", false, "sort descending")
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	listCmd.Flags().IntVar(&listPageSize, "page-size", 25, "page size")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	result, err := apiClient.ListItems(ctx, client.ListOptions{
		Statuses:   listStatuses,
		Dataset:    listDataset,
		AssignedTo: listAssignedTo,
		Unassigned: listUnassigned,
		Tags:       listTags,
		Text:       listText,
		Sort:       listSort,
		Desc:       listDesc,
		Page:       listPage,
		PageSize:   listPageSize,
	})
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	if len(result.Items) == 0 {
		fmt.Println("No items found.")
		return nil
	}

	info := result.PageInfo
	fmt.Printf("Items (page %d/%d, %d total):\n\n", info.Page, info.TotalPages, info.Total)
	for _, item := range result.Items {
		holder := ""
		if item.AssignedTo != nil {
			holder = fmt.Sprintf(" -> %s", *item.AssignedTo)
		}
		fmt.Printf("- %s [%s]%s\n", item.Key(), item.Status, holder)
		if verbose {
			fmt.Printf("  %s\n", item.Question)
			if len(item.Tags) > 0 {
				fmt.Printf("  Tags: %v\n", item.Tags)
			}
			fmt.Printf("  References: %d\n", item.TotalReferenceCount)
		}
	}
	if info.Truncated {
		fmt.Println("\nWarning: the store could not evaluate the full filter; results may be incomplete.")
	}
	return nil
}
