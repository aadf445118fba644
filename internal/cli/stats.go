package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show the server's in-memory allocation statistics: operation
timings plus claim/release counters. Resets on server restart.`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	snap, err := apiClient.Stats(ctx)
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}

	fmt.Printf("Uptime: %.0fs\n", snap.UptimeSeconds)

	if len(snap.Counters) > 0 {
		fmt.Println("\nCounters:")
		names := make([]string, 0, len(snap.Counters))
		for name := range snap.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-20s %d\n", name, snap.Counters[name])
		}
	}

	if len(snap.Operations) > 0 {
		fmt.Println("\nOperations:")
		ops := make([]string, 0, len(snap.Operations))
		for op := range snap.Operations {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			m := snap.Operations[op]
			fmt.Printf("  %-20s count=%d avg=%.1fms min=%dms max=%dms\n",
				op, m.Count, m.AvgTimeMs, m.MinTimeMs, m.MaxTimeMs)
		}
	}
	return nil
}
