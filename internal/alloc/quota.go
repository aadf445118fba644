// Package alloc implements the work-allocation engine: weighted quota
// splitting, backlog sampling, and the race-safe claim protocol.
package alloc

import "sort"

// SplitQuota converts per-group weights and a target count k into integer
// per-group quotas summing exactly to k, using the largest-remainder
// method: each group gets floor(weight/total * k), then the leftover units
// go one at a time to the groups with the largest fractional remainder,
// ties broken by group name ascending for determinism.
//
// Quotas are targets, not guarantees of supply. Groups with non-positive
// weights get zero; with no positive weight at all every quota is zero and
// the caller falls back to the unweighted global pool.
func SplitQuota(weights map[string]int, k int) map[string]int {
	quotas := make(map[string]int, len(weights))

	var groups []string
	total := 0
	for group, w := range weights {
		quotas[group] = 0
		if w > 0 {
			groups = append(groups, group)
			total += w
		}
	}
	if k <= 0 || total <= 0 {
		return quotas
	}
	sort.Strings(groups)

	type remainder struct {
		group string
		frac  int
	}
	remainders := make([]remainder, 0, len(groups))

	assigned := 0
	for _, group := range groups {
		w := weights[group]
		quotas[group] = w * k / total
		assigned += quotas[group]
		remainders = append(remainders, remainder{group: group, frac: w * k % total})
	}

	// Stable sort on a name-sorted slice keeps ties in name order.
	sort.SliceStable(remainders, func(i, j int) bool {
		return remainders[i].frac > remainders[j].frac
	})

	for i := 0; assigned < k; i++ {
		quotas[remainders[i%len(remainders)].group]++
		assigned++
	}
	return quotas
}
