package alloc

import (
	"context"
	"sync"

	"github.com/tberndt/labelq/internal/models"
	"github.com/tberndt/labelq/internal/store"
)

// Sample proposes up to limit candidates for reviewer, in presentation
// order. The result is a proposal, not a reservation: nothing is claimed and
// another reviewer may win any of these items before the caller does.
//
// Order of assembly:
//  1. items the reviewer already holds, so interrupted sessions resume first
//  2. quota fill across weighted groups, round-robin interleaved so no
//     single group dominates the head of the list
//  3. a global tail when the weighted groups cannot meet their quotas
//
// Keys in exclude are never proposed; batch claiming passes every key it has
// already attempted to avoid re-proposing contested items.
func (a *Allocator) Sample(ctx context.Context, reviewer string, limit int, exclude map[string]bool) ([]models.WorkItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(exclude)+limit)
	for k := range exclude {
		seen[k] = true
	}
	picked := make([]models.WorkItem, 0, limit)

	owned, err := a.gw.AssignedTo(ctx, reviewer, limit+len(exclude))
	if err != nil {
		return nil, err
	}
	for _, item := range owned {
		if seen[item.Key()] {
			continue
		}
		seen[item.Key()] = true
		picked = append(picked, item)
		if len(picked) == limit {
			return picked, nil
		}
	}

	need := limit - len(picked)

	if len(a.weights) == 0 {
		pool, err := a.gw.Unassigned(ctx, store.UnassignedQuery{
			Reviewer: reviewer,
			Exclude:  seen,
			Limit:    need,
		})
		if err != nil {
			return nil, err
		}
		a.shuffle(pool)
		return appendCandidates(picked, pool, seen, limit), nil
	}

	buckets, err := a.fetchGroupCandidates(ctx, reviewer, seen, need)
	if err != nil {
		return nil, err
	}
	for i := range buckets {
		a.shuffle(buckets[i])
	}

	// Round-robin over groups in descending weight order. Quotas already
	// bound each bucket, so one cycle per shortfall pass is enough.
	for need > 0 {
		progressed := false
		for gi := range buckets {
			if need == 0 {
				break
			}
			for len(buckets[gi]) > 0 {
				item := buckets[gi][0]
				buckets[gi] = buckets[gi][1:]
				if seen[item.Key()] {
					continue
				}
				seen[item.Key()] = true
				picked = append(picked, item)
				need--
				progressed = true
				break
			}
		}
		if !progressed {
			break
		}
	}

	// Supply-starved groups leave a shortfall; top up from the global pool.
	if need > 0 {
		tail, err := a.gw.Unassigned(ctx, store.UnassignedQuery{
			Reviewer: reviewer,
			Exclude:  seen,
			Limit:    need,
		})
		if err != nil {
			return nil, err
		}
		a.shuffle(tail)
		picked = appendCandidates(picked, tail, seen, limit)
	}

	return picked, nil
}

// fetchGroupCandidates queries every group with a non-zero quota in
// parallel. Bucket order matches a.weights so the interleave below starts
// with the heaviest group.
func (a *Allocator) fetchGroupCandidates(ctx context.Context, reviewer string, seen map[string]bool, need int) ([][]models.WorkItem, error) {
	weightMap := make(map[string]int, len(a.weights))
	for _, g := range a.weights {
		weightMap[g.name] = g.weight
	}
	quotas := SplitQuota(weightMap, need)

	// Snapshot the exclusion set; the queries run concurrently and must not
	// observe later mutations of seen.
	exclude := make(map[string]bool, len(seen))
	for k := range seen {
		exclude[k] = true
	}

	buckets := make([][]models.WorkItem, len(a.weights))
	errs := make([]error, len(a.weights))

	var wg sync.WaitGroup
	for i, g := range a.weights {
		quota := quotas[g.name]
		if quota == 0 {
			continue
		}
		if quota > a.perGroupCap {
			quota = a.perGroupCap
		}
		wg.Add(1)
		go func(i int, group string, limit int) {
			defer wg.Done()
			items, err := a.gw.Unassigned(ctx, store.UnassignedQuery{
				GroupPrefix: group,
				Reviewer:    reviewer,
				Exclude:     exclude,
				Limit:       limit,
			})
			buckets[i], errs[i] = items, err
		}(i, g.name, quota)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return buckets, nil
}

func appendCandidates(picked, pool []models.WorkItem, seen map[string]bool, limit int) []models.WorkItem {
	for _, item := range pool {
		if len(picked) == limit {
			break
		}
		if seen[item.Key()] {
			continue
		}
		seen[item.Key()] = true
		picked = append(picked, item)
	}
	return picked
}
