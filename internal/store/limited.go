package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/tberndt/labelq/internal/models"
)

// limitedQuerier serves deployments whose store cannot combine the richer
// filter predicates with ordering. It fetches a bounded superset using only
// simple equality predicates, then evaluates tag-membership, text
// containment and existence checks in memory with the same comparator as
// the capable path, so both paths paginate identically.
type limitedQuerier struct {
	client   *Client
	fetchCap int
	logger   *slog.Logger
}

func (q *limitedQuerier) List(ctx context.Context, f Filters, s Sort, p Page) ([]models.WorkItem, PageInfo, error) {
	// Push only the cheap predicates; fetch one row past the cap so
	// truncation is detectable.
	var conds []string
	vars := map[string]any{"limit": q.fetchCap + 1}

	if len(f.Statuses) > 0 {
		conds = append(conds, "status INSIDE $statuses")
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		vars["statuses"] = statuses
	}
	if f.Dataset != "" {
		conds = append(conds, "dataset = $dataset")
		vars["dataset"] = f.Dataset
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	sql := fmt.Sprintf("SELECT * FROM work_item%s LIMIT $limit", where)

	results, err := surrealdb.Query[[]models.WorkItem](ctx, q.client.db, sql, vars)
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("fetch superset: %w", err)
	}
	fetched := firstResult(results)

	truncated := false
	if len(fetched) > q.fetchCap {
		fetched = fetched[:q.fetchCap]
		truncated = true
		q.logger.Warn("limited-path fetch hit the cap, results are partial", "cap", q.fetchCap)
	}

	filtered := fetched[:0:0]
	for i := range fetched {
		if matchesFilters(&fetched[i], f) {
			filtered = append(filtered, fetched[i])
		}
	}

	sortItems(filtered, s)
	page, info := paginate(filtered, p)
	info.Truncated = truncated

	if truncated {
		return page, info, &CapacityError{Cap: q.fetchCap}
	}
	return page, info, nil
}

func (q *limitedQuerier) Unassigned(ctx context.Context, uq UnassignedQuery) ([]models.WorkItem, error) {
	if uq.Limit <= 0 {
		return nil, nil
	}
	sql := `SELECT * FROM work_item WHERE status INSIDE ["draft", "skipped"] LIMIT $limit`
	results, err := surrealdb.Query[[]models.WorkItem](ctx, q.client.db, sql, map[string]any{
		"limit": q.fetchCap,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	fetched := firstResult(results)
	if len(fetched) >= q.fetchCap {
		q.logger.Warn("limited-path candidate fetch hit the cap", "cap", q.fetchCap)
	}

	var out []models.WorkItem
	for i := range fetched {
		it := &fetched[i]
		if !it.EligibleFor(uq.Reviewer) {
			continue
		}
		// Held drafts are assigned work, not sampling candidates.
		if it.Status == models.StatusDraft && it.AssignedTo != nil {
			continue
		}
		if uq.GroupPrefix != "" && !strings.HasPrefix(it.Dataset, uq.GroupPrefix) {
			continue
		}
		if uq.Exclude[it.Key()] {
			continue
		}
		out = append(out, *it)
		if len(out) >= uq.Limit {
			break
		}
	}
	return out, nil
}
