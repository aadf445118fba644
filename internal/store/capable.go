package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/tberndt/labelq/internal/models"
)

// capableQuerier pushes filtering, ordering and pagination to the store and
// runs a separate scalar count query for total-count metadata.
type capableQuerier struct {
	client *Client
}

// capabilityProbeSQL exercises every feature the capable path relies on:
// string-function predicates, closure predicates over sub-documents, and
// ORDER BY combined with LIMIT/START. Limited deployments reject it.
const capabilityProbeSQL = `
	SELECT * FROM work_item
	WHERE string::starts_with(dataset, "probe")
		AND array::any(turns.map(|$t| string::contains(string::lowercase($t.text), "probe")))
	ORDER BY updated_at DESC, id ASC
	LIMIT 1 START 1
`

func (q *capableQuerier) List(ctx context.Context, f Filters, s Sort, p Page) ([]models.WorkItem, PageInfo, error) {
	where, vars := buildFilterClauses(f)

	col, ok := sortColumns[s.Field]
	if !ok {
		col = "id"
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}

	sql := fmt.Sprintf(
		"SELECT * FROM work_item%s ORDER BY %s %s, id ASC LIMIT $limit START $start",
		where, col, dir,
	)
	vars["limit"] = p.Size
	vars["start"] = p.Offset()

	results, err := surrealdb.Query[[]models.WorkItem](ctx, q.client.db, sql, vars)
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("list items: %w", err)
	}
	items := firstResult(results)

	countSQL := fmt.Sprintf("SELECT count() AS total FROM work_item%s GROUP ALL", where)
	type countRow struct {
		Total int `json:"total"`
	}
	countResults, err := surrealdb.Query[[]countRow](ctx, q.client.db, countSQL, vars)
	if err != nil {
		return nil, PageInfo{}, fmt.Errorf("count items: %w", err)
	}

	total := 0
	if rows := firstResult(countResults); len(rows) > 0 {
		total = rows[0].Total
	}

	info := PageInfo{
		Total:    total,
		Page:     p.Number,
		PageSize: p.Size,
	}
	if p.Size > 0 {
		info.TotalPages = (total + p.Size - 1) / p.Size
	}
	return items, info, nil
}

func (q *capableQuerier) Unassigned(ctx context.Context, uq UnassignedQuery) ([]models.WorkItem, error) {
	conds := []string{
		`((status = "draft" AND assigned_to = NONE) OR (status = "skipped" AND assigned_to != $reviewer))`,
	}
	vars := map[string]any{
		"reviewer": uq.Reviewer,
		"limit":    uq.Limit,
	}

	if uq.GroupPrefix != "" {
		conds = append(conds, "string::starts_with(dataset, $prefix)")
		vars["prefix"] = uq.GroupPrefix
	}
	if len(uq.Exclude) > 0 {
		conds = append(conds, "id NOTINSIDE $exclude")
		vars["exclude"] = excludeRecordIDs(uq.Exclude)
	}

	sql := fmt.Sprintf(
		"SELECT * FROM work_item WHERE %s LIMIT $limit",
		strings.Join(conds, " AND "),
	)

	results, err := surrealdb.Query[[]models.WorkItem](ctx, q.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("query unassigned: %w", err)
	}
	return firstResult(results), nil
}

// buildFilterClauses translates Filters into a WHERE clause with bound
// variables. Column names never come from user input; only values do.
func buildFilterClauses(f Filters) (string, map[string]any) {
	var conds []string
	vars := map[string]any{}

	if len(f.Statuses) > 0 {
		conds = append(conds, "status INSIDE $statuses")
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		vars["statuses"] = statuses
	}
	if f.Dataset != "" {
		conds = append(conds, "dataset = $dataset")
		vars["dataset"] = f.Dataset
	}
	if f.Unassigned {
		conds = append(conds, "assigned_to = NONE")
	}
	if f.AssignedTo != "" {
		conds = append(conds, "assigned_to = $assigned_to")
		vars["assigned_to"] = f.AssignedTo
	}
	if len(f.Tags) > 0 {
		conds = append(conds, "tags CONTAINSANY $tags")
		vars["tags"] = f.Tags
	}
	if f.Text != "" {
		conds = append(conds, `(
			string::contains(string::lowercase(question), $text)
			OR (answer != NONE AND string::contains(string::lowercase(answer), $text))
			OR array::any(turns.map(|$t| string::contains(string::lowercase($t.text), $text)))
		)`)
		vars["text"] = strings.ToLower(f.Text)
	}

	if len(conds) == 0 {
		return "", vars
	}
	return " WHERE " + strings.Join(conds, " AND "), vars
}

// excludeRecordIDs converts collected item keys to record ids for NOTINSIDE.
func excludeRecordIDs(exclude map[string]bool) []surrealmodels.RecordID {
	ids := make([]surrealmodels.RecordID, 0, len(exclude))
	for key := range exclude {
		ids = append(ids, surrealmodels.NewRecordID("work_item", key))
	}
	return ids
}

// firstResult extracts the rows of the first statement of a query result.
func firstResult[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	return (*results)[0].Result
}
