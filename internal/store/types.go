package store

import (
	"context"

	"github.com/tberndt/labelq/internal/models"
)

// Filters narrows a backlog listing. Zero values mean "no constraint".
type Filters struct {
	Statuses   []models.Status
	Dataset    string // exact dataset match
	AssignedTo string
	Unassigned bool     // only items with no holder
	Tags       []string // membership: item carries at least one of these
	Text       string   // case-insensitive containment over question, answer and turn texts
}

// SortField names a sortable column. Only allow-listed fields ever reach
// the store, never user-supplied raw text.
type SortField string

const (
	SortByID             SortField = "id"
	SortByUpdatedAt      SortField = "updatedAt"
	SortByReviewedAt     SortField = "reviewedAt"
	SortByHasAnswer      SortField = "hasAnswer"
	SortByReferenceCount SortField = "totalReferenceCount"
)

// sortColumns maps request sort fields to store columns (the allow-list).
var sortColumns = map[SortField]string{
	SortByID:             "id",
	SortByUpdatedAt:      "updated_at",
	SortByReviewedAt:     "reviewed_at",
	SortByHasAnswer:      "has_answer",
	SortByReferenceCount: "total_reference_count",
}

// Valid reports whether f is an allow-listed sort field.
func (f SortField) Valid() bool {
	_, ok := sortColumns[f]
	return ok
}

// Sort describes the requested ordering. The secondary tiebreak is always
// the record id ascending, which keeps pagination stable: the same page
// over a stable collection yields the same items in the same order.
type Sort struct {
	Field SortField
	Desc  bool
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// PageInfo carries total-count metadata for a listing.
type PageInfo struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalPages int  `json:"total_pages"`
	Truncated  bool `json:"truncated,omitempty"`
}

// UnassignedQuery selects sampling candidates: unassigned drafts plus items
// skipped by somebody other than Reviewer.
type UnassignedQuery struct {
	// GroupPrefix matches datasets by prefix (a group name is a prefix over
	// the dataset field, enabling sub-grouping). Empty means the global pool.
	GroupPrefix string
	// Reviewer excludes items this reviewer skipped.
	Reviewer string
	// Exclude drops item keys already collected by the caller.
	Exclude map[string]bool
	Limit   int
}

// querier is the store capability strategy: the capable path pushes
// filtering, sorting and pagination to the server; the limited path fetches
// a bounded superset and evaluates the same predicates in memory. Selected
// once per deployment by a construction-time probe.
type querier interface {
	List(ctx context.Context, f Filters, s Sort, p Page) ([]models.WorkItem, PageInfo, error)
	Unassigned(ctx context.Context, q UnassignedQuery) ([]models.WorkItem, error)
}
