package store

import (
	"sort"
	"strings"
	"time"

	"github.com/tberndt/labelq/internal/models"
)

// compareItems is the composite sort comparator shared by both query paths:
// the requested field first, then the record key ascending as tiebreak.
// Returns a negative value when a sorts before b.
func compareItems(a, b *models.WorkItem, s Sort) int {
	c := comparePrimary(a, b, s.Field)
	if s.Desc {
		c = -c
	}
	if c != 0 {
		return c
	}
	// Tiebreak is always ascending, independent of the requested direction.
	return strings.Compare(a.Key(), b.Key())
}

func comparePrimary(a, b *models.WorkItem, field SortField) int {
	switch field {
	case SortByUpdatedAt:
		return compareTime(a.UpdatedAt, b.UpdatedAt)
	case SortByReviewedAt:
		return compareTimePtr(a.ReviewedAt, b.ReviewedAt)
	case SortByHasAnswer:
		return compareBool(a.HasAnswer(), b.HasAnswer())
	case SortByReferenceCount:
		return a.TotalReferenceCount - b.TotalReferenceCount
	default: // SortByID
		return strings.Compare(a.Key(), b.Key())
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// compareTimePtr orders missing timestamps first, matching the store's
// NONE-sorts-low behavior.
func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return compareTime(*a, *b)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// sortItems sorts in place using the composite comparator.
func sortItems(items []models.WorkItem, s Sort) {
	sort.SliceStable(items, func(i, j int) bool {
		return compareItems(&items[i], &items[j], s) < 0
	})
}

// matchesFilters evaluates the full listing predicate in memory. The
// limited path applies it to the fetched superset; semantics must match
// the capable path's server-side clauses exactly.
func matchesFilters(it *models.WorkItem, f Filters) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, it.Status) {
		return false
	}
	if f.Dataset != "" && it.Dataset != f.Dataset {
		return false
	}
	if f.Unassigned && it.AssignedTo != nil {
		return false
	}
	if f.AssignedTo != "" && it.AssignedReviewer() != f.AssignedTo {
		return false
	}
	if len(f.Tags) > 0 && !containsAnyTag(it.Tags, f.Tags) {
		return false
	}
	if f.Text != "" && !matchesText(it, f.Text) {
		return false
	}
	return true
}

// matchesText checks case-insensitive containment across the question, the
// answer and every nested turn text.
func matchesText(it *models.WorkItem, text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(it.Question), needle) {
		return true
	}
	if it.Answer != nil && strings.Contains(strings.ToLower(*it.Answer), needle) {
		return true
	}
	for _, turn := range it.Turns {
		if strings.Contains(strings.ToLower(turn.Text), needle) {
			return true
		}
	}
	return false
}

func containsStatus(statuses []models.Status, s models.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func containsAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// paginate slices a fully sorted list and reports page metadata.
func paginate(items []models.WorkItem, p Page) ([]models.WorkItem, PageInfo) {
	total := len(items)
	info := PageInfo{
		Total:    total,
		Page:     p.Number,
		PageSize: p.Size,
	}
	if p.Size > 0 {
		info.TotalPages = (total + p.Size - 1) / p.Size
	}

	start := p.Offset()
	if start >= total {
		return []models.WorkItem{}, info
	}
	end := start + p.Size
	if end > total {
		end = total
	}
	return items[start:end], info
}
