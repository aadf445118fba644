// Package models defines data structures for the labelq review backlog.
package models

import (
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Status is the lifecycle state of a WorkItem.
type Status string

const (
	// StatusDraft marks an item that is open for review.
	StatusDraft Status = "draft"
	// StatusApproved marks an item whose review is accepted.
	StatusApproved Status = "approved"
	// StatusDeleted marks an item removed from the backlog.
	StatusDeleted Status = "deleted"
	// StatusSkipped marks an item a reviewer declined; the skipper stays
	// recorded in assigned_to so sampling can exclude them.
	StatusSkipped Status = "skipped"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusDeleted, StatusSkipped:
		return true
	}
	return false
}

// Reference is a single source citation attached to an item or a turn.
type Reference struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Turn is one exchange of a multi-turn item. Turns may carry their own
// reference lists which take precedence over the item-level list.
type Turn struct {
	Role       string      `json:"role"`
	Text       string      `json:"text"`
	References []Reference `json:"references,omitempty"`
}

// WorkItem is the unit of review. Items are stored in the work_item table
// with record id "dataset|bucket|item_id".
type WorkItem struct {
	ID      surrealmodels.RecordID `json:"id,omitempty"`
	ItemID  string                 `json:"item_id"`
	Dataset string                 `json:"dataset"`
	Bucket  string                 `json:"bucket"`

	Status     Status     `json:"status"`
	AssignedTo *string    `json:"assigned_to,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`

	Question   string      `json:"question"`
	Answer     *string     `json:"answer,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	References []Reference `json:"references,omitempty"`
	Turns      []Turn      `json:"turns,omitempty"`

	// TotalReferenceCount is derived at write time, see TotalReferences.
	TotalReferenceCount int `json:"total_reference_count"`

	// Version is the optimistic concurrency token. Every read returns it,
	// every conditional write requires it and rotates it.
	Version string `json:"version"`

	UpdatedAt  time.Time  `json:"updated_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// Key returns the record key "dataset|bucket|item_id".
func (w *WorkItem) Key() string {
	return ItemKey(w.Dataset, w.Bucket, w.ItemID)
}

// ItemKey builds a work_item record key from its partition parts.
func ItemKey(dataset, bucket, itemID string) string {
	return dataset + "|" + bucket + "|" + itemID
}

// SplitItemKey is the inverse of ItemKey. ok is false if key does not have
// three parts.
func SplitItemKey(key string) (dataset, bucket, itemID string, ok bool) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// HasAnswer reports whether the item carries a non-empty answer.
func (w *WorkItem) HasAnswer() bool {
	return w.Answer != nil && *w.Answer != ""
}

// TotalReferences computes the derived reference count. If any turn carries
// a non-empty reference list the nested counts are authoritative and the
// item-level list is ignored; otherwise the item-level list counts.
func (w *WorkItem) TotalReferences() int {
	nested := 0
	for _, t := range w.Turns {
		nested += len(t.References)
	}
	if nested > 0 {
		return nested
	}
	return len(w.References)
}

// AssignedReviewer returns the current holder, or "" when unassigned.
func (w *WorkItem) AssignedReviewer() string {
	if w.AssignedTo == nil {
		return ""
	}
	return *w.AssignedTo
}

// EligibleFor reports whether the item may be sampled for reviewer:
// an unassigned draft, or a skip by somebody else.
func (w *WorkItem) EligibleFor(reviewer string) bool {
	switch w.Status {
	case StatusDraft:
		return w.AssignedTo == nil || *w.AssignedTo == reviewer
	case StatusSkipped:
		return w.AssignedReviewer() != reviewer
	}
	return false
}
