package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// AssignmentRecord is the materialized "my assignments" view entry, one per
// (reviewer, WorkItem) pair. Stored in the assignment table with record id
// "reviewer|dataset|bucket|item_id" so a reviewer's records form one
// contiguous key range.
//
// The view is eventually consistent with the WorkItem: readers must
// re-validate against the item's live assigned_to/status before acting on it.
type AssignmentRecord struct {
	ID         surrealmodels.RecordID `json:"id,omitempty"`
	Reviewer   string                 `json:"reviewer"`
	Dataset    string                 `json:"dataset"`
	Bucket     string                 `json:"bucket"`
	ItemID     string                 `json:"item_id"`
	AssignedAt time.Time              `json:"assigned_at"`
}

// Key returns the assignment record key "reviewer|dataset|bucket|item_id".
func (a *AssignmentRecord) Key() string {
	return AssignmentKey(a.Reviewer, ItemKey(a.Dataset, a.Bucket, a.ItemID))
}

// AssignmentKey builds an assignment record key from the reviewer and the
// WorkItem key.
func AssignmentKey(reviewer, itemKey string) string {
	return reviewer + "|" + itemKey
}
