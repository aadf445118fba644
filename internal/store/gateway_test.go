package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tberndt/labelq/internal/models"
)

func rereadItem(version string, mutate ...func(*models.WorkItem)) *models.WorkItem {
	it := &models.WorkItem{
		ItemID:  "wo-1",
		Dataset: "qa-general",
		Bucket:  "b0",
		Status:  models.StatusDraft,
		Version: version,
	}
	for _, m := range mutate {
		m(it)
	}
	return it
}

func TestWriteOutcomeRecognizesAppliedWrite(t *testing.T) {
	// The re-read item carries the token this write generated: the write
	// applied even though the response was lost.
	current := rereadItem("token-a")

	applied, err := writeOutcome(current, "token-a")
	require.NoError(t, err)
	assert.Same(t, current, applied)
}

func TestWriteOutcomeLostRaceNamesHolder(t *testing.T) {
	now := time.Now().UTC()
	current := rereadItem("token-b", func(w *models.WorkItem) {
		w.AssignedTo = models.StringPtr("alice")
		w.AssignedAt = &now
	})

	applied, err := writeOutcome(current, "token-a")
	assert.Nil(t, applied)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, current.Key(), conflict.Key)
	assert.Equal(t, "alice", conflict.Holder)
	require.NotNil(t, conflict.HolderSince)
	assert.Equal(t, now, *conflict.HolderSince)
	assert.Equal(t, "token-b", conflict.StoredVersion)
}

func TestWriteOutcomeLostRaceToRelease(t *testing.T) {
	// A concurrent release leaves no holder; the conflict still carries the
	// stored version so callers can see the item moved on.
	current := rereadItem("token-c")

	_, err := writeOutcome(current, "token-a")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Empty(t, conflict.Holder)
	assert.Equal(t, "token-c", conflict.StoredVersion)
}

func TestIsUnknownOutcome(t *testing.T) {
	assert.True(t, isUnknownOutcome(context.DeadlineExceeded))
	assert.True(t, isUnknownOutcome(fmt.Errorf("conditional write: %w", context.DeadlineExceeded)))
	assert.True(t, isUnknownOutcome(context.Canceled))

	// Definite outcomes must not trigger a re-read.
	assert.False(t, isUnknownOutcome(nil))
	assert.False(t, isUnknownOutcome(errors.New("parse error")))
	assert.False(t, isUnknownOutcome(&ConflictError{Key: "k"}))
}
