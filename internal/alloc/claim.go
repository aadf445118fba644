package alloc

import (
	"context"
	"errors"
	"fmt"

	"github.com/tberndt/labelq/internal/events"
	"github.com/tberndt/labelq/internal/metrics"
	"github.com/tberndt/labelq/internal/models"
	"github.com/tberndt/labelq/internal/store"
)

// ClaimSingle claims one item for reviewer. The claim races fairly: the
// store's version guard picks exactly one winner among concurrent claimers,
// the losers get a ConflictError naming the live holder.
//
// force takes an item held by another reviewer; it requires the admin or
// team-lead role and also removes the previous holder's assignment record.
func (a *Allocator) ClaimSingle(ctx context.Context, key, reviewer string, force bool, roles []string) (*models.WorkItem, error) {
	start := a.now()
	defer func() {
		a.metrics.Observe("claim", a.now().Sub(start))
	}()

	item, err := a.gw.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	holder := item.AssignedReviewer()
	previousHolder := ""
	if item.Status == models.StatusDraft && holder != "" && holder != reviewer {
		if !force {
			a.metrics.Inc(metrics.CounterClaimConflicts, 1)
			return nil, &store.ConflictError{
				Key:           key,
				Holder:        holder,
				HolderSince:   item.AssignedAt,
				StoredVersion: item.Version,
			}
		}
		if !canForce(roles) {
			return nil, &PermissionError{Reviewer: reviewer}
		}
		previousHolder = holder
	}

	now := a.now().UTC()
	claim := *item
	claim.Status = models.StatusDraft
	claim.AssignedTo = &reviewer
	claim.AssignedAt = &now

	claimed, err := a.gw.ConditionalWrite(ctx, &claim, item.Version)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			a.metrics.Inc(metrics.CounterClaimConflicts, 1)
		}
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}

	// The item mutation is the source of truth; view bookkeeping failures
	// are logged and swallowed.
	record := &models.AssignmentRecord{
		Reviewer:   reviewer,
		Dataset:    claimed.Dataset,
		Bucket:     claimed.Bucket,
		ItemID:     claimed.ItemID,
		AssignedAt: now,
	}
	if err := a.gw.CreateAssignment(ctx, record); err != nil {
		a.logger.Warn("could not upsert assignment record", "item", key, "reviewer", reviewer, "error", err)
	}
	if previousHolder != "" {
		if err := a.gw.DeleteAssignment(ctx, previousHolder, key); err != nil {
			a.logger.Warn("could not remove previous holder's assignment record",
				"item", key, "previous_holder", previousHolder, "error", err)
		}
		a.metrics.Inc(metrics.CounterForcedClaims, 1)
		a.logger.Info("forced claim", "item", key, "reviewer", reviewer, "previous_holder", previousHolder)
	}

	a.metrics.Inc(metrics.CounterClaimsWon, 1)
	a.publish(events.TypeClaimed, claimed, reviewer)
	return claimed, nil
}

// SelfAssignBatch samples and claims up to limit items for reviewer. Every
// attempted key goes into the exclusion set whether the claim won or lost,
// so a retry pass proposes fresh candidates instead of fighting over the
// same contested items. Returns fewer than limit items when the backlog or
// the retry budget runs out; under-fulfilment is not an error.
func (a *Allocator) SelfAssignBatch(ctx context.Context, reviewer string, limit int) ([]models.WorkItem, error) {
	start := a.now()
	defer func() {
		a.metrics.Observe("self_assign_batch", a.now().Sub(start))
	}()

	attempted := make(map[string]bool)
	claimed := make([]models.WorkItem, 0, limit)

	for pass := 0; pass <= a.retryPasses && len(claimed) < limit; pass++ {
		if pass > 0 {
			a.metrics.Inc(metrics.CounterRetryPasses, 1)
			a.logger.Debug("batch claim retry pass", "reviewer", reviewer, "pass", pass, "have", len(claimed))
		}

		candidates, err := a.Sample(ctx, reviewer, limit-len(claimed), attempted)
		if err != nil {
			return claimed, err
		}
		if len(candidates) == 0 {
			break
		}

		for _, candidate := range candidates {
			if len(claimed) == limit {
				break
			}
			key := candidate.Key()
			attempted[key] = true

			item, err := a.ClaimSingle(ctx, key, reviewer, false, nil)
			if err != nil {
				// Lost races and vanished items are expected under
				// contention; move on to the next candidate.
				if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
					a.logger.Debug("batch claim candidate lost", "item", key, "error", err)
					continue
				}
				return claimed, err
			}
			claimed = append(claimed, *item)
		}
	}

	a.metrics.Inc(metrics.CounterItemsSampled, int64(len(claimed)))
	return claimed, nil
}

// Release gives an item back to the pool: the holder is cleared, the status
// stays draft, and the holder's assignment record is removed.
func (a *Allocator) Release(ctx context.Context, key string) (*models.WorkItem, error) {
	item, err := a.gw.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	holder := item.AssignedReviewer()

	released := *item
	released.AssignedTo = nil
	released.AssignedAt = nil

	out, err := a.gw.ConditionalWrite(ctx, &released, item.Version)
	if err != nil {
		return nil, fmt.Errorf("release %s: %w", key, err)
	}

	if holder != "" {
		if err := a.gw.DeleteAssignment(ctx, holder, key); err != nil {
			a.logger.Warn("could not remove assignment record on release", "item", key, "reviewer", holder, "error", err)
		}
	}

	a.metrics.Inc(metrics.CounterReleases, 1)
	a.publish(events.TypeReleased, out, holder)
	return out, nil
}

// Transition moves an item to a new lifecycle state.
//
// approved and deleted are terminal for the assignment: the holder is
// cleared and their assignment record removed. skipped keeps both, so the
// skipper stays recorded and sampling keeps the item away from them while
// offering it to everyone else. draft reopens the item.
func (a *Allocator) Transition(ctx context.Context, key string, to models.Status, reviewer string) (*models.WorkItem, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("unknown status %q", to)
	}

	item, err := a.gw.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	holder := item.AssignedReviewer()
	now := a.now().UTC()

	next := *item
	next.Status = to

	switch to {
	case models.StatusApproved:
		next.AssignedTo = nil
		next.AssignedAt = nil
		next.ReviewedAt = &now
	case models.StatusDeleted:
		next.AssignedTo = nil
		next.AssignedAt = nil
	case models.StatusSkipped:
		if reviewer != "" {
			next.AssignedTo = &reviewer
			if next.AssignedAt == nil {
				next.AssignedAt = &now
			}
		}
	case models.StatusDraft:
		// Reopening keeps whatever holder the item has.
	}

	out, err := a.gw.ConditionalWrite(ctx, &next, item.Version)
	if err != nil {
		return nil, fmt.Errorf("transition %s to %s: %w", key, to, err)
	}

	if (to == models.StatusApproved || to == models.StatusDeleted) && holder != "" {
		if err := a.gw.DeleteAssignment(ctx, holder, key); err != nil {
			a.logger.Warn("could not remove assignment record on transition",
				"item", key, "status", to, "reviewer", holder, "error", err)
		}
	}

	a.publish(transitionEvent(to), out, reviewer)
	return out, nil
}

func transitionEvent(to models.Status) events.Type {
	switch to {
	case models.StatusApproved:
		return events.TypeApproved
	case models.StatusDeleted:
		return events.TypeDeleted
	case models.StatusSkipped:
		return events.TypeSkipped
	default:
		return events.TypeReleased
	}
}
