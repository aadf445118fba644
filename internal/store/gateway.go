package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/tberndt/labelq/internal/models"
)

// Profile names a query strategy.
type Profile string

const (
	// ProfileCapable pushes filtering, sorting and pagination to the store.
	ProfileCapable Profile = "capable"
	// ProfileLimited fetches bounded supersets and evaluates in memory.
	ProfileLimited Profile = "limited"
)

// Options configures a Gateway.
type Options struct {
	// Profile pins the query strategy. Empty means probe at construction.
	Profile Profile
	// FetchCap bounds limited-path superset fetches. Default 500.
	FetchCap int
	// Timeout applies to every store call. Default 10s.
	Timeout time.Duration
	Retry   RetryPolicy
	Logger  *slog.Logger
}

// Gateway owns the only write path to WorkItem and AssignmentRecord and
// serves all backlog queries. Every mutation is a conditional write keyed
// by the item's version token; the store-side version guard is the sole
// serialization point for concurrent claimers.
type Gateway struct {
	client  *Client
	q       querier
	profile Profile
	retry   RetryPolicy
	timeout time.Duration
	logger  *slog.Logger
}

// NewGateway wraps client with a query strategy. When opts.Profile is empty
// a probe query decides: if the store rejects the capable path's feature
// set, the limited strategy is selected for the lifetime of the process.
func NewGateway(ctx context.Context, client *Client, opts Options) (*Gateway, error) {
	if opts.FetchCap <= 0 {
		opts.FetchCap = 500
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	g := &Gateway{
		client:  client,
		retry:   opts.Retry,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}

	profile := opts.Profile
	if profile == "" {
		profile = g.probeCapabilities(ctx)
	}
	switch profile {
	case ProfileLimited:
		g.q = &limitedQuerier{client: client, fetchCap: opts.FetchCap, logger: opts.Logger}
	case ProfileCapable:
		g.q = &capableQuerier{client: client}
	default:
		return nil, fmt.Errorf("unknown store profile %q", profile)
	}
	g.profile = profile
	g.logger.Info("store gateway ready", "profile", profile)
	return g, nil
}

// Profile returns the selected query strategy.
func (g *Gateway) Profile() Profile {
	return g.profile
}

// probeCapabilities runs one query exercising the capable path's features.
// A query error selects the limited path; connection-level faults do not
// (the deployment is then assumed capable and transient faults surface
// later through the retry policy).
func (g *Gateway) probeCapabilities(ctx context.Context) Profile {
	pctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	_, err := surrealdb.Query[any](pctx, g.client.db, capabilityProbeSQL, nil)
	if err != nil {
		if isTransient(err) {
			g.logger.Warn("capability probe hit a transient fault, assuming capable store", "error", err)
			return ProfileCapable
		}
		g.logger.Info("capability probe rejected, using limited query path", "error", err)
		return ProfileLimited
	}
	return ProfileCapable
}

// Get reads one item by key. Returns a NotFoundError when it does not exist.
func (g *Gateway) Get(ctx context.Context, key string) (*models.WorkItem, error) {
	var out *models.WorkItem
	err := g.withRetry(ctx, "get", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		item, err := g.get(cctx, key)
		if err != nil {
			return err
		}
		out = item
		return nil
	})
	return out, err
}

func (g *Gateway) get(ctx context.Context, key string) (*models.WorkItem, error) {
	results, err := surrealdb.Query[[]models.WorkItem](ctx, g.client.db,
		`SELECT * FROM type::record("work_item", $id)`,
		map[string]any{"id": key})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	rows := firstResult(results)
	if len(rows) == 0 {
		return nil, &NotFoundError{Key: key}
	}
	return &rows[0], nil
}

// List serves the filtered/sorted/paginated backlog view. On the limited
// path a CapacityError may accompany a partial result.
func (g *Gateway) List(ctx context.Context, f Filters, s Sort, p Page) ([]models.WorkItem, PageInfo, error) {
	var (
		items []models.WorkItem
		info  PageInfo
	)
	err := g.withRetry(ctx, "list", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		var qerr error
		items, info, qerr = g.q.List(cctx, f, s, p)
		return qerr
	})
	return items, info, err
}

// Unassigned returns sampling candidates for a reviewer.
func (g *Gateway) Unassigned(ctx context.Context, q UnassignedQuery) ([]models.WorkItem, error) {
	var items []models.WorkItem
	err := g.withRetry(ctx, "unassigned", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		var qerr error
		items, qerr = g.q.Unassigned(cctx, q)
		return qerr
	})
	return items, err
}

// AssignedTo returns the drafts currently held by reviewer. Equality
// predicates only, so it runs server-side on both profiles.
func (g *Gateway) AssignedTo(ctx context.Context, reviewer string, limit int) ([]models.WorkItem, error) {
	var items []models.WorkItem
	err := g.withRetry(ctx, "assigned_to", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		results, err := surrealdb.Query[[]models.WorkItem](cctx, g.client.db,
			`SELECT * FROM work_item WHERE assigned_to = $reviewer AND status = "draft" LIMIT $limit`,
			map[string]any{"reviewer": reviewer, "limit": limit})
		if err != nil {
			return fmt.Errorf("query assigned: %w", err)
		}
		items = firstResult(results)
		return nil
	})
	return items, err
}

// CreateItem inserts a new backlog item and stamps its first version token.
func (g *Gateway) CreateItem(ctx context.Context, item *models.WorkItem) (*models.WorkItem, error) {
	item.Version = uuid.NewString()
	item.TotalReferenceCount = item.TotalReferences()

	var out *models.WorkItem
	err := g.withRetry(ctx, "create_item", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		results, err := surrealdb.Query[[]models.WorkItem](cctx, g.client.db, `
			CREATE type::record("work_item", $id) SET
				item_id = $item_id,
				dataset = $dataset,
				bucket = $bucket,
				status = $status,
				assigned_to = $assigned_to,
				assigned_at = $assigned_at,
				question = $question,
				answer = $answer,
				tags = $tags,
				references = $references,
				turns = $turns,
				total_reference_count = $total_reference_count,
				version = $version,
				updated_at = time::now(),
				reviewed_at = $reviewed_at
			RETURN AFTER
		`, itemVars(item))
		if err != nil {
			return fmt.Errorf("create item: %w", err)
		}
		rows := firstResult(results)
		if len(rows) == 0 {
			return fmt.Errorf("create item: no result returned")
		}
		out = &rows[0]
		return nil
	})
	return out, err
}

// ConditionalWrite persists item only if the stored version still equals
// expectedVersion, rotating the token on success. A lost race yields a
// ConflictError carrying the live holder; the gateway never retries a
// conflicting business update. A timed-out write is an unknown outcome: the
// item is re-read to determine whether the write actually applied before
// the fault is treated as retryable.
func (g *Gateway) ConditionalWrite(ctx context.Context, item *models.WorkItem, expectedVersion string) (*models.WorkItem, error) {
	newVersion := uuid.NewString()
	item.TotalReferenceCount = item.TotalReferences()

	vars := itemVars(item)
	vars["version"] = newVersion
	vars["expected_version"] = expectedVersion

	var out *models.WorkItem
	err := g.withRetry(ctx, "conditional_write", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		results, err := surrealdb.Query[[]models.WorkItem](cctx, g.client.db, `
			UPDATE type::record("work_item", $id) SET
				status = $status,
				assigned_to = $assigned_to,
				assigned_at = $assigned_at,
				question = $question,
				answer = $answer,
				tags = $tags,
				references = $references,
				turns = $turns,
				total_reference_count = $total_reference_count,
				version = $version,
				updated_at = time::now(),
				reviewed_at = $reviewed_at
			WHERE version = $expected_version
			RETURN AFTER
		`, vars)
		if err != nil {
			if isUnknownOutcome(err) {
				if applied := g.resolveUnknownOutcome(item.Key(), newVersion); applied != nil {
					out = applied
					return nil
				}
			}
			return &TransientError{Op: "conditional write", Err: err}
		}

		rows := firstResult(results)
		if len(rows) == 0 {
			applied, missErr := g.classifyWriteMiss(cctx, item.Key(), newVersion)
			if missErr != nil {
				return missErr
			}
			out = applied
			return nil
		}
		out = &rows[0]
		return nil
	})
	return out, err
}

// classifyWriteMiss distinguishes a vanished item, a lost version race, and
// a retried write whose earlier attempt already applied (the stored version
// then equals the token this write generated).
func (g *Gateway) classifyWriteMiss(ctx context.Context, key, wroteVersion string) (*models.WorkItem, error) {
	current, err := g.get(ctx, key)
	if err != nil {
		return nil, err
	}
	return writeOutcome(current, wroteVersion)
}

// resolveUnknownOutcome re-reads an item after a timed-out write with a
// fresh deadline. If the stored version matches the token generated for the
// write, the write applied and the re-read item is the result.
func (g *Gateway) resolveUnknownOutcome(key, wroteVersion string) *models.WorkItem {
	rctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	current, err := g.get(rctx, key)
	if err != nil {
		g.logger.Warn("could not resolve write outcome after timeout", "item", key, "error", err)
		return nil
	}
	applied, err := writeOutcome(current, wroteVersion)
	if err != nil {
		return nil
	}
	g.logger.Info("timed-out write actually applied", "item", key)
	return applied
}

// writeOutcome decides what an ambiguous conditional-write result means from
// the re-read state of the item. A stored version equal to the token
// generated for the write means the write applied; anything else is a lost
// race and reports the live holder.
func writeOutcome(current *models.WorkItem, wroteVersion string) (*models.WorkItem, error) {
	if current.Version == wroteVersion {
		return current, nil
	}
	return nil, &ConflictError{
		Key:           current.Key(),
		Holder:        current.AssignedReviewer(),
		HolderSince:   current.AssignedAt,
		StoredVersion: current.Version,
	}
}

// CreateAssignment upserts the materialized-view entry for (reviewer, item).
func (g *Gateway) CreateAssignment(ctx context.Context, rec *models.AssignmentRecord) error {
	return g.withRetry(ctx, "create_assignment", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		_, err := surrealdb.Query[any](cctx, g.client.db, `
			UPSERT type::record("assignment", $id) SET
				reviewer = $reviewer,
				dataset = $dataset,
				bucket = $bucket,
				item_id = $item_id,
				assigned_at = $assigned_at
		`, map[string]any{
			"id":          rec.Key(),
			"reviewer":    rec.Reviewer,
			"dataset":     rec.Dataset,
			"bucket":      rec.Bucket,
			"item_id":     rec.ItemID,
			"assigned_at": rec.AssignedAt,
		})
		if err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		return nil
	})
}

// DeleteAssignment removes the view entry. Deleting a missing record is not
// an error; the view is eventually consistent by design.
func (g *Gateway) DeleteAssignment(ctx context.Context, reviewer, itemKey string) error {
	return g.withRetry(ctx, "delete_assignment", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		_, err := surrealdb.Query[any](cctx, g.client.db,
			`DELETE type::record("assignment", $id)`,
			map[string]any{"id": models.AssignmentKey(reviewer, itemKey)})
		if err != nil {
			return fmt.Errorf("delete assignment: %w", err)
		}
		return nil
	})
}

// GetAssignment reads one view entry.
func (g *Gateway) GetAssignment(ctx context.Context, reviewer, itemKey string) (*models.AssignmentRecord, error) {
	var out *models.AssignmentRecord
	err := g.withRetry(ctx, "get_assignment", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		results, err := surrealdb.Query[[]models.AssignmentRecord](cctx, g.client.db,
			`SELECT * FROM type::record("assignment", $id)`,
			map[string]any{"id": models.AssignmentKey(reviewer, itemKey)})
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		rows := firstResult(results)
		if len(rows) == 0 {
			return &NotFoundError{Key: models.AssignmentKey(reviewer, itemKey)}
		}
		out = &rows[0]
		return nil
	})
	return out, err
}

// ListAssignments returns a reviewer's view entries.
func (g *Gateway) ListAssignments(ctx context.Context, reviewer string) ([]models.AssignmentRecord, error) {
	var out []models.AssignmentRecord
	err := g.withRetry(ctx, "list_assignments", func() error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		results, err := surrealdb.Query[[]models.AssignmentRecord](cctx, g.client.db,
			`SELECT * FROM assignment WHERE reviewer = $reviewer`,
			map[string]any{"reviewer": reviewer})
		if err != nil {
			return fmt.Errorf("list assignments: %w", err)
		}
		out = firstResult(results)
		return nil
	})
	return out, err
}

// itemVars binds a WorkItem's fields for CREATE/UPDATE statements.
func itemVars(item *models.WorkItem) map[string]any {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	references := item.References
	if references == nil {
		references = []models.Reference{}
	}
	turns := item.Turns
	if turns == nil {
		turns = []models.Turn{}
	}

	return map[string]any{
		"id":                    item.Key(),
		"item_id":               item.ItemID,
		"dataset":               item.Dataset,
		"bucket":                item.Bucket,
		"status":                string(item.Status),
		"assigned_to":           item.AssignedTo,
		"assigned_at":           item.AssignedAt,
		"question":              item.Question,
		"answer":                item.Answer,
		"tags":                  tags,
		"references":            references,
		"turns":                 turns,
		"total_reference_count": item.TotalReferenceCount,
		"version":               item.Version,
		"reviewed_at":           item.ReviewedAt,
	}
}
