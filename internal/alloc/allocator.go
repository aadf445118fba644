package alloc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/tberndt/labelq/internal/events"
	"github.com/tberndt/labelq/internal/metrics"
	"github.com/tberndt/labelq/internal/models"
	"github.com/tberndt/labelq/internal/store"
)

// Roles that may force-claim items held by another reviewer.
const (
	RoleAdmin    = "admin"
	RoleTeamLead = "team-lead"
)

// ErrPermission indicates the caller lacks the role an operation requires.
var ErrPermission = errors.New("permission denied")

// PermissionError reports a force claim attempted without the required role.
type PermissionError struct {
	Reviewer string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("reviewer %s: force claim requires the %s or %s role", e.Reviewer, RoleAdmin, RoleTeamLead)
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

// Gateway is the slice of the store gateway the allocation engine consumes.
// *store.Gateway satisfies it.
type Gateway interface {
	Get(ctx context.Context, key string) (*models.WorkItem, error)
	AssignedTo(ctx context.Context, reviewer string, limit int) ([]models.WorkItem, error)
	Unassigned(ctx context.Context, q store.UnassignedQuery) ([]models.WorkItem, error)
	ConditionalWrite(ctx context.Context, item *models.WorkItem, expectedVersion string) (*models.WorkItem, error)
	CreateAssignment(ctx context.Context, rec *models.AssignmentRecord) error
	DeleteAssignment(ctx context.Context, reviewer, itemKey string) error
}

// Publisher receives assignment lifecycle events.
type Publisher interface {
	Publish(ev events.Event)
}

// Config tunes the allocation engine.
type Config struct {
	// Weights are the per-group sampling weights. A group name is a dataset
	// prefix. Empty means unweighted sampling over the global pool.
	Weights map[string]int
	// PerGroupCap bounds any single group's candidate fetch. Default 100.
	PerGroupCap int
	// RetryPasses is how many extra sampling rounds a batch self-assign may
	// run to compensate for claims lost to concurrent reviewers. Default 1.
	RetryPasses int
	// Now supplies timestamps; nil means time.Now. Injected by tests.
	Now func() time.Time
	// Seed seeds candidate shuffling; zero means time-based.
	Seed int64
}

type groupWeight struct {
	name   string
	weight int
}

// Allocator is the work-allocation engine. It owns the sampling and claim
// flows; all persistence goes through the Gateway so every mutation stays a
// version-guarded conditional write.
type Allocator struct {
	gw          Gateway
	weights     []groupWeight // descending weight, name ascending on ties
	perGroupCap int
	retryPasses int
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Collector
	events      Publisher

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// New builds an Allocator. collector and publisher may be nil.
func New(gw Gateway, cfg Config, logger *slog.Logger, collector *metrics.Collector, publisher Publisher) *Allocator {
	if cfg.PerGroupCap <= 0 {
		cfg.PerGroupCap = 100
	}
	if cfg.RetryPasses < 0 {
		cfg.RetryPasses = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}

	weights := make([]groupWeight, 0, len(cfg.Weights))
	for name, w := range cfg.Weights {
		if w > 0 {
			weights = append(weights, groupWeight{name: name, weight: w})
		}
	}
	sort.Slice(weights, func(i, j int) bool {
		if weights[i].weight != weights[j].weight {
			return weights[i].weight > weights[j].weight
		}
		return weights[i].name < weights[j].name
	})

	return &Allocator{
		gw:          gw,
		weights:     weights,
		perGroupCap: cfg.PerGroupCap,
		retryPasses: cfg.RetryPasses,
		now:         cfg.Now,
		logger:      logger,
		metrics:     collector,
		events:      publisher,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Metrics returns the engine's collector for stats endpoints.
func (a *Allocator) Metrics() *metrics.Collector {
	return a.metrics
}

func (a *Allocator) shuffle(items []models.WorkItem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

func (a *Allocator) publish(t events.Type, item *models.WorkItem, reviewer string) {
	if a.events == nil {
		return
	}
	a.events.Publish(events.Event{
		Type:     t,
		Dataset:  item.Dataset,
		Bucket:   item.Bucket,
		ItemID:   item.ItemID,
		Reviewer: reviewer,
		At:       a.now().UTC(),
	})
}

func canForce(roles []string) bool {
	for _, r := range roles {
		if r == RoleAdmin || r == RoleTeamLead {
			return true
		}
	}
	return false
}
