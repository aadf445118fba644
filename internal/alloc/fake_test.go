package alloc

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tberndt/labelq/internal/events"
	"github.com/tberndt/labelq/internal/models"
	"github.com/tberndt/labelq/internal/store"
)

// fakeGateway is an in-memory Gateway with the same conditional-write
// semantics as the real store: a mutation applies only when the supplied
// version matches, and losing a race yields a ConflictError naming the
// holder. Candidate queries mirror the eligibility rules of the store's
// query paths.
type fakeGateway struct {
	mu      sync.Mutex
	items   map[string]*models.WorkItem
	records map[string]*models.AssignmentRecord

	// onUnassigned runs after each candidate query returns, outside the
	// lock, so tests can interleave rival mutations between sampling and
	// claiming.
	onUnassigned func(q store.UnassignedQuery, returned []models.WorkItem)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		items:   make(map[string]*models.WorkItem),
		records: make(map[string]*models.AssignmentRecord),
	}
}

func (f *fakeGateway) addDraft(dataset, bucket, itemID string) *models.WorkItem {
	f.mu.Lock()
	defer f.mu.Unlock()

	item := &models.WorkItem{
		ItemID:    itemID,
		Dataset:   dataset,
		Bucket:    bucket,
		Status:    models.StatusDraft,
		Question:  "q-" + itemID,
		Version:   uuid.NewString(),
		UpdatedAt: time.Now().UTC(),
	}
	f.items[item.Key()] = item
	return item
}

// steal assigns an item to a rival out of band, rotating its version.
func (f *fakeGateway) steal(key, rival string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[key]
	if !ok {
		return
	}
	now := time.Now().UTC()
	item.AssignedTo = &rival
	item.AssignedAt = &now
	item.Version = uuid.NewString()
}

func (f *fakeGateway) item(key string) models.WorkItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[key]
}

func (f *fakeGateway) hasRecord(reviewer, itemKey string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[models.AssignmentKey(reviewer, itemKey)]
	return ok
}

func (f *fakeGateway) Get(_ context.Context, key string) (*models.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[key]
	if !ok {
		return nil, &store.NotFoundError{Key: key}
	}
	out := *item
	return &out, nil
}

func (f *fakeGateway) AssignedTo(_ context.Context, reviewer string, limit int) ([]models.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.WorkItem
	for _, key := range f.sortedKeys() {
		item := f.items[key]
		if item.Status == models.StatusDraft && item.AssignedReviewer() == reviewer {
			out = append(out, *item)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeGateway) Unassigned(_ context.Context, q store.UnassignedQuery) ([]models.WorkItem, error) {
	f.mu.Lock()
	var out []models.WorkItem
	for _, key := range f.sortedKeys() {
		item := f.items[key]
		eligible := (item.Status == models.StatusDraft && item.AssignedTo == nil) ||
			(item.Status == models.StatusSkipped && item.AssignedReviewer() != q.Reviewer)
		if !eligible || q.Exclude[key] {
			continue
		}
		if q.GroupPrefix != "" && !strings.HasPrefix(item.Dataset, q.GroupPrefix) {
			continue
		}
		out = append(out, *item)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	f.mu.Unlock()

	if f.onUnassigned != nil {
		f.onUnassigned(q, out)
	}
	return out, nil
}

func (f *fakeGateway) ConditionalWrite(_ context.Context, item *models.WorkItem, expectedVersion string) (*models.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := item.Key()
	current, ok := f.items[key]
	if !ok {
		return nil, &store.NotFoundError{Key: key}
	}
	if current.Version != expectedVersion {
		return nil, &store.ConflictError{
			Key:           key,
			Holder:        current.AssignedReviewer(),
			HolderSince:   current.AssignedAt,
			StoredVersion: current.Version,
		}
	}

	next := *item
	next.Version = uuid.NewString()
	next.TotalReferenceCount = next.TotalReferences()
	next.UpdatedAt = time.Now().UTC()
	f.items[key] = &next

	out := next
	return &out, nil
}

func (f *fakeGateway) CreateAssignment(_ context.Context, rec *models.AssignmentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.records[rec.Key()] = &cp
	return nil
}

func (f *fakeGateway) DeleteAssignment(_ context.Context, reviewer, itemKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, models.AssignmentKey(reviewer, itemKey))
	return nil
}

func (f *fakeGateway) sortedKeys() []string {
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *capturePublisher) byType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
