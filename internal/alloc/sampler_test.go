package alloc

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAllocator(gw Gateway, cfg Config) *Allocator {
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	return New(gw, cfg, slog.Default(), nil, nil)
}

func seedBacklog(fake *fakeGateway, dataset string, n int) {
	for i := 0; i < n; i++ {
		fake.addDraft(dataset, "b0", fmt.Sprintf("%s-%03d", dataset, i))
	}
}

func TestSampleWeightedDistribution(t *testing.T) {
	fake := newFakeGateway()
	seedBacklog(fake, "medical", 30)
	seedBacklog(fake, "legal", 30)
	seedBacklog(fake, "finance", 30)

	a := testAllocator(fake, Config{
		Weights: map[string]int{"medical": 50, "legal": 25, "finance": 25},
	})

	picked, err := a.Sample(context.Background(), "alice", 20, nil)
	require.NoError(t, err)
	require.Len(t, picked, 20)

	counts := map[string]int{}
	for _, item := range picked {
		counts[item.Dataset]++
	}
	assert.Equal(t, 10, counts["medical"])
	assert.Equal(t, 5, counts["legal"])
	assert.Equal(t, 5, counts["finance"])
}

func TestSampleInterleavesGroups(t *testing.T) {
	fake := newFakeGateway()
	seedBacklog(fake, "medical", 30)
	seedBacklog(fake, "legal", 30)

	a := testAllocator(fake, Config{
		Weights: map[string]int{"medical": 1, "legal": 1},
	})

	picked, err := a.Sample(context.Background(), "alice", 10, nil)
	require.NoError(t, err)
	require.Len(t, picked, 10)

	// Equal weights, round-robin: datasets must alternate rather than one
	// group filling the head of the list.
	for i := 1; i < len(picked); i++ {
		assert.NotEqual(t, picked[i].Dataset, picked[i-1].Dataset,
			"position %d repeats dataset %s", i, picked[i].Dataset)
	}
}

func TestSampleSeedsOwnedItemsFirst(t *testing.T) {
	fake := newFakeGateway()
	seedBacklog(fake, "medical", 10)
	held := fake.addDraft("medical", "b1", "held-by-alice")
	fake.steal(held.Key(), "alice")

	a := testAllocator(fake, Config{})

	picked, err := a.Sample(context.Background(), "alice", 5, nil)
	require.NoError(t, err)
	require.Len(t, picked, 5)

	assert.Equal(t, held.Key(), picked[0].Key(), "resumed items come first")
	for _, item := range picked[1:] {
		assert.Nil(t, item.AssignedTo)
	}
}

func TestSampleShortfallFallsBackToGlobalPool(t *testing.T) {
	fake := newFakeGateway()
	seedBacklog(fake, "medical", 2)
	seedBacklog(fake, "legal", 20)

	// All weight on a group with only 2 items in supply.
	a := testAllocator(fake, Config{
		Weights: map[string]int{"medical": 100},
	})

	picked, err := a.Sample(context.Background(), "alice", 10, nil)
	require.NoError(t, err)
	require.Len(t, picked, 10, "global tail tops up the starved quota")

	counts := map[string]int{}
	for _, item := range picked {
		counts[item.Dataset]++
	}
	assert.Equal(t, 2, counts["medical"])
	assert.Equal(t, 8, counts["legal"])
}

func TestSampleGroupPrefixSubGrouping(t *testing.T) {
	fake := newFakeGateway()
	seedBacklog(fake, "qa-medical", 10)
	seedBacklog(fake, "qa-legal", 10)
	seedBacklog(fake, "chat-support", 10)

	// A group name is a dataset prefix, so "qa-" spans both qa datasets.
	a := testAllocator(fake, Config{
		Weights: map[string]int{"qa-": 1},
	})

	picked, err := a.Sample(context.Background(), "alice", 6, nil)
	require.NoError(t, err)
	require.Len(t, picked, 6)
	for _, item := range picked {
		assert.Contains(t, []string{"qa-medical", "qa-legal"}, item.Dataset)
	}
}

func TestSampleHonorsExcludeSet(t *testing.T) {
	fake := newFakeGateway()
	seedBacklog(fake, "medical", 6)

	a := testAllocator(fake, Config{})

	first, err := a.Sample(context.Background(), "alice", 3, nil)
	require.NoError(t, err)
	require.Len(t, first, 3)

	exclude := map[string]bool{}
	for _, item := range first {
		exclude[item.Key()] = true
	}

	second, err := a.Sample(context.Background(), "alice", 3, exclude)
	require.NoError(t, err)
	require.Len(t, second, 3)
	for _, item := range second {
		assert.False(t, exclude[item.Key()], "excluded key %s proposed again", item.Key())
	}
}

func TestSampleNeverProposesDuplicates(t *testing.T) {
	fake := newFakeGateway()
	seedBacklog(fake, "medical", 15)
	seedBacklog(fake, "legal", 3)

	a := testAllocator(fake, Config{
		Weights: map[string]int{"medical": 1, "legal": 9},
	})

	picked, err := a.Sample(context.Background(), "alice", 12, nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, item := range picked {
		assert.False(t, seen[item.Key()], "duplicate %s", item.Key())
		seen[item.Key()] = true
	}
}

func TestSampleEmptyBacklog(t *testing.T) {
	a := testAllocator(newFakeGateway(), Config{})

	picked, err := a.Sample(context.Background(), "alice", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, picked)
}
