package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHubBroadcast(t *testing.T) {
	hub := testHub(t)

	a := &Client{hub: hub, send: make(chan []byte, sendBufferSize)}
	b := &Client{hub: hub, send: make(chan []byte, sendBufferSize)}
	hub.register <- a
	hub.register <- b

	hub.Publish(Event{
		Type:     TypeClaimed,
		Dataset:  "qa-medical",
		Bucket:   "b0",
		ItemID:   "item-1",
		Reviewer: "alice",
		At:       time.Now().UTC(),
	})

	for _, client := range []*Client{a, b} {
		select {
		case payload := <-client.send:
			var ev Event
			require.NoError(t, json.Unmarshal(payload, &ev))
			assert.Equal(t, TypeClaimed, ev.Type)
			assert.Equal(t, "alice", ev.Reviewer)
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestHubDisconnectsSaturatedSubscriber(t *testing.T) {
	hub := testHub(t)

	// No buffer at all: the first broadcast cannot be delivered.
	slow := &Client{hub: hub, send: make(chan []byte)}
	hub.register <- slow

	hub.Publish(Event{Type: TypeReleased, ItemID: "item-1"})

	select {
	case _, ok := <-slow.send:
		assert.False(t, ok, "saturated subscriber channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not disconnect saturated subscriber")
	}
}

func TestHubUnregister(t *testing.T) {
	hub := testHub(t)

	c := &Client{hub: hub, send: make(chan []byte, sendBufferSize)}
	hub.register <- c
	hub.unregister <- c

	_, ok := <-c.send
	assert.False(t, ok, "unregister closes the send channel")
}
