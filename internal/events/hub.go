// Package events broadcasts assignment lifecycle events to websocket
// subscribers so review dashboards can refresh without polling.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Type is the kind of assignment event.
type Type string

const (
	TypeClaimed  Type = "CLAIMED"
	TypeReleased Type = "RELEASED"
	TypeSkipped  Type = "SKIPPED"
	TypeApproved Type = "APPROVED"
	TypeDeleted  Type = "DELETED"
)

// Event describes one assignment transition.
type Event struct {
	Type     Type      `json:"type"`
	Dataset  string    `json:"dataset"`
	Bucket   string    `json:"bucket"`
	ItemID   string    `json:"item_id"`
	Reviewer string    `json:"reviewer,omitempty"`
	At       time.Time `json:"at"`
}

// Hub fans assignment events out to connected subscribers. Publishing never
// blocks the allocation engine: the broadcast buffer absorbs bursts and
// overflow is dropped with a warning.
type Hub struct {
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
	logger     *slog.Logger
}

// NewHub creates a hub. Call Run before publishing.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Event, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

// Publish queues an event for broadcast. Drops the event when the hub is
// saturated; the feed is advisory, the store stays the source of truth.
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("event hub saturated, dropping event", "type", ev.Type, "item", ev.ItemID)
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshal event", "error", err)
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// A lagging subscriber must not stall the hub.
					h.logger.Warn("subscriber send buffer full, disconnecting")
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}
