package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/google/uuid"
)

// EventHub fans emitted events out to live subscribers. Each event is
// delivered to the room of its aggregate ("wager:<request id>",
// "player:<address>", "bankroll:<token>", ...). Slow subscribers drop
// messages rather than block emitters.
type EventHub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Subscriber // room -> subscriber id -> subscriber
	buffer int
	logger *slog.Logger
}

// Subscriber is one live stream.
type Subscriber struct {
	ID   string
	Room string
	Send chan []byte
}

// HubMessage is the payload written to subscribers.
type HubMessage struct {
	Event      domain.EventType `json:"event"`
	Aggregate  string           `json:"aggregate"`
	OccurredAt string           `json:"occurred_at"`
	Data       json.RawMessage  `json:"data"`
}

// NewEventHub creates a hub whose subscribers buffer up to buffer messages.
func NewEventHub(buffer int, logger *slog.Logger) *EventHub {
	if buffer <= 0 {
		buffer = 16
	}
	return &EventHub{
		rooms:  make(map[string]map[string]*Subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// Room names the room an aggregate's events go to.
func Room(aggregate domain.AggregateType, id string) string {
	return string(aggregate) + ":" + id
}

// Subscribe joins room and returns the subscriber.
func (h *EventHub) Subscribe(room string) *Subscriber {
	sub := &Subscriber{ID: uuid.NewString(), Room: room, Send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Subscriber)
	}
	h.rooms[room][sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *EventHub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[sub.Room]
	if !ok {
		return
	}
	if _, ok := subs[sub.ID]; !ok {
		return
	}
	delete(subs, sub.ID)
	close(sub.Send)
	if len(subs) == 0 {
		delete(h.rooms, sub.Room)
	}
}

// Emit implements domain.EventSink.
func (h *EventHub) Emit(_ context.Context, draft domain.OutboxDraft) error {
	room := Room(draft.AggregateType, draft.AggregateID)
	payload, err := json.Marshal(HubMessage{
		Event:      draft.EventType,
		Aggregate:  room,
		OccurredAt: draft.OccurredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Data:       draft.Payload,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.rooms[room] {
		select {
		case sub.Send <- payload:
		default:
			h.logger.Warn("event hub buffer full", "subscriber", sub.ID, "room", room)
		}
	}
	return nil
}

// SubscriberCount returns the total number of live subscribers.
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, subs := range h.rooms {
		count += len(subs)
	}
	return count
}

// Shutdown closes every subscriber.
func (h *EventHub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, subs := range h.rooms {
		for _, sub := range subs {
			close(sub.Send)
		}
		delete(h.rooms, room)
	}
}
