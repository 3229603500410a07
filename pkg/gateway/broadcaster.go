package gateway

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// EventBroadcaster pushes events to the websocket clients of a session
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     uint64
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Broadcast sends an event to every connected client
func (b *EventBroadcaster) Broadcast(event string, data interface{}) {
	b.deliver(b.clients.GetAll(), b.newEvent(event, data))
}

// BroadcastToSession sends an event to the clients of sessionID, skipping
// the client with id skipClientID when it is not empty.
func (b *EventBroadcaster) BroadcastToSession(sessionID, skipClientID, event string, data interface{}) {
	clients := b.clients.GetBySession(sessionID)
	if skipClientID != "" {
		filtered := clients[:0]
		for _, c := range clients {
			if c.ID != skipClientID {
				filtered = append(filtered, c)
			}
		}
		clients = filtered
	}
	b.deliver(clients, b.newEvent(event, data))
}

func (b *EventBroadcaster) newEvent(event string, data interface{}) EventMessage {
	return EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       b.nextSeq(),
	}
}

func (b *EventBroadcaster) deliver(clients []*Client, msg EventMessage) {
	if len(clients) == 0 {
		b.logger.Debug().
			Str("event", msg.Event).
			Int64("seq", msg.Seq).
			Msg("No clients to broadcast to")
		return
	}

	successCount := 0
	failureCount := 0

	for _, client := range clients {
		if err := client.WriteJSON(msg); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", msg.Event).
				Int64("seq", msg.Seq).
				Msg("Failed to broadcast to client")
			failureCount++
		} else {
			successCount++
		}
	}

	b.logger.Debug().
		Str("event", msg.Event).
		Int64("seq", msg.Seq).
		Int("success", successCount).
		Int("failed", failureCount).
		Msg("Event broadcast complete")
}

func (b *EventBroadcaster) nextSeq() int64 {
	return int64(atomic.AddUint64(&b.seq, 1))
}
