// Package bus fans conversation events out to operator consoles and customer widgets.
package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
	"github.com/capitalize-ai/concierge-router/pkg/metrics"
)

// Kind says who is on the other end of a connection.
type Kind string

const (
	KindOperator Kind = "operator"
	KindCustomer Kind = "customer"
)

const sendBuffer = 64

// Client is one realtime subscriber. Customers are bound to a single conversation.
type Client struct {
	kind           Kind
	id             string
	conversationID string
	send           chan []byte

	// guarded by Hub.mu
	rooms  map[string]struct{}
	closed bool
}

// NewClient creates an unregistered client.
func NewClient(kind Kind, id, conversationID string) *Client {
	return &Client{
		kind:           kind,
		id:             id,
		conversationID: conversationID,
		send:           make(chan []byte, sendBuffer),
		rooms:          make(map[string]struct{}),
	}
}

// Send is the client's outbound frame queue. It is closed when the hub drops the client.
func (c *Client) Send() <-chan []byte { return c.send }

// Kind returns the client kind.
func (c *Client) Kind() Kind { return c.kind }

// Hub routes events to rooms keyed by conversation id.
type Hub struct {
	mu        sync.RWMutex
	operators map[*Client]struct{}
	rooms     map[string]map[*Client]struct{}
	log       *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		operators: make(map[*Client]struct{}),
		rooms:     make(map[string]map[*Client]struct{}),
		log:       log.Named("bus"),
	}
}

// Register attaches a client. Customers join their own room immediately.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch c.kind {
	case KindOperator:
		h.operators[c] = struct{}{}
	case KindCustomer:
		h.joinLocked(c, c.conversationID)
	}
	metrics.WebsocketConnectionsActive.WithLabelValues(string(c.kind)).Inc()
}

// Unregister detaches a client and closes its queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	delete(h.operators, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
	metrics.WebsocketConnectionsActive.WithLabelValues(string(c.kind)).Dec()
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish delivers a server event to its audience.
func (h *Hub) Publish(_ context.Context, e model.ServerEvent) {
	payload, err := model.EncodeEvent(e)
	if err != nil {
		h.log.Error("failed to encode event", zap.String("event", string(e.Name())), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch ev := e.(type) {
	case model.NewMessageEvent:
		h.toRoomLocked(ev.ConversationID, nil, payload)
	case model.NewConversationEvent:
		h.toOperatorsLocked(payload)
	case model.ConversationUpdatedEvent:
		h.toOperatorsLocked(payload)
		h.toCustomersLocked(ev.ConversationID, payload)
	case model.TypingEvent:
		h.toRoomLocked(ev.ConversationID, nil, payload)
	}
}

// Handle applies a frame received from c.
func (h *Hub) Handle(c *Client, ev model.ClientEvent) {
	switch ev.Name {
	case model.EventJoinConversation, model.EventLeaveConversation:
		if c.kind != KindOperator {
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		if c.closed {
			return
		}
		if ev.Name == model.EventJoinConversation {
			h.joinLocked(c, ev.ConversationID)
		} else {
			h.leaveLocked(c, ev.ConversationID)
		}

	case model.EventTypingStart, model.EventTypingStop:
		typing := model.TypingEvent{
			ConversationID: ev.ConversationID,
			From:           string(c.kind),
			Stopped:        ev.Name == model.EventTypingStop,
		}
		payload, err := model.EncodeEvent(typing)
		if err != nil {
			return
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		if _, member := c.rooms[ev.ConversationID]; !member {
			return
		}
		h.toRoomLocked(ev.ConversationID, c, payload)
	}
}

func (h *Hub) toRoomLocked(room string, except *Client, payload []byte) {
	for c := range h.rooms[room] {
		if c != except {
			h.deliverLocked(c, payload)
		}
	}
}

func (h *Hub) toOperatorsLocked(payload []byte) {
	for c := range h.operators {
		h.deliverLocked(c, payload)
	}
}

func (h *Hub) toCustomersLocked(room string, payload []byte) {
	for c := range h.rooms[room] {
		if c.kind == KindCustomer {
			h.deliverLocked(c, payload)
		}
	}
}

// deliverLocked never blocks; a client that cannot keep up is dropped.
func (h *Hub) deliverLocked(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.log.Warn("dropping slow realtime client", zap.String("kind", string(c.kind)), zap.String("id", c.id))
		metrics.BusDropped.Inc()
		h.dropLocked(c)
	}
}

// Stats reports connected operators and open rooms.
func (h *Hub) Stats() (operators, rooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.operators), len(h.rooms)
}
