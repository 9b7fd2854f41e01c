package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventName discriminates realtime frames.
type EventName string

const (
	EventNewMessage          EventName = "new_message"
	EventNewConversation     EventName = "new_conversation"
	EventConversationUpdated EventName = "conversation_updated"
	EventJoinConversation    EventName = "join_conversation"
	EventLeaveConversation   EventName = "leave_conversation"
	EventTypingStart         EventName = "typing_start"
	EventTypingStop          EventName = "typing_stop"
)

// Envelope is the wire form of every realtime frame.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is a frame sent from the server to consoles and widgets.
type ServerEvent interface {
	Name() EventName
	serverEvent()
}

// NewMessageEvent announces a persisted message.
type NewMessageEvent struct {
	ConversationID string   `json:"conversationId"`
	Message        *Message `json:"message"`
}

// NewConversationEvent announces a conversation's first customer message. Operators only.
type NewConversationEvent struct {
	Conversation *Conversation `json:"conversation"`
}

// ConversationUpdatedEvent carries changed labels of a conversation.
type ConversationUpdatedEvent struct {
	ConversationID string  `json:"conversationId"`
	Mode           *Mode   `json:"mode,omitempty"`
	Status         *Status `json:"status,omitempty"`
}

// TypingEvent is relayed between members of a conversation room and never persisted.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	From           string `json:"from"`
	Stopped        bool   `json:"-"`
}

func (NewMessageEvent) Name() EventName          { return EventNewMessage }
func (NewConversationEvent) Name() EventName     { return EventNewConversation }
func (ConversationUpdatedEvent) Name() EventName { return EventConversationUpdated }

func (e TypingEvent) Name() EventName {
	if e.Stopped {
		return EventTypingStop
	}
	return EventTypingStart
}

func (NewMessageEvent) serverEvent()          {}
func (NewConversationEvent) serverEvent()     {}
func (ConversationUpdatedEvent) serverEvent() {}
func (TypingEvent) serverEvent()              {}

// EncodeEvent marshals a server event into its envelope.
func EncodeEvent(e ServerEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", e.Name(), err)
	}
	return json.Marshal(Envelope{Event: e.Name(), Data: data})
}

// ClientEvent is a frame sent by a console or widget.
type ClientEvent struct {
	Name           EventName
	ConversationID string
}

// ErrUnknownEvent is returned for frames outside the client vocabulary.
var ErrUnknownEvent = errors.New("unknown event")

// DecodeClientEvent parses a client frame, rejecting unknown names and missing ids.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientEvent{}, fmt.Errorf("invalid frame: %w", err)
	}

	switch env.Event {
	case EventJoinConversation, EventLeaveConversation, EventTypingStart, EventTypingStop:
	default:
		return ClientEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	var payload struct {
		ConversationID string `json:"conversationId"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return ClientEvent{}, fmt.Errorf("invalid %s payload: %w", env.Event, err)
		}
	}
	if payload.ConversationID == "" {
		return ClientEvent{}, fmt.Errorf("%s requires conversationId", env.Event)
	}

	return ClientEvent{Name: env.Event, ConversationID: payload.ConversationID}, nil
}
