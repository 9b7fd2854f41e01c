// Package model defines data structures for the conversation router.
package model

import (
	"time"
)

// Channel is the transport a conversation arrived on.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelPlatform Channel = "platform"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelWeb || c == ChannelPlatform
}

// Status governs whether a conversation is open for work.
type Status string

const (
	StatusActive   Status = "active"
	StatusClosed   Status = "closed"
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusClosed, StatusArchived:
		return true
	}
	return false
}

// Mode decides who answers inbound customer messages.
type Mode string

const (
	ModeAutomated Mode = "automated"
	ModeHuman     Mode = "human"
	ModeHybrid    Mode = "hybrid"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAutomated, ModeHuman, ModeHybrid:
		return true
	}
	return false
}

// AutoReplies reports whether inbound messages trigger an automated reply attempt.
func (m Mode) AutoReplies() bool {
	return m == ModeAutomated || m == ModeHybrid
}

// Conversation is one customer contact thread.
type Conversation struct {
	ID               string  `json:"id"`
	SessionID        string  `json:"sessionId"`
	ExternalUserID   *string `json:"externalUserId,omitempty"`
	Channel          Channel `json:"channel"`
	CustomerName     string  `json:"customerName"`
	CustomerEmail    string  `json:"customerEmail,omitempty"`
	CustomerPhone    string  `json:"customerPhone,omitempty"`
	Status           Status  `json:"status"`
	Mode             Mode    `json:"mode"`
	AssignedOperator *string `json:"assignedOperator,omitempty"`

	// Counters are only ever adjusted by atomic store updates.
	LastMessageAt     *time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount       int        `json:"unreadCount"`
	TotalMessages     int        `json:"totalMessages"`
	AutomatedMessages int        `json:"automatedMessages"`
	HumanMessages     int        `json:"humanMessages"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationPatch is an operator change to mode, status or assignment.
type ConversationPatch struct {
	Mode             *Mode   `json:"mode,omitempty" validate:"omitempty,oneof=automated human hybrid"`
	Status           *Status `json:"status,omitempty" validate:"omitempty,oneof=active closed archived"`
	AssignedOperator *string `json:"assignedOperator,omitempty" validate:"omitempty,max=128"`
}

// Empty reports whether the patch changes nothing.
func (p ConversationPatch) Empty() bool {
	return p.Mode == nil && p.Status == nil && p.AssignedOperator == nil
}

// ConversationFilter narrows the admin conversation list.
type ConversationFilter struct {
	Status  Status
	Channel Channel
	Search  string
	Limit   int
	Offset  int
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// ConversationDetail is a conversation together with its ordered history.
type ConversationDetail struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
}

// StartChatRequest is the body of POST /chat/start.
type StartChatRequest struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=64"`
}

// StartChatResponse is the result of starting or resuming a web conversation.
type StartChatResponse struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
	IsNew        bool          `json:"isNew"`
}
