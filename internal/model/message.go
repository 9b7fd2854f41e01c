package model

import (
	"time"
)

// Role mirrors the turn semantics of the text-generation backend.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SenderType distinguishes who authored a message.
type SenderType string

const (
	SenderCustomer  SenderType = "customer"
	SenderAutomated SenderType = "automated"
	SenderHuman     SenderType = "human"
)

// Role returns the generation role a sender maps to.
func (s SenderType) Role() Role {
	if s == SenderCustomer {
		return RoleUser
	}
	return RoleAssistant
}

// Message is a single utterance in a conversation.
type Message struct {
	ID                string     `json:"id"`
	ConversationID    string     `json:"conversationId"`
	Role              Role       `json:"role"`
	SenderType        SenderType `json:"senderType"`
	Content           string     `json:"content"`
	IsRead            bool       `json:"isRead"`
	ExternalMessageID *string    `json:"externalMessageId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// SendChatMessageRequest is the body of POST /chat/message.
type SendChatMessageRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=64"`
	Content   string `json:"content" validate:"required,max=4000"`
}

// SendChatMessageResponse carries the saved customer message and the automated reply, if any.
type SendChatMessageResponse struct {
	SavedMessage *Message `json:"savedMessage"`
	AIMessage    *Message `json:"aiMessage,omitempty"`
}

// OperatorMessageRequest is the body of POST /admin/chat/conversations/{id}/messages.
type OperatorMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// InboundResult is the outcome of routing one customer message.
type InboundResult struct {
	SavedMessage   *Message
	AutomatedReply *Message
	Conversation   *Conversation
}

// HumanReplyResult is the outcome of an operator reply.
type HumanReplyResult struct {
	Message       *Message `json:"message"`
	Delivered     bool     `json:"delivered"`
	DeliveryError string   `json:"deliveryError,omitempty"`
}

// ConversationRef identifies the conversation an inbound message belongs to.
// Web messages carry a SessionID; platform messages carry an ExternalUserID.
type ConversationRef struct {
	SessionID      string
	ExternalUserID string

	// FallbackName is used when a platform conversation is created and the
	// profile lookup yields nothing.
	FallbackName string
}

// InboundMessage is a customer utterance translated from any channel.
type InboundMessage struct {
	Ref  ConversationRef
	Text string

	// ExternalID is the channel's idempotency key, if it has one.
	ExternalID string
}
