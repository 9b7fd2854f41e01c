package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// ListConversations returns one page of conversations for the operator console.
func (r *Router) ListConversations(ctx context.Context, f model.ConversationFilter) (*model.ListConversationsResponse, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, model.Invalid("status", "must be one of active, closed, archived")
	}
	if f.Channel != "" && !f.Channel.Valid() {
		return nil, model.Invalid("channel", "must be one of web, platform")
	}
	if f.Offset < 0 {
		return nil, model.Invalid("offset", "must not be negative")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}

	convs, total, err := r.store.ListConversations(ctx, f)
	if err != nil {
		return nil, err
	}
	return &model.ListConversationsResponse{Conversations: convs, Total: total}, nil
}

// GetConversation returns a conversation with its full history. When markRead
// is set the unread counter is reset first.
func (r *Router) GetConversation(ctx context.Context, id string, markRead bool) (*model.ConversationDetail, error) {
	var (
		conv *model.Conversation
		err  error
	)
	if markRead {
		conv, err = r.store.MarkRead(ctx, id)
	} else {
		conv, err = r.store.ConversationByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	msgs, err := r.store.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.ConversationDetail{Conversation: conv, Messages: msgs}, nil
}

// UpdateConversation applies an operator change and announces it to the
// conversation's room and to every operator.
func (r *Router) UpdateConversation(ctx context.Context, id string, patch model.ConversationPatch) (conv *model.Conversation, err error) {
	ctx, span := r.startSpan(ctx, "UpdateConversation", attribute.String("conversation.id", id))
	defer func() { endSpan(span, err) }()

	if patch.Empty() {
		return nil, model.Invalid("", "nothing to update")
	}
	if patch.Mode != nil && !patch.Mode.Valid() {
		return nil, model.Invalid("mode", "must be one of automated, human, hybrid")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, model.Invalid("status", "must be one of active, closed, archived")
	}

	conv, err = r.store.UpdateConversation(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	mode, status := conv.Mode, conv.Status
	r.publish(ctx, model.ConversationUpdatedEvent{ConversationID: conv.ID, Mode: &mode, Status: &status})

	r.logger.Info("conversation updated",
		zap.String("conversation_id", conv.ID),
		zap.String("mode", string(mode)),
		zap.String("status", string(status)),
	)
	return conv, nil
}

// DeleteConversation removes a conversation and its messages.
func (r *Router) DeleteConversation(ctx context.Context, id string) error {
	if err := r.store.DeleteConversation(ctx, id); err != nil {
		return err
	}
	r.logger.Info("conversation deleted", zap.String("conversation_id", id))
	return nil
}
