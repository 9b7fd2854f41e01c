package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/internal/store"
	"github.com/capitalize-ai/concierge-router/pkg/metrics"
)

// autoReply asks the responder for a reply to conv's recent history and records it.
// Every failure is logged and yields a nil reply.
func (r *Router) autoReply(ctx context.Context, conv *model.Conversation) (*model.Message, *model.Conversation) {
	if r.responder == nil {
		return nil, nil
	}
	log := r.logger.ForConversation(conv.ID)

	history, err := r.store.RecentMessages(ctx, conv.ID, r.opts.HistoryLimit)
	if err != nil {
		log.Error("failed to load history for responder", zap.Error(err))
		return nil, nil
	}

	replyCtx, cancel := context.WithTimeout(ctx, r.opts.ResponderTimeout)
	defer cancel()

	start := time.Now()
	text, err := r.responder.Reply(replyCtx, history)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("automated responder timed out", zap.Duration("after", time.Since(start)))
		} else {
			log.Warn("automated responder failed", zap.Error(err))
		}
		return nil, nil
	}
	if text == "" {
		return nil, nil
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		SenderType:     model.SenderAutomated,
		Content:        text,
		IsRead:         true,
	}
	after, err := r.store.AppendMessage(ctx, msg, store.DeltaFor(model.SenderAutomated))
	if err != nil {
		log.Error("failed to store automated reply", zap.Error(err))
		return nil, nil
	}
	metrics.RecordMessage(string(conv.Channel), string(model.SenderAutomated))
	r.publish(ctx, model.NewMessageEvent{ConversationID: conv.ID, Message: msg})

	return msg, after
}
