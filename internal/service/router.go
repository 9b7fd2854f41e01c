// Package service implements the conversation router and the admin services around it.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/internal/store"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
	"github.com/capitalize-ai/concierge-router/pkg/metrics"
)

const (
	// DefaultResponderTimeout bounds one automated reply attempt.
	DefaultResponderTimeout = 15 * time.Second

	// DefaultHistoryLimit is how many recent messages the responder sees.
	DefaultHistoryLimit = 10

	// PlatformPlaceholderName is used when no profile name can be found.
	PlatformPlaceholderName = "Platform user"

	maxContentLength = 4000
)

// Store is the persistence the router needs.
type Store interface {
	CreateConversation(ctx context.Context, c *model.Conversation) error
	ConversationByID(ctx context.Context, id string) (*model.Conversation, error)
	ConversationBySession(ctx context.Context, sessionID string) (*model.Conversation, error)
	LatestPlatformConversation(ctx context.Context, externalUserID string) (*model.Conversation, error)
	AppendMessage(ctx context.Context, msg *model.Message, d store.Delta) (*model.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
	RecentMessages(ctx context.Context, conversationID string, n int) ([]model.Message, error)
	UpdateConversation(ctx context.Context, id string, patch model.ConversationPatch) (*model.Conversation, error)
	MarkRead(ctx context.Context, id string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	ListConversations(ctx context.Context, f model.ConversationFilter) ([]model.Conversation, int, error)
}

// Responder produces an automated reply from ordered history.
type Responder interface {
	Reply(ctx context.Context, history []model.Message) (string, error)
}

// Publisher receives every server event the router emits.
type Publisher interface {
	Publish(ctx context.Context, e model.ServerEvent)
}

// Deliverer pushes operator replies to the external platform.
type Deliverer interface {
	Deliver(ctx context.Context, externalUserID, text string) error
}

// ProfileLookup resolves an external user's display name.
type ProfileLookup interface {
	DisplayName(ctx context.Context, externalUserID string) (string, error)
}

// Options tunes the router.
type Options struct {
	ResponderTimeout time.Duration
	HistoryLimit     int
}

// Router is the single path every inbound and outbound message takes.
type Router struct {
	store      Store
	responder  Responder
	deliverer  Deliverer
	profiles   ProfileLookup
	publishers []Publisher
	opts       Options
	logger     *logger.Logger
	tracer     trace.Tracer

	// serialises find-or-create of platform conversations
	platformMu sync.Mutex
}

// NewRouter creates a router. responder, deliverer and profiles may be nil.
func NewRouter(
	st Store,
	responder Responder,
	deliverer Deliverer,
	profiles ProfileLookup,
	opts Options,
	log *logger.Logger,
	publishers ...Publisher,
) *Router {
	if opts.ResponderTimeout <= 0 {
		opts.ResponderTimeout = DefaultResponderTimeout
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		store:      st,
		responder:  responder,
		deliverer:  deliverer,
		profiles:   profiles,
		publishers: publishers,
		opts:       opts,
		logger:     log.Named("router"),
		tracer:     otel.Tracer("github.com/capitalize-ai/concierge-router/internal/service"),
	}
}

func (r *Router) publish(ctx context.Context, e model.ServerEvent) {
	for _, p := range r.publishers {
		p.Publish(ctx, e)
	}
}

func (r *Router) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "router."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validateContent(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", model.Invalid("content", "is required")
	}
	if len(text) > maxContentLength {
		return "", model.Invalid("content", fmt.Sprintf("must be at most %d characters", maxContentLength))
	}
	return text, nil
}

// StartOrResumeWeb returns the web conversation for sessionID, or creates a new
// one with a fresh session token when sessionID is empty or unknown.
func (r *Router) StartOrResumeWeb(ctx context.Context, sessionID string) (resp *model.StartChatResponse, err error) {
	ctx, span := r.startSpan(ctx, "StartOrResumeWeb")
	defer func() { endSpan(span, err) }()

	if sessionID != "" {
		conv, err := r.store.ConversationBySession(ctx, sessionID)
		switch {
		case err == nil && conv.Channel == model.ChannelWeb:
			msgs, err := r.store.Messages(ctx, conv.ID)
			if err != nil {
				return nil, err
			}
			return &model.StartChatResponse{Conversation: conv, Messages: msgs, IsNew: false}, nil
		case err != nil && !errors.Is(err, model.ErrNotFound):
			return nil, err
		}
	}

	conv := &model.Conversation{
		SessionID: shortuuid.New(),
		Channel:   model.ChannelWeb,
		Status:    model.StatusActive,
		Mode:      model.ModeAutomated,
	}
	if err := r.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	metrics.ConversationsTotal.WithLabelValues(string(model.ChannelWeb)).Inc()
	r.logger.Info("web conversation started", zap.String("conversation_id", conv.ID))

	return &model.StartChatResponse{Conversation: conv, Messages: []model.Message{}, IsNew: true}, nil
}

// HandleIncomingCustomerMessage records a customer message and, when the
// conversation's mode allows it, attempts an automated reply. Responder
// failures leave AutomatedReply nil and are not returned as errors.
func (r *Router) HandleIncomingCustomerMessage(ctx context.Context, in model.InboundMessage) (res *model.InboundResult, err error) {
	ctx, span := r.startSpan(ctx, "HandleIncomingCustomerMessage")
	defer func() { endSpan(span, err) }()

	text, err := validateContent(in.Text)
	if err != nil {
		return nil, err
	}

	conv, err := r.resolve(ctx, in.Ref)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("conversation.id", conv.ID),
		attribute.String("conversation.channel", string(conv.Channel)),
	)

	msg := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		SenderType:     model.SenderCustomer,
		Content:        text,
		IsRead:         false,
	}
	if in.ExternalID != "" {
		key := in.ExternalID
		msg.ExternalMessageID = &key
	}

	updated, err := r.store.AppendMessage(ctx, msg, store.DeltaFor(model.SenderCustomer))
	if err != nil {
		return nil, err
	}
	metrics.RecordMessage(string(updated.Channel), string(model.SenderCustomer))

	if updated.Status != conv.Status {
		status := updated.Status
		r.publish(ctx, model.ConversationUpdatedEvent{ConversationID: updated.ID, Status: &status})
	}
	r.publish(ctx, model.NewMessageEvent{ConversationID: updated.ID, Message: msg})
	if updated.TotalMessages == 1 {
		r.publish(ctx, model.NewConversationEvent{Conversation: updated})
	}

	res = &model.InboundResult{SavedMessage: msg, Conversation: updated}
	if !updated.Mode.AutoReplies() {
		return res, nil
	}

	if reply, after := r.autoReply(ctx, updated); reply != nil {
		res.AutomatedReply = reply
		res.Conversation = after
	}
	span.SetAttributes(attribute.Bool("reply.automated", res.AutomatedReply != nil))
	return res, nil
}

func (r *Router) resolve(ctx context.Context, ref model.ConversationRef) (*model.Conversation, error) {
	switch {
	case ref.SessionID != "":
		conv, err := r.store.ConversationBySession(ctx, ref.SessionID)
		if err != nil {
			return nil, err
		}
		// Session tokens only address widget conversations.
		if conv.Channel != model.ChannelWeb {
			return nil, model.ErrNotFound
		}
		return conv, nil
	case ref.ExternalUserID != "":
		return r.platformConversation(ctx, ref)
	default:
		return nil, model.Invalid("sessionId", "is required")
	}
}

// platformConversation finds the newest non-archived conversation of the
// external user, creating one if there is none.
func (r *Router) platformConversation(ctx context.Context, ref model.ConversationRef) (*model.Conversation, error) {
	conv, err := r.store.LatestPlatformConversation(ctx, ref.ExternalUserID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	name := r.profileName(ctx, ref)

	r.platformMu.Lock()
	defer r.platformMu.Unlock()

	conv, err = r.store.LatestPlatformConversation(ctx, ref.ExternalUserID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	uid := ref.ExternalUserID
	conv = &model.Conversation{
		SessionID:      shortuuid.New(),
		ExternalUserID: &uid,
		Channel:        model.ChannelPlatform,
		CustomerName:   name,
		Status:         model.StatusActive,
		Mode:           model.ModeAutomated,
	}
	if err := r.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	metrics.ConversationsTotal.WithLabelValues(string(model.ChannelPlatform)).Inc()
	r.logger.Info("platform conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("external_user_id", uid),
	)
	return conv, nil
}

func (r *Router) profileName(ctx context.Context, ref model.ConversationRef) string {
	if r.profiles != nil {
		name, err := r.profiles.DisplayName(ctx, ref.ExternalUserID)
		if err != nil {
			r.logger.Warn("profile lookup failed",
				zap.String("external_user_id", ref.ExternalUserID), zap.Error(err))
		} else if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(ref.FallbackName); name != "" {
		return name
	}
	return PlatformPlaceholderName
}

// HandleOutgoingHumanMessage records an operator reply and delivers it to
// platform customers. A failed delivery is reported in the result; the
// message stays persisted either way.
func (r *Router) HandleOutgoingHumanMessage(ctx context.Context, conversationID, text string) (res *model.HumanReplyResult, err error) {
	ctx, span := r.startSpan(ctx, "HandleOutgoingHumanMessage", attribute.String("conversation.id", conversationID))
	defer func() { endSpan(span, err) }()

	text, err = validateContent(text)
	if err != nil {
		return nil, err
	}

	conv, err := r.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		SenderType:     model.SenderHuman,
		Content:        text,
		IsRead:         true,
	}
	if _, err := r.store.AppendMessage(ctx, msg, store.DeltaFor(model.SenderHuman)); err != nil {
		return nil, err
	}
	metrics.RecordMessage(string(conv.Channel), string(model.SenderHuman))
	r.publish(ctx, model.NewMessageEvent{ConversationID: conv.ID, Message: msg})

	res = &model.HumanReplyResult{Message: msg, Delivered: true}
	if conv.Channel != model.ChannelPlatform {
		return res, nil
	}

	res.Delivered = false
	switch {
	case conv.ExternalUserID == nil:
		res.DeliveryError = "conversation has no external user"
	case r.deliverer == nil:
		res.DeliveryError = "platform delivery not configured"
	default:
		if err := r.deliverer.Deliver(ctx, *conv.ExternalUserID, text); err != nil {
			res.DeliveryError = err.Error()
			r.logger.Warn("failed to deliver operator reply",
				zap.String("conversation_id", conv.ID), zap.Error(err))
		} else {
			res.Delivered = true
		}
	}
	span.SetAttributes(attribute.Bool("delivery.ok", res.Delivered))
	return res, nil
}
