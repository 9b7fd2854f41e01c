package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
	"github.com/capitalize-ai/concierge-router/pkg/metrics"
)

const (
	// StreamName is the name of the conversations stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	publishTimeout = 2 * time.Second
)

// Journal appends conversation events to JetStream. Failures are logged and never
// reach the caller; the SQL store stays the source of truth.
type Journal struct {
	js  jetstream.JetStream
	log *logger.Logger
}

// NewJournal creates a journal over an established client.
func NewJournal(client *Client, log *logger.Logger) *Journal {
	return &Journal{js: client.JetStream(), log: log.Named("journal")}
}

// EnsureStream ensures the conversations stream exists with proper configuration.
func (j *Journal) EnsureStream(ctx context.Context) error {
	_, err := j.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = j.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Persisted conversation messages and state changes",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// MessageSubject returns the subject for a persisted message.
func MessageSubject(conversationID string, sender model.SenderType) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, conversationID, sender)
}

// EventSubject returns the subject for a conversation event.
func EventSubject(conversationID string, name model.EventName) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, conversationID, name)
}

// ConversationFilter returns the filter subject for everything in a conversation.
func ConversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, conversationID)
}

// Record maps a server event onto its journal subject and payload.
// Ephemeral events are not journaled and report ok=false.
func Record(e model.ServerEvent) (subject string, data []byte, ok bool, err error) {
	switch ev := e.(type) {
	case model.NewMessageEvent:
		if ev.Message == nil {
			return "", nil, false, nil
		}
		subject = MessageSubject(ev.ConversationID, ev.Message.SenderType)
	case model.NewConversationEvent:
		if ev.Conversation == nil {
			return "", nil, false, nil
		}
		subject = EventSubject(ev.Conversation.ID, ev.Name())
	case model.ConversationUpdatedEvent:
		subject = EventSubject(ev.ConversationID, ev.Name())
	default:
		return "", nil, false, nil
	}

	data, err = model.EncodeEvent(e)
	if err != nil {
		return "", nil, false, err
	}
	return subject, data, true, nil
}

// Publish appends e to the stream.
func (j *Journal) Publish(ctx context.Context, e model.ServerEvent) {
	subject, data, ok, err := Record(e)
	if err != nil {
		j.log.Error("failed to encode journal entry", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if _, err := j.js.Publish(ctx, subject, data); err != nil {
		metrics.JournalPublished.WithLabelValues(string(e.Name()), "error").Inc()
		j.log.Warn("failed to journal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	metrics.JournalPublished.WithLabelValues(string(e.Name()), "ok").Inc()
}
