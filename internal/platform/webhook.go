package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
	"github.com/capitalize-ai/concierge-router/pkg/metrics"
)

// ErrMalformed is returned for a signed body that is not a valid batch.
var ErrMalformed = errors.New("malformed webhook payload")

const defaultEventTimeout = 30 * time.Second

// Inbound is the router capability the adapter feeds.
type Inbound interface {
	HandleIncomingCustomerMessage(ctx context.Context, in model.InboundMessage) (*model.InboundResult, error)
}

// Batch is the webhook body: bot updates delivered together.
type Batch struct {
	Events []tgbotapi.Update `json:"events"`
}

// Event is a text message extracted from an update.
type Event struct {
	UpdateID       int
	ExternalUserID string
	Text           string
	SenderName     string
}

// IdempotencyKey identifies the update across redeliveries.
func (e Event) IdempotencyKey() string {
	return "update:" + strconv.Itoa(e.UpdateID)
}

// Adapter verifies webhook batches and routes their text events in the background.
type Adapter struct {
	router   Inbound
	cache    *ClientCache
	outbound *Outbound
	timeout  time.Duration
	log      *logger.Logger

	wg sync.WaitGroup
}

// NewAdapter creates a webhook adapter.
func NewAdapter(router Inbound, cache *ClientCache, outbound *Outbound, eventTimeout time.Duration, log *logger.Logger) *Adapter {
	if eventTimeout <= 0 {
		eventTimeout = defaultEventTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Adapter{
		router:   router,
		cache:    cache,
		outbound: outbound,
		timeout:  eventTimeout,
		log:      log.Named("platform"),
	}
}

// Accept verifies body, parses it and schedules its events. It returns the
// number of events scheduled. Nothing is parsed unless the signature matches.
func (a *Adapter) Accept(ctx context.Context, body []byte, signature string) (int, error) {
	settings, err := a.cache.Settings(ctx)
	if err != nil {
		return 0, err
	}
	if err := VerifySignature(settings.ChannelSecret, body, signature); err != nil {
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		return 0, err
	}

	events, err := Parse(body)
	if err != nil {
		return 0, err
	}
	if !settings.IsActive {
		metrics.WebhookEvents.WithLabelValues("inactive").Add(float64(len(events)))
		a.log.Info("platform inactive, ignoring webhook batch", zap.Int("events", len(events)))
		return 0, nil
	}
	if len(events) == 0 {
		return 0, nil
	}

	// Events of one batch run in order on one goroutine, detached from the request.
	detached := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for _, ev := range events {
			a.processWithTimeout(detached, ev)
		}
	}()
	return len(events), nil
}

func (a *Adapter) processWithTimeout(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.Process(ctx, ev); err != nil {
		metrics.WebhookEvents.WithLabelValues("failed").Inc()
		a.log.Error("failed to process webhook event",
			zap.Int("update_id", ev.UpdateID),
			zap.String("external_user_id", ev.ExternalUserID),
			zap.Error(err),
		)
	}
}

// Process routes one event and pushes the automated reply when enabled.
func (a *Adapter) Process(ctx context.Context, ev Event) error {
	res, err := a.router.HandleIncomingCustomerMessage(ctx, model.InboundMessage{
		Ref: model.ConversationRef{
			ExternalUserID: ev.ExternalUserID,
			FallbackName:   ev.SenderName,
		},
		Text:       ev.Text,
		ExternalID: ev.IdempotencyKey(),
	})
	if errors.Is(err, model.ErrDuplicate) {
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		a.log.Debug("skipping redelivered update", zap.Int("update_id", ev.UpdateID))
		return nil
	}
	if err != nil {
		return err
	}
	metrics.WebhookEvents.WithLabelValues("processed").Inc()

	if res.AutomatedReply == nil {
		return nil
	}
	pushed, err := a.outbound.AutoReply(ctx, ev.ExternalUserID, res.AutomatedReply.Content)
	if err != nil {
		a.log.Warn("failed to push automated reply",
			zap.String("external_user_id", ev.ExternalUserID), zap.Error(err))
		return nil
	}
	if pushed {
		a.log.Debug("pushed automated reply", zap.String("external_user_id", ev.ExternalUserID))
	}
	return nil
}

// Wait blocks until every scheduled batch has finished.
func (a *Adapter) Wait() {
	a.wg.Wait()
}

// Parse extracts text events from a webhook body; other update kinds are skipped.
func Parse(body []byte) ([]Event, error) {
	var batch Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	events := make([]Event, 0, len(batch.Events))
	for _, u := range batch.Events {
		msg := u.Message
		if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
			continue
		}
		ev := Event{
			UpdateID:       u.UpdateID,
			ExternalUserID: strconv.FormatInt(msg.Chat.ID, 10),
			Text:           msg.Text,
		}
		if msg.From != nil {
			ev.SenderName = fullName(msg.From.FirstName, msg.From.LastName)
		}
		events = append(events, ev)
	}
	return events, nil
}
