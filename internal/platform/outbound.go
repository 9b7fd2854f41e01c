package platform

import (
	"context"

	"github.com/capitalize-ai/concierge-router/pkg/metrics"
)

// Outbound pushes text and resolves profiles through the cached client.
type Outbound struct {
	cache *ClientCache
}

// NewOutbound creates an Outbound over cache.
func NewOutbound(cache *ClientCache) *Outbound {
	return &Outbound{cache: cache}
}

// Deliver pushes text to the external user.
func (o *Outbound) Deliver(ctx context.Context, externalUserID, text string) error {
	return o.push(ctx, "human", externalUserID, text)
}

// AutoReply pushes an automated reply if auto reply is enabled.
// It reports whether a push was attempted.
func (o *Outbound) AutoReply(ctx context.Context, externalUserID, text string) (bool, error) {
	settings, err := o.cache.Settings(ctx)
	if err != nil {
		return false, err
	}
	if !settings.AutoReply {
		return false, nil
	}
	return true, o.push(ctx, "automated", externalUserID, text)
}

func (o *Outbound) push(ctx context.Context, kind, externalUserID, text string) error {
	client, _, err := o.cache.Client(ctx)
	if err == nil {
		err = client.PushText(ctx, externalUserID, text)
	}
	metrics.RecordDelivery(kind, err)
	return err
}

// DisplayName looks up the external user's profile name.
func (o *Outbound) DisplayName(ctx context.Context, externalUserID string) (string, error) {
	client, _, err := o.cache.Client(ctx)
	if err != nil {
		return "", err
	}
	return client.DisplayName(ctx, externalUserID)
}
