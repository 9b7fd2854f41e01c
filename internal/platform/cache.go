package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/capitalize-ai/concierge-router/internal/model"
)

// ErrInactive is returned when the platform integration is switched off or has no token.
var ErrInactive = errors.New("platform integration inactive")

// SettingsSource reads the persisted platform settings.
type SettingsSource interface {
	PlatformSettings(ctx context.Context) (*model.PlatformSettings, error)
}

// buildRetryDelay spaces out rebuild attempts after a failed client build.
const buildRetryDelay = 5 * time.Second

// ClientCache holds the settings snapshot and the client built from it.
// Both are cleared together by Invalidate, so a caller sees either the old
// pair or a freshly loaded one. The mutex is never held across a client
// build; a build that finishes after an Invalidate is not installed.
type ClientCache struct {
	source SettingsSource
	build  Factory
	now    func() time.Time

	mu       sync.Mutex
	gen      uint64
	settings *model.PlatformSettings
	client   Messenger
	buildErr error
	failedAt time.Time
}

// NewClientCache creates an empty cache.
func NewClientCache(source SettingsSource, build Factory) *ClientCache {
	return &ClientCache{source: source, build: build, now: time.Now}
}

// Settings returns the cached settings, loading them if absent.
func (c *ClientCache) Settings(ctx context.Context) (model.PlatformSettings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.settingsLocked(ctx)
	if err != nil {
		return model.PlatformSettings{}, err
	}
	return *s, nil
}

func (c *ClientCache) settingsLocked(ctx context.Context) (*model.PlatformSettings, error) {
	if c.settings != nil {
		return c.settings, nil
	}
	s, err := c.source.PlatformSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load platform settings: %w", err)
	}
	c.settings = s
	return s, nil
}

// Client returns the messenger for the current settings, building it lazily.
// A failed build is reported again without a new attempt until buildRetryDelay
// has passed or the cache is invalidated.
func (c *ClientCache) Client(ctx context.Context) (Messenger, model.PlatformSettings, error) {
	c.mu.Lock()
	s, err := c.settingsLocked(ctx)
	if err != nil {
		c.mu.Unlock()
		return nil, model.PlatformSettings{}, err
	}
	snap := *s
	if !snap.IsActive || snap.ChannelAccessToken == "" {
		c.mu.Unlock()
		return nil, snap, ErrInactive
	}
	if c.client != nil {
		client := c.client
		c.mu.Unlock()
		return client, snap, nil
	}
	if c.buildErr != nil && c.now().Sub(c.failedAt) < buildRetryDelay {
		err := c.buildErr
		c.mu.Unlock()
		return nil, snap, err
	}
	gen := c.gen
	c.mu.Unlock()

	client, err := c.build(ctx, snap.ChannelAccessToken)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// Settings changed mid-build; hand the result to this caller only.
		if err != nil {
			return nil, snap, err
		}
		return client, snap, nil
	}
	if err != nil {
		c.buildErr, c.failedAt = err, c.now()
		return nil, snap, err
	}
	if c.client == nil {
		c.client = client
		c.buildErr = nil
	}
	return c.client, snap, nil
}

// Invalidate drops the cached settings and client. Call it after every settings write commits.
func (c *ClientCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.settings = nil
	c.client = nil
	c.buildErr = nil
}

// Probe builds a throwaway client from the current settings and asks who it is.
// The cache itself is left untouched.
func (c *ClientCache) Probe(ctx context.Context) (*model.BotInfo, error) {
	s, err := c.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if s.ChannelAccessToken == "" {
		return nil, errors.New("channel access token not configured")
	}

	client, err := c.build(ctx, s.ChannelAccessToken)
	if err != nil {
		return nil, err
	}
	return client.BotInfo(ctx)
}
