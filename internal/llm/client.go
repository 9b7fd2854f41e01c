// Package llm wraps the hosted text-generation APIs behind one small interface.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Turn roles understood by every provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const defaultMaxTokens = 1024

// Turn is one message of the visible dialogue.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is a single generation request. System is sent out of band; Turns
// must start with a user turn.
type Prompt struct {
	Model       string
	System      string
	Turns       []Turn
	MaxTokens   int
	Temperature float64
}

// Usage counts provider tokens.
type Usage struct {
	Input  int
	Output int
}

// Reply is the generated text plus accounting.
type Reply struct {
	Text       string
	Model      string
	StopReason string
	Usage      Usage
	Latency    time.Duration
}

// Client generates replies.
type Client interface {
	Complete(ctx context.Context, p *Prompt) (*Reply, error)
	Name() string
}

// Provider selects a backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient returns the client for provider. The empty provider means Anthropic.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic, "":
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// resolve fills in the provider defaults without touching p.
func (p *Prompt) resolve(model string) Prompt {
	out := *p
	if out.Model == "" {
		out.Model = model
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	return out
}
