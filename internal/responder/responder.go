// Package responder turns conversation history into an automated reply.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/llm"
	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
	"github.com/capitalize-ai/concierge-router/pkg/metrics"
)

// DefaultInstructions is used when no assistant instructions are configured.
const DefaultInstructions = `You are the virtual concierge of a hotel amenities shop. Answer guests briefly and politely
in the language they write in. If you do not know an answer, say that a team member will follow up.`

var (
	// ErrDisabled is returned when no generation backend is configured.
	ErrDisabled = errors.New("responder disabled")

	// ErrEmptyReply is returned when the backend produced no text.
	ErrEmptyReply = errors.New("empty reply")
)

// TrainingSource lists curated Q&A pairs.
type TrainingSource interface {
	ListTrainingPairs(ctx context.Context, activeOnly bool) ([]model.TrainingPair, error)
}

// Config tunes prompt construction.
type Config struct {
	Instructions string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Responder builds prompts and calls the generation backend.
type Responder struct {
	client   llm.Client
	training TrainingSource
	catalog  *Catalog
	cfg      Config
	log      *logger.Logger
}

// New creates a responder. A nil client yields a responder that always returns ErrDisabled.
func New(client llm.Client, training TrainingSource, catalog *Catalog, cfg Config, log *logger.Logger) *Responder {
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Responder{
		client:   client,
		training: training,
		catalog:  catalog,
		cfg:      cfg,
		log:      log.Named("responder"),
	}
}

// Enabled reports whether a backend is configured.
func (r *Responder) Enabled() bool {
	return r != nil && r.client != nil
}

// Reply generates the next assistant turn for history, which is ordered oldest first
// and already includes the customer message being answered.
func (r *Responder) Reply(ctx context.Context, history []model.Message) (string, error) {
	if !r.Enabled() {
		return "", ErrDisabled
	}

	turns := Turns(history)
	if len(turns) == 0 {
		return "", fmt.Errorf("no customer turn to answer")
	}

	start := time.Now()
	resp, err := r.client.Complete(ctx, &llm.Prompt{
		Model:       r.cfg.Model,
		System:      r.SystemPrompt(ctx),
		Turns:       turns,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.RecordResponder(r.client.Name(), outcome, elapsed, 0, 0)
		return "", err
	}

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		metrics.RecordResponder(r.client.Name(), "empty", elapsed, resp.Usage.Input, resp.Usage.Output)
		return "", ErrEmptyReply
	}

	metrics.RecordResponder(r.client.Name(), "ok", elapsed, resp.Usage.Input, resp.Usage.Output)
	return reply, nil
}

// SystemPrompt renders instructions, catalog and trained answers.
// Training pairs that fail to load are skipped.
func (r *Responder) SystemPrompt(ctx context.Context) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.cfg.Instructions))

	r.catalog.render(&b)

	if r.training == nil {
		return b.String()
	}
	pairs, err := r.training.ListTrainingPairs(ctx, true)
	if err != nil {
		r.log.Warn("failed to load training pairs", zap.Error(err))
		return b.String()
	}
	if len(pairs) > 0 {
		b.WriteString("\n\nAnswer these questions exactly as shown:\n")
		for _, p := range pairs {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", p.Question, p.Answer)
		}
	}
	return b.String()
}

// Turns maps stored messages onto alternating user/assistant turns.
// Leading assistant turns are dropped and consecutive turns of one role are merged.
func Turns(history []model.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(history))
	for _, m := range history {
		role := string(m.SenderType.Role())
		if len(turns) == 0 && role != string(model.RoleUser) {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n" + m.Content
			continue
		}
		turns = append(turns, llm.Turn{Role: role, Content: m.Content})
	}
	return turns
}
