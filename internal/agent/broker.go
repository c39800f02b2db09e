// Package agent turns a natural-language request into at most one call
// against the Leedz CRUD service and renders the outcome as conversation.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/scottgrossworks/invoicer-sub001/internal/crud"
	"github.com/scottgrossworks/invoicer-sub001/internal/format"
)

const (
	DefaultTranslateTimeout = 30 * time.Second
	DefaultExecuteTimeout   = 15 * time.Second
)

// Conversational replies for requests that cannot be carried out.
const (
	ReplyTranslationFailed  = "I'm sorry, I couldn't process that request right now. Please try again in a moment."
	ReplyNotUnderstood      = "I'm sorry, I didn't understand that request. Could you rephrase it?"
	ReplyServiceUnreachable = "I couldn't reach the Leedz service. Please check that it is running and try again."
)

// Translator completes a system + user exchange with a language model.
type Translator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Executor performs one CRUD call.
type Executor interface {
	Do(ctx context.Context, method, endpoint string, data any) (*crud.Response, error)
}

type Broker struct {
	translator       Translator
	executor         Executor
	systemPrompt     string
	translateTimeout time.Duration
	executeTimeout   time.Duration
	logger           *slog.Logger
}

type Option func(*Broker)

// WithSystemPrompt replaces DefaultSystemPrompt. Blank prompts are ignored.
func WithSystemPrompt(prompt string) Option {
	return func(b *Broker) {
		if prompt != "" {
			b.systemPrompt = prompt
		}
	}
}

func WithTimeouts(translate, execute time.Duration) Option {
	return func(b *Broker) {
		if translate > 0 {
			b.translateTimeout = translate
		}
		if execute > 0 {
			b.executeTimeout = execute
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

func NewBroker(t Translator, e Executor, opts ...Option) *Broker {
	b := &Broker{
		translator:       t,
		executor:         e,
		systemPrompt:     DefaultSystemPrompt,
		translateTimeout: DefaultTranslateTimeout,
		executeTimeout:   DefaultExecuteTimeout,
		logger:           slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle runs one request through translate, plan, execute and format. The
// returned text is always suitable as a tool result. An error is returned
// only when the CRUD call ran out of time.
func (b *Broker) Handle(ctx context.Context, message string) (string, error) {
	log := b.logger.With("request", uuid.NewString())

	reply, err := b.translate(ctx, message)
	if err != nil {
		log.Warn("translation failed", "error", err)
		return ReplyTranslationFailed, nil
	}

	raw, ok := ExtractJSON(reply)
	if !ok {
		log.Warn("no JSON in translator reply", "reply", clip(reply))
		return ReplyNotUnderstood, nil
	}

	plan, err := ParsePlan(raw)
	if err != nil {
		log.Warn("rejected plan", "error", err, "plan", clip(string(raw)))
		return ReplyNotUnderstood, nil
	}
	if len(plan.Extra) > 0 {
		log.Debug("plan carries extra fields", "fields", extraKeys(plan.Extra))
	}

	if !plan.Actionable {
		return plan.Response, nil
	}

	log.Info("executing plan", "method", plan.Method, "endpoint", plan.Endpoint)
	resp, err := b.execute(ctx, plan)
	var statusErr *crud.StatusError
	switch {
	case err == nil:
		return format.Result(plan.Method, plan.Endpoint, plan.Description, resp.Body), nil
	case errors.As(err, &statusErr):
		log.Warn("crud call rejected", "status", statusErr.StatusCode)
		return statusErr.Error(), nil
	case errors.Is(err, crud.ErrTimeout):
		return "", err
	default:
		log.Warn("crud call failed", "error", err)
		return ReplyServiceUnreachable, nil
	}
}

func (b *Broker) translate(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.translateTimeout)
	defer cancel()

	reply, err := b.translator.Complete(ctx, b.systemPrompt, message)
	if err != nil {
		return "", fmt.Errorf("translator.Complete failed: %w", err)
	}
	return reply, nil
}

func (b *Broker) execute(ctx context.Context, plan *Plan) (*crud.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.executeTimeout)
	defer cancel()

	var data any
	if plan.Method != http.MethodGet && len(plan.Data) > 0 {
		data = plan.Data
	}
	return b.executor.Do(ctx, plan.Method, plan.Endpoint, data)
}

func extraKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func clip(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
