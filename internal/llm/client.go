// Package llm sends rendered prompts to an OpenAI-compatible chat model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/config"
	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/prompts"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrorMarker is the text a reply carries when the provider call failed but
// the failure was rendered into the reply instead of raised.
const ErrorMarker = "Error from OpenAI"

var (
	// ErrEmptyReply is returned when the model produced no text.
	ErrEmptyReply = errors.New("empty reply from model")

	// ErrProviderMarker is returned by CheckReply for replies carrying ErrorMarker.
	ErrProviderMarker = errors.New("reply contains provider error marker")
)

const defaultBaseBackoff = time.Second

// generator is the subset of llms.Model the client uses.
type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Client renders prompt templates and completes them with retries.
type Client struct {
	model       generator
	temperature float64
	maxRetries  int
	baseBackoff time.Duration
	limiter     *rate.Limiter
	logger      *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBackoff sets the base delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.baseBackoff = d }
}

// New creates a Client backed by langchaingo's OpenAI model.
func New(cfg config.LLMConfig, opts ...Option) (*Client, error) {
	if !cfg.APIKey.IsSet() {
		return nil, config.ErrMissingAPIKey
	}

	lcOpts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		lcOpts = append(lcOpts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(lcOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return newClient(model, cfg, opts...), nil
}

func newClient(model generator, cfg config.LLMConfig, opts ...Option) *Client {
	rpm := cfg.RequestsPerMinute
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Limit(rpm / 60.0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		model:       model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: defaultBaseBackoff,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete renders tmpl with vars, sends it as the system message with the
// template's instruction as the human message and returns the reply text.
func (c *Client) Complete(ctx context.Context, tmpl prompts.Template, vars map[string]any) (string, error) {
	system, err := tmpl.Render(vars)
	if err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, tmpl.Instruction),
	}

	op := "complete " + tmpl.Name
	if err := c.limiter.Wait(ctx); err != nil {
		return "", failure.New(failure.KindProvider, op, fmt.Errorf("rate limiter: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Debug(ctx, "retrying completion", zap.String("prompt", tmpl.Name), zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", failure.New(failure.KindProvider, op, ctx.Err())
			}
		}

		start := time.Now()
		resp, err := c.model.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
		if err == nil {
			text := replyText(resp)
			if strings.TrimSpace(text) == "" {
				return "", failure.New(failure.KindProvider, op, ErrEmptyReply)
			}
			c.logger.Debug(ctx, "completion received",
				zap.String("prompt", tmpl.Name),
				zap.Int("chars", len(text)),
				zap.Duration("elapsed", time.Since(start)),
			)
			return text, nil
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
		c.logger.Warn(ctx, "completion failed", zap.String("prompt", tmpl.Name), zap.Int("attempt", attempt), zap.Error(err))
	}

	return "", failure.New(failure.KindProvider, op, lastErr)
}

func replyText(resp *llms.ContentResponse) string {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return ""
	}
	return resp.Choices[0].Content
}

// isRetryable treats cancellation and client errors other than 429 as final.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "status code: 429") {
		return true
	}
	return !strings.Contains(msg, "status code: 4")
}

// HasErrorMarker reports whether reply carries the provider error marker.
func HasErrorMarker(reply string) bool {
	return strings.Contains(reply, ErrorMarker)
}

// CheckReply returns a provider failure for replies carrying the marker.
func CheckReply(reply string) error {
	if HasErrorMarker(reply) {
		return failure.New(failure.KindProvider, "check reply", ErrProviderMarker)
	}
	return nil
}
