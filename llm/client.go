package llm

import (
	"context"
	"log/slog"
	"time"
)

// Handler performs one attempt against the provider.
type Handler func(ctx context.Context, req Request) (*Completion, error)

// Middleware wraps each attempt. It receives the request and the next
// handler in the chain.
type Middleware func(ctx context.Context, req Request, next Handler) (*Completion, error)

// Client sends chat turns through a provider with retries.
type Client struct {
	cfg        Config
	provider   Provider
	retry      RetryPolicy
	middleware []Middleware
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider overrides the provider chosen from the config.
func WithProvider(p Provider) ClientOption {
	return func(c *Client) {
		c.provider = p
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithMiddleware appends middleware; the first registered runs outermost.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient builds a client for cfg. A missing API key is not an error
// here; Chat reports it before touching the network.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		retry:  DefaultRetryPolicy(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.provider == nil {
		p, err := NewProvider(cfg)
		if err != nil {
			return nil, err
		}
		c.provider = p
	}
	return c, nil
}

// ProviderName returns the name of the backing provider.
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// Model returns the configured model.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Chat sends the transcript and tool schemas and returns the first choice.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolSchema) (*Reply, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	req := NewRequest(c.cfg.Model, messages, tools)
	temperature := c.cfg.Temperature
	req.Temperature = &temperature
	if c.cfg.MaxTokens > 0 {
		maxTokens := c.cfg.MaxTokens
		req.MaxTokens = &maxTokens
	}

	handler := Handler(c.provider.Complete)
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*Completion, error) {
			return mw(ctx, r, next)
		}
	}

	policy := c.retry
	if policy.OnRetry == nil {
		policy.OnRetry = func(err error, delay time.Duration) {
			c.logger.Warn("llm request failed, retrying",
				"provider", c.provider.Name(), "error", err, "delay", delay)
		}
	}

	completion, err := Retry(ctx, policy, func(ctx context.Context) (*Completion, error) {
		return handler(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if len(completion.Choices) == 0 {
		return nil, &InvalidResponseError{SDKError: SDKError{Message: "no choices in response"}}
	}
	choice := completion.Choices[0]
	return &Reply{
		ID:           completion.ID,
		Model:        completion.Model,
		Content:      choice.Message.Text(),
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
	}, nil
}

// LoggingMiddleware logs every attempt with its duration and outcome.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req Request, next Handler) (*Completion, error) {
		start := time.Now()
		completion, err := next(ctx, req)
		attrs := []any{
			"model", req.Model,
			"messages", len(req.Messages),
			"tools", len(req.Tools),
			"duration", time.Since(start),
		}
		if err != nil {
			logger.Debug("llm attempt failed", append(attrs, "error", err, "status", StatusCode(err))...)
			return nil, err
		}
		if len(completion.Choices) > 0 {
			if calls := completion.Choices[0].Message.ToolCalls; len(calls) > 0 {
				attrs = append(attrs, "tool_calls", summarizeCalls(calls))
			}
		}
		logger.Debug("llm attempt completed", attrs...)
		return completion, nil
	}
}
