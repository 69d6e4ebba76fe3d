package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmProvider reaches hosted providers through gollm when no
// OpenAI-compatible base URL is configured. gollm takes a single prompt, so
// the transcript is flattened and tool calls are recovered from the text.
type GollmProvider struct {
	provider string
	llm      gollm.LLM
	model    string
}

// NewGollmProvider creates a gollm-backed provider. gollm retries are
// disabled; the Client owns retry policy.
func NewGollmProvider(provider string, cfg Config) (*GollmProvider, error) {
	model := cfg.Model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5"
		default:
			model = "gpt-4o-mini"
		}
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(maxTokens),
		gollm.SetTemperature(cfg.Temperature),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.APIKey != "" {
		opts = append(opts, gollm.SetAPIKey(cfg.APIKey))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("create gollm client for %s", provider),
			Cause:   err,
		}}
	}
	return &GollmProvider{provider: provider, llm: llm, model: model}, nil
}

// NewGollmProviderFromLLM wraps an existing gollm.LLM.
func NewGollmProviderFromLLM(provider, model string, llm gollm.LLM) *GollmProvider {
	return &GollmProvider{provider: provider, llm: llm, model: model}
}

func (p *GollmProvider) Name() string {
	return p.provider
}

func (p *GollmProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	if req.Model != "" {
		p.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		p.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		p.llm.SetOption("max_tokens", *req.MaxTokens)
	}

	text, err := p.llm.Generate(ctx, buildGollmPrompt(req))
	if err != nil {
		return nil, p.translateError(err)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	calls := parseToolCalls(text)
	finish := "stop"
	if len(calls) > 0 {
		finish = "tool_calls"
		text = stripToolCallJSON(text)
	}
	return &Completion{
		ID:    "gollm_" + uuid.NewString()[:8],
		Model: model,
		Choices: []Choice{{
			Message:      AssistantMessage(text, calls),
			FinishReason: finish,
		}},
	}, nil
}

// buildGollmPrompt flattens the transcript into one prompt. System messages
// become the system prompt; everything else is labelled by role.
func buildGollmPrompt(req Request) *gollm.Prompt {
	var system []string
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Text())
		case RoleUser:
			parts = append(parts, msg.Text())
		case RoleAssistant:
			if text := msg.Text(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
			if len(msg.ToolCalls) > 0 {
				parts = append(parts, "[Assistant called tools]: "+summarizeCalls(msg.ToolCalls))
			}
		case RoleTool:
			parts = append(parts, fmt.Sprintf("[Tool Result %s]: %s", msg.ToolCallID, msg.Text()))
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var opts []gollm.PromptOption
	if len(system) > 0 {
		opts = append(opts, gollm.WithSystemPrompt(strings.Join(system, "\n"), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		opts = append(opts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if schemas := req.ToolSchemas(); len(schemas) > 0 {
		tools := make([]gollm.Tool, 0, len(schemas))
		for _, s := range schemas {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        s.Name,
					Description: s.Description,
					Parameters:  s.Parameters,
				},
			})
		}
		opts = append(opts, gollm.WithTools(tools), gollm.WithToolChoice("auto"))
	}
	return gollm.NewPrompt(promptText, opts...)
}

var toolCallMarkers = []string{`{"tool_calls"`, `[{"name"`}

// parseToolCalls recovers calls that gollm returns as JSON in the text,
// either {"tool_calls":[...]} or a bare [{"name":..,"arguments":..}] array.
func parseToolCalls(text string) []ToolCall {
	type rawCall struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	var raw []rawCall
	if start := strings.Index(text, toolCallMarkers[0]); start != -1 {
		var wrapped struct {
			ToolCalls []rawCall `json:"tool_calls"`
		}
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&wrapped); err == nil {
			raw = wrapped.ToolCalls
		}
	} else if start := strings.Index(text, toolCallMarkers[1]); start != -1 {
		_ = json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw)
	}

	var calls []ToolCall
	for _, rc := range raw {
		if rc.Name == "" {
			continue
		}
		args := string(rc.Arguments)
		// Arguments may arrive as an object or as an already-encoded string.
		var encoded string
		if err := json.Unmarshal(rc.Arguments, &encoded); err == nil {
			args = encoded
		}
		if strings.TrimSpace(args) == "" || args == "null" {
			args = "{}"
		}
		calls = append(calls, ToolCall{
			ID:       "call_" + uuid.NewString()[:8],
			Type:     "function",
			Function: FunctionCall{Name: rc.Name, Arguments: args},
		})
	}
	return calls
}

func stripToolCallJSON(text string) string {
	for _, marker := range toolCallMarkers {
		if idx := strings.Index(text, marker); idx != -1 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}

// translateError classifies gollm errors by message, since gollm does not
// expose status codes.
func (p *GollmProvider) translateError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	pe := ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: p.provider}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		pe.StatusCode = 429
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") ||
		strings.Contains(lower, "internal server") || strings.Contains(lower, "unavailable"):
		pe.StatusCode = 500
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	case strings.Contains(lower, "400") || strings.Contains(lower, "403") || strings.Contains(lower, "404"):
		return &APIError{ProviderError: pe}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "connection"):
		return &NetworkError{SDKError: SDKError{Message: msg, Cause: err}}
	default:
		return &ProviderError{SDKError: pe.SDKError, Provider: p.provider}
	}
}
