package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

// DefaultHTTPTimeout bounds each HTTP exchange with the chat endpoint.
const DefaultHTTPTimeout = 120 * time.Second

// OpenAIProvider talks to any endpoint implementing POST /chat/completions.
type OpenAIProvider struct {
	name    string
	url     string
	apiKey  string
	headers map[string]string
	http    *http.Client
}

// NewOpenAIProvider builds a provider for cfg.BaseURL.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	name := cfg.ProviderName
	if name == "" {
		name = "openai-compatible"
	}
	return &OpenAIProvider{
		name:    name,
		url:     strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:  cfg.APIKey,
		headers: cfg.ExtraHeaders,
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (p *OpenAIProvider) WithHTTPClient(c *http.Client) *OpenAIProvider {
	p.http = c
	return p
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &InvalidResponseError{SDKError: SDKError{Message: "encode request", Cause: err}}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "build request", Cause: err}}
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
		}
		msg := "http request failed"
		if isTimeout(err) {
			msg = "http request timed out"
		}
		return nil, &NetworkError{SDKError: SDKError{Message: msg, Cause: err}}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "read response body", Cause: err}}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrorFromStatusCode(resp.StatusCode, errorMessage(data), p.name)
	}

	var completion Completion
	if err := json.Unmarshal(data, &completion); err != nil {
		return nil, &InvalidResponseError{SDKError: SDKError{Message: "failed to parse response", Cause: err}}
	}
	return &completion, nil
}

// errorMessage pulls error.message out of an error body, falling back to
// the raw text.
func errorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &detail); err == nil && detail.Message != "" {
			return detail.Message
		}
		var s string
		if err := json.Unmarshal(envelope.Error, &s); err == nil && s != "" {
			return s
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty error response"
	}
	return text
}

// isTimeout reports whether err came from the HTTP client deadline.
func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
