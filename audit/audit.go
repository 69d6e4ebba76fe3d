// Package audit records every tool invocation and transcript message of a
// run. Stored tool results are bounded: oversized results are replaced by
// a wrapper that keeps the truncation metadata.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/martinemde/spectrail/sandbox"
	"github.com/martinemde/spectrail/store"
)

// DefaultMaxResultSize bounds a stored, serialized tool result.
const DefaultMaxResultSize = 200_000

// Metadata keys added to bounded results.
const (
	TruncatedKey    = "_truncated"
	OriginalSizeKey = "_original_size"
	ContentKey      = "_content"
)

// Store is the subset of the record store the log writes to.
type Store interface {
	InsertToolCall(ctx context.Context, tc store.ToolCall) (store.ToolCall, error)
	ListToolCalls(ctx context.Context, runID string) ([]store.ToolCall, error)
	AppendMessage(ctx context.Context, runID, role, content string) (store.Message, error)
	ListMessages(ctx context.Context, runID string) ([]store.Message, error)
}

// Invocation is one recorded tool call.
type Invocation struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	Result    json.RawMessage `json:"result"`
	Truncated bool            `json:"truncated"`
	CreatedAt string          `json:"created_at"`
}

// Log writes tool invocations and messages to a Store.
type Log struct {
	store   Store
	maxSize int
	logger  *slog.Logger
}

type Option func(*Log)

// WithMaxResultSize overrides DefaultMaxResultSize.
func WithMaxResultSize(n int) Option {
	return func(l *Log) { l.maxSize = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(st Store, opts ...Option) *Log {
	l := &Log{store: st, maxSize: DefaultMaxResultSize, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordToolCall serializes result, bounds it and stores the invocation.
// Arguments that are not valid JSON are stored as a JSON string.
func (l *Log) RecordToolCall(ctx context.Context, runID, name string, args json.RawMessage, result any) error {
	argsJSON := "{}"
	if len(args) > 0 {
		if gjson.ValidBytes(args) {
			argsJSON = string(args)
		} else {
			quoted, _ := json.Marshal(string(args))
			argsJSON = string(quoted)
		}
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("serialize %s result: %w", name, err)
	}
	bounded, truncated := BoundResult(string(serialized), l.maxSize)
	if truncated {
		l.logger.Warn("tool result truncated for audit",
			"run_id", runID, "tool", name, "original_size", len(serialized), "max_size", l.maxSize)
	}

	if _, err := l.store.InsertToolCall(ctx, store.ToolCall{
		RunID:      runID,
		Name:       name,
		ArgsJSON:   argsJSON,
		ResultJSON: bounded,
	}); err != nil {
		return fmt.Errorf("audit %s call: %w", name, err)
	}
	return nil
}

// BoundResult returns serialized unchanged when it fits in max bytes.
// Otherwise it is cut; a cut that still parses as a JSON object gains
// _truncated and _original_size, anything else is wrapped as
// {"_truncated":true,"_original_size":N,"_content":"<cut text>"}.
func BoundResult(serialized string, max int) (string, bool) {
	cut, truncated := sandbox.Truncate(serialized, max)
	if !truncated {
		return serialized, false
	}
	size := len(serialized)

	if gjson.Valid(cut) && gjson.Parse(cut).IsObject() {
		out, err := sjson.Set(cut, TruncatedKey, true)
		if err == nil {
			out, err = sjson.Set(out, OriginalSizeKey, size)
		}
		if err == nil {
			return out, true
		}
	}

	out := `{}`
	out, _ = sjson.Set(out, TruncatedKey, true)
	out, _ = sjson.Set(out, OriginalSizeKey, size)
	out, _ = sjson.Set(out, ContentKey, cut)
	return out, true
}

// ListForRun returns a run's invocations in creation order.
func (l *Log) ListForRun(ctx context.Context, runID string) ([]Invocation, error) {
	rows, err := l.store.ListToolCalls(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]Invocation, 0, len(rows))
	for _, r := range rows {
		out = append(out, Invocation{
			ID:        r.ID,
			RunID:     r.RunID,
			Name:      r.Name,
			Args:      json.RawMessage(r.ArgsJSON),
			Result:    json.RawMessage(r.ResultJSON),
			Truncated: gjson.Get(r.ResultJSON, TruncatedKey).Bool(),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// RecordMessage appends a transcript message.
func (l *Log) RecordMessage(ctx context.Context, runID, role, content string) error {
	if _, err := l.store.AppendMessage(ctx, runID, role, content); err != nil {
		return fmt.Errorf("log %s message: %w", role, err)
	}
	return nil
}

// Transcript returns a run's messages in the order they were recorded.
func (l *Log) Transcript(ctx context.Context, runID string) ([]store.Message, error) {
	return l.store.ListMessages(ctx, runID)
}
