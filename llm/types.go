package llm

import "strings"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a chat transcript in the OpenAI wire shape.
// Content is a pointer so assistant tool-call messages can carry null.
type Message struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Text returns the message content or "".
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// SystemMessage creates a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: &text}
}

// UserMessage creates a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: &text}
}

// AssistantMessage creates an assistant message. Empty text with tool
// calls is sent as null content.
func AssistantMessage(text string, calls []ToolCall) Message {
	m := Message{Role: RoleAssistant, ToolCalls: calls}
	if text != "" || len(calls) == 0 {
		m.Content = &text
	}
	return m
}

// ToolResultMessage creates a tool message answering the call with callID.
func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: &content, ToolCallID: callID}
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolNames lists the function names of calls, in order.
func ToolNames(calls []ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Function.Name
	}
	return names
}

// ToolSchema describes a tool advertised to the model.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// toolDefinition is the {"type":"function"} envelope sent on the wire.
type toolDefinition struct {
	Type     string     `json:"type"`
	Function ToolSchema `json:"function"`
}

// Request is the chat completion request body.
type Request struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []toolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream"`
}

// NewRequest builds a request for model with the given transcript and tools.
func NewRequest(model string, messages []Message, tools []ToolSchema) Request {
	req := Request{Model: model, Messages: messages}
	for _, t := range tools {
		req.Tools = append(req.Tools, toolDefinition{Type: "function", Function: t})
	}
	return req
}

// ToolSchemas returns the schemas carried by the request.
func (r Request) ToolSchemas() []ToolSchema {
	out := make([]ToolSchema, len(r.Tools))
	for i, t := range r.Tools {
		out[i] = t.Function
	}
	return out
}

// Completion is the chat completion response body.
type Completion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Reply is the first choice of a completion, flattened.
type Reply struct {
	ID           string
	Model        string
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// HasToolCalls reports whether the model asked for tools.
func (r *Reply) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Message converts the reply back into an assistant transcript entry.
func (r *Reply) Message() Message {
	return AssistantMessage(r.Content, r.ToolCalls)
}

// ContentSize sums the characters of every message's content.
func ContentSize(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Text())
	}
	return total
}

// summarizeCalls renders "name(args)" pairs for logging.
func summarizeCalls(calls []ToolCall) string {
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.Function.Name + "(" + c.Function.Arguments + ")"
	}
	return strings.Join(parts, ", ")
}
