// Package llm is the chat-completion transport used by the workflows.
//
// # Architecture
//
//   - Types: Message, ToolCall and ToolSchema in the OpenAI wire shape.
//   - Providers: OpenAIProvider posts to {base_url}/chat/completions;
//     GollmProvider reaches hosted APIs through github.com/teilomillet/gollm
//     when no base URL is configured.
//   - Client: fails fast without an API key, runs middleware around each
//     attempt and retries transient failures.
//
// # Errors and retries
//
// ErrorFromStatusCode maps HTTP statuses onto typed errors. Network errors,
// 429 and 5xx are transient; 401, other 4xx and unparseable bodies are
// permanent. Retries use exponential backoff (500ms initial, 4s cap, 30s
// total) and the last error is returned once the budget is spent.
//
//	client, err := llm.NewClient(cfg, llm.WithMiddleware(llm.LoggingMiddleware(logger)))
//	reply, err := client.Chat(ctx, []llm.Message{llm.UserMessage("hi")}, nil)
package llm
