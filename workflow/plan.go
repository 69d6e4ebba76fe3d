package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/spectrail/llm"
	"github.com/martinemde/spectrail/repotools"
	"github.com/martinemde/spectrail/store"
)

const (
	// MaxPlanIterations bounds the LLM turns of a plan run.
	MaxPlanIterations = 12
	// MaxContextChars is the transcript size that triggers compaction.
	MaxContextChars = 100_000
	// KeepRecentMessages is how many messages survive compaction besides
	// the system prompt.
	KeepRecentMessages = 6
)

// PlanResult is the outcome of a plan run.
type PlanResult struct {
	RunID          string `json:"run_id"`
	PlanMD         string `json:"plan_md"`
	ToolCallsCount int    `json:"tool_calls_count"`
	Iterations     int    `json:"iterations"`
	Truncated      bool   `json:"truncated"`
}

// Plan lets the model explore the task's repository with tools and stores
// the Markdown plan it writes as the task's plan artifact, replacing any
// previous one.
func (e *Engine) Plan(ctx context.Context, taskID string) (*PlanResult, error) {
	r, err := e.start(ctx, taskID, store.RunPlan)
	if err != nil {
		return nil, err
	}
	res, err := e.plan(ctx, r)
	if err = e.finish(ctx, r, err); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) plan(ctx context.Context, r *run) (*PlanResult, error) {
	if err := e.advance(r, SignalStarted); err != nil {
		return nil, err
	}
	r.messages = []llm.Message{
		llm.SystemMessage(planSystemPrompt),
		llm.UserMessage(planUserPrompt(r.task.Title, r.project.RepoPath)),
	}
	for _, m := range r.messages {
		if err := e.record(ctx, r, m); err != nil {
			return nil, err
		}
	}
	if err := e.advance(r, SignalPromptReady); err != nil {
		return nil, err
	}

	tools := repotools.Schemas()
	var (
		history    []llm.ToolCall
		final      string
		iterations int
		answered   bool
	)
	for r.state == StateLLMTurn {
		if size := llm.ContentSize(r.messages); size > MaxContextChars {
			r.messages = compactHistory(r.messages, KeepRecentMessages)
			r.truncated = true
			e.logger.Warn("context compacted", "run_id", r.id, "size", size, "kept", len(r.messages))
			e.emit(r, EventContextTruncated, map[string]interface{}{"size": size, "kept": len(r.messages)})
		}

		iterations++
		e.emit(r, EventLLMTurnStart, map[string]interface{}{"iteration": iterations})
		reply, err := r.chat.Chat(ctx, r.messages, tools)
		if err != nil {
			return nil, newError(CodeLLM, err, "plan turn %d", iterations)
		}
		e.emit(r, EventLLMTurnEnd, map[string]interface{}{
			"iteration": iterations, "tool_calls": len(reply.ToolCalls), "finish_reason": reply.FinishReason,
		})

		if !reply.HasToolCalls() {
			final, answered = reply.Content, true
			if err := e.record(ctx, r, llm.AssistantMessage(final, nil)); err != nil {
				return nil, err
			}
			if err := e.advance(r, SignalReplyReceived); err != nil {
				return nil, err
			}
			break
		}

		if err := e.advance(r, SignalToolCallsRequested); err != nil {
			return nil, err
		}
		r.toolCalls += len(reply.ToolCalls)
		assistant := reply.Message()
		r.messages = append(r.messages, assistant)
		if err := e.record(ctx, r, assistant); err != nil {
			return nil, err
		}
		for _, call := range reply.ToolCalls {
			content, err := e.executeCall(ctx, r, call)
			if err != nil {
				return nil, err
			}
			msg := llm.ToolResultMessage(call.ID, content)
			r.messages = append(r.messages, msg)
			if err := e.record(ctx, r, msg); err != nil {
				return nil, err
			}
		}

		history = append(history, reply.ToolCalls...)
		if detectLoop(history, loopWindow) {
			e.logger.Warn("repeating tool calls", "run_id", r.id, "window", loopWindow)
			e.emit(r, EventLoopDetected, map[string]interface{}{"window": loopWindow})
		}

		sig := SignalToolsDone
		if iterations >= MaxPlanIterations {
			sig = SignalIterationLimit
		}
		if err := e.advance(r, sig); err != nil {
			return nil, err
		}
	}

	switch {
	case !answered:
		e.logger.Warn("plan iteration limit reached", "run_id", r.id, "iterations", iterations)
		e.emit(r, EventIterationLimit, map[string]interface{}{"iterations": iterations})
		final = iterationLimitMessage(MaxPlanIterations)
		r.truncated = true
	case strings.TrimSpace(final) == "":
		final = noResponseReport
	}
	if r.truncated {
		final += planTruncatedNotice
	}
	if err := e.advance(r, SignalFinalized); err != nil {
		return nil, err
	}

	if _, err := e.store.UpsertArtifact(ctx, r.task.ID, "", store.KindPlan, final); err != nil {
		return nil, newError(CodeArtifact, err, "save plan for task %s", r.task.ID)
	}
	if err := e.advance(r, SignalPersisted); err != nil {
		return nil, err
	}

	e.logger.Info("plan complete", "run_id", r.id, "iterations", iterations, "tool_calls", r.toolCalls, "truncated", r.truncated)
	return &PlanResult{
		RunID:          r.id,
		PlanMD:         final,
		ToolCallsCount: r.toolCalls,
		Iterations:     iterations,
		Truncated:      r.truncated,
	}, nil
}

// executeCall runs one model-requested tool call.
func (e *Engine) executeCall(ctx context.Context, r *run, call llm.ToolCall) (string, error) {
	args, err := withProjectID(call.Function.Arguments, r.project.ID)
	if err != nil {
		e.logger.Warn("bad tool arguments", "run_id", r.id, "tool", call.Function.Name, "error", err)
		return errorJSON(fmt.Sprintf("failed to parse tool args: %v", err)), nil
	}
	content, _, err := e.callTool(ctx, r, call.Function.Name, args)
	return content, err
}

// compactHistory keeps the system prompt and the last keep messages.
// Tool results whose assistant call was dropped are discarded too, so the
// transcript stays acceptable to the model.
func compactHistory(messages []llm.Message, keep int) []llm.Message {
	if len(messages) < 3 || len(messages)-1 <= keep {
		return messages
	}
	tail := messages[len(messages)-keep:]
	for len(tail) > 0 && tail[0].Role == llm.RoleTool {
		tail = tail[1:]
	}
	out := make([]llm.Message, 0, len(tail)+2)
	out = append(out, messages[0])
	if len(tail) == 0 {
		// Nothing but orphaned results: fall back to the task prompt.
		out = append(out, messages[1])
	}
	return append(out, tail...)
}
