package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/martinemde/spectrail/llm"
	"github.com/martinemde/spectrail/repotools"
	"github.com/martinemde/spectrail/sandbox"
	"github.com/martinemde/spectrail/store"
)

// Prompt section caps.
const (
	maxPlanChars  = 5_000
	maxDiffChars  = 30_000
	maxTestChars  = 10_000
	maxLintChars  = 5_000
	maxBuildChars = 5_000
)

// DefaultMaxToolCalls is the verify tool budget.
const DefaultMaxToolCalls = 8

// VerifyOptions selects the checks a verify run performs.
type VerifyOptions struct {
	RunTests     bool `json:"run_tests"`
	RunLint      bool `json:"run_lint"`
	RunBuild     bool `json:"run_build"`
	Staged       bool `json:"staged"`
	MaxToolCalls int  `json:"max_tool_calls"`
}

// DefaultVerifyOptions runs the tests against unstaged changes.
func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{RunTests: true, MaxToolCalls: DefaultMaxToolCalls}
}

type RanChecks struct {
	Tests bool `json:"tests"`
	Lint  bool `json:"lint"`
	Build bool `json:"build"`
}

// VerifyResult is the outcome of a verify run.
type VerifyResult struct {
	RunID          string    `json:"run_id"`
	ReportMD       string    `json:"report_md"`
	RanChecks      RanChecks `json:"ran_checks"`
	ToolCallsCount int       `json:"tool_calls_count"`
	Truncated      bool      `json:"truncated"`
}

// repoState is the evidence gathered before the review turn.
type repoState struct {
	plan      string
	hasPlan   bool
	staged    bool
	status    string
	diff      string
	tests     string
	lint      string
	build     string
	ran       RanChecks
	truncated bool
}

// Verify collects git state and check output with a fixed sequence of
// tool calls, then asks the model for a single review and stores it as the
// task's verification report.
func (e *Engine) Verify(ctx context.Context, taskID string, opts VerifyOptions) (*VerifyResult, error) {
	if opts.MaxToolCalls <= 0 {
		opts.MaxToolCalls = DefaultMaxToolCalls
	}
	r, err := e.start(ctx, taskID, store.RunVerify)
	if err != nil {
		return nil, err
	}
	res, err := e.verify(ctx, r, opts)
	if err = e.finish(ctx, r, err); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) verify(ctx context.Context, r *run, opts VerifyOptions) (*VerifyResult, error) {
	if err := e.advance(r, SignalStarted); err != nil {
		return nil, err
	}
	state := repoState{staged: opts.Staged}
	plan, err := e.store.GetArtifact(ctx, r.task.ID, "", store.KindPlan)
	switch {
	case err == nil:
		state.plan, state.hasPlan = plan.Content, true
	case !errors.Is(err, store.ErrNotFound):
		return nil, newError(CodeDB, err, "load plan for task %s", r.task.ID)
	}

	if err := e.advance(r, SignalContextNeeded); err != nil {
		return nil, err
	}
	if err := e.gather(ctx, r, opts, &state); err != nil {
		return nil, err
	}
	if err := e.advance(r, SignalContextGathered); err != nil {
		return nil, err
	}

	user, truncated := buildVerifyPrompt(r.task.Title, &state)
	r.truncated = truncated
	r.messages = []llm.Message{llm.SystemMessage(verifySystemPrompt), llm.UserMessage(user)}
	for _, m := range r.messages {
		if err := e.record(ctx, r, m); err != nil {
			return nil, err
		}
	}
	if err := e.advance(r, SignalPromptReady); err != nil {
		return nil, err
	}

	e.emit(r, EventLLMTurnStart, map[string]interface{}{"iteration": 1})
	reply, err := r.chat.Chat(ctx, r.messages, nil)
	if err != nil {
		return nil, newError(CodeLLM, err, "verify turn")
	}
	e.emit(r, EventLLMTurnEnd, map[string]interface{}{"iteration": 1, "finish_reason": reply.FinishReason})
	report := reply.Content
	if strings.TrimSpace(report) == "" {
		report = noResponseReport
	}
	if err := e.record(ctx, r, llm.AssistantMessage(report, nil)); err != nil {
		return nil, err
	}
	if err := e.advance(r, SignalReplyReceived); err != nil {
		return nil, err
	}

	if r.truncated {
		report += reportTruncatedNotice
	}
	if err := e.advance(r, SignalFinalized); err != nil {
		return nil, err
	}
	if _, err := e.store.UpsertArtifact(ctx, r.task.ID, "", store.KindVerificationReport, report); err != nil {
		return nil, newError(CodeArtifact, err, "save verification report for task %s", r.task.ID)
	}
	if err := e.advance(r, SignalPersisted); err != nil {
		return nil, err
	}

	e.logger.Info("verify complete", "run_id", r.id, "tool_calls", r.toolCalls, "truncated", r.truncated)
	return &VerifyResult{
		RunID:          r.id,
		ReportMD:       report,
		RanChecks:      state.ran,
		ToolCallsCount: r.toolCalls,
		Truncated:      r.truncated,
	}, nil
}

// gather runs the fixed call sequence. Git status and diff always run;
// every call counts against the budget, and a check is skipped once the
// budget is spent.
func (e *Engine) gather(ctx context.Context, r *run, opts VerifyOptions, state *repoState) error {
	call := func(name repotools.Name, args map[string]interface{}, budgeted bool) (string, bool, error) {
		if budgeted && r.toolCalls >= opts.MaxToolCalls {
			e.logger.Info("tool call skipped", "run_id", r.id, "tool", name, "budget", opts.MaxToolCalls)
			e.emit(r, EventToolCallSkipped, map[string]interface{}{"tool": string(name)})
			return "", false, nil
		}
		r.toolCalls++
		args["project_id"] = r.project.ID
		raw, _ := json.Marshal(args)
		content, result, err := e.callTool(ctx, r, string(name), raw)
		if err != nil {
			return "", true, err
		}
		if result == nil {
			return "error: " + gjson.Get(content, "error").String(), true, nil
		}
		if result.IsTruncated() {
			state.truncated = true
		}
		return formatResult(result), true, nil
	}

	var err error
	if state.status, _, err = call(repotools.GitStatus, map[string]interface{}{}, false); err != nil {
		return err
	}
	if state.diff, _, err = call(repotools.GitDiff, map[string]interface{}{"staged": opts.Staged}, false); err != nil {
		return err
	}
	if opts.RunTests {
		if state.tests, state.ran.Tests, err = call(repotools.RunCommand, map[string]interface{}{"kind": repotools.KindTests}, true); err != nil {
			return err
		}
	}
	if opts.RunLint {
		if state.lint, state.ran.Lint, err = call(repotools.RunCommand, map[string]interface{}{"kind": repotools.KindLint}, true); err != nil {
			return err
		}
	}
	if opts.RunBuild {
		if state.build, state.ran.Build, err = call(repotools.RunCommand, map[string]interface{}{"kind": repotools.KindBuild}, true); err != nil {
			return err
		}
	}
	return nil
}

// formatResult renders tool output as plain text for the review prompt.
func formatResult(result repotools.Result) string {
	switch res := result.(type) {
	case *repotools.GitStatusResult:
		return commandOutput(res.Stdout, res.Stderr, res.Code, "(clean working tree)")
	case *repotools.GitDiffResult:
		return commandOutput(res.Diff, res.Stderr, res.Code, "(no changes)")
	case *repotools.RunCommandResult:
		var b strings.Builder
		fmt.Fprintf(&b, "$ %s\nexit code: %d\n", strings.Join(res.Argv, " "), res.Code)
		if res.Stdout != "" {
			b.WriteString("\n" + res.Stdout)
		}
		if res.Stderr != "" {
			b.WriteString("\n--- stderr ---\n" + res.Stderr)
		}
		return b.String()
	default:
		data, _ := json.Marshal(result)
		return string(data)
	}
}

func commandOutput(stdout, stderr string, code int, empty string) string {
	if code != 0 {
		return fmt.Sprintf("exit code: %d\n%s%s", code, stdout, stderr)
	}
	if strings.TrimSpace(stdout) == "" {
		return empty
	}
	return stdout
}

// buildVerifyPrompt assembles the review request. It reports whether any
// section, or the whole prompt, had to be cut.
func buildVerifyPrompt(title string, state *repoState) (string, bool) {
	truncated := state.truncated
	capped := func(text string, max int) string {
		out, cut := sandbox.Truncate(text, max)
		if cut {
			truncated = true
		}
		return out
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", title)
	if state.hasPlan {
		b.WriteString("## Implementation Plan\n\n")
		b.WriteString(capped(state.plan, maxPlanChars))
		b.WriteString("\n\n---\n\n")
	} else {
		b.WriteString(noPlanNote)
	}

	b.WriteString("## Repository State\n\n")
	fmt.Fprintf(&b, "### Git Status\n```\n%s\n```\n\n", state.status)

	heading := "Unstaged Changes"
	if state.staged {
		heading = "Staged Changes"
	}
	fmt.Fprintf(&b, "### %s\n```diff\n%s\n```\n\n", heading, capped(state.diff, maxDiffChars))

	sections := []struct {
		heading string
		text    string
		max     int
	}{
		{"Test Results", state.tests, maxTestChars},
		{"Lint Results", state.lint, maxLintChars},
		{"Build Results", state.build, maxBuildChars},
	}
	for _, s := range sections {
		if s.text == "" {
			continue
		}
		fmt.Fprintf(&b, "### %s\n```\n%s\n```\n\n", s.heading, capped(s.text, s.max))
	}

	if truncated {
		b.WriteString(inputsTruncatedNote)
	}

	prompt := b.String()
	if cut, ok := sandbox.Truncate(prompt, MaxContextChars); ok {
		prompt = cut + promptTruncatedNote
		truncated = true
	}
	return prompt, truncated
}
