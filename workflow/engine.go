// Package workflow drives the plan and verify runs: it snapshots settings,
// talks to the model, executes repository tools and persists the
// transcript and the resulting artifact.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/martinemde/spectrail/audit"
	"github.com/martinemde/spectrail/config"
	"github.com/martinemde/spectrail/llm"
	"github.com/martinemde/spectrail/repotools"
	"github.com/martinemde/spectrail/sandbox"
	"github.com/martinemde/spectrail/store"
)

// ChatClient is the slice of llm.Client a workflow needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema) (*llm.Reply, error)
}

// ChatFactory builds a client from a settings snapshot.
type ChatFactory func(cfg llm.Config) (ChatClient, error)

// WorkspaceFactory builds the confined tool workspace for a run.
type WorkspaceFactory func(root sandbox.Root, snap config.Snapshot) repotools.Workspace

// Engine runs workflows against one store.
type Engine struct {
	store     *store.Store
	audit     *audit.Log
	newChat   ChatFactory
	workspace WorkspaceFactory
	getenv    func(string) string
	logger    *slog.Logger
	events    *EventEmitter
}

type Option func(*Engine)

// WithChatFactory replaces the default llm.Client construction.
func WithChatFactory(f ChatFactory) Option {
	return func(e *Engine) { e.newChat = f }
}

// WithWorkspace replaces the default workspace construction.
func WithWorkspace(f WorkspaceFactory) Option {
	return func(e *Engine) { e.workspace = f }
}

// WithGetenv sets the environment lookup used for the API key fallback.
func WithGetenv(getenv func(string) string) Option {
	return func(e *Engine) { e.getenv = getenv }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithEvents publishes progress to emitter.
func WithEvents(emitter *EventEmitter) Option {
	return func(e *Engine) { e.events = emitter }
}

// NewEngine creates an engine on st.
func NewEngine(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		getenv: os.Getenv,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newChat == nil {
		logger := e.logger
		e.newChat = func(cfg llm.Config) (ChatClient, error) {
			return llm.NewClient(cfg, llm.WithLogger(logger))
		}
	}
	if e.workspace == nil {
		e.workspace = func(root sandbox.Root, snap config.Snapshot) repotools.Workspace {
			ws := repotools.NewWorkspace(root)
			ws.CommandTimeout = snap.CommandTimeout
			return ws
		}
	}
	e.audit = audit.New(st, audit.WithLogger(e.logger))
	return e
}

// run is the mutable state of one workflow execution.
type run struct {
	workflow   string
	id         string
	task       store.Task
	project    store.Project
	chat       ChatClient
	dispatcher *repotools.Dispatcher
	state      State
	messages   []llm.Message
	toolCalls  int
	truncated  bool
}

// start snapshots settings and opens the run row. Nothing is written
// before every precondition holds.
func (e *Engine) start(ctx context.Context, taskID, runType string) (*run, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, newError(CodeDB, err, "load task %s", taskID)
	}
	project, err := e.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, newError(CodeDB, err, "load project %s", task.ProjectID)
	}
	settings, err := e.store.AllSettings(ctx)
	if err != nil {
		return nil, newError(CodeDB, err, "load settings")
	}
	snap := config.FromSettings(settings, e.getenv)
	if !snap.HasAPIKey() {
		return nil, newError(CodeNoAPIKey, nil, "API key not set in settings or %s environment variable", config.APIKeyEnv)
	}
	root, err := sandbox.NewRoot(project.RepoPath)
	if err != nil {
		return nil, newError(CodeRun, err, "open repository %s", project.RepoPath)
	}
	chat, err := e.newChat(snap.LLM)
	if err != nil {
		return nil, newError(CodeLLM, err, "configure LLM client")
	}

	row, err := e.store.CreateRun(ctx, task.ID, runType, snap.LLM.ProviderName, snap.LLM.Model)
	if err != nil {
		return nil, newError(CodeRun, err, "create run")
	}
	r := &run{
		workflow:   runType,
		id:         row.ID,
		task:       task,
		project:    project,
		chat:       chat,
		dispatcher: repotools.NewDispatcher(e.workspace(root, snap), e.audit, row.ID, e.logger),
		state:      StateInit,
	}
	e.logger.Info("run started", "workflow", runType, "run_id", r.id, "task_id", task.ID, "model", snap.LLM.Model)
	e.emit(r, EventRunStart, map[string]interface{}{"task_id": task.ID, "project_id": project.ID})
	return r, nil
}

// finish closes the run row. A failed run keeps its partial transcript.
func (e *Engine) finish(ctx context.Context, r *run, runErr error) error {
	if runErr != nil {
		if !r.state.Terminal() {
			_ = e.advance(r, SignalFailed)
		}
		e.logger.Error("run failed", "workflow", r.workflow, "run_id", r.id, "error", runErr)
		e.emit(r, EventError, map[string]interface{}{"error": runErr.Error(), "code": string(CodeOf(runErr))})
	}
	// The run is closed even when the context was cancelled.
	if err := e.store.FinishRun(context.WithoutCancel(ctx), r.id); err != nil {
		e.logger.Warn("finish run", "run_id", r.id, "error", err)
		if runErr == nil {
			return newError(CodeRun, err, "finish run %s", r.id)
		}
	}
	e.emit(r, EventRunEnd, map[string]interface{}{"state": string(r.state)})
	return runErr
}

func (e *Engine) advance(r *run, sig Signal) error {
	next, err := Transition(r.state, sig)
	if err != nil {
		return newError(CodeRun, err, "run %s", r.id)
	}
	e.logger.Debug("state change", "run_id", r.id, "from", r.state, "to", next)
	e.emit(r, EventStateChange, map[string]interface{}{"from": string(r.state), "to": string(next)})
	r.state = next
	return nil
}

func (e *Engine) emit(r *run, kind EventKind, data map[string]interface{}) {
	e.events.Emit(RunEvent{Kind: kind, RunID: r.id, Workflow: r.workflow, Data: data})
}

// record appends msg to the persisted transcript. Assistant messages that
// only carry tool calls are stored as a summary of the calls.
func (e *Engine) record(ctx context.Context, r *run, msg llm.Message) error {
	content := msg.Text()
	if content == "" && len(msg.ToolCalls) > 0 {
		content = "Calling tools: " + strings.Join(llm.ToolNames(msg.ToolCalls), ", ")
	}
	if err := e.audit.RecordMessage(ctx, r.id, string(msg.Role), content); err != nil {
		return newError(CodeLog, err, "log %s message", msg.Role)
	}
	return nil
}

// callTool dispatches one tool and returns the JSON the model will see.
// Tool failures are never fatal; they come back as an error payload with
// a nil Result. Only a failure to audit the call aborts the run.
func (e *Engine) callTool(ctx context.Context, r *run, name string, args json.RawMessage) (string, repotools.Result, error) {
	e.emit(r, EventToolCallStart, map[string]interface{}{"tool": name})
	result, err := r.dispatcher.Dispatch(ctx, name, args)
	var recErr *repotools.RecordError
	if errors.As(err, &recErr) {
		return "", nil, newError(CodeLog, err, "audit %s call", name)
	}
	if err != nil {
		e.logger.Warn("tool call failed", "run_id", r.id, "tool", name, "error", err)
		e.emit(r, EventToolCallEnd, map[string]interface{}{"tool": name, "error": err.Error()})
		return errorJSON(err.Error()), nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errorJSON(err.Error()), nil, nil
	}
	e.emit(r, EventToolCallEnd, map[string]interface{}{"tool": name, "truncated": result.IsTruncated()})
	return string(data), result, nil
}

func errorJSON(msg string) string {
	data, _ := json.Marshal(repotools.ErrorPayload{Error: msg})
	return string(data)
}

// withProjectID parses model-supplied arguments, which must be a JSON
// object, and fills in project_id when the model left it out.
func withProjectID(raw, projectID string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return nil, errors.New("arguments must be a JSON object")
	}
	if gjson.Get(raw, "project_id").Exists() {
		return json.RawMessage(raw), nil
	}
	out, err := sjson.Set(raw, "project_id", projectID)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}
