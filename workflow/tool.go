package workflow

import (
	"context"
	"encoding/json"

	"github.com/martinemde/spectrail/config"
	"github.com/martinemde/spectrail/repotools"
	"github.com/martinemde/spectrail/sandbox"
	"github.com/martinemde/spectrail/store"
)

// ToolRun is the outcome of a single manual tool invocation.
type ToolRun struct {
	RunID  string          `json:"run_id"`
	Tool   string          `json:"tool"`
	Result json.RawMessage `json:"result"`
	Failed bool            `json:"failed"`
}

// RunTool executes one tool against the task's repository under a run of
// type "tool", with the same confinement and auditing the workflows use.
// No model is involved, so no API key is needed. Unknown tools and invalid
// arguments are rejected before the run is created.
func (e *Engine) RunTool(ctx context.Context, taskID, name, args string) (*ToolRun, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, newError(CodeDB, err, "load task %s", taskID)
	}
	project, err := e.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, newError(CodeDB, err, "load project %s", task.ProjectID)
	}
	raw, err := withProjectID(args, project.ID)
	if err != nil {
		return nil, err
	}
	if _, err := repotools.Decode(name, raw); err != nil {
		return nil, err
	}
	settings, err := e.store.AllSettings(ctx)
	if err != nil {
		return nil, newError(CodeDB, err, "load settings")
	}
	root, err := sandbox.NewRoot(project.RepoPath)
	if err != nil {
		return nil, newError(CodeRun, err, "open repository %s", project.RepoPath)
	}
	snap := config.FromSettings(settings, e.getenv)

	row, err := e.store.CreateRun(ctx, task.ID, store.RunTool, "", "")
	if err != nil {
		return nil, newError(CodeRun, err, "create run")
	}
	r := &run{
		workflow:   store.RunTool,
		id:         row.ID,
		task:       task,
		project:    project,
		dispatcher: repotools.NewDispatcher(e.workspace(root, snap), e.audit, row.ID, e.logger),
		state:      StateInit,
	}
	e.emit(r, EventRunStart, map[string]interface{}{"task_id": task.ID, "tool": name})
	content, result, err := e.callTool(ctx, r, name, raw)
	r.toolCalls = 1
	if err := e.finish(ctx, r, err); err != nil {
		return nil, err
	}
	return &ToolRun{RunID: r.id, Tool: name, Result: json.RawMessage(content), Failed: result == nil}, nil
}
