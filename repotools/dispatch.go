package repotools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Recorder receives every executed tool call.
type Recorder interface {
	RecordToolCall(ctx context.Context, runID, name string, args json.RawMessage, result any) error
}

// RecordError reports that a tool ran but could not be audited.
type RecordError struct {
	Tool string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s call: %v", e.Tool, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Execute runs a decoded call against ws.
func Execute(ctx context.Context, ws Workspace, call Call) (Result, error) {
	switch c := call.(type) {
	case *ListFilesArgs:
		r, err := listFiles(ctx, ws, c)
		return asResult(r, err)
	case *ReadFileArgs:
		r, err := readFile(ctx, ws, c)
		return asResult(r, err)
	case *GrepArgs:
		r, err := grep(ctx, ws, c)
		return asResult(r, err)
	case *GitStatusArgs:
		r, err := gitStatus(ctx, ws, c)
		return asResult(r, err)
	case *GitDiffArgs:
		r, err := gitDiff(ctx, ws, c)
		return asResult(r, err)
	case *GitLogShortArgs:
		r, err := gitLogShort(ctx, ws, c)
		return asResult(r, err)
	case *RunCommandArgs:
		r, err := runCommand(ctx, ws, c)
		return asResult(r, err)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTool, call)
	}
}

// asResult keeps a typed nil pointer from becoming a non-nil Result.
func asResult[T Result](r T, err error) (Result, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Dispatcher decodes, executes and records tool calls for one run.
type Dispatcher struct {
	ws       Workspace
	recorder Recorder
	runID    string
	logger   *slog.Logger
}

// NewDispatcher binds a workspace and recorder to runID. A nil recorder
// disables auditing; a nil logger discards.
func NewDispatcher(ws Workspace, recorder Recorder, runID string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{ws: ws, recorder: recorder, runID: runID, logger: logger}
}

// Workspace returns the confined workspace.
func (d *Dispatcher) Workspace() Workspace {
	return d.ws
}

// Dispatch runs the tool called name. Unknown tools and invalid arguments
// fail before anything executes or is recorded. Executor failures are
// recorded as an error payload and returned.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	call, err := Decode(name, args)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, execErr := Execute(ctx, d.ws, call)
	d.logger.Debug("tool executed",
		"run_id", d.runID, "tool", name, "duration", time.Since(start), "error", execErr)

	if d.recorder != nil {
		var payload any = result
		if execErr != nil {
			payload = ErrorPayload{Error: execErr.Error()}
		}
		if err := d.recorder.RecordToolCall(ctx, d.runID, name, args, payload); err != nil {
			return nil, &RecordError{Tool: name, Err: err}
		}
	}
	return result, execErr
}
