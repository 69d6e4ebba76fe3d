package repotools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Name identifies a tool. The set is closed: AllNames lists every member.
type Name string

const (
	ListFiles   Name = "list_files"
	ReadFile    Name = "read_file"
	Grep        Name = "grep"
	GitStatus   Name = "git_status"
	GitDiff     Name = "git_diff"
	GitLogShort Name = "git_log_short"
	RunCommand  Name = "run_command"
)

// AllNames is every dispatchable tool, in advertisement order.
var AllNames = []Name{ListFiles, ReadFile, Grep, GitStatus, GitDiff, GitLogShort, RunCommand}

// ErrUnknownTool is returned for names outside AllNames.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError reports arguments that do not fit a tool's shape.
type ValidationError struct {
	Tool    Name
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Message)
	}
	return fmt.Sprintf("invalid arguments for %s: %s: %s", e.Tool, e.Field, e.Message)
}

// Call is a decoded, validated tool invocation. It is implemented only by
// the argument types in this package.
type Call interface {
	Tool() Name
	validate() error
}

// ListFilesArgs lists repository files, optionally filtered by doublestar globs.
type ListFilesArgs struct {
	MaxFiles int      `json:"max_files,omitempty"`
	Globs    []string `json:"globs,omitempty"`
}

// ReadFileArgs reads one file, keeping at most MaxBytes of its content.
type ReadFileArgs struct {
	Path     string `json:"path"`
	MaxBytes int    `json:"max_bytes,omitempty"`
}

// GrepArgs searches file contents for a case-insensitive literal.
type GrepArgs struct {
	Query      string `json:"query"`
	Path       string `json:"path,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// GitStatusArgs takes no arguments.
type GitStatusArgs struct{}

// GitDiffArgs selects the staged or the unstaged diff.
type GitDiffArgs struct {
	Staged bool `json:"staged,omitempty"`
}

// GitLogShortArgs bounds the number of commits listed.
type GitLogShortArgs struct {
	MaxCommits int `json:"max_commits,omitempty"`
}

// RunCommandArgs names an allow-listed check; Runner is detected when empty.
type RunCommandArgs struct {
	Kind   CommandKind `json:"kind"`
	Runner Runner      `json:"runner,omitempty"`
}

func (*ListFilesArgs) Tool() Name   { return ListFiles }
func (*ReadFileArgs) Tool() Name    { return ReadFile }
func (*GrepArgs) Tool() Name        { return Grep }
func (*GitStatusArgs) Tool() Name   { return GitStatus }
func (*GitDiffArgs) Tool() Name     { return GitDiff }
func (*GitLogShortArgs) Tool() Name { return GitLogShort }
func (*RunCommandArgs) Tool() Name  { return RunCommand }

func (a *ListFilesArgs) validate() error {
	if a.MaxFiles < 0 {
		return &ValidationError{Tool: ListFiles, Field: "max_files", Message: "must not be negative"}
	}
	for _, g := range a.Globs {
		if !doublestar.ValidatePattern(g) {
			return &ValidationError{Tool: ListFiles, Field: "globs", Message: fmt.Sprintf("invalid pattern %q", g)}
		}
	}
	return nil
}

func (a *ReadFileArgs) validate() error {
	if a.Path == "" {
		return &ValidationError{Tool: ReadFile, Field: "path", Message: "is required"}
	}
	if a.MaxBytes < 0 {
		return &ValidationError{Tool: ReadFile, Field: "max_bytes", Message: "must not be negative"}
	}
	return nil
}

func (a *GrepArgs) validate() error {
	if a.Query == "" {
		return &ValidationError{Tool: Grep, Field: "query", Message: "is required"}
	}
	if a.MaxResults < 0 {
		return &ValidationError{Tool: Grep, Field: "max_results", Message: "must not be negative"}
	}
	return nil
}

func (*GitStatusArgs) validate() error { return nil }
func (*GitDiffArgs) validate() error   { return nil }

func (a *GitLogShortArgs) validate() error {
	if a.MaxCommits < 0 {
		return &ValidationError{Tool: GitLogShort, Field: "max_commits", Message: "must not be negative"}
	}
	return nil
}

func (a *RunCommandArgs) validate() error {
	switch a.Kind {
	case KindTests, KindLint, KindBuild:
	case "":
		return &ValidationError{Tool: RunCommand, Field: "kind", Message: "is required"}
	default:
		return &ValidationError{Tool: RunCommand, Field: "kind", Message: fmt.Sprintf("must be tests, lint or build, got %q", a.Kind)}
	}
	if a.Runner != "" && !knownRunners[a.Runner] {
		return &ValidationError{Tool: RunCommand, Field: "runner", Message: fmt.Sprintf("unknown runner %q", a.Runner)}
	}
	return nil
}

// Decode converts loosely typed JSON arguments into the typed call for
// name. Unknown fields such as project_id are ignored.
func Decode(name string, raw json.RawMessage) (Call, error) {
	var call Call
	switch Name(name) {
	case ListFiles:
		call = &ListFilesArgs{}
	case ReadFile:
		call = &ReadFileArgs{}
	case Grep:
		call = &GrepArgs{}
	case GitStatus:
		call = &GitStatusArgs{}
	case GitDiff:
		call = &GitDiffArgs{}
	case GitLogShort:
		call = &GitLogShortArgs{}
	case RunCommand:
		call = &RunCommandArgs{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if raw[0] != '{' {
		return nil, &ValidationError{Tool: call.Tool(), Message: "arguments must be a JSON object"}
	}
	if err := json.Unmarshal(raw, call); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ValidationError{Tool: call.Tool(), Field: typeErr.Field, Message: "expected " + typeErr.Type.String()}
		}
		return nil, &ValidationError{Tool: call.Tool(), Message: err.Error()}
	}
	if err := call.validate(); err != nil {
		return nil, err
	}
	return call, nil
}
