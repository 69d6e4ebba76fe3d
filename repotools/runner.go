package repotools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/martinemde/spectrail/sandbox"
)

// CommandKind selects the row of the allow-list.
type CommandKind string

const (
	KindTests CommandKind = "tests"
	KindLint  CommandKind = "lint"
	KindBuild CommandKind = "build"
)

// Runner is a project toolchain.
type Runner string

const (
	RunnerPnpm   Runner = "pnpm"
	RunnerNpm    Runner = "npm"
	RunnerYarn   Runner = "yarn"
	RunnerCargo  Runner = "cargo"
	RunnerPython Runner = "python"
	RunnerPytest Runner = "pytest"
)

var knownRunners = map[Runner]bool{
	RunnerPnpm: true, RunnerNpm: true, RunnerYarn: true,
	RunnerCargo: true, RunnerPython: true, RunnerPytest: true,
}

// runnerMarkers is checked in order; the first present file wins.
var runnerMarkers = []struct {
	file   string
	runner Runner
}{
	{"pnpm-lock.yaml", RunnerPnpm},
	{"yarn.lock", RunnerYarn},
	{"package-lock.json", RunnerNpm},
	{"Cargo.toml", RunnerCargo},
	{"pyproject.toml", RunnerPython},
	{"requirements.txt", RunnerPython},
}

// allowList is the only source of spawned argument vectors.
var allowList = map[Runner]map[CommandKind][]string{
	RunnerPnpm: {
		KindTests: {"pnpm", "test"},
		KindLint:  {"pnpm", "lint"},
		KindBuild: {"pnpm", "build"},
	},
	RunnerNpm: {
		KindTests: {"npm", "test"},
		KindLint:  {"npm", "run", "lint"},
		KindBuild: {"npm", "run", "build"},
	},
	RunnerYarn: {
		KindTests: {"yarn", "test"},
		KindLint:  {"yarn", "lint"},
		KindBuild: {"yarn", "build"},
	},
	RunnerCargo: {
		KindTests: {"cargo", "test"},
		KindLint:  {"cargo", "clippy", "--", "-D", "warnings"},
		KindBuild: {"cargo", "build"},
	},
	RunnerPython: {
		KindTests: {"pytest"},
		KindLint:  {"ruff", "check", "."},
	},
	RunnerPytest: {
		KindTests: {"pytest"},
	},
}

// ErrNoRunner is returned when no marker file identifies the project.
var ErrNoRunner = errors.New("could not detect project type; specify 'runner' explicitly")

// UnsupportedCommandError reports a (runner, kind) pair outside the allow-list.
type UnsupportedCommandError struct {
	Runner Runner
	Kind   CommandKind
}

func (e *UnsupportedCommandError) Error() string {
	if e.Runner == RunnerPython && e.Kind == KindBuild {
		return "python projects have no build step"
	}
	return fmt.Sprintf("unsupported runner %q for kind %q", e.Runner, e.Kind)
}

// CommandSpec is a resolved, allow-listed command.
type CommandSpec struct {
	Runner Runner
	Kind   CommandKind
	Argv   []string
}

// DetectRunner inspects marker files in dir.
func DetectRunner(dir string) (Runner, error) {
	for _, m := range runnerMarkers {
		if _, err := os.Stat(filepath.Join(dir, m.file)); err == nil {
			return m.runner, nil
		}
	}
	return "", ErrNoRunner
}

// BuildCommand looks up the argument vector for runner and kind.
func BuildCommand(runner Runner, kind CommandKind) (CommandSpec, error) {
	argv, ok := allowList[runner][kind]
	if !ok {
		return CommandSpec{}, &UnsupportedCommandError{Runner: runner, Kind: kind}
	}
	return CommandSpec{Runner: runner, Kind: kind, Argv: append([]string(nil), argv...)}, nil
}

// ResolveCommand picks the explicit runner or detects one, then builds
// the command.
func ResolveCommand(ws Workspace, args *RunCommandArgs) (CommandSpec, error) {
	runner := args.Runner
	if runner == "" {
		detected, err := DetectRunner(ws.Root.Dir())
		if err != nil {
			return CommandSpec{}, err
		}
		runner = detected
	}
	return BuildCommand(runner, args.Kind)
}

func runCommand(ctx context.Context, ws Workspace, args *RunCommandArgs) (*RunCommandResult, error) {
	spec, err := ResolveCommand(ws, args)
	if err != nil {
		return nil, err
	}

	out, err := ws.spawn(ctx, spec.Argv[0], spec.Argv[1:], ws.commandTimeout())
	if err != nil {
		return nil, err
	}

	stdout, outCut := sandbox.Truncate(out.Stdout, MaxOutputBytes)
	stderr, errCut := sandbox.Truncate(out.Stderr, MaxOutputBytes)
	return &RunCommandResult{
		Runner:     spec.Runner,
		Kind:       spec.Kind,
		Argv:       spec.Argv,
		Stdout:     stdout,
		Stderr:     stderr,
		Code:       out.ExitCode,
		DurationMs: out.Duration.Milliseconds(),
		Truncated:  outCut || errCut,
	}, nil
}
