package repotools

import (
	"context"
	"time"

	"github.com/martinemde/spectrail/sandbox"
)

// Default bounds shared by the executors.
const (
	DefaultMaxFiles       = 2000
	DefaultMaxReadBytes   = 200_000
	DefaultMaxResults     = 200
	DefaultMaxCommits     = 10
	MaxOutputBytes        = 200_000
	MaxMatchTextChars     = 200
	GitTimeout            = 10 * time.Second
	SearchTimeout         = 30 * time.Second
	DefaultCommandTimeout = 300 * time.Second
)

// Workspace is the confined handle every executor operates on.
type Workspace struct {
	Root sandbox.Root
	// Searcher is the path of a ripgrep binary, or "" to use the built-in walk.
	Searcher string
	// CommandTimeout bounds run_command.
	CommandTimeout time.Duration
	// Spawn runs external programs; nil means sandbox.Spawn.
	Spawn sandbox.SpawnFunc
}

// NewWorkspace returns a workspace for root with ripgrep detected on PATH.
func NewWorkspace(root sandbox.Root) Workspace {
	return Workspace{
		Root:           root,
		Searcher:       sandbox.LookPath("rg"),
		CommandTimeout: DefaultCommandTimeout,
	}
}

func (w Workspace) spawn(ctx context.Context, program string, args []string, timeout time.Duration) (sandbox.ExecResult, error) {
	fn := w.Spawn
	if fn == nil {
		fn = sandbox.Spawn
	}
	return fn(ctx, program, args, w.Root.Dir(), timeout)
}

func (w Workspace) commandTimeout() time.Duration {
	if w.CommandTimeout <= 0 {
		return DefaultCommandTimeout
	}
	return w.CommandTimeout
}
