package repotools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/martinemde/spectrail/sandbox"
)

// writeFiles creates files (relative path -> content) under a new temp root.
func writeFiles(t *testing.T, files map[string]string) sandbox.Root {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	root, err := sandbox.NewRoot(dir)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	return root
}

// walkWorkspace forces the built-in search so results do not depend on
// whether ripgrep is installed.
func walkWorkspace(root sandbox.Root) Workspace {
	return Workspace{Root: root, CommandTimeout: DefaultCommandTimeout}
}

type spawnCall struct {
	program string
	args    []string
	dir     string
	timeout time.Duration
}

// fakeSpawner records spawn requests and replays a canned result.
type fakeSpawner struct {
	calls  []spawnCall
	result sandbox.ExecResult
	err    error
}

func (f *fakeSpawner) spawn(ctx context.Context, program string, args []string, dir string, timeout time.Duration) (sandbox.ExecResult, error) {
	f.calls = append(f.calls, spawnCall{program: program, args: args, dir: dir, timeout: timeout})
	return f.result, f.err
}

func mustJSON(t *testing.T, v any) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func writeFile(dir, rel, content string) error {
	return os.WriteFile(filepath.Join(dir, filepath.FromSlash(rel)), []byte(content), 0o644)
}
