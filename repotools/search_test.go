package repotools

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/martinemde/spectrail/sandbox"
)

func searchFixture(t *testing.T) sandbox.Root {
	return writeFiles(t, map[string]string{
		"a.txt":              "hello World\nbye\nWORLD peace\n",
		"b/c.txt":            "the world is round",
		"b/other.txt":        "nothing here",
		"node_modules/x.txt": "world of dependencies",
		"blob.bin":           "world\x00world",
	})
}

func sortMatches(ms []GrepMatch) []GrepMatch {
	out := slices.Clone(ms)
	slices.SortFunc(out, func(a, b GrepMatch) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return a.Line - b.Line
	})
	return out
}

func TestGrepWalk(t *testing.T) {
	ws := walkWorkspace(searchFixture(t))

	res, err := grep(context.Background(), ws, &GrepArgs{Query: "world"})
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	want := []GrepMatch{
		{Path: "a.txt", Line: 1, Text: "hello World"},
		{Path: "a.txt", Line: 3, Text: "WORLD peace"},
		{Path: "b/c.txt", Line: 1, Text: "the world is round"},
	}
	if !slices.Equal(res.Matches, want) {
		t.Errorf("matches = %+v, want %+v", res.Matches, want)
	}
	if res.Engine != engineWalk || res.Count != 3 || res.Truncated {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestGrepMaxResults(t *testing.T) {
	ws := walkWorkspace(searchFixture(t))

	res, err := grep(context.Background(), ws, &GrepArgs{Query: "world", MaxResults: 2})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || !res.Truncated {
		t.Errorf("expected 2 truncated matches, got %d truncated=%v", res.Count, res.Truncated)
	}
}

func TestGrepMaxResultsWithinOneFile(t *testing.T) {
	ws := walkWorkspace(writeFiles(t, map[string]string{"notes.txt": "todo: one\nTODO: two\n"}))

	res, err := grep(context.Background(), ws, &GrepArgs{Query: "todo", MaxResults: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []GrepMatch{{Path: "notes.txt", Line: 1, Text: "todo: one"}}
	if !slices.Equal(res.Matches, want) || res.Count != 1 || !res.Truncated {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestGrepPathFilter(t *testing.T) {
	ws := walkWorkspace(searchFixture(t))

	res, err := grep(context.Background(), ws, &GrepArgs{Query: "world", Path: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != 1 || res.Matches[0].Path != "b/c.txt" {
		t.Errorf("unexpected matches %+v", res.Matches)
	}

	if _, err := grep(context.Background(), ws, &GrepArgs{Query: "world", Path: "../"}); !errors.Is(err, sandbox.ErrPathTraversal) {
		t.Errorf("expected ErrPathTraversal, got %v", err)
	}
	if _, err := grep(context.Background(), ws, &GrepArgs{Query: "world", Path: "missing"}); err == nil {
		t.Error("expected an error for a missing path filter")
	}
}

func TestGrepTruncatesLongLines(t *testing.T) {
	long := strings.Repeat("é", 150) + "needle" + strings.Repeat("x", 300)
	ws := walkWorkspace(writeFiles(t, map[string]string{"long.txt": long}))

	res, err := grep(context.Background(), ws, &GrepArgs{Query: "NEEDLE"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("expected one match, got %+v", res.Matches)
	}
	if n := len([]rune(res.Matches[0].Text)); n != MaxMatchTextChars {
		t.Errorf("match text has %d runes, want %d", n, MaxMatchTextChars)
	}
}

func TestGrepRipgrepAgreesWithWalk(t *testing.T) {
	rg := sandbox.LookPath("rg")
	if rg == "" {
		t.Skip("ripgrep not installed")
	}
	root := searchFixture(t)
	ws := walkWorkspace(root)
	ws.Searcher = rg

	res, err := grep(context.Background(), ws, &GrepArgs{Query: "world"})
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	if res.Engine != engineRipgrep {
		t.Fatalf("engine = %q", res.Engine)
	}
	walked, err := grep(context.Background(), walkWorkspace(root), &GrepArgs{Query: "world"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := sortMatches(res.Matches), sortMatches(walked.Matches); !slices.Equal(got, want) {
		t.Errorf("ripgrep matches = %+v, walk matches = %+v", got, want)
	}
}

func TestGrepRipgrepLongLinesAndHiddenFiles(t *testing.T) {
	rg := sandbox.LookPath("rg")
	if rg == "" {
		t.Skip("ripgrep not installed")
	}
	long := strings.Repeat("é", 150) + "needle" + strings.Repeat("x", 1_000)
	root := writeFiles(t, map[string]string{
		"long.txt":     long,
		".env.example": "NEEDLE=1\n",
	})
	ws := walkWorkspace(root)
	ws.Searcher = rg

	res, err := grep(context.Background(), ws, &GrepArgs{Query: "needle"})
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	walked, err := grep(context.Background(), walkWorkspace(root), &GrepArgs{Query: "needle"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Engine != engineRipgrep || res.Count != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got, want := sortMatches(res.Matches), sortMatches(walked.Matches); !slices.Equal(got, want) {
		t.Errorf("ripgrep matches = %+v, walk matches = %+v", got, want)
	}
}

func TestGrepRipgrepArguments(t *testing.T) {
	spawner := &fakeSpawner{result: sandbox.ExecResult{ExitCode: 1}}
	ws := walkWorkspace(searchFixture(t))
	ws.Searcher = "rg"
	ws.Spawn = spawner.spawn

	res, err := grep(context.Background(), ws, &GrepArgs{Query: "world"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Engine != engineRipgrep || res.Count != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(spawner.calls) != 1 {
		t.Fatalf("spawned %d times", len(spawner.calls))
	}
	args := spawner.calls[0].args
	for _, want := range []string{"--hidden", "--max-columns-preview", "--fixed-strings", "--ignore-case", "!.git", "!node_modules"} {
		if !slices.Contains(args, want) {
			t.Errorf("args %q lack %q", args, want)
		}
	}
	if i := slices.Index(args, "--max-columns"); i < 0 || args[i+1] != "800" {
		t.Errorf("max columns in %q", args)
	}
	if spawner.calls[0].timeout != SearchTimeout {
		t.Errorf("timeout = %v", spawner.calls[0].timeout)
	}
}

func TestGrepFallsBackWhenSearcherFails(t *testing.T) {
	ws := walkWorkspace(searchFixture(t))
	ws.Searcher = "rg"
	ws.Spawn = func(ctx context.Context, program string, args []string, dir string, _ time.Duration) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{}, &sandbox.CommandFailedError{Program: program, Cause: errors.New("exec format error")}
	}

	res, err := grep(context.Background(), ws, &GrepArgs{Query: "world"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Engine != engineWalk || res.Count != 3 {
		t.Errorf("expected walk fallback, got %+v", res)
	}
}

func TestGrepSearcherTimeout(t *testing.T) {
	ws := walkWorkspace(searchFixture(t))
	ws.Searcher = "rg"
	ws.Spawn = func(ctx context.Context, program string, args []string, dir string, _ time.Duration) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{}, sandbox.ErrTimeout
	}

	if _, err := grep(context.Background(), ws, &GrepArgs{Query: "world"}); !errors.Is(err, sandbox.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}
