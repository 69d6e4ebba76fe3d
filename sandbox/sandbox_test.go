package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestRoot(t *testing.T) Root {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src", "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	root, err := NewRoot(dir)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	return root
}

func TestResolveInsideRoot(t *testing.T) {
	root := newTestRoot(t)

	cases := map[string]string{
		"src/main.go":            "src/main.go",
		"./src/./main.go":        "src/main.go",
		`src\pkg`:                "src/pkg",
		"src/pkg/../main.go":     "src/main.go",
		"new/file/not/there.txt": "new/file/not/there.txt",
		"":                       ".",
	}
	for in, want := range cases {
		p, err := root.Resolve(in)
		if err != nil {
			t.Errorf("Resolve(%q): unexpected error %v", in, err)
			continue
		}
		if p.Rel() != want {
			t.Errorf("Resolve(%q).Rel() = %q, want %q", in, p.Rel(), want)
		}
		if !strings.HasPrefix(p.String(), root.Dir()) {
			t.Errorf("Resolve(%q) = %q, not under %q", in, p.String(), root.Dir())
		}
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	root := newTestRoot(t)

	for _, in := range []string{
		"..",
		"../etc/passwd",
		"src/../../outside",
		"src/pkg/../../../x",
		`..\..\windows`,
		"a/b/../../../c",
	} {
		if _, err := root.Resolve(in); !errors.Is(err, ErrPathTraversal) {
			t.Errorf("Resolve(%q): expected ErrPathTraversal, got %v", in, err)
		}
	}
}

func TestResolveRejectsAbsolute(t *testing.T) {
	root := newTestRoot(t)

	inputs := []string{"/etc/passwd", `\temp`, "C:\\Windows", "c:/x", filepath.Join(root.Dir(), "src")}
	for _, in := range inputs {
		if _, err := root.Resolve(in); !errors.Is(err, ErrPathTraversal) {
			t.Errorf("Resolve(%q): expected ErrPathTraversal, got %v", in, err)
		}
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := newTestRoot(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root.Dir(), "escape")); err != nil {
		t.Fatal(err)
	}

	if _, err := root.Resolve("escape/secret"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("expected ErrPathTraversal for symlink escape, got %v", err)
	}
}

func TestNewRootInvalid(t *testing.T) {
	var invalid *InvalidPathError
	if _, err := NewRoot(filepath.Join(t.TempDir(), "missing")); !errors.As(err, &invalid) {
		t.Errorf("expected InvalidPathError, got %v", err)
	}
	if _, err := NewRoot(""); !errors.As(err, &invalid) {
		t.Errorf("expected InvalidPathError for empty root, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	inputs := []string{"", "hello", "héllo wörld", strings.Repeat("ab", 100), "日本語のテキスト"}
	for _, text := range inputs {
		for n := -1; n <= len(text)+2; n++ {
			got, truncated := Truncate(text, n)
			limit := n
			if limit < 0 {
				limit = 0
			}
			if len(got) > limit {
				t.Fatalf("Truncate(%q, %d) = %q longer than bound", text, n, got)
			}
			if truncated != (len(text) > limit) {
				t.Fatalf("Truncate(%q, %d) flag = %v", text, n, truncated)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("Truncate(%q, %d) produced invalid UTF-8", text, n)
			}
			if !strings.HasPrefix(text, got) {
				t.Fatalf("Truncate(%q, %d) = %q is not a prefix", text, n, got)
			}
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("日本語テキスト", 3); got != "日本語" {
		t.Errorf("got %q", got)
	}
	if got := TruncateRunes("short", 200); got != "short" {
		t.Errorf("got %q", got)
	}
}

func TestSpawnCapturesOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	root := newTestRoot(t)

	res, err := Spawn(context.Background(), "sh", []string{"-c", "echo out; echo err 1>&2; exit 3"}, root.Dir(), 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("unexpected output: %+v", res)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
}

func TestSpawnTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	root := newTestRoot(t)

	start := time.Now()
	_, err := Spawn(context.Background(), "sleep", []string{"10"}, root.Dir(), 100*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout took too long: %v", time.Since(start))
	}
}

func TestSpawnMissingProgram(t *testing.T) {
	root := newTestRoot(t)
	_, err := Spawn(context.Background(), "definitely-not-a-real-binary-xyz", nil, root.Dir(), time.Second)
	var failed *CommandFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected CommandFailedError, got %v", err)
	}
}

func TestFilterEnvironmentDropsSecrets(t *testing.T) {
	t.Setenv("SPECTRAIL_API_KEY", "secret")
	t.Setenv("SPECTRAIL_HARMLESS", "ok")

	env := strings.Join(filterEnvironment(), "\n")
	if strings.Contains(env, "SPECTRAIL_API_KEY=") {
		t.Error("API key leaked into child environment")
	}
	if !strings.Contains(env, "SPECTRAIL_HARMLESS=ok") {
		t.Error("harmless variable was dropped")
	}
}
