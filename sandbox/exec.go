package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a spawned process exceeds its bound.
var ErrTimeout = errors.New("command timed out")

// CommandFailedError reports a process that could not be started or waited on.
type CommandFailedError struct {
	Program string
	Cause   error
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command failed: %s: %v", e.Program, e.Cause)
}

func (e *CommandFailedError) Unwrap() error {
	return e.Cause
}

// ExecResult holds the captured output of a finished process.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// SpawnFunc matches Spawn so callers can substitute a fake runner.
type SpawnFunc func(ctx context.Context, program string, args []string, dir string, timeout time.Duration) (ExecResult, error)

// Spawn runs program with args in dir and waits at most timeout. The child
// gets its own process group, which is killed on timeout. A non-zero exit
// status is reported in the result, not as an error.
func Spawn(ctx context.Context, program string, args []string, dir string, timeout time.Duration) (ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = dir
	cmd.Env = filterEnvironment()
	setProcessGroup(cmd)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := ExecResult{
		Stdout:   strings.ToValidUTF8(stdout.String(), "�"),
		Stderr:   strings.ToValidUTF8(stderr.String(), "�"),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return result, fmt.Errorf("%s after %s: %w", program, timeout, ErrTimeout)
			}
			return result, &CommandFailedError{Program: program, Cause: ctxErr}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, &CommandFailedError{Program: program, Cause: err}
	}
	return result, nil
}

// LookPath reports the location of an optional helper binary, or "".
func LookPath(name string) string {
	p, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return p
}

// sensitiveEnvSuffixes are stripped from the child environment.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

var keepEnv = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"NVM_DIR": true, "RUSTUP_HOME": true, "PYENV_ROOT": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if keepEnv[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}
