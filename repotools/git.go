package repotools

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/spectrail/sandbox"
)

func gitStatus(ctx context.Context, ws Workspace, _ *GitStatusArgs) (*GitStatusResult, error) {
	out, err := ws.spawn(ctx, "git", []string{"status", "--porcelain=v1", "-b"}, GitTimeout)
	if err != nil {
		return nil, err
	}
	return &GitStatusResult{Stdout: out.Stdout, Stderr: out.Stderr, Code: out.ExitCode}, nil
}

func gitDiff(ctx context.Context, ws Workspace, args *GitDiffArgs) (*GitDiffResult, error) {
	argv := []string{"diff"}
	if args.Staged {
		argv = append(argv, "--staged")
	}
	out, err := ws.spawn(ctx, "git", argv, GitTimeout)
	if err != nil {
		return nil, err
	}
	diff, truncated := sandbox.Truncate(out.Stdout, MaxOutputBytes)
	return &GitDiffResult{
		Diff:      diff,
		Stderr:    out.Stderr,
		Code:      out.ExitCode,
		Staged:    args.Staged,
		Truncated: truncated,
	}, nil
}

func gitLogShort(ctx context.Context, ws Workspace, args *GitLogShortArgs) (*GitLogResult, error) {
	n := args.MaxCommits
	if n == 0 {
		n = DefaultMaxCommits
	}
	argv := []string{"log", fmt.Sprintf("-n%d", n), "--pretty=format:%h%x09%ad%x09%s", "--date=iso"}
	out, err := ws.spawn(ctx, "git", argv, GitTimeout)
	if err != nil {
		return nil, err
	}

	commits := parseLog(out.Stdout)
	return &GitLogResult{
		Commits:   commits,
		Count:     len(commits),
		Requested: n,
		Stderr:    out.Stderr,
		Code:      out.ExitCode,
		Truncated: len(commits) >= n,
	}, nil
}

// parseLog reads "hash\tdate\tsubject" lines; malformed lines are skipped.
func parseLog(stdout string) []Commit {
	commits := []Commit{}
	for _, line := range strings.Split(stdout, "\n") {
		parts := strings.SplitN(strings.TrimRight(line, "\r"), "\t", 3)
		if len(parts) != 3 {
			continue
		}
		commits = append(commits, Commit{Hash: parts[0], Date: parts[1], Subject: parts[2]})
	}
	return commits
}
