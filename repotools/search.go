package repotools

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/martinemde/spectrail/sandbox"
)

const (
	engineRipgrep = "ripgrep"
	engineWalk    = "walk"
	// maxSearchFileBytes skips large files in the built-in walk.
	maxSearchFileBytes = 5 << 20
)

func grep(ctx context.Context, ws Workspace, args *GrepArgs) (*GrepResult, error) {
	max := args.MaxResults
	if max == 0 {
		max = DefaultMaxResults
	}

	target := sandbox.Path{}
	if args.Path != "" {
		p, err := ws.Root.Resolve(args.Path)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(p.String()); err != nil {
			return nil, err
		}
		target = p
	}

	if ws.Searcher != "" {
		res, err := grepRipgrep(ctx, ws, args.Query, target, max)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, sandbox.ErrTimeout) {
			return nil, err
		}
		// ripgrep exists but failed to run; the walk still answers.
	}
	return grepWalk(ctx, ws, args.Query, target, max)
}

func grepRipgrep(ctx context.Context, ws Workspace, query string, target sandbox.Path, max int) (*GrepResult, error) {
	args := []string{
		"--line-number", "--no-heading", "--with-filename", "--null",
		"--color", "never",
		"--fixed-strings", "--ignore-case", "--hidden",
		"--max-count", strconv.Itoa(max),
		// Columns are bytes; a preview this wide always holds the
		// MaxMatchTextChars runes kept below.
		"--max-columns", strconv.Itoa(4 * MaxMatchTextChars), "--max-columns-preview",
	}
	for _, dir := range slices.Sorted(maps.Keys(skipDirs)) {
		args = append(args, "-g", "!"+dir)
	}
	args = append(args, "-e", query, "--", target.Rel())

	out, err := ws.spawn(ctx, ws.Searcher, args, SearchTimeout)
	if err != nil {
		return nil, err
	}
	// Exit 1 means no matches; 2 with no output is a real failure.
	if out.ExitCode > 1 && strings.TrimSpace(out.Stdout) == "" {
		return nil, &sandbox.CommandFailedError{Program: "rg", Cause: errors.New(strings.TrimSpace(out.Stderr))}
	}

	res := &GrepResult{Matches: []GrepMatch{}, Engine: engineRipgrep}
	for _, line := range strings.Split(out.Stdout, "\n") {
		if len(res.Matches) >= max {
			break
		}
		file, rest, ok := strings.Cut(line, "\x00")
		if !ok {
			continue
		}
		num, text, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		res.Matches = append(res.Matches, GrepMatch{
			Path: strings.TrimPrefix(filepath.ToSlash(file), "./"),
			Line: n,
			Text: sandbox.TruncateRunes(strings.TrimRight(text, "\r"), MaxMatchTextChars),
		})
	}
	res.Count = len(res.Matches)
	res.Truncated = res.Count >= max
	return res, nil
}

func grepWalk(ctx context.Context, ws Workspace, query string, target sandbox.Path, max int) (*GrepResult, error) {
	needle := strings.ToLower(query)
	res := &GrepResult{Matches: []GrepMatch{}, Engine: engineWalk}

	root := ws.Root.Dir()
	start := root
	if target.String() != "" {
		start = target.String()
	}

	err := walkRepo(ctx, root, start, func(abs, rel string) error {
		info, err := os.Stat(abs)
		if err != nil || info.Size() > maxSearchFileBytes {
			return nil
		}
		data, err := os.ReadFile(abs)
		if err != nil || bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSuffix(line, "\r")
			if !strings.Contains(strings.ToLower(line), needle) {
				continue
			}
			res.Matches = append(res.Matches, GrepMatch{
				Path: rel,
				Line: i + 1,
				Text: sandbox.TruncateRunes(line, MaxMatchTextChars),
			})
			if len(res.Matches) >= max {
				return errStopWalk
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Count = len(res.Matches)
	res.Truncated = res.Count >= max
	return res, nil
}
