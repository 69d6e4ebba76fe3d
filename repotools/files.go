package repotools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/martinemde/spectrail/sandbox"
)

// ErrNotUTF8 is returned by read_file for text that is not valid UTF-8.
var ErrNotUTF8 = errors.New("file is not valid UTF-8")

// skipDirs are never descended into by list_files and grep.
var skipDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"target":        true,
	"dist":          true,
	"build":         true,
	".next":         true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	".pytest_cache": true,
	".mypy_cache":   true,
}

var errStopWalk = errors.New("stop walk")

// ignoreStack holds the .gitignore matcher of every visited directory,
// keyed by its root-relative path ("" for the root).
type ignoreStack struct {
	matchers map[string]*ignore.GitIgnore
}

func newIgnoreStack() *ignoreStack {
	return &ignoreStack{matchers: make(map[string]*ignore.GitIgnore)}
}

func (s *ignoreStack) load(absDir, relDir string) {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(absDir, ".gitignore"))
	if err != nil {
		return
	}
	s.matchers[relDir] = gi
}

// ignored checks rel against the matcher of each ancestor directory.
func (s *ignoreStack) ignored(rel string, isDir bool) bool {
	dir := path.Dir(rel)
	for {
		if dir == "." {
			dir = ""
		}
		if gi, ok := s.matchers[dir]; ok {
			sub := rel
			if dir != "" {
				sub = strings.TrimPrefix(rel, dir+"/")
			}
			if gi.MatchesPath(sub) || (isDir && gi.MatchesPath(sub+"/")) {
				return true
			}
		}
		if dir == "" {
			return false
		}
		dir = path.Dir(dir)
	}
}

// walkRepo visits regular files under start in lexical order, skipping
// build/VCS directories and ignored paths. fn receives root-relative
// slash paths and may return errStopWalk.
func walkRepo(ctx context.Context, root, start string, fn func(abs, rel string) error) error {
	ign := newIgnoreStack()
	ign.load(root, "")

	// Load ignore files of the directories between root and start.
	if start != root {
		relStart, err := filepath.Rel(root, start)
		if err == nil {
			acc := ""
			for _, part := range strings.Split(filepath.ToSlash(relStart), "/") {
				acc = path.Join(acc, part)
				ign.load(filepath.Join(root, filepath.FromSlash(acc)), acc)
			}
		}
	}

	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == start {
				return err
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p == root {
			return nil
		}
		relOS, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel := filepath.ToSlash(relOS)

		if d.IsDir() {
			if p == start {
				return nil
			}
			if skipDirs[d.Name()] || ign.ignored(rel, true) {
				return filepath.SkipDir
			}
			ign.load(p, rel)
			return nil
		}
		if !d.Type().IsRegular() || ign.ignored(rel, false) {
			return nil
		}
		return fn(p, rel)
	})
	if errors.Is(err, errStopWalk) {
		return nil
	}
	return err
}

func listFiles(ctx context.Context, ws Workspace, args *ListFilesArgs) (*ListFilesResult, error) {
	max := args.MaxFiles
	if max == 0 {
		max = DefaultMaxFiles
	}

	res := &ListFilesResult{Files: []string{}}
	root := ws.Root.Dir()
	err := walkRepo(ctx, root, root, func(_, rel string) error {
		if !matchesAny(args.Globs, rel) {
			return nil
		}
		res.Files = append(res.Files, rel)
		if len(res.Files) >= max {
			return errStopWalk
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk repository: %w", err)
	}

	res.Count = len(res.Files)
	res.Truncated = res.Count >= max
	return res, nil
}

func matchesAny(globs []string, rel string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
		// Patterns without a slash also match the base name, as in .gitignore.
		if !strings.Contains(g, "/") {
			if ok, _ := doublestar.Match(g, path.Base(rel)); ok {
				return true
			}
		}
	}
	return false
}

func readFile(ctx context.Context, ws Workspace, args *ReadFileArgs) (*ReadFileResult, error) {
	max := args.MaxBytes
	if max == 0 {
		max = DefaultMaxReadBytes
	}

	p, err := ws.Root.Resolve(args.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p.String())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Rel(), err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("read %s: not a regular file", p.Rel())
	}
	data, err := os.ReadFile(p.String())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Rel(), err)
	}

	if isBinary(data) {
		return &ReadFileResult{
			Path:   p.Rel(),
			Binary: true,
			Bytes:  len(data),
			MIME:   mimetype.Detect(data).String(),
		}, nil
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("read %s: %w", p.Rel(), ErrNotUTF8)
	}

	content, truncated := sandbox.Truncate(string(data), max)
	return &ReadFileResult{
		Path:      p.Rel(),
		Content:   &content,
		Bytes:     len(data),
		Truncated: truncated,
	}, nil
}

// isBinary reports a NUL byte or any control byte other than tab, LF and CR.
func isBinary(data []byte) bool {
	for _, b := range data {
		if b == 0 || (b < 32 && b != '\t' && b != '\n' && b != '\r') {
			return true
		}
	}
	return false
}
