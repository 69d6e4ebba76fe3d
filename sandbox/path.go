package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned for absolute inputs and for paths that
// resolve outside the root.
var ErrPathTraversal = errors.New("path traversal attempt blocked")

// InvalidPathError reports a root or path that cannot be canonicalized.
type InvalidPathError struct {
	Path   string
	Reason string
	Cause  error
}

func (e *InvalidPathError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid path %q: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

func (e *InvalidPathError) Unwrap() error {
	return e.Cause
}

// Root is a repository directory that confined paths and spawned
// processes are restricted to.
type Root struct {
	dir string
}

// NewRoot returns a Root for an existing directory.
func NewRoot(dir string) (Root, error) {
	if dir == "" {
		return Root{}, &InvalidPathError{Path: dir, Reason: "empty repository root"}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, &InvalidPathError{Path: dir, Reason: "cannot make root absolute", Cause: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Root{}, &InvalidPathError{Path: dir, Reason: "repository root does not exist", Cause: err}
	}
	if !info.IsDir() {
		return Root{}, &InvalidPathError{Path: dir, Reason: "repository root is not a directory"}
	}
	return Root{dir: filepath.Clean(abs)}, nil
}

// Dir returns the absolute root directory.
func (r Root) Dir() string {
	return r.dir
}

// Resolve confines rel to the root. See the package-level Resolve.
func (r Root) Resolve(rel string) (Path, error) {
	return Resolve(r.dir, rel)
}

// Path is a location proven to lie inside a root when it was built.
type Path struct {
	abs string
	rel string
}

// String returns the absolute path.
func (p Path) String() string {
	return p.abs
}

// Rel returns the root-relative path using forward slashes. The root
// itself is ".".
func (p Path) Rel() string {
	if p.rel == "" {
		return "."
	}
	return p.rel
}

// Resolve joins rel onto root component by component. Absolute inputs and
// ".." segments that climb above the root fail with ErrPathTraversal. When
// the target exists its symlink-resolved form must still be inside the
// resolved root; otherwise the absolute forms are compared.
func Resolve(root, rel string) (Path, error) {
	if isAbsolute(rel) {
		return Path{}, ErrPathTraversal
	}

	var parts []string
	for _, comp := range strings.Split(strings.ReplaceAll(rel, `\`, "/"), "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return Path{}, ErrPathTraversal
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, comp)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Path{}, &InvalidPathError{Path: root, Reason: "cannot make root absolute", Cause: err}
	}
	full := filepath.Join(append([]string{absRoot}, parts...)...)

	if _, err := os.Lstat(full); err == nil {
		canonRoot, err := filepath.EvalSymlinks(absRoot)
		if err != nil {
			return Path{}, &InvalidPathError{Path: root, Reason: "cannot canonicalize repository root", Cause: err}
		}
		canonFull, err := filepath.EvalSymlinks(full)
		if err != nil {
			// Dangling symlink: nothing to read through it.
			return Path{}, &InvalidPathError{Path: rel, Reason: "cannot canonicalize path", Cause: err}
		}
		if !within(canonRoot, canonFull) {
			return Path{}, ErrPathTraversal
		}
	} else if !within(absRoot, full) {
		return Path{}, ErrPathTraversal
	}

	return Path{abs: full, rel: strings.Join(parts, "/")}, nil
}

func isAbsolute(p string) bool {
	if p == "" {
		return false
	}
	if filepath.IsAbs(p) || p[0] == '/' || p[0] == '\\' {
		return true
	}
	// Windows drive letters are rejected on every platform.
	return len(p) >= 2 && p[1] == ':' && ((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}

func within(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	if p == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(p, root)
}
