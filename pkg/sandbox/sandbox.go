// Package sandbox confines client-supplied paths to a server-defined root.
//
// Resolution is lexical: the input is joined with the session's current
// directory, cleaned, and then required to be the root itself or a descendant
// of it. Absolute inputs are anchored at the root, never at the host root.
// Existing paths are additionally checked after symlink evaluation so that a
// link inside the tree cannot point a session outside it.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrOutsideRoot is returned when a path normalizes outside the root.
	ErrOutsideRoot = errors.New("access denied: path is outside the shared directory")

	// ErrNotFound is returned when a required path does not exist.
	ErrNotFound = errors.New("no such file or directory")

	// ErrNotDirectory is returned when a directory was required.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotRegular is returned when a regular file was required.
	ErrNotRegular = errors.New("not a regular file")

	// ErrInvalidPath is returned for inputs that cannot name a file.
	ErrInvalidPath = errors.New("invalid path")

	// ErrReserved is returned for names filebox keeps for itself.
	ErrReserved = errors.New("name is reserved")
)

// TempPrefix starts the name of every in-progress upload. Such files are
// never resolved, listed or indexed.
const TempPrefix = ".filebox-upload-"

// IsTemp reports whether name is an in-progress upload.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, TempPrefix)
}

// Require names the filesystem property a resolved path must satisfy.
type Require int

const (
	// Any performs only the containment check.
	Any Require = iota
	// Exists requires the path to exist.
	Exists
	// Dir requires an existing directory.
	Dir
	// Regular requires an existing regular file.
	Regular
	// Creatable requires the parent to be an existing directory and the path
	// itself to be absent or a regular file.
	Creatable
)

func (r Require) String() string {
	switch r {
	case Any:
		return "any"
	case Exists:
		return "exists"
	case Dir:
		return "dir"
	case Regular:
		return "regular"
	case Creatable:
		return "creatable"
	default:
		return fmt.Sprintf("require(%d)", int(r))
	}
}

// Sandbox resolves paths under an immutable root. It is safe for concurrent
// use; it holds no mutable state.
type Sandbox struct {
	root     string // absolute, cleaned
	realRoot string // root with symlinks evaluated
}

// New returns a Sandbox rooted at root, which must be an existing directory.
func New(root string) (*Sandbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("sandbox root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q: %w", abs, ErrNotDirectory)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox root %q: %w", abs, err)
	}
	return &Sandbox{root: filepath.Clean(abs), realRoot: filepath.Clean(real)}, nil
}

// Root returns the absolute sandbox root.
func (s *Sandbox) Root() string {
	return s.root
}

// Contains reports whether p equals the root or lies beneath it, lexically.
func (s *Sandbox) Contains(p string) bool {
	return within(s.root, filepath.Clean(p))
}

func within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// Resolve joins input onto currentDir, normalizes the result and verifies it
// stays inside the root and satisfies req. An empty input resolves to
// currentDir. A currentDir outside the root is treated as the root.
func (s *Sandbox) Resolve(currentDir, input string, req Require) (string, error) {
	if strings.ContainsAny(input, "\x00\r\n") {
		return "", ErrInvalidPath
	}

	base := filepath.Clean(currentDir)
	if currentDir == "" || !s.Contains(base) {
		base = s.root
	}

	var joined string
	switch {
	case strings.TrimSpace(input) == "":
		joined = base
	case strings.HasPrefix(input, "/") || filepath.IsAbs(input):
		joined = filepath.Join(s.root, filepath.FromSlash(input))
	default:
		joined = filepath.Join(base, filepath.FromSlash(input))
	}
	joined = filepath.Clean(joined)

	if !s.Contains(joined) {
		return "", ErrOutsideRoot
	}
	if s.reserved(joined) {
		return "", fmt.Errorf("%s: %w", s.Virtual(joined), ErrReserved)
	}
	if err := s.checkLinks(joined); err != nil {
		return "", err
	}
	if err := check(joined, req); err != nil {
		return "", fmt.Errorf("%s: %w", s.Virtual(joined), err)
	}
	return joined, nil
}

func (s *Sandbox) reserved(p string) bool {
	for _, part := range strings.Split(s.Rel(p), "/") {
		if IsTemp(part) {
			return true
		}
	}
	return false
}

// checkLinks evaluates symlinks on the deepest existing ancestor of p and
// requires the real location to stay under the real root.
func (s *Sandbox) checkLinks(p string) error {
	probe := p
	for {
		real, err := filepath.EvalSymlinks(probe)
		if err == nil {
			if !within(s.realRoot, filepath.Clean(real)) {
				return ErrOutsideRoot
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) || probe == s.root {
			return nil
		}
		probe = filepath.Dir(probe)
	}
}

func check(p string, req Require) error {
	if req == Any {
		return nil
	}

	info, err := os.Stat(p)
	if req == Creatable {
		if err == nil && !info.Mode().IsRegular() {
			return ErrNotRegular
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		parent, perr := os.Stat(filepath.Dir(p))
		if perr != nil {
			if errors.Is(perr, os.ErrNotExist) {
				return ErrNotFound
			}
			return perr
		}
		if !parent.IsDir() {
			return ErrNotDirectory
		}
		return nil
	}

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}

	switch req {
	case Dir:
		if !info.IsDir() {
			return ErrNotDirectory
		}
	case Regular:
		if !info.Mode().IsRegular() {
			return ErrNotRegular
		}
	}
	return nil
}

// Virtual renders p as a root-relative slash path ("/", "/docs/a.txt") for
// display to clients. Paths outside the root render as "/".
func (s *Sandbox) Virtual(p string) string {
	rel, err := filepath.Rel(s.root, filepath.Clean(p))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

// Rel returns p relative to the root using forward slashes, or "" for the
// root itself. It is the key format used by the file index.
func (s *Sandbox) Rel(p string) string {
	v := s.Virtual(p)
	return strings.TrimPrefix(v, "/")
}
