package index

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Entry is one indexed regular file. Path is relative to the shared root and
// uses forward slashes ("docs/a.txt").
type Entry struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Name returns the base name of the entry.
func (e Entry) Name() string {
	return path.Base(e.Path)
}

// Location returns the virtual directory holding the entry: "/" for files
// at the root, "/docs" otherwise.
func (e Entry) Location() string {
	dir := path.Dir(e.Path)
	if dir == "." || dir == "" {
		return "/"
	}
	return "/" + dir
}

// Snapshot is an immutable, path-sorted view of the index. Readers obtain one
// and use it without locking; refreshes publish a new Snapshot.
type Snapshot struct {
	entries []Entry
	builtAt time.Time
}

func newSnapshot(entries []Entry, builtAt time.Time) *Snapshot {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return &Snapshot{entries: entries, builtAt: builtAt}
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// BuiltAt returns when the snapshot was built.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Entries returns a copy of all entries in path order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Lookup finds the first entry, in path order, whose path ends with name at a
// path component boundary. Matching is case-insensitive. A name starting with
// "." matches as a plain suffix, so ".pdf" finds any PDF.
func (s *Snapshot) Lookup(name string) (Entry, bool) {
	q := normalizeQuery(name)
	if q == "" {
		return Entry{}, false
	}
	for _, e := range s.entries {
		if matchName(strings.ToLower(e.Path), q) {
			return e, true
		}
	}
	return Entry{}, false
}

func normalizeQuery(name string) string {
	q := strings.ToLower(strings.TrimSpace(name))
	return strings.TrimLeft(q, "/")
}

func matchName(p, q string) bool {
	if p == q {
		return true
	}
	if strings.HasPrefix(q, ".") {
		return strings.HasSuffix(p, q)
	}
	return strings.HasSuffix(p, "/"+q)
}

// List returns the entries whose directory contains filter as a sequence of
// whole path components, case-insensitively. An empty filter (or "/")
// returns every entry.
func (s *Snapshot) List(filter string) []Entry {
	f := strings.Trim(strings.ToLower(strings.TrimSpace(filter)), "/")
	if f == "" {
		return s.Entries()
	}

	needle := "/" + f + "/"
	var out []Entry
	for _, e := range s.entries {
		dir := path.Dir(strings.ToLower(e.Path))
		if dir == "." {
			continue
		}
		if strings.Contains("/"+dir+"/", needle) {
			out = append(out, e)
		}
	}
	return out
}

// with returns a copy of s with e inserted or replaced.
func (s *Snapshot) with(e Entry) *Snapshot {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Path >= e.Path })

	var entries []Entry
	if i < len(s.entries) && s.entries[i].Path == e.Path {
		entries = make([]Entry, len(s.entries))
		copy(entries, s.entries)
		entries[i] = e
	} else {
		entries = make([]Entry, 0, len(s.entries)+1)
		entries = append(entries, s.entries[:i]...)
		entries = append(entries, e)
		entries = append(entries, s.entries[i:]...)
	}
	return &Snapshot{entries: entries, builtAt: s.builtAt}
}
