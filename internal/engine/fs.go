package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"llamaworker/internal/common/fsutil"
)

// FS is the engine's private, path-addressed filesystem. Names are
// slash-separated absolute paths in the engine's namespace.
type FS interface {
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// Create opens name for writing, truncating an existing file.
	Create(name string) (File, error)
	// ExecPath returns name as the engine's main must see it on its
	// command line.
	ExecPath(name string) string
}

// File is an open, write-only file in an engine filesystem.
type File interface {
	io.Writer
	io.Closer
}

// DirFS backs an engine filesystem with a host directory. When mounted is
// true the engine sees the directory as its own root (wasm guests);
// otherwise the engine runs on the host and needs host paths.
type DirFS struct {
	root    string
	mounted bool
}

// NewDirFS creates root if needed and returns a filesystem rooted there.
func NewDirFS(root string, mounted bool) (*DirFS, error) {
	abs, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	if abs, err = filepath.Abs(abs); err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create engine root: %w", err)
	}
	return &DirFS{root: abs, mounted: mounted}, nil
}

// Root returns the absolute host directory.
func (d *DirFS) Root() string { return d.root }

// HostPath maps an engine path onto the host. Paths cannot escape the root.
func (d *DirFS) HostPath(name string) string {
	return fsutil.JoinWithin(d.root, name)
}

func (d *DirFS) MkdirAll(dir string) error {
	return os.MkdirAll(d.HostPath(dir), 0o755)
}

func (d *DirFS) Create(name string) (File, error) {
	return os.OpenFile(d.HostPath(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (d *DirFS) ExecPath(name string) string {
	if d.mounted {
		return path.Clean("/" + name)
	}
	return d.HostPath(name)
}

// MemFS is an in-memory filesystem for tests. Create fails unless the
// parent directory was made first, like a real filesystem.
type MemFS struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string]*bytes.Buffer
	open  map[string]int
}

func NewMemFS() *MemFS {
	return &MemFS{
		dirs:  map[string]bool{"/": true},
		files: make(map[string]*bytes.Buffer),
		open:  make(map[string]int),
	}
}

func (m *MemFS) MkdirAll(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := path.Clean("/" + dir); ; p = path.Dir(p) {
		m.dirs[p] = true
		if p == "/" {
			return nil
		}
	}
}

func (m *MemFS) Create(name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := path.Clean("/" + name)
	if !m.dirs[path.Dir(p)] {
		return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrNotExist}
	}
	buf := &bytes.Buffer{}
	m.files[p] = buf
	m.open[p]++
	return &memFile{fs: m, name: p, buf: buf}, nil
}

func (m *MemFS) ExecPath(name string) string { return path.Clean("/" + name) }

// ReadFile returns a copy of a file's contents.
func (m *MemFS) ReadFile(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.files[path.Clean("/"+name)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), buf.Bytes()...), true
}

// OpenCount reports how many handles to name are still open.
func (m *MemFS) OpenCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[path.Clean("/"+name)]
}

// Files lists file names in sorted order.
func (m *MemFS) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type memFile struct {
	fs     *MemFS
	name   string
	buf    *bytes.Buffer
	closed bool
}

func (f *memFile) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	return f.buf.Write(p)
}

func (f *memFile) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	f.fs.open[f.name]--
	return nil
}
