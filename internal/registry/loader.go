package registry

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llamaworker/internal/common/fsutil"
	"llamaworker/pkg/types"
)

// Extensions recognised as model artifacts.
var modelExts = []string{".gguf", ".bin"}

// ErrUnknownModel is returned by Resolve for ids not present in the directory.
var ErrUnknownModel = errors.New("unknown model")

// LoadDir scans a directory for model files and builds a registry from filenames.
// ID is the full filename (including extension); URL is a file:// URL of the
// absolute path. Results are sorted by ID.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !isModelFile(e.Name()) {
			continue
		}
		name := e.Name()
		p := filepath.Join(abs, name)
		models = append(models, types.Model{
			ID:        name,
			Name:      strings.TrimSuffix(name, filepath.Ext(name)),
			URL:       FileURL(p),
			SizeBytes: fsutil.FileSize(p),
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func isModelFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range modelExts {
		if ext == e {
			return true
		}
	}
	return false
}

// FileURL converts an absolute path to a file:// URL.
func FileURL(p string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}

// Registry serves model lookups from a directory, rescanning on every call
// so files dropped in while the worker runs are visible.
type Registry struct {
	dir string
}

func New(dir string) *Registry { return &Registry{dir: dir} }

// Dir returns the configured directory as given.
func (r *Registry) Dir() string { return r.dir }

// List returns the models currently in the directory.
func (r *Registry) List() ([]types.Model, error) { return LoadDir(r.dir) }

// Resolve maps a model id to the URL it is loaded from.
func (r *Registry) Resolve(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	models, err := r.List()
	if err != nil {
		return "", err
	}
	for _, m := range models {
		if m.ID == id {
			return m.URL, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, id)
}
