package registry

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadDir_FiltersModelFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.GGUF":        "xx", // case-insensitive
		"a.gguf":        "x",
		"model.bin":     "xyz",
		"not-model.txt": "",
	}
	for f, body := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(body), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.gguf"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %+v", models)
	}
	if models[0].ID != "a.gguf" || models[1].ID != "b.GGUF" || models[2].ID != "model.bin" {
		t.Fatalf("unexpected order: %+v", models)
	}
	if models[0].Name != "a" || models[2].SizeBytes != 3 {
		t.Fatalf("unexpected metadata: %+v", models)
	}
	if models[0].URL != FileURL(filepath.Join(dir, "a.gguf")) {
		t.Fatalf("url=%s", models[0].URL)
	}
}

func TestLoadDir_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "llamaworker-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	if err := os.WriteFile(filepath.Join(hTmp, "x.gguf"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := LoadDir(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.gguf" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestLoadDir_Missing(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestRegistryResolve(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "m.gguf"), []byte("m"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := New(dir)
	u, err := r.Resolve("m.gguf")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if u != FileURL(filepath.Join(dir, "m.gguf")) {
		t.Fatalf("url=%s", u)
	}
	for _, id := range []string{"", "other.gguf", "../m.gguf"} {
		if _, err := r.Resolve(id); !errors.Is(err, ErrUnknownModel) {
			t.Fatalf("Resolve(%q) err=%v", id, err)
		}
	}
}

func TestFileURL(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix paths")
	}
	if got := FileURL("/models/a b.gguf"); got != "file:///models/a%20b.gguf" {
		t.Fatalf("got %s", got)
	}
}
