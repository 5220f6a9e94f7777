package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	// Set a deterministic HOME for the duration of this test so we never skip.
	origHome, hadHome := os.LookupEnv("HOME")
	origUserProfile, hadUserProfile := os.LookupEnv("USERPROFILE")
	t.Cleanup(func() {
		if hadHome {
			_ = os.Setenv("HOME", origHome)
		} else {
			_ = os.Unsetenv("HOME")
		}
		if hadUserProfile {
			_ = os.Setenv("USERPROFILE", origUserProfile)
		} else {
			_ = os.Unsetenv("USERPROFILE")
		}
	})

	home := t.TempDir()
	// Configure both env vars for cross-platform behavior of os.UserHomeDir.
	_ = os.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		_ = os.Setenv("USERPROFILE", home)
	}
	// raw path unaffected
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// empty path
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// ~ expansion
	p, err := ExpandHome("~")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p != home {
		t.Fatalf("expected %q, got %q", home, p)
	}
	// ~/subdir
	sub := "test-sub"
	exp, err := ExpandHome("~/" + sub)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if runtime.GOOS == "windows" {
		if filepath.Base(exp) != sub {
			t.Fatalf("unexpected expanded path: %q", exp)
		}
	} else {
		expected := filepath.Join(home, sub)
		if exp != expected {
			t.Fatalf("expected %q, got %q", expected, exp)
		}
	}
}

func TestJoinWithin(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sandbox")
	cases := map[string]string{
		"/models/model.bin": filepath.Join(root, "models", "model.bin"),
		"models/model.bin":  filepath.Join(root, "models", "model.bin"),
		"/../../etc/passwd": filepath.Join(root, "etc", "passwd"),
		"/models/../x/./y":  filepath.Join(root, "x", "y"),
		"/":                 root,
	}
	for in, want := range cases {
		if got := JoinWithin(root, in); got != want {
			t.Fatalf("JoinWithin(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFileSizeAndPathExists(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "f.bin")
	if PathExists(p) {
		t.Fatalf("expected %s to be missing", p)
	}
	if FileSize(p) != 0 {
		t.Fatalf("size of missing file should be 0")
	}
	if err := os.WriteFile(p, []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !PathExists(p) {
		t.Fatalf("expected %s to exist", p)
	}
	if got := FileSize(p); got != 5 {
		t.Fatalf("size=%d want 5", got)
	}
	if FileSize(d) != 0 {
		t.Fatalf("directories report size 0")
	}
}
