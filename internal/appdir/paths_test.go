package appdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathsUnderBase(t *testing.T) {
	base := "/tmp/chatsync-test"
	paths := []string{
		SocketPath(base),
		LockPath(base),
		DBPath(base),
		LogPath(base),
		ConfigPath(base),
	}
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			t.Errorf("path %q is not absolute", p)
		}
		if rel, err := filepath.Rel(base, p); err != nil || rel == ".." || filepath.IsAbs(rel) {
			t.Errorf("path %q escapes base %q", p, base)
		}
	}
}

func TestEnsureDirs(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data")
	if err := EnsureDirs(base); err != nil {
		t.Fatalf("EnsureDirs() error = %v", err)
	}
	for _, d := range []string{base, LogDir(base)} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("stat %s: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("%s permission = %o, want 0700", d, perm)
		}
	}
}
