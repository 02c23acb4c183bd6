package amnfs_test

import (
	"io/fs"
	"testing"

	"github.com/amnfs-fs/amnfs"
)

func buildTestVolume(t *testing.T) *amnfs.MemHost {
	t.Helper()
	h := amnfs.NewMemHost(amnfs.WithBlockSize(64))
	h.CreateDir(1, 2)
	if err := amnfs.Open(h, 1).MakeEmpty(1); err != nil {
		t.Fatalf("MakeEmpty(1): %s", err)
	}
	h.CreateDir(2, 2)
	if err := amnfs.Open(h, 2).MakeEmpty(1); err != nil {
		t.Fatalf("MakeEmpty(2): %s", err)
	}
	if err := amnfs.Open(h, 1).AddLink([]byte("sub"), 2, amnfs.FTDir); err != nil {
		t.Fatalf("AddLink(sub): %s", err)
	}
	if err := amnfs.Open(h, 2).AddLink([]byte("leaf"), 100, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(leaf): %s", err)
	}
	return h
}

func TestFSOpenRoot(t *testing.T) {
	h := buildTestVolume(t)
	fsys := amnfs.NewFS(h, 1)

	f, err := fsys.Open(".")
	if err != nil {
		t.Fatalf("Open(.): %s", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %s", err)
	}
	if !info.IsDir() {
		t.Errorf("root should be a directory")
	}
}

func TestFSReadDirSubdirectory(t *testing.T) {
	h := buildTestVolume(t)
	fsys := amnfs.NewFS(h, 1)

	entries, err := fs.ReadDir(fsys, "sub")
	if err != nil {
		t.Fatalf("ReadDir(sub): %s", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ReadDir(sub) returned %d entries, want 1", len(entries))
	}
	if entries[0].Name() != "leaf" {
		t.Errorf("entry name = %q, want leaf", entries[0].Name())
	}
	if entries[0].IsDir() {
		t.Errorf("leaf should not be a directory")
	}
}

func TestFSOpenMissingPath(t *testing.T) {
	h := buildTestVolume(t)
	fsys := amnfs.NewFS(h, 1)

	_, err := fsys.Open("nope")
	if err == nil {
		t.Fatalf("expected an error opening a missing path")
	}
}

func TestFSStatLeaf(t *testing.T) {
	h := buildTestVolume(t)
	fsys := amnfs.NewFS(h, 1)

	info, err := fs.Stat(fsys, "sub/leaf")
	if err != nil {
		t.Fatalf("Stat(sub/leaf): %s", err)
	}
	if info.IsDir() {
		t.Errorf("sub/leaf should not report as a directory")
	}
	if info.Name() != "leaf" {
		t.Errorf("Name() = %q, want leaf", info.Name())
	}
}
