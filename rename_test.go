package amnfs_test

import (
	"testing"

	"github.com/amnfs-fs/amnfs"
)

func setupDir(t *testing.T, h *amnfs.MemHost, ino, parent uint64) {
	t.Helper()
	h.CreateDir(ino, 2)
	if err := amnfs.Open(h, ino).MakeEmpty(parent); err != nil {
		t.Fatalf("MakeEmpty(%d): %s", ino, err)
	}
}

func TestRenamePlainFile(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(64))
	setupDir(t, h, 1, 1)
	setupDir(t, h, 2, 1)
	if err := amnfs.Open(h, 1).AddLink([]byte("a"), 100, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink: %s", err)
	}

	err := amnfs.Rename(h, amnfs.RenameInput{
		OldDir:  1,
		OldName: []byte("a"),
		NewDir:  2,
		NewName: []byte("b"),
		SrcIno:  100,
	})
	if err != nil {
		t.Fatalf("Rename: %s", err)
	}

	if ino, _ := amnfs.Open(h, 1).InodeByName([]byte("a")); ino != 0 {
		t.Errorf("source name still present: %d", ino)
	}
	ino, err := amnfs.Open(h, 2).InodeByName([]byte("b"))
	if err != nil {
		t.Fatalf("InodeByName(b): %s", err)
	}
	if ino != 100 {
		t.Errorf("InodeByName(b) = %d, want 100", ino)
	}
}

func TestRenameSameDirectory(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(64))
	setupDir(t, h, 1, 1)
	if err := amnfs.Open(h, 1).AddLink([]byte("a"), 100, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink: %s", err)
	}

	err := amnfs.Rename(h, amnfs.RenameInput{
		OldDir:  1,
		OldName: []byte("a"),
		NewDir:  1,
		NewName: []byte("z"),
		SrcIno:  100,
	})
	if err != nil {
		t.Fatalf("Rename: %s", err)
	}
	if ino, _ := amnfs.Open(h, 1).InodeByName([]byte("z")); ino != 100 {
		t.Errorf("InodeByName(z) = %d, want 100", ino)
	}
}

func TestRenameOverwritesExistingTarget(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(64))
	setupDir(t, h, 1, 1)
	setupDir(t, h, 2, 1)
	if err := amnfs.Open(h, 1).AddLink([]byte("a"), 100, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(a): %s", err)
	}
	if err := amnfs.Open(h, 2).AddLink([]byte("b"), 200, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(b): %s", err)
	}

	err := amnfs.Rename(h, amnfs.RenameInput{
		OldDir:  1,
		OldName: []byte("a"),
		NewDir:  2,
		NewName: []byte("b"),
		SrcIno:  100,
	})
	if err != nil {
		t.Fatalf("Rename: %s", err)
	}
	ino, err := amnfs.Open(h, 2).InodeByName([]byte("b"))
	if err != nil {
		t.Fatalf("InodeByName(b): %s", err)
	}
	if ino != 100 {
		t.Errorf("InodeByName(b) = %d, want 100 (overwritten)", ino)
	}
}

func TestRenameDirectoryUpdatesDotdotAndLinks(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(64))
	setupDir(t, h, 1, 1) // old parent, root-like
	setupDir(t, h, 2, 1) // new parent
	setupDir(t, h, 50, 1) // the directory being moved, currently under 1

	if err := amnfs.Open(h, 1).AddLink([]byte("sub"), 50, amnfs.FTDir); err != nil {
		t.Fatalf("AddLink(sub): %s", err)
	}
	h.IncLinks(1) // new subdirectory's ".." bumped parent 1's link count

	oldLinks1 := h.Links(1)
	oldLinks2 := h.Links(2)

	err := amnfs.Rename(h, amnfs.RenameInput{
		OldDir:   1,
		OldName:  []byte("sub"),
		NewDir:   2,
		NewName:  []byte("sub2"),
		SrcIno:   50,
		SrcIsDir: true,
	})
	if err != nil {
		t.Fatalf("Rename: %s", err)
	}

	if ino, _ := amnfs.Open(h, 1).InodeByName([]byte("sub")); ino != 0 {
		t.Errorf("old name still present under old parent: %d", ino)
	}
	ino, err := amnfs.Open(h, 2).InodeByName([]byte("sub2"))
	if err != nil {
		t.Fatalf("InodeByName(sub2): %s", err)
	}
	if ino != 50 {
		t.Errorf("InodeByName(sub2) = %d, want 50", ino)
	}

	ref, pg, err := amnfs.Open(h, 50).Dotdot()
	if err != nil {
		t.Fatalf("Dotdot: %s", err)
	}
	defer pg.Release()
	if ref.Entry.Ino != 2 {
		t.Errorf("moved directory's .. = %d, want 2 (new parent)", ref.Entry.Ino)
	}

	if h.Links(1) != oldLinks1-1 {
		t.Errorf("old parent links = %d, want %d", h.Links(1), oldLinks1-1)
	}
	if h.Links(2) != oldLinks2+1 {
		t.Errorf("new parent links = %d, want %d", h.Links(2), oldLinks2+1)
	}
}

func TestRenameDirectorySameParentLeavesLinksUnchanged(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(64))
	setupDir(t, h, 1, 1)
	setupDir(t, h, 50, 1)

	if err := amnfs.Open(h, 1).AddLink([]byte("sub"), 50, amnfs.FTDir); err != nil {
		t.Fatalf("AddLink(sub): %s", err)
	}
	h.IncLinks(1) // new subdirectory's ".." bumped parent 1's link count

	oldLinks1 := h.Links(1)

	err := amnfs.Rename(h, amnfs.RenameInput{
		OldDir:   1,
		OldName:  []byte("sub"),
		NewDir:   1,
		NewName:  []byte("sub2"),
		SrcIno:   50,
		SrcIsDir: true,
	})
	if err != nil {
		t.Fatalf("Rename: %s", err)
	}

	ino, err := amnfs.Open(h, 1).InodeByName([]byte("sub2"))
	if err != nil {
		t.Fatalf("InodeByName(sub2): %s", err)
	}
	if ino != 50 {
		t.Errorf("InodeByName(sub2) = %d, want 50", ino)
	}

	// IncLinks(NewDir) and the unconditional DecLinks(OldDir) must cancel
	// out exactly when the rename stays within the same parent.
	if h.Links(1) != oldLinks1 {
		t.Errorf("same-parent rename changed link count: got %d, want %d", h.Links(1), oldLinks1)
	}

	ref, pg, err := amnfs.Open(h, 50).Dotdot()
	if err != nil {
		t.Fatalf("Dotdot: %s", err)
	}
	defer pg.Release()
	if ref.Entry.Ino != 1 {
		t.Errorf("moved directory's .. = %d, want 1 (unchanged parent)", ref.Entry.Ino)
	}
}
