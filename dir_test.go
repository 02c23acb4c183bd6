package amnfs_test

import (
	"errors"
	"testing"

	"github.com/amnfs-fs/amnfs"
)

func newTestRoot(t *testing.T, ino uint64, opts ...amnfs.ConfigOption) (*amnfs.MemHost, *amnfs.Dir) {
	t.Helper()
	h := amnfs.NewMemHost(opts...)
	h.CreateDir(ino, 2)
	d := amnfs.Open(h, ino)
	if err := d.MakeEmpty(ino); err != nil {
		t.Fatalf("MakeEmpty: %s", err)
	}
	return h, d
}

func TestDirCreateLookup(t *testing.T) {
	_, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))

	if err := d.AddLink([]byte("foo"), 42, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink: %s", err)
	}

	ino, err := d.InodeByName([]byte("foo"))
	if err != nil {
		t.Fatalf("InodeByName: %s", err)
	}
	if ino != 42 {
		t.Errorf("InodeByName(foo) = %d, want 42", ino)
	}

	ino, err = d.InodeByName([]byte("missing"))
	if err != nil {
		t.Fatalf("InodeByName(missing): %s", err)
	}
	if ino != 0 {
		t.Errorf("InodeByName(missing) = %d, want 0", ino)
	}
}

func TestDirAddLinkDuplicateRejected(t *testing.T) {
	_, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))
	if err := d.AddLink([]byte("foo"), 42, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink: %s", err)
	}
	err := d.AddLink([]byte("foo"), 99, amnfs.FTRegular)
	if !errors.Is(err, amnfs.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestDirAddLinkClearsBtreeFlag(t *testing.T) {
	h, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))
	if h.Flags(1)&amnfs.ReservedBtreeFlag == 0 {
		t.Fatalf("a fresh directory should start with ReservedBtreeFlag set")
	}
	if err := d.AddLink([]byte("foo"), 42, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink: %s", err)
	}
	if h.Flags(1)&amnfs.ReservedBtreeFlag != 0 {
		t.Errorf("AddLink should clear ReservedBtreeFlag, got flags %v", h.Flags(1))
	}
}

func TestDirAddLinkSplitsFreeSpace(t *testing.T) {
	_, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))
	if err := d.AddLink([]byte("a"), 10, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(a): %s", err)
	}
	if err := d.AddLink([]byte("bb"), 11, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(bb): %s", err)
	}

	var names []string
	cur := d.NewCursor()
	err := d.ReadDir(&cur, func(name []byte, ino uint64, ftype amnfs.DirEntryType) bool {
		names = append(names, string(name))
		return true
	})
	if err != nil {
		t.Fatalf("ReadDir: %s", err)
	}
	want := map[string]bool{".": true, "..": true, "a": true, "bb": true}
	if len(names) != len(want) {
		t.Fatalf("ReadDir returned %v, want entries %v", names, want)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected entry %q", n)
		}
	}
}

func TestDirAddLinkGrowsDirectory(t *testing.T) {
	_, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))
	// Consume the rest of the first chunk's split-off free space, then force
	// a second entry past what's left to exercise growing a fresh chunk.
	if err := d.AddLink([]byte("first"), 50, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(first): %s", err)
	}
	if err := d.AddLink([]byte("second"), 51, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(second): %s", err)
	}
	if err := d.AddLink([]byte("third"), 52, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(third): %s", err)
	}
	for name, want := range map[string]uint64{"first": 50, "second": 51, "third": 52} {
		ino, err := d.InodeByName([]byte(name))
		if err != nil {
			t.Fatalf("InodeByName(%s): %s", name, err)
		}
		if ino != want {
			t.Errorf("InodeByName(%s) = %d, want %d", name, ino, want)
		}
	}
}

func TestDirDeleteEntryMergesIntoPrevious(t *testing.T) {
	_, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))
	if err := d.AddLink([]byte("a"), 10, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(a): %s", err)
	}
	if err := d.AddLink([]byte("bb"), 11, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(bb): %s", err)
	}

	ref, pg, err := d.FindEntry([]byte("bb"))
	if err != nil {
		t.Fatalf("FindEntry(bb): %s", err)
	}
	if err := d.DeleteEntry(ref, pg); err != nil {
		t.Fatalf("DeleteEntry: %s", err)
	}

	ino, err := d.InodeByName([]byte("bb"))
	if err != nil {
		t.Fatalf("InodeByName after delete: %s", err)
	}
	if ino != 0 {
		t.Errorf("InodeByName(bb) after delete = %d, want 0", ino)
	}

	// "a" should still be there.
	ino, err = d.InodeByName([]byte("a"))
	if err != nil {
		t.Fatalf("InodeByName(a): %s", err)
	}
	if ino != 10 {
		t.Errorf("InodeByName(a) = %d, want 10", ino)
	}

	// The reclaimed space should be reusable by a later AddLink.
	if err := d.AddLink([]byte("cc"), 12, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(cc) after delete: %s", err)
	}
}

func TestDirSetLink(t *testing.T) {
	_, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))
	if err := d.AddLink([]byte("a"), 10, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink: %s", err)
	}
	ref, pg, err := d.FindEntry([]byte("a"))
	if err != nil {
		t.Fatalf("FindEntry: %s", err)
	}
	if err := d.SetLink(ref, pg, 99, amnfs.FTDir, true); err != nil {
		t.Fatalf("SetLink: %s", err)
	}
	ino, err := d.InodeByName([]byte("a"))
	if err != nil {
		t.Fatalf("InodeByName: %s", err)
	}
	if ino != 99 {
		t.Errorf("InodeByName(a) after SetLink = %d, want 99", ino)
	}
}

func TestDirEmptyDir(t *testing.T) {
	_, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))
	empty, err := d.EmptyDir()
	if err != nil {
		t.Fatalf("EmptyDir: %s", err)
	}
	if !empty {
		t.Errorf("a fresh directory should be empty")
	}

	if err := d.AddLink([]byte("a"), 10, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink: %s", err)
	}
	empty, err = d.EmptyDir()
	if err != nil {
		t.Fatalf("EmptyDir: %s", err)
	}
	if empty {
		t.Errorf("a directory with a live entry should not be empty")
	}
}

func TestDirDotdot(t *testing.T) {
	h, _ := newTestRoot(t, 5, amnfs.WithBlockSize(64))
	h.CreateDir(1, 2)
	if err := amnfs.Open(h, 1).MakeEmpty(5); err != nil {
		t.Fatalf("re-MakeEmpty: %s", err)
	}

	ref, pg, err := amnfs.Open(h, 1).Dotdot()
	if err != nil {
		t.Fatalf("Dotdot: %s", err)
	}
	defer pg.Release()
	if ref.Entry.Ino != 5 {
		t.Errorf("Dotdot ino = %d, want 5", ref.Entry.Ino)
	}
	if string(ref.Entry.Name) != ".." {
		t.Errorf("Dotdot name = %q, want \"..\"", ref.Entry.Name)
	}
}

func TestDirFindEntryNameTooLong(t *testing.T) {
	_, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))
	longName := make([]byte, amnfs.MaxNameLen+1)
	for i := range longName {
		longName[i] = 'x'
	}
	_, _, err := d.FindEntry(longName)
	if !errors.Is(err, amnfs.ErrNameTooLong) {
		t.Fatalf("expected ErrNameTooLong, got %v", err)
	}
}

func TestDirReadDirStopsEarly(t *testing.T) {
	_, d := newTestRoot(t, 1, amnfs.WithBlockSize(64))
	if err := d.AddLink([]byte("a"), 10, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(a): %s", err)
	}
	if err := d.AddLink([]byte("bb"), 11, amnfs.FTRegular); err != nil {
		t.Fatalf("AddLink(bb): %s", err)
	}

	cur := d.NewCursor()
	var seen int
	err := d.ReadDir(&cur, func(name []byte, ino uint64, ftype amnfs.DirEntryType) bool {
		seen++
		return seen < 2
	})
	if err != nil {
		t.Fatalf("ReadDir: %s", err)
	}
	if seen != 2 {
		t.Fatalf("expected to stop after 2 entries, saw %d", seen)
	}

	// Resuming from the left-off cursor should pick up where it stopped.
	var more int
	err = d.ReadDir(&cur, func(name []byte, ino uint64, ftype amnfs.DirEntryType) bool {
		more++
		return true
	})
	if err != nil {
		t.Fatalf("ReadDir resume: %s", err)
	}
	if more == 0 {
		t.Errorf("expected remaining entries after resuming cursor")
	}
}
