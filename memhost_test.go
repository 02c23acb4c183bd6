package amnfs_test

import (
	"testing"

	"github.com/amnfs-fs/amnfs"
)

func TestMemHostGetPageZeroFill(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(16))
	buf, err := h.GetPage(1, 0)
	if err != nil {
		t.Fatalf("GetPage: %s", err)
	}
	if len(buf) != 16 {
		t.Fatalf("GetPage returned %d bytes, want 16", len(buf))
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 on an untouched page", i, b)
		}
	}
}

func TestMemHostPrepareCommitGrowsSize(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(16))
	const ino = 7
	if got := h.Size(ino); got != 0 {
		t.Fatalf("initial size = %d, want 0", got)
	}
	buf, err := h.Prepare(ino, 0, 16)
	if err != nil {
		t.Fatalf("Prepare: %s", err)
	}
	copy(buf, []byte("0123456789abcdef"))
	if err := h.Commit(ino, 0, 16, false); err != nil {
		t.Fatalf("Commit: %s", err)
	}
	if got := h.Size(ino); got != 16 {
		t.Errorf("size after commit = %d, want 16", got)
	}
	got, err := h.GetPage(ino, 0)
	if err != nil {
		t.Fatalf("GetPage: %s", err)
	}
	if string(got) != "0123456789abcdef" {
		t.Errorf("GetPage after commit = %q", got)
	}
}

func TestMemHostCommitInvalidatesCheckedBits(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(16))
	const ino = 8
	h.MarkPageChecked(ino, 0)
	h.MarkPageError(ino, 0)
	if !h.PageChecked(ino, 0) || !h.PageErrored(ino, 0) {
		t.Fatalf("expected page to start checked+errored")
	}
	buf, err := h.Prepare(ino, 0, 16)
	if err != nil {
		t.Fatalf("Prepare: %s", err)
	}
	_ = buf
	if err := h.Commit(ino, 0, 16, false); err != nil {
		t.Fatalf("Commit: %s", err)
	}
	if h.PageChecked(ino, 0) {
		t.Errorf("Commit should clear the checked bit for the touched page")
	}
	if h.PageErrored(ino, 0) {
		t.Errorf("Commit should clear the errored bit for the touched page")
	}
}

func TestMemHostVersionBumpsOnCommit(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(16))
	const ino = 9
	v0 := h.Version(ino)
	if _, err := h.Prepare(ino, 0, 16); err != nil {
		t.Fatalf("Prepare: %s", err)
	}
	if err := h.Commit(ino, 0, 16, false); err != nil {
		t.Fatalf("Commit: %s", err)
	}
	if h.Version(ino) != v0+1 {
		t.Errorf("Version() = %d, want %d", h.Version(ino), v0+1)
	}
}

func TestMemHostLinks(t *testing.T) {
	h := amnfs.NewMemHost()
	h.CreateDir(3, 2)
	if got := h.Links(3); got != 2 {
		t.Fatalf("Links() = %d, want 2", got)
	}
	h.IncLinks(3)
	if got := h.Links(3); got != 3 {
		t.Errorf("Links() after IncLinks = %d, want 3", got)
	}
	h.DecLinks(3)
	h.DecLinks(3)
	if got := h.Links(3); got != 1 {
		t.Errorf("Links() after two DecLinks = %d, want 1", got)
	}
	h.DecLinks(3)
	h.DecLinks(3)
	if got := h.Links(3); got != 0 {
		t.Errorf("Links() should never go negative, got %d", got)
	}
}

func TestMemHostClearBtreeFlag(t *testing.T) {
	h := amnfs.NewMemHost()
	h.CreateDir(4, 2)
	if h.Flags(4)&amnfs.ReservedBtreeFlag == 0 {
		t.Fatalf("a fresh directory should start with ReservedBtreeFlag set")
	}
	h.ClearBtreeFlag(4)
	if h.Flags(4)&amnfs.ReservedBtreeFlag != 0 {
		t.Errorf("ClearBtreeFlag should clear ReservedBtreeFlag, got flags %v", h.Flags(4))
	}
}

func TestMemHostLockPageSerializes(t *testing.T) {
	h := amnfs.NewMemHost(amnfs.WithBlockSize(16))
	const ino = 11
	h.LockPage(ino, 0)
	done := make(chan struct{})
	go func() {
		h.LockPage(ino, 0)
		close(done)
		h.UnlockPage(ino, 0)
	}()
	select {
	case <-done:
		t.Fatalf("second LockPage should block while the first holds the lock")
	default:
	}
	h.UnlockPage(ino, 0)
	<-done
}
