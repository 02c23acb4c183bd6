package amnfs

import "sync/atomic"

// lookupHint is the per-inode volatile start_lookup_page: an advisory
// starting page index for name search. spec.md treats a racing update as
// benign — "may cost an extra probe, never yield wrong answers" — so a
// single atomic word is sufficient; no lock is needed, matching the
// teacher's use of sync/atomic for the similarly racy FUSE refcnt in
// inode.go (AddRef/DelRef).
type lookupHint struct {
	page atomic.Uint32
}

// start returns the probe start index, clamped to [0, npages). A torn or
// stale value is harmless here because it is always re-clamped against the
// caller's current page count before use.
func (h *lookupHint) start(npages uint32) uint32 {
	if npages == 0 {
		return 0
	}
	v := h.page.Load()
	if v >= npages {
		return 0
	}
	return v
}

// hit records the page where a lookup last succeeded.
func (h *lookupHint) hit(n uint32) {
	h.page.Store(n)
}
