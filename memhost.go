package amnfs

import (
	"log"
	"sync"
	"time"
)

// MemHost is a pure in-memory Host: every directory's content lives in a
// plain []byte grown on demand, guarded by a per-directory mutex. It is the
// reference implementation the test suite and simple callers use — no
// backing file, no mmap, just enough bookkeeping to exercise every Host
// method the directory core calls.
type MemHost struct {
	cfg Config

	mu   sync.RWMutex
	dirs map[uint64]*memDir
}

type memDir struct {
	mu sync.Mutex

	buf     []byte
	size    int64
	blocks  uint64
	version uint64
	nlink   uint32
	flags   InodeFlags

	checked map[uint32]bool
	errored map[uint32]bool

	pageLock map[uint32]*sync.Mutex

	hint lookupHint

	mtime, ctime time.Time
}

// NewMemHost builds a MemHost configured by opts, defaulting to a 4096-byte
// block size with the FILETYPE feature enabled (see defaultConfig).
func NewMemHost(opts ...ConfigOption) *MemHost {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &MemHost{cfg: cfg, dirs: make(map[uint64]*memDir)}
}

func (h *MemHost) dir(ino uint64) *memDir {
	h.mu.RLock()
	d, ok := h.dirs[ino]
	h.mu.RUnlock()
	if ok {
		return d
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if d, ok = h.dirs[ino]; ok {
		return d
	}
	d = &memDir{
		checked:  make(map[uint32]bool),
		errored:  make(map[uint32]bool),
		pageLock: make(map[uint32]*sync.Mutex),
		nlink:    2,
		flags:    ReservedBtreeFlag,
	}
	h.dirs[ino] = d
	return d
}

// CreateDir registers a fresh, empty directory inode with the given
// initial link count (2 for a normal directory: itself plus its own "."),
// ready for MakeEmpty to populate.
func (h *MemHost) CreateDir(ino uint64, nlink uint32) {
	d := h.dir(ino)
	d.mu.Lock()
	d.nlink = nlink
	d.mu.Unlock()
}

// Links returns the directory's current link count, for callers (tests,
// the CLI) that want to observe rename's nlink bookkeeping.
func (h *MemHost) Links(ino uint64) uint32 {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nlink
}

// Flags returns the directory's current InodeFlags word, for callers that
// want to observe ClearBtreeFlag's effect.
func (h *MemHost) Flags(ino uint64) InodeFlags {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flags
}

func (h *MemHost) GetPage(ino uint64, n uint32) ([]byte, error) {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	cs := int(h.cfg.BlockSize)
	start := int(n) * cs
	buf := make([]byte, cs)
	if start < len(d.buf) {
		end := start + cs
		if end > len(d.buf) {
			end = len(d.buf)
		}
		copy(buf, d.buf[start:end])
	}
	return buf, nil
}

func (h *MemHost) PutPage(ino uint64, n uint32) {}

func (h *MemHost) PageChecked(ino uint64, n uint32) bool {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checked[n]
}

func (h *MemHost) MarkPageChecked(ino uint64, n uint32) {
	d := h.dir(ino)
	d.mu.Lock()
	d.checked[n] = true
	d.mu.Unlock()
}

func (h *MemHost) PageErrored(ino uint64, n uint32) bool {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errored[n]
}

func (h *MemHost) MarkPageError(ino uint64, n uint32) {
	d := h.dir(ino)
	d.mu.Lock()
	d.errored[n] = true
	d.mu.Unlock()
}

func (h *MemHost) Prepare(ino uint64, pos int64, length int) ([]byte, error) {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	end := pos + int64(length)
	if end > int64(len(d.buf)) {
		grown := make([]byte, end)
		copy(grown, d.buf)
		d.buf = grown
	}
	return d.buf[pos:end], nil
}

func (h *MemHost) Commit(ino uint64, pos int64, length int, dirSync bool) error {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	end := pos + int64(length)
	if end > d.size {
		d.size = end
		d.blocks = uint64((d.size + 511) / 512)
	}
	d.version++
	cs := int64(h.cfg.BlockSize)
	first := uint32(pos / cs)
	last := uint32((end - 1) / cs)
	for p := first; p <= last; p++ {
		delete(d.checked, p)
		delete(d.errored, p)
	}
	return nil
}

func (h *MemHost) LockPage(ino uint64, n uint32) {
	d := h.dir(ino)
	d.mu.Lock()
	m, ok := d.pageLock[n]
	if !ok {
		m = &sync.Mutex{}
		d.pageLock[n] = m
	}
	d.mu.Unlock()
	m.Lock()
}

func (h *MemHost) UnlockPage(ino uint64, n uint32) {
	d := h.dir(ino)
	d.mu.Lock()
	m := d.pageLock[n]
	d.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
}

func (h *MemHost) Size(ino uint64) int64 {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (h *MemHost) Blocks(ino uint64) uint64 {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocks
}

func (h *MemHost) Version(ino uint64) uint64 {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (h *MemHost) Touch(ino uint64, dirTimes bool) {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	d.mtime = now
	if dirTimes {
		d.ctime = now
	}
}

func (h *MemHost) MarkDirty(ino uint64) {}

func (h *MemHost) ClearBtreeFlag(ino uint64) {
	d := h.dir(ino)
	d.mu.Lock()
	d.flags &^= ReservedBtreeFlag
	d.mu.Unlock()
}

func (h *MemHost) HasFiletype() bool { return h.cfg.Flags.Has(FeatureFiletype) }

func (h *MemHost) MaxInodeNumber() uint32 { return h.cfg.MaxInodeNumber }

func (h *MemHost) DirSyncMode() bool { return h.cfg.DirSync }

func (h *MemHost) ReportCorruption(ino uint64, offset int64, reason string) {
	log.Printf("amnfs: corrupt directory inode=%d offset=%d: %s", ino, offset, reason)
}

func (h *MemHost) ChunkSize() uint32 { return h.cfg.BlockSize }

func (h *MemHost) Hint(ino uint64) *lookupHint { return &h.dir(ino).hint }

func (h *MemHost) IncLinks(ino uint64) {
	d := h.dir(ino)
	d.mu.Lock()
	d.nlink++
	d.mu.Unlock()
}

func (h *MemHost) DecLinks(ino uint64) {
	d := h.dir(ino)
	d.mu.Lock()
	if d.nlink > 0 {
		d.nlink--
	}
	d.mu.Unlock()
}

var _ Host = (*MemHost)(nil)
