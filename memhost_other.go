//go:build !linux

package amnfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileHost is a Host backed by one regular file per directory inode,
// read and written with plain ReadAt/WriteAt. It is the portable fallback
// for platforms without the mmap-based implementation in
// memhost_linux.go; same public API, same on-disk layout, no shared memory
// mapping.
type FileHost struct {
	cfg  Config
	root string

	mu   sync.RWMutex
	dirs map[uint64]*fileDir
}

type fileDir struct {
	mu sync.Mutex

	f      *os.File
	size   int64
	blocks uint64

	version uint64
	nlink   uint32
	flags   InodeFlags

	checked map[uint32]bool
	errored map[uint32]bool

	pageLock map[uint32]*sync.Mutex

	pending map[int64][]byte

	hint lookupHint

	mtime, ctime time.Time
}

// NewFileHost opens (creating as needed) root as the directory holding one
// backing file per inode.
func NewFileHost(root string, opts ...ConfigOption) (*FileHost, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrapIO("mkdir", err)
	}
	return &FileHost{cfg: cfg, root: root, dirs: make(map[uint64]*fileDir)}, nil
}

func (h *FileHost) path(ino uint64) string {
	return filepath.Join(h.root, fmt.Sprintf("%d.dir", ino))
}

func (h *FileHost) dir(ino uint64) *fileDir {
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
	d = &fileDir{
		checked:  make(map[uint32]bool),
		errored:  make(map[uint32]bool),
		pageLock: make(map[uint32]*sync.Mutex),
		pending:  make(map[int64][]byte),
		nlink:    2,
		flags:    ReservedBtreeFlag,
	}
	f, err := os.OpenFile(h.path(ino), os.O_RDWR|os.O_CREATE, 0o644)
	if err == nil {
		d.f = f
		if st, serr := f.Stat(); serr == nil {
			d.size = st.Size()
			d.blocks = uint64((d.size + 511) / 512)
		}
	}
	h.dirs[ino] = d
	return d
}

// CreateDir registers ino with the given initial link count, failing if
// its backing file could not be opened.
func (h *FileHost) CreateDir(ino uint64, nlink uint32) error {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return ErrIO
	}
	d.nlink = nlink
	return nil
}

func (h *FileHost) Links(ino uint64) uint32 {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nlink
}

// Flags returns the directory's current InodeFlags word, for callers that
// want to observe ClearBtreeFlag's effect.
func (h *FileHost) Flags(ino uint64) InodeFlags {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flags
}

// Close closes every backing file this host has opened.
func (h *FileHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var first error
	for _, d := range h.dirs {
		d.mu.Lock()
		if d.f != nil {
			if err := d.f.Close(); err != nil && first == nil {
				first = err
			}
		}
		d.mu.Unlock()
	}
	return first
}

func (h *FileHost) GetPage(ino uint64, n uint32) ([]byte, error) {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil, ErrIO
	}
	cs := int64(h.cfg.BlockSize)
	buf := make([]byte, cs)
	_, err := d.f.ReadAt(buf, int64(n)*cs)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, wrapIO("read", err)
	}
	return buf, nil
}

func (h *FileHost) PutPage(ino uint64, n uint32) {}

func (h *FileHost) PageChecked(ino uint64, n uint32) bool {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checked[n]
}

func (h *FileHost) MarkPageChecked(ino uint64, n uint32) {
	d := h.dir(ino)
	d.mu.Lock()
	d.checked[n] = true
	d.mu.Unlock()
}

func (h *FileHost) PageErrored(ino uint64, n uint32) bool {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errored[n]
}

func (h *FileHost) MarkPageError(ino uint64, n uint32) {
	d := h.dir(ino)
	d.mu.Lock()
	d.errored[n] = true
	d.mu.Unlock()
}

// Prepare reads the current content of [pos, pos+length) (zero-padding any
// part past the current end) into a scratch buffer, holds it under pos
// until Commit, and hands it back for the directory core to mutate in
// place.
func (h *FileHost) Prepare(ino uint64, pos int64, length int) ([]byte, error) {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil, ErrIO
	}
	buf := make([]byte, length)
	_, err := d.f.ReadAt(buf, pos)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, wrapIO("read", err)
	}
	d.pending[pos] = buf
	return buf, nil
}

func (h *FileHost) Commit(ino uint64, pos int64, length int, dirSync bool) error {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.pending[pos]
	if !ok {
		return ErrIO
	}
	delete(d.pending, pos)
	if _, err := d.f.WriteAt(buf, pos); err != nil {
		return wrapIO("write", err)
	}
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
	if dirSync {
		if err := d.f.Sync(); err != nil {
			return wrapIO("fsync", err)
		}
	}
	return nil
}

func (h *FileHost) LockPage(ino uint64, n uint32) {
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

func (h *FileHost) UnlockPage(ino uint64, n uint32) {
	d := h.dir(ino)
	d.mu.Lock()
	m := d.pageLock[n]
	d.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
}

func (h *FileHost) Size(ino uint64) int64 {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (h *FileHost) Blocks(ino uint64) uint64 {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocks
}

func (h *FileHost) Version(ino uint64) uint64 {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (h *FileHost) Touch(ino uint64, dirTimes bool) {
	d := h.dir(ino)
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	d.mtime = now
	if dirTimes {
		d.ctime = now
	}
}

func (h *FileHost) MarkDirty(ino uint64) {}

func (h *FileHost) ClearBtreeFlag(ino uint64) {
	d := h.dir(ino)
	d.mu.Lock()
	d.flags &^= ReservedBtreeFlag
	d.mu.Unlock()
}

func (h *FileHost) HasFiletype() bool { return h.cfg.Flags.Has(FeatureFiletype) }

func (h *FileHost) MaxInodeNumber() uint32 { return h.cfg.MaxInodeNumber }

func (h *FileHost) DirSyncMode() bool { return h.cfg.DirSync }

func (h *FileHost) ReportCorruption(ino uint64, offset int64, reason string) {
	fmt.Printf("amnfs: corrupt directory inode=%d offset=%d: %s\n", ino, offset, reason)
}

func (h *FileHost) ChunkSize() uint32 { return h.cfg.BlockSize }

func (h *FileHost) Hint(ino uint64) *lookupHint { return &h.dir(ino).hint }

func (h *FileHost) IncLinks(ino uint64) {
	d := h.dir(ino)
	d.mu.Lock()
	d.nlink++
	d.mu.Unlock()
}

func (h *FileHost) DecLinks(ino uint64) {
	d := h.dir(ino)
	d.mu.Lock()
	if d.nlink > 0 {
		d.nlink--
	}
	d.mu.Unlock()
}

var _ Host = (*FileHost)(nil)
