package amnfs

import (
	"encoding/binary"
	"errors"
)

// Dir is a directory operations handle bound to one Host and one directory
// inode. It holds no state of its own beyond that pair — all mutable state
// (pages, the lookup hint, versions) lives in the Host, matching how the
// teacher's Superblock/Inode types are thin wrappers over the backing
// io.ReaderAt.
type Dir struct {
	Host Host
	Ino  uint64
}

// Open returns a Dir bound to ino on host.
func Open(host Host, ino uint64) *Dir {
	return &Dir{Host: host, Ino: ino}
}

func (d *Dir) view() *pageView {
	return newPageView(d.Host, d.Ino)
}

func (d *Dir) codecOpts() (largeOK, filetypeEnabled bool) {
	return d.view().chunkSize() >= largeBlockThreshold, d.Host.HasFiletype()
}

// EntryRef identifies a located directory entry well enough for DeleteEntry
// and SetLink to find it again within its owning Page: the page index, the
// byte offset of the entry's header within that page, and a decoded,
// independently-owned copy of the entry itself.
type EntryRef struct {
	PageIndex uint32
	Offset    uint32
	Entry     Entry
}

func cloneEntry(e Entry) Entry {
	name := make([]byte, len(e.Name))
	copy(name, e.Name)
	e.Name = name
	return e
}

// maxProbePage implements the find_entry sanity guard: the probe index may
// never exceed i_blocks/(blocks_per_page), mirroring dir.c's
// `n > (dir->i_blocks >> (PAGE_CACHE_SHIFT - 9))`. has is false when the
// chunk size is too small to express a sector count, meaning no limit
// applies.
func (d *Dir) maxProbePage() (limit uint32, has bool) {
	chunkSize := d.view().chunkSize()
	if chunkSize < 512 {
		return 0, false
	}
	sectorsPerPage := chunkSize / 512
	blocks := d.Host.Blocks(d.Ino)
	return uint32(blocks / uint64(sectorsPerPage)), true
}

// FindEntry probes pages starting at the inode's lookup hint, wrapping
// modulo page count until returning to the start, looking for name. On a
// hit the hint is updated to the matching page and the caller receives the
// owning Page mapped and unlocked — the caller must call Page.Release().
// Mirrors amnfs_find_entry.
func (d *Dir) FindEntry(name []byte) (*EntryRef, *Page, error) {
	if len(name) == 0 || len(name) > MaxNameLen {
		return nil, nil, ErrNameTooLong
	}
	v := d.view()
	npages := v.npages()
	if npages == 0 {
		return nil, nil, ErrNotFound
	}
	largeOK, filetypeEnabled := d.codecOpts()
	need := uint32(needed(len(name)))
	probeLimit, hasProbeLimit := d.maxProbePage()

	hint := d.Host.Hint(d.Ino)
	start := hint.start(npages)
	n := start
	dirHasError := false

	for {
		pg, err := v.fetch(n, dirHasError)
		if err != nil {
			dirHasError = true
		} else {
			limit := pg.Last
			var offs uint32
			for offs+need <= limit {
				ent, derr := decodeEntry(pg.Bytes[offs:], largeOK, filetypeEnabled)
				if derr != nil || ent.RecLen == 0 {
					pg.Release()
					return nil, nil, reportCorruption(d.Host, d.Ino, int64(n)*int64(v.chunkSize())+int64(offs), "zero-length directory entry")
				}
				if ent.Matches(name) {
					hint.hit(n)
					return &EntryRef{PageIndex: n, Offset: offs, Entry: cloneEntry(ent)}, pg, nil
				}
				offs += ent.RecLen
			}
			pg.Release()
		}

		n++
		if n >= npages {
			n = 0
		}
		if hasProbeLimit && n > probeLimit {
			return nil, nil, reportCorruption(d.Host, d.Ino, int64(n)*int64(v.chunkSize()), "directory size exceeds allocated block count")
		}
		if n == start {
			break
		}
	}
	return nil, nil, ErrNotFound
}

// InodeByName wraps FindEntry; on a hit it releases the page and returns
// the entry's inode number, on a miss it returns 0. Mirrors
// amnfs_inode_by_name.
func (d *Dir) InodeByName(name []byte) (uint64, error) {
	ref, pg, err := d.FindEntry(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	pg.Release()
	return uint64(ref.Entry.Ino), nil
}

// Dotdot returns the second entry of page 0 (after ".") without scanning.
// Mirrors amnfs_dotdot.
func (d *Dir) Dotdot() (*EntryRef, *Page, error) {
	v := d.view()
	largeOK, filetypeEnabled := d.codecOpts()

	pg, err := v.fetch(0, false)
	if err != nil {
		return nil, nil, err
	}
	first, err := decodeEntry(pg.Bytes, largeOK, filetypeEnabled)
	if err != nil || first.RecLen == 0 {
		pg.Release()
		return nil, nil, reportCorruption(d.Host, d.Ino, 0, "zero-length directory entry")
	}
	offset := first.RecLen
	if offset+entryHeaderSize > pg.Last {
		pg.Release()
		return nil, nil, reportCorruption(d.Host, d.Ino, int64(offset), "missing .. entry")
	}
	second, err := decodeEntry(pg.Bytes[offset:], largeOK, filetypeEnabled)
	if err != nil {
		pg.Release()
		return nil, nil, reportCorruption(d.Host, d.Ino, int64(offset), err.Error())
	}
	return &EntryRef{PageIndex: 0, Offset: offset, Entry: cloneEntry(second)}, pg, nil
}

// Cursor is the (snapshot_version, page_index, offset) triple readdir
// resumes from.
type Cursor struct {
	Version uint64
	Page    uint32
	Offset  uint32
}

// NewCursor returns a cursor positioned at the start of the directory.
func (d *Dir) NewCursor() Cursor {
	return Cursor{Version: d.Host.Version(d.Ino)}
}

// EmitFunc receives one live directory entry; returning false stops
// iteration and leaves the cursor at that same (unconsumed) entry.
type EmitFunc func(name []byte, ino uint64, ftype DirEntryType) bool

// ReadDir advances cur, emitting every live entry found until emit refuses,
// a page fails to load or holds a corrupt entry, or end-of-directory; it
// moves on from one page to the next by itself. Mirrors amnfs_readdir, including its
// "ctx.pos > i_size - 8" short circuit and version-triggered cursor
// revalidation.
func (d *Dir) ReadDir(cur *Cursor, emit EmitFunc) error {
	v := d.view()
	chunkSize := int64(v.chunkSize())
	size := d.Host.Size(d.Ino)
	pos := int64(cur.Page)*chunkSize + int64(cur.Offset)
	if pos > size-entryHeaderSize {
		return nil
	}

	largeOK, filetypeEnabled := d.codecOpts()
	npages := v.npages()
	needRevalidate := cur.Version != d.Host.Version(d.Ino)

	n := cur.Page
	offset := cur.Offset
	for ; n < npages; n, offset = n+1, 0 {
		pg, err := v.fetch(n, false)
		if err != nil {
			cur.Page = n + 1
			cur.Offset = 0
			return err
		}

		if needRevalidate {
			if offset != 0 {
				offset = v.revalidateOffset(pg.Bytes, offset)
			}
			cur.Version = d.Host.Version(d.Ino)
			needRevalidate = false
		}

		limit := pg.Last
		if limit >= uint32(needed(1)) {
			limit -= uint32(needed(1))
			de := offset
			for de <= limit {
				ent, derr := decodeEntry(pg.Bytes[de:], largeOK, filetypeEnabled)
				if derr != nil || ent.RecLen == 0 {
					err := reportCorruption(d.Host, d.Ino, int64(n)*chunkSize+int64(de), "zero-length directory entry")
					pg.Release()
					cur.Page = n
					cur.Offset = de
					return err
				}
				if ent.Ino != 0 {
					if !emit(ent.Name, uint64(ent.Ino), ent.FileType) {
						pg.Release()
						cur.Page = n
						cur.Offset = de
						return nil
					}
				}
				de += ent.RecLen
			}
		}
		pg.Release()
	}
	cur.Page = npages
	cur.Offset = 0
	return nil
}

// AddLink inserts a new entry named name referencing childIno with the
// given on-disk file-type tag, growing the directory by one chunk if no
// existing chunk has room. Mirrors amnfs_add_link.
func (d *Dir) AddLink(name []byte, childIno uint64, ftype DirEntryType) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	v := d.view()
	chunkSize := v.chunkSize()
	largeOK, filetypeEnabled := d.codecOpts()
	dirSync := d.Host.DirSyncMode()
	need := uint32(needed(len(name)))
	npages := v.npages()

	for n := uint32(0); n <= npages; n++ {
		pg, err := v.fetch(n, false)
		if err != nil {
			return err
		}
		d.Host.LockPage(d.Ino, n)

		dirEnd := pg.Last
		var offs, gotOffset, gotRecLen uint32
		var existingNameLen uint8
		var splitExisting, found bool

		for offs+need <= chunkSize {
			if offs == dirEnd {
				gotOffset = offs
				gotRecLen = chunkSize
				found = true
				break
			}
			ent, derr := decodeEntry(pg.Bytes[offs:], largeOK, filetypeEnabled)
			if derr != nil || ent.RecLen == 0 {
				d.Host.UnlockPage(d.Ino, n)
				pg.Release()
				return reportCorruption(d.Host, d.Ino, int64(n)*int64(chunkSize)+int64(offs), "zero-length directory entry")
			}
			if ent.Matches(name) {
				d.Host.UnlockPage(d.Ino, n)
				pg.Release()
				return ErrExists
			}
			existingNeed := uint32(needed(int(ent.NameLen)))
			if ent.Ino == 0 && ent.RecLen >= need {
				gotOffset = offs
				gotRecLen = ent.RecLen
				found = true
				break
			}
			if ent.RecLen >= existingNeed+need {
				gotOffset = offs
				existingNameLen = ent.NameLen
				gotRecLen = ent.RecLen
				splitExisting = true
				found = true
				break
			}
			offs += ent.RecLen
		}

		if !found {
			d.Host.UnlockPage(d.Ino, n)
			pg.Release()
			continue
		}

		pos := int64(n)*int64(chunkSize) + int64(gotOffset)
		writeBuf, perr := d.Host.Prepare(d.Ino, pos, int(gotRecLen))
		if perr != nil {
			d.Host.UnlockPage(d.Ino, n)
			pg.Release()
			return wrapIO("prepare", perr)
		}

		newOffset := uint32(0)
		newRecLen := gotRecLen
		if splitExisting {
			existingNeed := uint32(needed(int(existingNameLen)))
			encoded, eerr := encodeRecLen(existingNeed, largeOK)
			if eerr != nil {
				d.Host.UnlockPage(d.Ino, n)
				pg.Release()
				return eerr
			}
			binary.LittleEndian.PutUint16(writeBuf[4:6], encoded)
			newOffset = existingNeed
			newRecLen = gotRecLen - existingNeed
		}

		e := Entry{Ino: uint32(childIno), RecLen: newRecLen, NameLen: uint8(len(name)), FileType: ftype, Name: name}
		if werr := encodeEntry(writeBuf[newOffset:], e, largeOK, filetypeEnabled); werr != nil {
			d.Host.UnlockPage(d.Ino, n)
			pg.Release()
			return werr
		}

		cerr := d.Host.Commit(d.Ino, pos, int(gotRecLen), dirSync)
		d.Host.UnlockPage(d.Ino, n)
		pg.Release()
		if cerr != nil {
			return wrapIO("commit", cerr)
		}

		d.Host.Touch(d.Ino, true)
		d.Host.ClearBtreeFlag(d.Ino)
		d.Host.MarkDirty(d.Ino)
		return nil
	}
	return ErrNoMem
}

// DeleteEntry deletes ref from pg: if a previous entry exists in the same
// chunk, the deletion merges by extending that entry's rec_len over the
// target; otherwise the target's inode is zeroed in place and its rec_len
// preserved. Releases pg on every exit path. Mirrors amnfs_delete_entry.
func (d *Dir) DeleteEntry(ref *EntryRef, pg *Page) error {
	defer pg.Release()

	v := d.view()
	chunkSize := v.chunkSize()
	largeOK, filetypeEnabled := d.codecOpts()
	dirSync := d.Host.DirSyncMode()
	n := ref.PageIndex

	// pg and ref may predate a change to this page (Rename adds the new name
	// before deleting the old one), so walk the page's current bytes.
	cur, err := v.fetch(n, false)
	if err != nil {
		return err
	}
	defer cur.Release()

	var prevOffset uint32
	havePrev := false
	offs := uint32(0)
	for offs < ref.Offset {
		ent, derr := decodeEntry(cur.Bytes[offs:], largeOK, filetypeEnabled)
		if derr != nil || ent.RecLen == 0 {
			return reportCorruption(d.Host, d.Ino, int64(n)*int64(chunkSize)+int64(offs), "zero-length directory entry")
		}
		prevOffset = offs
		havePrev = true
		offs += ent.RecLen
	}
	target, terr := decodeEntry(cur.Bytes[ref.Offset:], largeOK, filetypeEnabled)
	if terr != nil || target.RecLen == 0 {
		return reportCorruption(d.Host, d.Ino, int64(n)*int64(chunkSize)+int64(ref.Offset), "zero-length directory entry")
	}

	from := ref.Offset
	if havePrev {
		from = prevOffset
	}
	to := ref.Offset + target.RecLen
	pos := int64(n)*int64(chunkSize) + int64(from)
	length := int(to - from)

	d.Host.LockPage(d.Ino, n)
	writeBuf, perr := d.Host.Prepare(d.Ino, pos, length)
	if perr != nil {
		d.Host.UnlockPage(d.Ino, n)
		return wrapIO("prepare", perr)
	}

	if havePrev {
		encoded, eerr := encodeRecLen(to-from, largeOK)
		if eerr != nil {
			d.Host.UnlockPage(d.Ino, n)
			return eerr
		}
		binary.LittleEndian.PutUint16(writeBuf[4:6], encoded)
	}
	relTarget := ref.Offset - from
	binary.LittleEndian.PutUint32(writeBuf[relTarget:relTarget+4], 0)

	cerr := d.Host.Commit(d.Ino, pos, length, dirSync)
	d.Host.UnlockPage(d.Ino, n)
	if cerr != nil {
		return wrapIO("commit", cerr)
	}

	d.Host.Touch(d.Ino, true)
	d.Host.ClearBtreeFlag(d.Ino)
	d.Host.MarkDirty(d.Ino)
	return nil
}

// SetLink updates ref's inode number and file-type tag in place, preserving
// rec_len and name_len, and optionally touches directory times. Releases pg
// on every exit path. Mirrors amnfs_set_link.
func (d *Dir) SetLink(ref *EntryRef, pg *Page, newIno uint64, newType DirEntryType, updateTimes bool) error {
	defer pg.Release()

	v := d.view()
	chunkSize := v.chunkSize()
	filetypeEnabled := d.Host.HasFiletype()
	dirSync := d.Host.DirSyncMode()
	n := ref.PageIndex
	pos := int64(n)*int64(chunkSize) + int64(ref.Offset)
	length := int(ref.Entry.RecLen)

	d.Host.LockPage(d.Ino, n)
	writeBuf, perr := d.Host.Prepare(d.Ino, pos, length)
	if perr != nil {
		d.Host.UnlockPage(d.Ino, n)
		return wrapIO("prepare", perr)
	}
	binary.LittleEndian.PutUint32(writeBuf[0:4], uint32(newIno))
	if filetypeEnabled {
		writeBuf[7] = byte(newType)
	} else {
		writeBuf[7] = 0
	}
	cerr := d.Host.Commit(d.Ino, pos, length, dirSync)
	d.Host.UnlockPage(d.Ino, n)
	if cerr != nil {
		return wrapIO("commit", cerr)
	}

	if updateTimes {
		d.Host.Touch(d.Ino, true)
	}
	d.Host.ClearBtreeFlag(d.Ino)
	d.Host.MarkDirty(d.Ino)
	return nil
}

// MakeEmpty writes the first chunk of a fresh directory: "." (self) then
// ".." (parent) occupying the remainder of the chunk. Mirrors
// amnfs_make_empty.
func (d *Dir) MakeEmpty(parentIno uint64) error {
	v := d.view()
	chunkSize := v.chunkSize()
	largeOK, filetypeEnabled := d.codecOpts()
	dirSync := d.Host.DirSyncMode()

	d.Host.LockPage(d.Ino, 0)
	writeBuf, perr := d.Host.Prepare(d.Ino, 0, int(chunkSize))
	if perr != nil {
		d.Host.UnlockPage(d.Ino, 0)
		return ErrNoMem
	}
	for i := range writeBuf {
		writeBuf[i] = 0
	}

	dotNeed := uint32(needed(1))
	dot := Entry{Ino: uint32(d.Ino), RecLen: dotNeed, NameLen: 1, FileType: FTDir, Name: []byte(".")}
	if err := encodeEntry(writeBuf, dot, largeOK, filetypeEnabled); err != nil {
		d.Host.UnlockPage(d.Ino, 0)
		return err
	}

	dotdot := Entry{Ino: uint32(parentIno), RecLen: chunkSize - dotNeed, NameLen: 2, FileType: FTDir, Name: []byte("..")}
	if err := encodeEntry(writeBuf[dotNeed:], dotdot, largeOK, filetypeEnabled); err != nil {
		d.Host.UnlockPage(d.Ino, 0)
		return err
	}

	cerr := d.Host.Commit(d.Ino, 0, int(chunkSize), dirSync)
	d.Host.UnlockPage(d.Ino, 0)
	if cerr != nil {
		return wrapIO("commit", cerr)
	}
	return nil
}

// EmptyDir reports whether the directory contains only "." and "..".
// Mirrors amnfs_empty_dir.
func (d *Dir) EmptyDir() (bool, error) {
	v := d.view()
	largeOK, filetypeEnabled := d.codecOpts()
	npages := v.npages()
	dirHasError := false

	for n := uint32(0); n < npages; n++ {
		pg, err := v.fetch(n, dirHasError)
		if err != nil {
			dirHasError = true
			continue
		}
		if pg.Last < uint32(needed(1)) {
			pg.Release()
			continue
		}
		limit := pg.Last - uint32(needed(1))
		offs := uint32(0)
		for offs <= limit {
			ent, derr := decodeEntry(pg.Bytes[offs:], largeOK, filetypeEnabled)
			if derr != nil || ent.RecLen == 0 {
				pg.Release()
				return false, reportCorruption(d.Host, d.Ino, int64(n)*int64(v.chunkSize())+int64(offs), "zero-length directory entry")
			}
			if ent.Ino != 0 {
				name := ent.Name
				switch {
				case len(name) == 0 || name[0] != '.':
					pg.Release()
					return false, nil
				case len(name) > 2:
					pg.Release()
					return false, nil
				case len(name) < 2:
					if uint64(ent.Ino) != d.Ino {
						pg.Release()
						return false, nil
					}
				case name[1] != '.':
					pg.Release()
					return false, nil
				}
			}
			offs += ent.RecLen
		}
		pg.Release()
	}
	return true, nil
}
