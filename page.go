package amnfs

// Page is a validated view over one chunk of a directory's content,
// returned by lookup/iteration operations. Index is the chunk/page number;
// Bytes always has length ChunkSize; Last is the count of valid bytes
// within it (amnfs_last_byte).
type Page struct {
	view  *pageView
	Index uint32
	Bytes []byte
	Last  uint32
}

// Release unmaps and drops the reference, mirroring amnfs_put_page. Safe to
// call at most once per fetch; every directory operation releases the pages
// it fetches on every exit path, including error, except the page that
// FindEntry and Dotdot hand back to their caller.
func (p *Page) Release() {
	if p == nil {
		return
	}
	p.view.host.PutPage(p.view.ino, p.Index)
}

// pageView is a view over one directory's page cache (spec.md §4.2). A page
// and a chunk are the same size here (see host.go's Host doc comment), so
// "page n" and "chunk n" name the same byte range.
type pageView struct {
	host Host
	ino  uint64
}

func newPageView(host Host, ino uint64) *pageView {
	return &pageView{host: host, ino: ino}
}

func (v *pageView) chunkSize() uint32 {
	return v.host.ChunkSize()
}

// npages returns ceil(i_size / chunk_size).
func (v *pageView) npages() uint32 {
	size := v.host.Size(v.ino)
	if size <= 0 {
		return 0
	}
	cs := int64(v.chunkSize())
	return uint32((size + cs - 1) / cs)
}

// lastByte is amnfs_last_byte: the count of valid bytes in page n.
func (v *pageView) lastByte(n uint32) uint32 {
	size := v.host.Size(v.ino)
	cs := int64(v.chunkSize())
	last := size - int64(n)*cs
	if last > cs {
		last = cs
	}
	if last < 0 {
		last = 0
	}
	return uint32(last)
}

// fetch fetches page n, running chunk validation on first touch and
// returning ErrIO if the page is (or becomes) marked errored. quiet
// suppresses the corruption report for retries, per spec.md §4.2.
func (v *pageView) fetch(n uint32, quiet bool) (*Page, error) {
	buf, err := v.host.GetPage(v.ino, n)
	if err != nil {
		return nil, wrapIO("get_page", err)
	}
	var cerr error
	if !v.host.PageChecked(v.ino, n) {
		cerr = v.checkPage(n, buf, quiet)
	}
	if v.host.PageErrored(v.ino, n) {
		v.host.PutPage(v.ino, n)
		if cerr != nil {
			return nil, cerr
		}
		return nil, ErrIO
	}
	return &Page{view: v, Index: n, Bytes: buf, Last: v.lastByte(n)}, nil
}

// checkPage is amnfs_check_page: validates every entry from offset 0 to the
// page's last valid byte, reporting the first violation found. On any
// failure the page is marked both checked and errored so later fetches
// short-circuit without re-walking bad bytes.
func (v *pageView) checkPage(n uint32, buf []byte, quiet bool) error {
	limit := v.lastByte(n)
	chunkSize := v.chunkSize()
	largeOK := chunkSize >= largeBlockThreshold
	filetypeEnabled := v.host.HasFiletype()
	maxIno := v.host.MaxInodeNumber()

	// The page holding i_size's end when size is not a multiple of chunk
	// size (0 < limit < chunkSize) is corruption — see spec.md's open
	// question. We detect that via a non-zero remainder. A page wholly past
	// i_size (limit == 0) has nothing to validate and is marked clean.
	if limit != chunkSize {
		size := v.host.Size(v.ino)
		if uint32(n) == uint32(size/int64(chunkSize)) && size%int64(chunkSize) != 0 {
			return v.fail(n, 0, "size of directory is not a multiple of chunk size", quiet)
		}
		if limit == 0 {
			v.host.MarkPageChecked(v.ino, n)
			return nil
		}
	}

	minHeader := uint32(needed(1))
	var offs uint32
	for offs+minHeader <= limit {
		ent, err := decodeEntry(buf[offs:], largeOK, filetypeEnabled)
		if err != nil {
			return v.fail(n, int64(offs), err.Error(), quiet)
		}
		recLen := ent.RecLen
		switch {
		case recLen < uint32(entryHeaderSize):
			return v.fail(n, int64(offs), "rec_len is smaller than minimal", quiet)
		case recLen&3 != 0:
			return v.fail(n, int64(offs), "unaligned directory entry", quiet)
		case recLen < uint32(needed(int(ent.NameLen))):
			return v.fail(n, int64(offs), "rec_len is too small for name_len", quiet)
		case ((offs+recLen-1)^offs)&^(chunkSize-1) != 0:
			return v.fail(n, int64(offs), "directory entry across chunks", quiet)
		case ent.Ino > maxIno:
			return v.fail(n, int64(offs), "inode out of bounds", quiet)
		}
		offs += recLen
	}
	if offs != limit {
		return v.fail(n, int64(offs), "entry spans the chunk boundary", quiet)
	}
	v.host.MarkPageChecked(v.ino, n)
	return nil
}

// fail records the violation as checked+errored and, unless quiet, reports
// it to the host's corruption sink; it always returns the CorruptionError
// describing what was found so the caller that first detected it gets full
// detail, even though later quiet re-fetches of the same page only see ErrIO.
func (v *pageView) fail(n uint32, offsetInPage int64, reason string, quiet bool) error {
	offset := int64(n)*int64(v.chunkSize()) + offsetInPage
	v.host.MarkPageChecked(v.ino, n)
	v.host.MarkPageError(v.ino, n)
	if quiet {
		return &CorruptionError{Ino: v.ino, Offset: offset, Reason: reason}
	}
	return reportCorruption(v.host, v.ino, offset, reason)
}

// revalidateOffset is the re-entry validation amnfs_validate_entry performs:
// when an iterator resumes at an arbitrary offset within a page because the
// host's version changed underneath it, recompute the nearest valid entry
// boundary by walking from the enclosing chunk start, stopping once the
// cumulative position reaches offset.
func (v *pageView) revalidateOffset(buf []byte, offset uint32) uint32 {
	chunkSize := v.chunkSize()
	mask := ^(chunkSize - 1)
	base := offset & mask
	largeOK := chunkSize >= largeBlockThreshold
	filetypeEnabled := v.host.HasFiletype()
	p := base
	for p < offset {
		ent, err := decodeEntry(buf[p:], largeOK, filetypeEnabled)
		if err != nil || ent.RecLen == 0 {
			break
		}
		p += ent.RecLen
	}
	return p
}

