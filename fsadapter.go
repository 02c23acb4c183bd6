package amnfs

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"
)

// FS is a read-only io/fs.FS view over one directory subtree rooted at
// rootIno, built entirely out of FindEntry/ReadDir — a convenience wrapper
// the way the teacher's file.go lets an Inode be used as an fs.File. Only
// names and file-type tags are exposed: content size and timestamps for
// non-directory entries are not modeled by the directory subsystem, so
// Stat on a leaf reports a zero size and zero time.
type FS struct {
	host Host
	root uint64
}

// NewFS returns an FS rooted at rootIno on host.
func NewFS(host Host, rootIno uint64) *FS {
	return &FS{host: host, root: rootIno}
}

var _ fs.FS = (*FS)(nil)

func (f *FS) resolve(name string) (uint64, DirEntryType, error) {
	if name == "." {
		return f.root, FTDir, nil
	}
	ino := f.root
	ftype := FTDir
	for _, part := range strings.Split(name, "/") {
		if ftype != FTDir {
			return 0, 0, fs.ErrInvalid
		}
		ref, pg, err := Open(f.host, ino).FindEntry([]byte(part))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return 0, 0, fs.ErrNotExist
			}
			return 0, 0, err
		}
		ino = uint64(ref.Entry.Ino)
		ftype = ref.Entry.FileType
		pg.Release()
	}
	return ino, ftype, nil
}

// Open implements fs.FS. Directories are returned as fs.ReadDirFile; any
// other entry is returned as a stat-only leaf whose Read always fails,
// since the directory subsystem has no notion of file content.
func (f *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	ino, ftype, err := f.resolve(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if ftype == FTDir {
		return &dirFile{fsys: f, ino: ino, name: name}, nil
	}
	return &leafFile{name: path.Base(name), ftype: ftype}, nil
}

// dirFile is a convenience object allowing a directory inode to be used as
// an fs.ReadDirFile.
type dirFile struct {
	fsys    *FS
	ino     uint64
	name    string
	cur     Cursor
	started bool
}

var _ fs.ReadDirFile = (*dirFile)(nil)

func (d *dirFile) Stat() (fs.FileInfo, error) {
	return &entryInfo{name: path.Base(d.name), ftype: FTDir}, nil
}

// Read on a directory is invalid and will always fail.
func (d *dirFile) Read(p []byte) (int, error) {
	return 0, fs.ErrInvalid
}

func (d *dirFile) Close() error {
	return nil
}

func (d *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.started {
		d.cur = Open(d.fsys.host, d.ino).NewCursor()
		d.started = true
	}
	var out []fs.DirEntry
	err := Open(d.fsys.host, d.ino).ReadDir(&d.cur, func(name []byte, ino uint64, ftype DirEntryType) bool {
		nm := string(name)
		if nm == "." || nm == ".." {
			return true
		}
		if n > 0 && len(out) >= n {
			return false
		}
		out = append(out, &dirEntry{name: nm, ftype: ftype})
		return true
	})
	if err != nil {
		return out, err
	}
	if n > 0 && len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

// leafFile is a stat-only placeholder for a non-directory entry.
type leafFile struct {
	name  string
	ftype DirEntryType
}

var _ fs.File = (*leafFile)(nil)

func (l *leafFile) Stat() (fs.FileInfo, error) {
	return &entryInfo{name: l.name, ftype: l.ftype}, nil
}

func (l *leafFile) Read(p []byte) (int, error) {
	return 0, fs.ErrInvalid
}

func (l *leafFile) Close() error {
	return nil
}

// dirEntry implements fs.DirEntry for one readdir result.
type dirEntry struct {
	name  string
	ftype DirEntryType
}

var _ fs.DirEntry = (*dirEntry)(nil)

func (e *dirEntry) Name() string      { return e.name }
func (e *dirEntry) IsDir() bool       { return e.ftype == FTDir }
func (e *dirEntry) Type() fs.FileMode { return FileTypeToMode(e.ftype) }
func (e *dirEntry) Info() (fs.FileInfo, error) {
	return &entryInfo{name: e.name, ftype: e.ftype}, nil
}

type entryInfo struct {
	name  string
	ftype DirEntryType
}

var _ fs.FileInfo = (*entryInfo)(nil)

func (i *entryInfo) Name() string       { return i.name }
func (i *entryInfo) Size() int64        { return 0 }
func (i *entryInfo) Mode() fs.FileMode  { return FileTypeToMode(i.ftype) }
func (i *entryInfo) ModTime() time.Time { return time.Time{} }
func (i *entryInfo) IsDir() bool        { return i.ftype == FTDir }
func (i *entryInfo) Sys() any           { return nil }
