package amnfs

import "io/fs"

// DirEntryType is the on-disk file_type tag carried by a directory entry
// when the FILETYPE incompatible feature is enabled. Order matches spec.md's
// table exactly so the numeric value is the wire value.
type DirEntryType uint8

const (
	FTUnknown DirEntryType = iota
	FTRegular
	FTDir
	FTChrdev
	FTBlkdev
	FTFifo
	FTSock
	FTSymlink

	ftMax // one past the last valid tag; out-of-range reads decode as FTUnknown
)

// Unix mode bits, matching the teacher's mode.go (S_IFMT family) and
// dir.c's amnfs_type_by_mode table shift amount (S_SHIFT == 12).
const (
	sIFMT  = 0xf000
	sIFREG = 0x8000
	sIFDIR = 0x4000
	sIFBLK = 0x6000
	sIFCHR = 0x2000
	sIFIFO = 0x1000
	sIFLNK = 0xa000
	sIFSOCK = 0xc000
)

// modeToFiletypeTable mirrors dir.c's amnfs_type_by_mode, indexed by
// (mode & S_IFMT) >> 12.
var modeToFiletypeTable = map[uint32]DirEntryType{
	sIFREG >> 12:  FTRegular,
	sIFDIR >> 12:  FTDir,
	sIFCHR >> 12:  FTChrdev,
	sIFBLK >> 12:  FTBlkdev,
	sIFIFO >> 12:  FTFifo,
	sIFSOCK >> 12: FTSock,
	sIFLNK >> 12:  FTSymlink,
}

// ModeToFileType derives the on-disk file_type tag from a raw Unix mode
// word, the way amnfs_set_de_type consults amnfs_type_by_mode.
func ModeToFileType(mode uint32) DirEntryType {
	if t, ok := modeToFiletypeTable[(mode&sIFMT)>>12]; ok {
		return t
	}
	return FTUnknown
}

// FileTypeToMode returns the fs.FileMode type bits (no permissions) for a
// decoded file_type tag, mirroring dir.c's amnfs_filetype_table mapping
// into dirent d_type, generalized to Go's fs.FileMode vocabulary.
func FileTypeToMode(t DirEntryType) fs.FileMode {
	switch t {
	case FTDir:
		return fs.ModeDir
	case FTRegular:
		return 0
	case FTChrdev:
		return fs.ModeDevice | fs.ModeCharDevice
	case FTBlkdev:
		return fs.ModeDevice
	case FTFifo:
		return fs.ModeNamedPipe
	case FTSock:
		return fs.ModeSocket
	case FTSymlink:
		return fs.ModeSymlink
	default:
		return fs.ModeIrregular
	}
}

// decodeFileType reads a raw on-disk tag, treating out-of-range values (and
// feature-disabled volumes, handled by the caller) as FTUnknown — decoding
// is total, per the defensive-decode design note.
func decodeFileType(raw uint8) DirEntryType {
	if DirEntryType(raw) >= ftMax {
		return FTUnknown
	}
	return DirEntryType(raw)
}
