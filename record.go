package amnfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// On-disk directory entry layout (spec.md §3), packed little-endian:
//
//	inode      uint32
//	rec_len    uint16
//	name_len   uint8
//	file_type  uint8
//	name       name_len bytes, no terminator
const (
	entryHeaderSize = 8
	MaxNameLen      = 255

	// recLenEscape is the rec_len wire value that means "65536" when the
	// volume's block size is at least 64 KiB (AMNFS_MAX_REC_LEN / dir.c's
	// amnfs_rec_len_from_disk / amnfs_rec_len_to_disk).
	recLenEscape  = 0xFFFF
	recLenEscaped = 1 << 16

	largeBlockThreshold = 1 << 16
)

// align4 rounds n up to the next multiple of 4.
func align4(n int) int {
	return (n + 3) &^ 3
}

// needed returns the minimum rec_len, in bytes, required to store an entry
// whose name is nameLen bytes long: align4(8 + name_len).
func needed(nameLen int) int {
	return align4(entryHeaderSize + nameLen)
}

// decodeRecLen maps the raw on-disk rec_len to its effective length,
// applying the 0xFFFF→65536 escape when the volume supports 64 KiB+ blocks.
// Mirrors amnfs_rec_len_from_disk.
func decodeRecLen(raw uint16, largeBlockOK bool) uint32 {
	if raw == recLenEscape && largeBlockOK {
		return recLenEscaped
	}
	return uint32(raw)
}

// encodeRecLen is the inverse of decodeRecLen. It fails if len exceeds what
// can be represented: > 65536 always, or == 65536 without large-block
// support, or > 65535 without the escape available. Mirrors
// amnfs_rec_len_to_disk's BUG_ON(len > (1<<16)) guard, turned into an error.
func encodeRecLen(length uint32, largeBlockOK bool) (uint16, error) {
	if length == recLenEscaped {
		if !largeBlockOK {
			return 0, fmt.Errorf("amnfs: rec_len %d requires a large block size", length)
		}
		return recLenEscape, nil
	}
	if length > largeBlockThreshold {
		return 0, fmt.Errorf("amnfs: rec_len %d exceeds the maximum representable length", length)
	}
	if length > 0xFFFF && !largeBlockOK {
		return 0, fmt.Errorf("amnfs: rec_len %d requires a large block size", length)
	}
	return uint16(length), nil
}

// Entry is the decoded form of one on-disk directory record.
type Entry struct {
	Ino      uint32
	RecLen   uint32
	NameLen  uint8
	FileType DirEntryType
	Name     []byte
}

// Free reports whether this slot is unoccupied (inode == 0).
func (e *Entry) Free() bool {
	return e.Ino == 0
}

// Matches implements amnfs_match: equal lengths, a live inode, equal bytes.
// Names are opaque octet sequences — no normalization is performed.
func (e *Entry) Matches(name []byte) bool {
	if int(e.NameLen) != len(name) {
		return false
	}
	if e.Ino == 0 {
		return false
	}
	return bytes.Equal(e.Name, name)
}

// decodeEntry reads one entry's header and name starting at buf[0]. It does
// not bound rec_len against any chunk or page limit — that is the Page
// View's job (chunk validation, §4.2). buf must hold at least
// entryHeaderSize bytes; the caller (Page View) guarantees this by only
// decoding while an 8-byte header still fits before the page's last valid
// byte.
func decodeEntry(buf []byte, largeBlockOK bool, filetypeEnabled bool) (Entry, error) {
	if len(buf) < entryHeaderSize {
		return Entry{}, fmt.Errorf("amnfs: truncated entry header (%d bytes)", len(buf))
	}
	var e Entry
	e.Ino = binary.LittleEndian.Uint32(buf[0:4])
	e.RecLen = decodeRecLen(binary.LittleEndian.Uint16(buf[4:6]), largeBlockOK)
	e.NameLen = buf[6]
	rawType := buf[7]
	if filetypeEnabled {
		e.FileType = decodeFileType(rawType)
	} else {
		e.FileType = FTUnknown
	}
	nameEnd := entryHeaderSize + int(e.NameLen)
	if nameEnd > len(buf) {
		return Entry{}, fmt.Errorf("amnfs: name_len %d exceeds available buffer", e.NameLen)
	}
	e.Name = buf[entryHeaderSize:nameEnd]
	return e, nil
}

// encodeEntry writes e's header and name into buf[0:], which must be at
// least needed(len(e.Name)) bytes. The bytes beyond the name within
// e.RecLen are left untouched — callers that split or merge slots are
// responsible for whatever padding convention they need (this codec treats
// only the header+name as meaningful).
func encodeEntry(buf []byte, e Entry, largeBlockOK bool, filetypeEnabled bool) error {
	recLen, err := encodeRecLen(e.RecLen, largeBlockOK)
	if err != nil {
		return err
	}
	if len(e.Name) > MaxNameLen {
		return ErrNameTooLong
	}
	need := entryHeaderSize + len(e.Name)
	if len(buf) < need {
		return fmt.Errorf("amnfs: buffer too small to encode entry (%d < %d)", len(buf), need)
	}
	binary.LittleEndian.PutUint32(buf[0:4], e.Ino)
	binary.LittleEndian.PutUint16(buf[4:6], recLen)
	buf[6] = byte(len(e.Name))
	if filetypeEnabled {
		buf[7] = byte(e.FileType)
	} else {
		buf[7] = 0
	}
	copy(buf[entryHeaderSize:need], e.Name)
	return nil
}
