package amnfs

import "strings"

// IncompatFlags mirrors the superblock's incompatible-feature bitfield.
// The directory core only ever queries FeatureFiletype through the Host
// Bridge's FeatureProvider, but the bit layout lives here so a Host
// implementation and the CLI can share one vocabulary.
type IncompatFlags uint32

const (
	// FeatureFiletype is AMNFS_FEATURE_INCOMPAT_FILETYPE: when set, directory
	// entries carry a typed file_type byte instead of always writing 0.
	FeatureFiletype IncompatFlags = 1 << iota
)

func (f IncompatFlags) String() string {
	var opt []string
	if f&FeatureFiletype != 0 {
		opt = append(opt, "FILETYPE")
	}
	return strings.Join(opt, "|")
}

func (f IncompatFlags) Has(what IncompatFlags) bool {
	return f&what == what
}

// InodeFlags mirrors the per-inode flag word. The directory core clears
// ReservedBtreeFlag on every mutating path (add_link, delete_entry,
// set_link); btree-indexed directories are a reserved-for-forward-
// compatibility concept this implementation never sets.
type InodeFlags uint32

const (
	// ReservedBtreeFlag is AMNFS_BTREE_FL. Always cleared by writers here.
	ReservedBtreeFlag InodeFlags = 1 << 0
)
