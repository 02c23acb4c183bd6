package amnfs

import "errors"

// RenameInput names the six pieces of state amnfs_rename needs from its
// VFS caller: the two directories and names involved, and the source
// inode's identity and type (the inode layer already knows S_ISDIR on the
// dentry being moved; the directory core never inspects inode modes
// itself).
type RenameInput struct {
	OldDir   uint64
	OldName  []byte
	NewDir   uint64
	NewName  []byte
	SrcIno   uint64
	SrcIsDir bool
}

// Rename moves SrcIno from (OldDir, OldName) to (NewDir, NewName),
// orchestrating FindEntry/Dotdot/SetLink/AddLink/DeleteEntry/EmptyDir the
// way amnfs_rename sequences amnfs_find_entry, amnfs_dotdot,
// amnfs_add_link, amnfs_set_link and amnfs_delete_entry: find the source
// entry; for a directory, fetch its ".." entry; retarget an existing
// NewName (a directory target must be empty) or add NewName; delete
// OldName; repoint a moved directory's ".." when the parent changes; and
// drop OldDir's link count whenever a directory moved.
func Rename(host Host, in RenameInput) error {
	oldOps := Open(host, in.OldDir)
	oldRef, oldPage, err := oldOps.FindEntry(in.OldName)
	if err != nil {
		return err
	}

	var dirRef *EntryRef
	var dirPage *Page
	if in.SrcIsDir {
		dirRef, dirPage, err = Open(host, in.SrcIno).Dotdot()
		if err != nil {
			oldPage.Release()
			return wrapIO("dotdot", err)
		}
	}

	newOps := Open(host, in.NewDir)
	newRef, newPage, ferr := newOps.FindEntry(in.NewName)
	targetExists := ferr == nil
	if ferr != nil && !errors.Is(ferr, ErrNotFound) {
		oldPage.Release()
		if dirPage != nil {
			dirPage.Release()
		}
		return ferr
	}

	if targetExists {
		targetIno := uint64(newRef.Entry.Ino)
		if in.SrcIsDir {
			empty, eerr := Open(host, targetIno).EmptyDir()
			if eerr != nil {
				newPage.Release()
				oldPage.Release()
				if dirPage != nil {
					dirPage.Release()
				}
				return eerr
			}
			if !empty {
				newPage.Release()
				oldPage.Release()
				if dirPage != nil {
					dirPage.Release()
				}
				return ErrNotEmpty
			}
		}
		if serr := newOps.SetLink(newRef, newPage, in.SrcIno, oldRef.Entry.FileType, false); serr != nil {
			oldPage.Release()
			if dirPage != nil {
				dirPage.Release()
			}
			return serr
		}
		host.DecLinks(targetIno)
		if in.SrcIsDir {
			host.DecLinks(targetIno)
		}
	} else {
		if aerr := newOps.AddLink(in.NewName, in.SrcIno, oldRef.Entry.FileType); aerr != nil {
			oldPage.Release()
			if dirPage != nil {
				dirPage.Release()
			}
			return aerr
		}
		if in.SrcIsDir {
			host.IncLinks(in.NewDir)
		}
	}

	host.Touch(in.SrcIno, true)
	host.MarkDirty(in.SrcIno)

	if derr := oldOps.DeleteEntry(oldRef, oldPage); derr != nil {
		if dirPage != nil {
			dirPage.Release()
		}
		return derr
	}

	if in.SrcIsDir {
		if in.OldDir != in.NewDir {
			if serr := Open(host, in.SrcIno).SetLink(dirRef, dirPage, in.NewDir, FTDir, false); serr != nil {
				return serr
			}
		} else if dirPage != nil {
			dirPage.Release()
		}
		// inode_dec_link_count(old_dir) fires whenever a directory moved,
		// regardless of whether old_dir and new_dir are the same parent;
		// only the ".." rewrite above is conditional on that.
		host.DecLinks(in.OldDir)
	} else if dirPage != nil {
		dirPage.Release()
	}

	return nil
}
