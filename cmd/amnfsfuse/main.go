//go:build fuse

// Command amnfsfuse mounts an amnfs volume (one backing file per directory
// inode, see amnfs.FileHost) read-only over FUSE, for interactive
// poking: nodes answer lookup, readdir and getattr only. Unlike the teacher's inode_fuse.go — written against an
// in-house framework layered over go-fuse — this talks to go-fuse/v2's
// public fs package directly, since that framework isn't part of this
// module's dependency set.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/amnfs-fs/amnfs"
)

// amnfsNode is one directory inode's FUSE presence. This demo mounts only
// the directory subsystem: every node it creates is itself a directory,
// since amnfs.Host has no notion of regular-file content.
type amnfsNode struct {
	fs.Inode
	host amnfs.Host
	ino  uint64
}

var (
	_ fs.NodeLookuper  = (*amnfsNode)(nil)
	_ fs.NodeReaddirer = (*amnfsNode)(nil)
	_ fs.NodeGetattrer = (*amnfsNode)(nil)
)

func (n *amnfsNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	ref, pg, err := amnfs.Open(n.host, n.ino).FindEntry([]byte(name))
	if err != nil {
		if errors.Is(err, amnfs.ErrNotFound) {
			return nil, syscall.ENOENT
		}
		return nil, syscall.EIO
	}
	childIno := uint64(ref.Entry.Ino)
	pg.Release()

	out.Ino = childIno
	out.Mode = uint32(amnfs.FileTypeToMode(amnfs.FTDir)) | 0755
	stable := fs.StableAttr{Ino: childIno, Mode: fuse.S_IFDIR}
	child := n.NewInode(ctx, &amnfsNode{host: n.host, ino: childIno}, stable)
	return child, 0
}

func (n *amnfsNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	cur := amnfs.Open(n.host, n.ino).NewCursor()
	err := amnfs.Open(n.host, n.ino).ReadDir(&cur, func(name []byte, childIno uint64, ftype amnfs.DirEntryType) bool {
		if string(name) == "." || string(name) == ".." {
			return true
		}
		entries = append(entries, fuse.DirEntry{
			Name: string(name),
			Ino:  childIno,
			Mode: uint32(amnfs.FileTypeToMode(ftype)),
		})
		return true
	})
	if err != nil {
		return nil, syscall.EIO
	}
	return fs.NewListDirStream(entries), 0
}

func (n *amnfsNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Ino = n.ino
	out.Mode = uint32(amnfs.FileTypeToMode(amnfs.FTDir)) | 0755
	out.Size = uint64(n.host.Size(n.ino))
	out.Nlink = 2
	return 0
}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: amnfsfuse <volume_dir> <mountpoint>")
		os.Exit(1)
	}

	host, err := amnfs.NewFileHost(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer host.Close()

	root := &amnfsNode{host: host, ino: 1}
	server, err := fs.Mount(os.Args[2], root, &fs.Options{
		MountOptions: fuse.MountOptions{FsName: "amnfs", Name: "amnfs"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	server.Wait()
}
