// Command amnfsutil is a small CLI harness over the amnfs directory
// subsystem, backed by one file per directory inode on the host
// filesystem (amnfs.FileHost). It exists to poke the directory core by
// hand the way sqfs lets you poke a SquashFS image by hand — it is not a
// mkfs tool, so inode numbers for new entries are supplied by the caller.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/amnfs-fs/amnfs"
)

const usage = `amnfsutil - amnfs directory subsystem CLI tool

Usage:
  amnfsutil init <volume_dir>                                    Initialize the root directory (inode 1)
  amnfsutil ls   <volume_dir> [<path>]                            List entries of a directory
  amnfsutil mkdir <volume_dir> <path> <ino>                       Create a subdirectory at path with the given inode number
  amnfsutil add  <volume_dir> <dir_path> <name> <ino> <type>      Add a raw entry (type: reg|dir|chr|blk|fifo|sock|lnk)
  amnfsutil rm   <volume_dir> <dir_path> <name>                   Delete an entry
  amnfsutil mv   <volume_dir> <old_dir> <old_name> <new_dir> <new_name> [dir]   Rename, pass "dir" as a 7th arg if the source is a directory
  amnfsutil info <volume_dir>                                     Show root directory metadata
  amnfsutil help                                                  Show this help message
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		if len(os.Args) < 3 {
			fmt.Println(usage)
			os.Exit(1)
		}
		err = cmdInit()
	case "ls":
		err = cmdLs()
	case "mkdir":
		err = cmdMkdir()
	case "add":
		err = cmdAdd()
	case "rm":
		err = cmdRm()
	case "mv":
		err = cmdMv()
	case "info":
		err = cmdInfo()
	case "help":
		fmt.Println(usage)
		return
	default:
		fmt.Printf("Error: unknown command %q\n", os.Args[1])
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func openVolume(path string) (*amnfs.FileHost, error) {
	return amnfs.NewFileHost(path)
}

// resolveDir walks path (slash-separated, relative to the volume root,
// inode 1) one component at a time via FindEntry, rejecting any
// intermediate component that is not itself a directory.
func resolveDir(host amnfs.Host, path string) (uint64, error) {
	ino := uint64(1)
	path = strings.Trim(path, "/")
	if path == "" || path == "." {
		return ino, nil
	}
	for _, part := range strings.Split(path, "/") {
		ref, pg, err := amnfs.Open(host, ino).FindEntry([]byte(part))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", part, err)
		}
		ftype := ref.Entry.FileType
		childIno := uint64(ref.Entry.Ino)
		pg.Release()
		if ftype != amnfs.FTDir {
			return 0, fmt.Errorf("%s: not a directory", part)
		}
		ino = childIno
	}
	return ino, nil
}

func splitParentName(path string) (string, string) {
	path = strings.Trim(path, "/")
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func parseFileType(s string) (amnfs.DirEntryType, error) {
	switch s {
	case "reg":
		return amnfs.FTRegular, nil
	case "dir":
		return amnfs.FTDir, nil
	case "chr":
		return amnfs.FTChrdev, nil
	case "blk":
		return amnfs.FTBlkdev, nil
	case "fifo":
		return amnfs.FTFifo, nil
	case "sock":
		return amnfs.FTSock, nil
	case "lnk":
		return amnfs.FTSymlink, nil
	default:
		return 0, fmt.Errorf("unknown entry type %q", s)
	}
}

func typeLabel(t amnfs.DirEntryType) string {
	switch t {
	case amnfs.FTDir:
		return "dir"
	case amnfs.FTRegular:
		return "reg"
	case amnfs.FTChrdev:
		return "chr"
	case amnfs.FTBlkdev:
		return "blk"
	case amnfs.FTFifo:
		return "fifo"
	case amnfs.FTSock:
		return "sock"
	case amnfs.FTSymlink:
		return "lnk"
	default:
		return "?"
	}
}

func cmdInit() error {
	host, err := openVolume(os.Args[2])
	if err != nil {
		return err
	}
	defer host.Close()
	if err := host.CreateDir(1, 2); err != nil {
		return err
	}
	return amnfs.Open(host, 1).MakeEmpty(1)
}

func cmdLs() error {
	if len(os.Args) < 3 {
		fmt.Println(usage)
		os.Exit(1)
	}
	host, err := openVolume(os.Args[2])
	if err != nil {
		return err
	}
	defer host.Close()

	path := "."
	if len(os.Args) > 3 {
		path = os.Args[3]
	}
	ino, err := resolveDir(host, path)
	if err != nil {
		return err
	}

	cur := amnfs.Open(host, ino).NewCursor()
	return amnfs.Open(host, ino).ReadDir(&cur, func(name []byte, childIno uint64, ftype amnfs.DirEntryType) bool {
		fmt.Printf("%-4s %10d %s\n", typeLabel(ftype), childIno, name)
		return true
	})
}

func cmdMkdir() error {
	if len(os.Args) < 5 {
		fmt.Println(usage)
		os.Exit(1)
	}
	host, err := openVolume(os.Args[2])
	if err != nil {
		return err
	}
	defer host.Close()

	parentPath, name := splitParentName(os.Args[3])
	ino, err := strconv.ParseUint(os.Args[4], 10, 64)
	if err != nil {
		return fmt.Errorf("bad inode number %q: %w", os.Args[4], err)
	}
	parentIno, err := resolveDir(host, parentPath)
	if err != nil {
		return err
	}

	if err := host.CreateDir(ino, 2); err != nil {
		return err
	}
	if err := amnfs.Open(host, ino).MakeEmpty(parentIno); err != nil {
		return err
	}
	if err := amnfs.Open(host, parentIno).AddLink([]byte(name), ino, amnfs.FTDir); err != nil {
		return err
	}
	host.IncLinks(parentIno)
	return nil
}

func cmdAdd() error {
	if len(os.Args) < 7 {
		fmt.Println(usage)
		os.Exit(1)
	}
	host, err := openVolume(os.Args[2])
	if err != nil {
		return err
	}
	defer host.Close()

	dirIno, err := resolveDir(host, os.Args[3])
	if err != nil {
		return err
	}
	ino, err := strconv.ParseUint(os.Args[5], 10, 64)
	if err != nil {
		return fmt.Errorf("bad inode number %q: %w", os.Args[5], err)
	}
	ftype, err := parseFileType(os.Args[6])
	if err != nil {
		return err
	}
	return amnfs.Open(host, dirIno).AddLink([]byte(os.Args[4]), ino, ftype)
}

func cmdRm() error {
	if len(os.Args) < 5 {
		fmt.Println(usage)
		os.Exit(1)
	}
	host, err := openVolume(os.Args[2])
	if err != nil {
		return err
	}
	defer host.Close()

	dirIno, err := resolveDir(host, os.Args[3])
	if err != nil {
		return err
	}
	ref, pg, err := amnfs.Open(host, dirIno).FindEntry([]byte(os.Args[4]))
	if err != nil {
		return err
	}
	return amnfs.Open(host, dirIno).DeleteEntry(ref, pg)
}

func cmdMv() error {
	if len(os.Args) < 7 {
		fmt.Println(usage)
		os.Exit(1)
	}
	host, err := openVolume(os.Args[2])
	if err != nil {
		return err
	}
	defer host.Close()

	oldDirIno, err := resolveDir(host, os.Args[3])
	if err != nil {
		return err
	}
	newDirIno, err := resolveDir(host, os.Args[5])
	if err != nil {
		return err
	}
	ref, pg, err := amnfs.Open(host, oldDirIno).FindEntry([]byte(os.Args[4]))
	if err != nil {
		return err
	}
	srcIno := uint64(ref.Entry.Ino)
	pg.Release()

	isDir := len(os.Args) > 7 && os.Args[7] == "dir"
	return amnfs.Rename(host, amnfs.RenameInput{
		OldDir:   oldDirIno,
		OldName:  []byte(os.Args[4]),
		NewDir:   newDirIno,
		NewName:  []byte(os.Args[6]),
		SrcIno:   srcIno,
		SrcIsDir: isDir,
	})
}

func cmdInfo() error {
	if len(os.Args) < 3 {
		fmt.Println(usage)
		os.Exit(1)
	}
	host, err := openVolume(os.Args[2])
	if err != nil {
		return err
	}
	defer host.Close()

	fmt.Println("amnfs volume root (inode 1)")
	fmt.Println("===========================")
	fmt.Printf("Links: %d\n", host.Links(1))
	fmt.Printf("Size:  %d bytes\n", host.Size(1))

	var n int
	cur := amnfs.Open(host, 1).NewCursor()
	if err := amnfs.Open(host, 1).ReadDir(&cur, func(name []byte, ino uint64, ftype amnfs.DirEntryType) bool {
		if string(name) != "." && string(name) != ".." {
			n++
		}
		return true
	}); err != nil {
		return err
	}
	fmt.Printf("Entries: %d\n", n)
	return nil
}
