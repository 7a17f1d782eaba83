// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/bureau-foundation/pagefs/lib/pagefs"
	"github.com/bureau-foundation/pagefs/lib/pagestore"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// It is created if it does not exist.
	Mountpoint string

	// FS is the filesystem to expose.
	FS *pagefs.FS

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Mount mounts the filesystem at the configured mountpoint. The
// caller must call Unmount on the returned Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FS == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &pathNode{fsys: options.FS, path: ""}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "pagefs",
			Name:       "pagefs",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("pagefs mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// errnoOf translates core errors to errno values at the kernel
// boundary. Anything unclassified, corruption included, surfaces
// as EIO.
func errnoOf(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pagefs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, pagefs.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, pagefs.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, pagefs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, pagefs.ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, pagefs.ErrIsDirectory):
		return syscall.EISDIR
	case errors.Is(err, pagefs.ErrInvalidArgument):
		return syscall.EINVAL
	case errors.Is(err, pagefs.ErrOutOfNodes), errors.Is(err, pagestore.ErrOutOfPages):
		return syscall.ENOSPC
	default:
		return syscall.EIO
	}
}

// pathNode represents one filesystem entry. The node holds only the
// core path; every callback goes through the FS handle, which is
// the single source of truth.
type pathNode struct {
	gofuse.Inode
	fsys *pagefs.FS
	path string
}

var _ gofuse.InodeEmbedder = (*pathNode)(nil)
var _ gofuse.NodeGetattrer = (*pathNode)(nil)
var _ gofuse.NodeSetattrer = (*pathNode)(nil)
var _ gofuse.NodeLookuper = (*pathNode)(nil)
var _ gofuse.NodeReaddirer = (*pathNode)(nil)
var _ gofuse.NodeCreater = (*pathNode)(nil)
var _ gofuse.NodeMknoder = (*pathNode)(nil)
var _ gofuse.NodeMkdirer = (*pathNode)(nil)
var _ gofuse.NodeUnlinker = (*pathNode)(nil)
var _ gofuse.NodeRmdirer = (*pathNode)(nil)
var _ gofuse.NodeOpener = (*pathNode)(nil)
var _ gofuse.NodeReader = (*pathNode)(nil)
var _ gofuse.NodeWriter = (*pathNode)(nil)

func (n *pathNode) childPath(name string) string {
	if n.path == "" {
		return name
	}
	return n.path + "/" + name
}

func fillAttr(stat pagefs.Stat, attr *fuse.Attr) {
	attr.Mode = stat.Mode
	attr.Size = uint64(stat.Size)
	attr.Blocks = (attr.Size + 511) / 512
	attr.Blksize = pagestore.PageSize
	attr.Nlink = stat.Nlink
	attr.Owner = fuse.Owner{Uid: stat.UID, Gid: stat.GID}
	attr.Rdev = uint32(stat.Rdev)
	attr.SetTimes(&stat.Atime, &stat.Mtime, &stat.Ctime)
}

func (n *pathNode) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	stat, err := n.fsys.GetAttr(n.path)
	if err != nil {
		return errnoOf(err)
	}
	fillAttr(stat, &out.Attr)
	return 0
}

// Setattr handles truncation (ftruncate, open with O_TRUNC). Other
// attribute changes are accepted and discarded; the core does not
// maintain them.
func (n *pathNode) Setattr(_ context.Context, _ gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := n.fsys.Truncate(n.path, int64(size)); err != nil {
			return errnoOf(err)
		}
	}
	stat, err := n.fsys.GetAttr(n.path)
	if err != nil {
		return errnoOf(err)
	}
	fillAttr(stat, &out.Attr)
	return 0
}

func (n *pathNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := n.childPath(name)
	stat, err := n.fsys.GetAttr(path)
	if err != nil {
		return nil, errnoOf(err)
	}
	child := n.NewInode(ctx, &pathNode{fsys: n.fsys, path: path}, gofuse.StableAttr{
		Mode: stat.Mode & pagefs.ModeTypeMask,
	})
	fillAttr(stat, &out.Attr)
	return child, 0
}

func (n *pathNode) Readdir(_ context.Context) (gofuse.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	err := n.fsys.ReadDir(n.path, func(name string, stat pagefs.Stat) {
		// The core emits "." and ".." for path-based hosts; the
		// kernel synthesizes those itself.
		if name == "." || name == ".." {
			return
		}
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Mode: stat.Mode & pagefs.ModeTypeMask,
		})
	})
	if err != nil {
		return nil, errnoOf(err)
	}
	return &sliceDirStream{entries: entries}, 0
}

func (n *pathNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	path := n.childPath(name)
	if err := n.fsys.MkNod(path, mode, 0); err != nil {
		return nil, nil, 0, errnoOf(err)
	}
	stat, err := n.fsys.GetAttr(path)
	if err != nil {
		return nil, nil, 0, errnoOf(err)
	}
	child := n.NewInode(ctx, &pathNode{fsys: n.fsys, path: path}, gofuse.StableAttr{
		Mode: stat.Mode & pagefs.ModeTypeMask,
	})
	fillAttr(stat, &out.Attr)
	return child, nil, 0, 0
}

func (n *pathNode) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := n.childPath(name)
	if err := n.fsys.MkNod(path, mode, uint64(dev)); err != nil {
		return nil, errnoOf(err)
	}
	stat, err := n.fsys.GetAttr(path)
	if err != nil {
		return nil, errnoOf(err)
	}
	child := n.NewInode(ctx, &pathNode{fsys: n.fsys, path: path}, gofuse.StableAttr{
		Mode: stat.Mode & pagefs.ModeTypeMask,
	})
	fillAttr(stat, &out.Attr)
	return child, 0
}

func (n *pathNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := n.childPath(name)
	if err := n.fsys.MkDir(path, mode); err != nil {
		return nil, errnoOf(err)
	}
	stat, err := n.fsys.GetAttr(path)
	if err != nil {
		return nil, errnoOf(err)
	}
	child := n.NewInode(ctx, &pathNode{fsys: n.fsys, path: path}, gofuse.StableAttr{
		Mode: stat.Mode & pagefs.ModeTypeMask,
	})
	fillAttr(stat, &out.Attr)
	return child, 0
}

func (n *pathNode) Unlink(_ context.Context, name string) syscall.Errno {
	return errnoOf(n.fsys.Unlink(n.childPath(name)))
}

func (n *pathNode) Rmdir(_ context.Context, name string) syscall.Errno {
	return errnoOf(n.fsys.Rmdir(n.childPath(name)))
}

// Open checks existence; there is no per-open state, so no file
// handle is returned and reads and writes land on the node.
func (n *pathNode) Open(_ context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if err := n.fsys.Open(n.path, flags); err != nil {
		return nil, 0, errnoOf(err)
	}
	return nil, 0, 0
}

func (n *pathNode) Read(_ context.Context, _ gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	count, err := n.fsys.Read(n.path, dest, off)
	if err != nil {
		return nil, errnoOf(err)
	}
	return fuse.ReadResultData(dest[:count]), 0
}

func (n *pathNode) Write(_ context.Context, _ gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	count, err := n.fsys.Write(n.path, data, off)
	if err != nil {
		return 0, errnoOf(err)
	}
	return uint32(count), 0
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
