// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/pagefs/lib/clock"
	"github.com/bureau-foundation/pagefs/lib/pagestore"
)

// Options configures a filesystem.
type Options struct {
	// MaxPages caps the page store. Zero uses
	// pagestore.DefaultMaxPages.
	MaxPages int

	// MaxNodes caps the number of inodes ever created (ids are not
	// recycled). Zero uses DefaultMaxNodes.
	MaxNodes int64

	// UID and GID are stamped on the root inode and on every inode
	// created without explicit ownership.
	UID, GID uint32

	// Clock provides time for inode timestamps. If nil, defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, logging is
	// disabled.
	Logger *slog.Logger
}

// FS is an in-memory filesystem handle. All state lives in its page
// store; nothing touches the host filesystem.
//
// Operations are serialized behind a single mutex, so an FS is safe
// for concurrent use by a multi-threaded host bridge. There is no
// finer-grained locking: every operation is memory-to-memory and
// runs to completion.
type FS struct {
	mu     sync.Mutex
	store  *pagestore.Store
	clock  clock.Clock
	logger *slog.Logger

	maxNodes  int64
	nextNode  NodeID
	nodePages map[NodeID]pagestore.PageID

	uid, gid uint32
}

// New creates a filesystem containing only the root directory. The
// root takes node id 0 and, as the first allocation, inode page 0,
// which is what permits the chain layer's
// use of 0 as its empty-slot sentinel.
func New(options Options) (*FS, error) {
	if options.MaxNodes <= 0 {
		options.MaxNodes = DefaultMaxNodes
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	fs := &FS{
		store:     pagestore.New(pagestore.Options{MaxPages: options.MaxPages, Logger: options.Logger}),
		clock:     options.Clock,
		logger:    options.Logger,
		maxNodes:  options.MaxNodes,
		nodePages: make(map[NodeID]pagestore.PageID),
		uid:       options.UID,
		gid:       options.GID,
	}

	rootPage, err := fs.store.Alloc()
	if err != nil {
		return nil, err
	}
	if rootPage != 0 {
		return nil, fmt.Errorf("%w: first allocation returned page %d", ErrCorrupt, rootPage)
	}
	headPage, err := fs.store.Alloc()
	if err != nil {
		return nil, err
	}

	now := fs.clock.Now()
	root := &inode{
		Kind:        KindDir,
		ID:          RootID,
		Parent:      RootID,
		SelfPage:    rootPage,
		ContentHead: headPage,
		ContentTail: headPage,
		Name:        "/",
		Stat: Stat{
			Mode:  ModeDir | 0o755,
			UID:   options.UID,
			GID:   options.GID,
			Nlink: 1,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
	}
	if err := fs.saveInode(root); err != nil {
		return nil, err
	}
	fs.nodePages[RootID] = rootPage
	fs.nextNode = 1

	fs.logger.Info("filesystem initialized",
		"max_pages", options.MaxPages,
		"max_nodes", options.MaxNodes,
	)
	return fs, nil
}

// GetAttr returns the attributes of the inode at path.
func (fs *FS) GetAttr(path string) (Stat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(path)
	if err != nil {
		return Stat{}, err
	}
	return ino.Stat, nil
}

// ReadDir emits the entries of the directory at path, "." and ".."
// first, then the children in insertion order.
func (fs *FS) ReadDir(path string, emit func(name string, stat Stat)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if dir.Kind != KindDir {
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	}
	parent, err := fs.inodeOf(dir.Parent)
	if err != nil {
		return err
	}

	emit(".", dir.Stat)
	emit("..", parent.Stat)
	return fs.dirForEach(dir, func(child *inode) error {
		emit(child.Name, child.Stat)
		return nil
	})
}

// MkNod creates a regular file at path. The parent directory must
// exist. dev passes through to the inode's Rdev field.
func (fs *FS) MkNod(path string, mode uint32, dev uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.createAt(path, KindFile, Stat{
		Mode: mode,
		UID:  fs.uid,
		GID:  fs.gid,
		Rdev: dev,
	})
	return err
}

// MkDir creates a directory at path. The parent directory must
// exist.
func (fs *FS) MkDir(path string, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.createAt(path, KindDir, Stat{
		Mode: mode | ModeDir,
		UID:  fs.uid,
		GID:  fs.gid,
	})
	return err
}

// Open checks that path resolves. The filesystem keeps no open-file
// state; flags are accepted for interface compatibility and ignored.
func (fs *FS) Open(path string, flags uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.resolve(path)
	return err
}

// Read copies file bytes from off into dst and returns the count,
// clamped to the file size. Reading at or past the end returns 0.
func (fs *FS) Read(path string, dst []byte, off int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	if ino.Kind != KindFile {
		return 0, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}
	return fs.fileReadAt(ino, dst, off)
}

// Write copies src into the file at off, growing the file to
// max(size, off+len(src)) first. Returns len(src) on success.
func (fs *FS) Write(path string, src []byte, off int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	if ino.Kind != KindFile {
		return 0, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", off, ErrInvalidArgument)
	}

	if newSize := off + int64(len(src)); newSize > ino.Stat.Size {
		if err := fs.realloc(ino, newSize); err != nil {
			return 0, err
		}
	}
	return fs.fileWriteAt(ino, src, off)
}

// Truncate resizes the file at path. Growth is implicit zero-fill
// (fresh pages read as zeros); shrinking releases every data page
// and index page past the new size.
func (fs *FS) Truncate(path string, size int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if ino.Kind != KindFile {
		return fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}
	return fs.realloc(ino, size)
}

// Unlink removes the file at path and releases all its pages.
func (fs *FS) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if ino.Kind != KindFile {
		return fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}
	if err := fs.realloc(ino, 0); err != nil {
		return err
	}
	if err := fs.removeInode(ino); err != nil {
		return err
	}
	fs.logger.Debug("unlinked", "path", path, "node", ino.ID)
	return nil
}

// Rmdir removes the directory at path, which must be empty.
func (fs *FS) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if ino.Kind != KindDir {
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	}
	if ino.ID == RootID {
		return fmt.Errorf("cannot remove root: %w", ErrInvalidArgument)
	}
	empty, err := fs.dirEmpty(ino)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("%s: %w", path, ErrNotEmpty)
	}
	if err := fs.removeInode(ino); err != nil {
		return err
	}
	fs.logger.Debug("removed directory", "path", path, "node", ino.ID)
	return nil
}

// AllocatedPages returns the number of pages currently allocated.
// Useful for capacity monitoring and for tests asserting that
// operations release what they take.
func (fs *FS) AllocatedPages() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.store.Allocated()
}
