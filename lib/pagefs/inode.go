// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/pagefs/lib/codec"
	"github.com/bureau-foundation/pagefs/lib/pagestore"
)

// NodeID identifies a live inode. IDs are issued monotonically and
// never reused, so a stale id can only miss, never alias.
type NodeID int64

const (
	// RootID is the node id of the root directory.
	RootID NodeID = 0

	// NoNode is the "does not exist" sentinel.
	NoNode NodeID = -1
)

// MaxNameLen is the longest permitted name of a single entry, in
// bytes. Longer names are rejected with ErrNameTooLong.
const MaxNameLen = 255

// DefaultMaxNodes caps the node id space unless configured.
const DefaultMaxNodes = 1 << 20

// Kind distinguishes the two inode kinds.
type Kind uint8

const (
	// KindFile is a regular file.
	KindFile Kind = iota

	// KindDir is a directory.
	KindDir
)

// File mode type bits, mirroring the POSIX S_IFMT values the host
// bridge speaks.
const (
	ModeTypeMask uint32 = 0o170000
	ModeRegular  uint32 = 0o100000
	ModeDir      uint32 = 0o040000
)

// Stat is the POSIX-style attribute block of an inode. The core
// maintains Mode and Size and stamps the times; the remaining fields
// pass through from the creation call.
type Stat struct {
	Mode  uint32    `cbor:"mode"`
	UID   uint32    `cbor:"uid"`
	GID   uint32    `cbor:"gid"`
	Nlink uint32    `cbor:"nlink"`
	Size  int64     `cbor:"size"`
	Rdev  uint64    `cbor:"rdev"`
	Atime time.Time `cbor:"atime"`
	Mtime time.Time `cbor:"mtime"`
	Ctime time.Time `cbor:"ctime"`
}

// IsDir reports whether the mode's type bits mark a directory.
func (s Stat) IsDir() bool { return s.Mode&ModeTypeMask == ModeDir }

// inode is the metadata record stored (CBOR-encoded) in an inode
// page. ContentHead is always a valid index page, allocated together
// with the inode; ContentTail tracks the last page of that chain so
// growing a file's chain need not walk it. Directory appends still
// scan from ContentHead for the first empty slot.
type inode struct {
	Kind        Kind             `cbor:"kind"`
	ID          NodeID           `cbor:"id"`
	Parent      NodeID           `cbor:"parent"`
	SelfPage    pagestore.PageID `cbor:"self_page"`
	ContentHead pagestore.PageID `cbor:"content_head"`
	ContentTail pagestore.PageID `cbor:"content_tail"`
	Name        string           `cbor:"name"`
	Stat        Stat             `cbor:"stat"`
}

func (fs *FS) loadInode(page pagestore.PageID) (*inode, error) {
	var buf [pagestore.PageSize]byte
	if err := fs.store.Read(page, buf[:]); err != nil {
		return nil, fmt.Errorf("loading inode page %d: %w", page, err)
	}
	ino := &inode{}
	if err := codec.Unmarshal(buf[:], ino); err != nil {
		return nil, fmt.Errorf("%w: inode page %d does not decode: %v", ErrCorrupt, page, err)
	}
	if ino.SelfPage != page {
		return nil, fmt.Errorf("%w: inode page %d claims self page %d", ErrCorrupt, page, ino.SelfPage)
	}
	return ino, nil
}

func (fs *FS) saveInode(ino *inode) error {
	data, err := codec.Marshal(ino)
	if err != nil {
		return fmt.Errorf("encoding inode %d: %w", ino.ID, err)
	}
	if len(data) > pagestore.PageSize {
		// Names are capped well below page size, so this cannot
		// happen for any record the resolver admits.
		return fmt.Errorf("%w: inode %d record is %d bytes", ErrCorrupt, ino.ID, len(data))
	}
	if err := fs.store.Write(ino.SelfPage, data); err != nil {
		return fmt.Errorf("saving inode %d: %w", ino.ID, err)
	}
	return nil
}

// inodeOf resolves a node id through the side map. The map is the
// authoritative NodeID -> PageID index; the checker's DFS walk
// cross-validates it against the tree.
func (fs *FS) inodeOf(id NodeID) (*inode, error) {
	page, ok := fs.nodePages[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	return fs.loadInode(page)
}

// allocNodeID issues the next node id. IDs are never recycled; the
// cap bounds total creations over the filesystem's lifetime.
func (fs *FS) allocNodeID() (NodeID, error) {
	if int64(fs.nextNode) >= fs.maxNodes {
		return NoNode, ErrOutOfNodes
	}
	id := fs.nextNode
	fs.nextNode++
	return id, nil
}

// createInode allocates a node id, an inode page, and a content-head
// page, persists the new inode, and links it into the parent
// directory. On any allocation failure the pages already taken are
// released before returning.
func (fs *FS) createInode(parent *inode, kind Kind, name string, stat Stat) (*inode, error) {
	if len(name) == 0 {
		return nil, fmt.Errorf("empty name: %w", ErrInvalidArgument)
	}
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("name of %d bytes: %w", len(name), ErrNameTooLong)
	}

	id, err := fs.allocNodeID()
	if err != nil {
		return nil, err
	}
	selfPage, err := fs.store.Alloc()
	if err != nil {
		return nil, err
	}
	headPage, err := fs.store.Alloc()
	if err != nil {
		fs.store.Free(selfPage)
		return nil, err
	}

	if stat.Mode&ModeTypeMask == 0 {
		switch kind {
		case KindDir:
			stat.Mode |= ModeDir
		default:
			stat.Mode |= ModeRegular
		}
	}
	if stat.Nlink == 0 {
		stat.Nlink = 1
	}
	stat.Size = 0
	now := fs.clock.Now()
	stat.Atime, stat.Mtime, stat.Ctime = now, now, now

	ino := &inode{
		Kind:        kind,
		ID:          id,
		Parent:      parent.ID,
		SelfPage:    selfPage,
		ContentHead: headPage,
		ContentTail: headPage,
		Name:        name,
		Stat:        stat,
	}
	if err := fs.saveInode(ino); err != nil {
		fs.store.Free(selfPage)
		fs.store.Free(headPage)
		return nil, err
	}
	if err := fs.dirInsert(parent, ino); err != nil {
		fs.store.Free(selfPage)
		fs.store.Free(headPage)
		return nil, err
	}
	fs.nodePages[id] = selfPage
	return ino, nil
}

// removeInode detaches ino from its parent and releases every page
// it owns. File content must already have been released via
// realloc(0); directory chains must be empty of children.
func (fs *FS) removeInode(ino *inode) error {
	parent, err := fs.inodeOf(ino.Parent)
	if err != nil {
		return err
	}
	if err := fs.dirRemove(parent, ino.SelfPage); err != nil {
		return err
	}
	if err := chainFree(fs.store, ino.ContentHead); err != nil {
		return err
	}
	if err := fs.store.Free(ino.SelfPage); err != nil {
		return err
	}
	delete(fs.nodePages, ino.ID)
	return nil
}
