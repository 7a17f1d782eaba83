// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import (
	"fmt"

	"github.com/bureau-foundation/pagefs/lib/pagestore"
)

// dirLookup returns the child of dir with the given name, comparing
// byte-exact. Children are scanned in insertion order.
func (fs *FS) dirLookup(dir *inode, name string) (*inode, error) {
	var found *inode
	err := chainForEach(fs.store, dir.ContentHead, func(_ pagestore.PageID, _ int, childPage pagestore.PageID) error {
		child, err := fs.loadInode(childPage)
		if err != nil {
			return err
		}
		if child.Name == name {
			found = child
			return errStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return found, nil
}

// dirInsert appends child's inode page to dir's content chain. If
// the chain grew, dir's tail pointer moves with it.
func (fs *FS) dirInsert(dir *inode, child *inode) error {
	grown, err := chainAppend(fs.store, dir.ContentHead, child.SelfPage)
	if err != nil {
		return err
	}
	now := fs.clock.Now()
	dir.Stat.Mtime, dir.Stat.Ctime = now, now
	if grown != pagestore.NoPage {
		dir.ContentTail = grown
	}
	return fs.saveInode(dir)
}

// dirRemove unlinks the child whose inode page is childPage from
// dir's content chain.
func (fs *FS) dirRemove(dir *inode, childPage pagestore.PageID) error {
	page, slot, found, err := chainFindSlot(fs.store, dir.ContentHead, childPage)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: directory %d has no entry for page %d", ErrCorrupt, dir.ID, childPage)
	}
	if err := chainRemoveAt(fs.store, page, slot); err != nil {
		return err
	}
	now := fs.clock.Now()
	dir.Stat.Mtime, dir.Stat.Ctime = now, now
	return fs.saveInode(dir)
}

// dirForEach calls fn for every child of dir, in insertion order.
func (fs *FS) dirForEach(dir *inode, fn func(child *inode) error) error {
	return chainForEach(fs.store, dir.ContentHead, func(_ pagestore.PageID, _ int, childPage pagestore.PageID) error {
		child, err := fs.loadInode(childPage)
		if err != nil {
			return err
		}
		return fn(child)
	})
}

// dirEmpty reports whether dir has no children. Dense packing makes
// this a single-slot probe: an empty head slot 0 means an empty
// chain.
func (fs *FS) dirEmpty(dir *inode) (bool, error) {
	head, err := loadIndex(fs.store, dir.ContentHead)
	if err != nil {
		return false, err
	}
	return head.slots[0] == 0, nil
}
