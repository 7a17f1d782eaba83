// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/pagefs/lib/pagestore"
)

// Check walks the whole tree from the root and verifies the
// structural invariants of the page encoding:
//
//   - directory chains are densely packed (an empty slot is only
//     ever followed by empty slots);
//   - a file's data pages all lie within ceil(size/PageSize) slots
//     and each inode's ContentTail is the true last page of its
//     chain;
//   - every allocated page is owned by exactly one inode, chain, or
//     data payload, and nothing allocated is unreachable;
//   - every live node resolves back to itself through its
//     reconstructed path, and the node index matches the tree.
//
// Check returns the first violation found, wrapped around
// ErrCorrupt. It takes the filesystem lock and is safe to call
// between operations at any time.
func (fs *FS) Check() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	err := fs.check()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		// A store error here means a dangling page reference.
		err = fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return err
}

func (fs *FS) check() error {
	// owner[page] describes who claims the page; ownership is
	// exclusive (§ ownership: inode page, chain page, or data page).
	owner := make(map[pagestore.PageID]string)
	claim := func(page pagestore.PageID, who string) error {
		if previous, taken := owner[page]; taken {
			return fmt.Errorf("%w: page %d owned by both %s and %s", ErrCorrupt, page, previous, who)
		}
		if !fs.store.InUse(page) {
			return fmt.Errorf("%w: %s references unallocated page %d", ErrCorrupt, who, page)
		}
		owner[page] = who
		return nil
	}

	visited := make(map[NodeID]bool)

	type frame struct {
		page pagestore.PageID
		path string
	}
	stack := []frame{{page: fs.nodePages[RootID], path: ""}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ino, err := fs.loadInode(top.page)
		if err != nil {
			return err
		}
		if visited[ino.ID] {
			return fmt.Errorf("%w: node %d reachable twice (tree has a cycle or duplicate link)", ErrCorrupt, ino.ID)
		}
		visited[ino.ID] = true

		if mapped, ok := fs.nodePages[ino.ID]; !ok || mapped != top.page {
			return fmt.Errorf("%w: node %d at page %d but index says page %d", ErrCorrupt, ino.ID, top.page, mapped)
		}
		if err := claim(top.page, fmt.Sprintf("inode %d", ino.ID)); err != nil {
			return err
		}

		// Path round-trip: the reconstructed path must resolve back
		// to this very node.
		resolved, err := fs.resolve(top.path)
		if err != nil {
			return fmt.Errorf("%w: node %d unreachable at %q: %v", ErrCorrupt, ino.ID, top.path, err)
		}
		if resolved.ID != ino.ID {
			return fmt.Errorf("%w: path %q resolves to node %d, not %d", ErrCorrupt, top.path, resolved.ID, ino.ID)
		}

		if err := fs.checkChain(ino, claim); err != nil {
			return err
		}

		if ino.Kind == KindDir {
			names := make(map[string]bool)
			err := chainForEach(fs.store, ino.ContentHead, func(_ pagestore.PageID, _ int, childPage pagestore.PageID) error {
				child, err := fs.loadInode(childPage)
				if err != nil {
					return err
				}
				if child.Parent != ino.ID {
					return fmt.Errorf("%w: node %d under directory %d claims parent %d", ErrCorrupt, child.ID, ino.ID, child.Parent)
				}
				if names[child.Name] {
					return fmt.Errorf("%w: directory %d has two entries named %q", ErrCorrupt, ino.ID, child.Name)
				}
				names[child.Name] = true
				childPath := child.Name
				if top.path != "" {
					childPath = top.path + "/" + child.Name
				}
				stack = append(stack, frame{page: childPage, path: childPath})
				return nil
			})
			if err != nil {
				return err
			}
		}
	}

	if len(visited) != len(fs.nodePages) {
		missing := make([]string, 0, 4)
		for id := range fs.nodePages {
			if !visited[id] {
				missing = append(missing, fmt.Sprintf("%d", id))
			}
		}
		return fmt.Errorf("%w: node index has %d entries but the tree reaches %d (orphaned: %s)",
			ErrCorrupt, len(fs.nodePages), len(visited), strings.Join(missing, ", "))
	}
	if len(owner) != fs.store.Allocated() {
		return fmt.Errorf("%w: %d pages allocated but %d reachable from the root",
			ErrCorrupt, fs.store.Allocated(), len(owner))
	}
	return nil
}

// checkChain claims every index page of ino's chain, verifies the
// tail pointer, and applies the per-kind payload rules: directory
// chains must be densely packed; file chains may have holes but no
// data page past the file's capacity.
func (fs *FS) checkChain(ino *inode, claim func(pagestore.PageID, string) error) error {
	maxData := dataPagesFor(ino.Stat.Size)

	current := ino.ContentHead
	last := current
	ordinal := int64(0)
	sawEmpty := false
	dataCount := int64(0)

	for current != 0 {
		if err := claim(current, fmt.Sprintf("chain of node %d", ino.ID)); err != nil {
			return err
		}
		page, err := loadIndex(fs.store, current)
		if err != nil {
			return err
		}
		for slot := 0; slot < payloadSlots; slot++ {
			value := page.slots[slot]
			if value == 0 {
				sawEmpty = true
				continue
			}
			switch ino.Kind {
			case KindDir:
				if sawEmpty {
					return fmt.Errorf("%w: directory %d chain page %d slot %d occupied after an empty slot",
						ErrCorrupt, ino.ID, current, slot)
				}
			case KindFile:
				position := ordinal*int64(payloadSlots) + int64(slot)
				if position >= maxData {
					return fmt.Errorf("%w: file %d (size %d) has a data page at slot position %d",
						ErrCorrupt, ino.ID, ino.Stat.Size, position)
				}
				if err := claim(value, fmt.Sprintf("data of node %d", ino.ID)); err != nil {
					return err
				}
				dataCount++
			}
		}
		last = current
		current = page.next()
		ordinal++
	}

	if ino.ContentTail != last {
		return fmt.Errorf("%w: node %d tail pointer %d but chain ends at %d",
			ErrCorrupt, ino.ID, ino.ContentTail, last)
	}
	if ino.Kind == KindFile {
		if dataCount > maxData {
			return fmt.Errorf("%w: file %d (size %d) holds %d data pages, capacity %d",
				ErrCorrupt, ino.ID, ino.Stat.Size, dataCount, maxData)
		}
		if want := indexPagesFor(ino.Stat.Size); ordinal != want {
			return fmt.Errorf("%w: file %d (size %d) has %d index pages, want %d",
				ErrCorrupt, ino.ID, ino.Stat.Size, ordinal, want)
		}
	}
	return nil
}
