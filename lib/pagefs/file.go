// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import (
	"fmt"

	"github.com/bureau-foundation/pagefs/lib/pagestore"
)

// indexPagesFor returns the number of index pages a file of size
// bytes needs. The head page exists even for an empty file.
func indexPagesFor(size int64) int64 {
	if size <= 0 {
		return 1
	}
	return (size + SpanPerIndex - 1) / SpanPerIndex
}

// dataPagesFor returns the number of data pages a file of size bytes
// occupies.
func dataPagesFor(size int64) int64 {
	return (size + pagestore.PageSize - 1) / pagestore.PageSize
}

// seekIndex walks ordinal forward links from the file's content head
// and returns that index page.
func (fs *FS) seekIndex(ino *inode, ordinal int64) (*indexPage, error) {
	page, err := loadIndex(fs.store, ino.ContentHead)
	if err != nil {
		return nil, err
	}
	for step := int64(0); step < ordinal; step++ {
		if page.next() == 0 {
			return nil, fmt.Errorf("%w: chain of node %d ends %d pages before offset", ErrCorrupt, ino.ID, ordinal-step)
		}
		page, err = loadIndex(fs.store, page.next())
		if err != nil {
			return nil, err
		}
	}
	return page, nil
}

// fileReadAt copies file bytes starting at off into dst, clamped to
// the file size. Data slots that were never written read as zeros.
// Returns the number of bytes copied.
func (fs *FS) fileReadAt(ino *inode, dst []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", off, ErrInvalidArgument)
	}
	if off >= ino.Stat.Size {
		return 0, nil
	}
	if remaining := ino.Stat.Size - off; int64(len(dst)) > remaining {
		dst = dst[:remaining]
	}

	page, err := fs.seekIndex(ino, off/SpanPerIndex)
	if err != nil {
		return 0, err
	}
	slot := int((off % SpanPerIndex) / pagestore.PageSize)
	byteInPage := int(off % pagestore.PageSize)

	total := 0
	for total < len(dst) {
		if slot == payloadSlots {
			if page.next() == 0 {
				return total, fmt.Errorf("%w: chain of node %d ends mid-read", ErrCorrupt, ino.ID)
			}
			page, err = loadIndex(fs.store, page.next())
			if err != nil {
				return total, err
			}
			slot = 0
		}

		count := pagestore.PageSize - byteInPage
		if rest := len(dst) - total; count > rest {
			count = rest
		}
		if dataPage := page.slots[slot]; dataPage == 0 {
			// Hole: never-written pages read back as zeros.
			clear(dst[total : total+count])
		} else {
			if _, err := fs.store.ReadAt(dataPage, dst[total:total+count], byteInPage); err != nil {
				return total, err
			}
		}
		total += count
		byteInPage = 0
		slot++
	}
	return total, nil
}

// fileWriteAt copies src into the file starting at off, allocating
// data pages on first touch. The index chain must already span the
// write range (the facade grows it via realloc before writing).
func (fs *FS) fileWriteAt(ino *inode, src []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", off, ErrInvalidArgument)
	}
	if len(src) == 0 {
		return 0, nil
	}

	page, err := fs.seekIndex(ino, off/SpanPerIndex)
	if err != nil {
		return 0, err
	}
	slot := int((off % SpanPerIndex) / pagestore.PageSize)
	byteInPage := int(off % pagestore.PageSize)

	total := 0
	for total < len(src) {
		if slot == payloadSlots {
			if page.next() == 0 {
				return total, fmt.Errorf("%w: chain of node %d ends mid-write", ErrCorrupt, ino.ID)
			}
			page, err = loadIndex(fs.store, page.next())
			if err != nil {
				return total, err
			}
			slot = 0
		}

		if page.slots[slot] == 0 {
			dataPage, err := fs.store.Alloc()
			if err != nil {
				return total, err
			}
			page.slots[slot] = dataPage
			if err := page.save(fs.store); err != nil {
				return total, err
			}
		}

		count := pagestore.PageSize - byteInPage
		if rest := len(src) - total; count > rest {
			count = rest
		}
		if _, err := fs.store.WriteAt(page.slots[slot], src[total:total+count], byteInPage); err != nil {
			return total, err
		}
		total += count
		byteInPage = 0
		slot++
	}
	return total, nil
}

// realloc reshapes the file's backing storage for a new logical
// size and persists it to the inode.
//
// Growing extends the index chain from the tail to the coarse
// capacity ceil(size/SpanPerIndex); data pages stay lazy, allocated
// by the next write that touches them. Shrinking walks to the new
// tail, frees the data pages beyond the new size inside it, then
// frees every index page and referenced data page in the removed
// suffix. No page survives past the new capacity.
func (fs *FS) realloc(ino *inode, newSize int64) error {
	if newSize < 0 {
		return fmt.Errorf("negative size %d: %w", newSize, ErrInvalidArgument)
	}
	oldSize := ino.Stat.Size
	oldPages := indexPagesFor(oldSize)
	newPages := indexPagesFor(newSize)

	if newSize >= oldSize {
		if newPages > oldPages {
			tail, err := loadIndex(fs.store, ino.ContentTail)
			if err != nil {
				return err
			}
			for ordinal := oldPages; ordinal < newPages; ordinal++ {
				grown, err := fs.store.Alloc()
				if err != nil {
					return err
				}
				tail.setNext(grown)
				if err := tail.save(fs.store); err != nil {
					return err
				}
				tail = &indexPage{id: grown}
				if err := tail.save(fs.store); err != nil {
					return err
				}
			}
			ino.ContentTail = tail.id
		}
	} else {
		tail, err := fs.seekIndex(ino, newPages-1)
		if err != nil {
			return err
		}

		// Data slots past the new size inside the kept tail.
		keepInTail := dataPagesFor(newSize) - (newPages-1)*int64(payloadSlots)
		for slot := keepInTail; slot < int64(payloadSlots); slot++ {
			if dataPage := tail.slots[slot]; dataPage != 0 {
				if err := fs.store.Free(dataPage); err != nil {
					return err
				}
				tail.slots[slot] = 0
			}
		}

		// Zero the bytes past the new size in the last kept data
		// page, so a later grow reads them as zeros.
		if cut := int(newSize % pagestore.PageSize); cut != 0 {
			if dataPage := tail.slots[keepInTail-1]; dataPage != 0 {
				if _, err := fs.store.WriteAt(dataPage, make([]byte, pagestore.PageSize-cut), cut); err != nil {
					return err
				}
			}
		}

		// The removed suffix: every index page and every data page
		// it references.
		suffix := tail.next()
		tail.setNext(0)
		if err := tail.save(fs.store); err != nil {
			return err
		}
		for suffix != 0 {
			page, err := loadIndex(fs.store, suffix)
			if err != nil {
				return err
			}
			for slot := 0; slot < payloadSlots; slot++ {
				if dataPage := page.slots[slot]; dataPage != 0 {
					if err := fs.store.Free(dataPage); err != nil {
						return err
					}
				}
			}
			if err := fs.store.Free(suffix); err != nil {
				return err
			}
			suffix = page.next()
		}
		ino.ContentTail = tail.id
	}

	ino.Stat.Size = newSize
	now := fs.clock.Now()
	ino.Stat.Mtime, ino.Stat.Ctime = now, now
	return fs.saveInode(ino)
}
