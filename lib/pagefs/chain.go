// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import (
	"encoding/binary"
	"fmt"

	"github.com/bureau-foundation/pagefs/lib/pagestore"
)

const (
	// SlotsPerPage is the number of page-id slots in one index page.
	SlotsPerPage = pagestore.PageSize / 8

	// payloadSlots is the number of slots that carry payload; the
	// final slot is the forward link to the next index page.
	payloadSlots = SlotsPerPage - 1

	// SpanPerIndex is the number of file bytes addressable by a
	// single full index page.
	SpanPerIndex = int64(payloadSlots) * pagestore.PageSize
)

// indexPage is the in-memory form of one index page: 512 page ids.
// Slots 0..510 are payload; slot 511 is the forward link (0 marks
// the end of the chain). A payload slot of 0 is empty, and payload
// slots are densely packed: the first empty slot terminates the
// occupied range of the page.
type indexPage struct {
	id    pagestore.PageID
	slots [SlotsPerPage]pagestore.PageID
}

func loadIndex(store *pagestore.Store, id pagestore.PageID) (*indexPage, error) {
	var buf [pagestore.PageSize]byte
	if err := store.Read(id, buf[:]); err != nil {
		return nil, fmt.Errorf("loading index page %d: %w", id, err)
	}
	page := &indexPage{id: id}
	for i := range page.slots {
		page.slots[i] = pagestore.PageID(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return page, nil
}

func (p *indexPage) save(store *pagestore.Store) error {
	var buf [pagestore.PageSize]byte
	for i, slot := range p.slots {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(slot))
	}
	if err := store.Write(p.id, buf[:]); err != nil {
		return fmt.Errorf("saving index page %d: %w", p.id, err)
	}
	return nil
}

func (p *indexPage) next() pagestore.PageID      { return p.slots[SlotsPerPage-1] }
func (p *indexPage) setNext(id pagestore.PageID) { p.slots[SlotsPerPage-1] = id }

// chainAppend writes value into the first empty payload slot of the
// chain, allocating and linking a fresh index page when the current
// tail is full. Returns the id of the newly allocated page, or
// NoPage if the value fit in an existing page.
func chainAppend(store *pagestore.Store, head pagestore.PageID, value pagestore.PageID) (pagestore.PageID, error) {
	current := head
	for {
		page, err := loadIndex(store, current)
		if err != nil {
			return pagestore.NoPage, err
		}
		for slot := 0; slot < payloadSlots; slot++ {
			if page.slots[slot] == 0 {
				page.slots[slot] = value
				return pagestore.NoPage, page.save(store)
			}
		}
		if page.next() != 0 {
			current = page.next()
			continue
		}

		// Payload full and no successor: grow the chain.
		grown, err := store.Alloc()
		if err != nil {
			return pagestore.NoPage, err
		}
		page.setNext(grown)
		if err := page.save(store); err != nil {
			return pagestore.NoPage, err
		}
		fresh := &indexPage{id: grown}
		fresh.slots[0] = value
		return grown, fresh.save(store)
	}
}

// chainFindSlot scans forward for the first payload slot holding
// value. Returns the page and slot index, or found=false.
func chainFindSlot(store *pagestore.Store, head pagestore.PageID, value pagestore.PageID) (pagestore.PageID, int, bool, error) {
	current := head
	for current != 0 {
		page, err := loadIndex(store, current)
		if err != nil {
			return pagestore.NoPage, 0, false, err
		}
		for slot := 0; slot < payloadSlots; slot++ {
			if page.slots[slot] == value {
				return current, slot, true, nil
			}
		}
		current = page.next()
	}
	return pagestore.NoPage, 0, false, nil
}

// chainRemoveAt clears the payload slot at (target, slot) and
// restores dense packing: the page compacts left, and successor
// pages each donate their first slot to the predecessor's last.
// Emptied trailing pages are left linked (they are reclaimed when
// the owning inode is removed).
func chainRemoveAt(store *pagestore.Store, target pagestore.PageID, slot int) error {
	if slot < 0 || slot >= payloadSlots {
		return fmt.Errorf("%w: remove at slot %d of page %d", ErrInvalidArgument, slot, target)
	}
	page, err := loadIndex(store, target)
	if err != nil {
		return err
	}
	copy(page.slots[slot:payloadSlots-1], page.slots[slot+1:payloadSlots])
	page.slots[payloadSlots-1] = 0

	for page.next() != 0 {
		successor, err := loadIndex(store, page.next())
		if err != nil {
			return err
		}
		if successor.slots[0] == 0 {
			break
		}
		page.slots[payloadSlots-1] = successor.slots[0]
		if err := page.save(store); err != nil {
			return err
		}
		copy(successor.slots[0:payloadSlots-1], successor.slots[1:payloadSlots])
		successor.slots[payloadSlots-1] = 0
		page = successor
	}
	return page.save(store)
}

// errStop terminates a chainForEach walk early without error.
var errStop = fmt.Errorf("pagefs: stop iteration")

// chainForEach walks every payload slot of the chain in order,
// calling fn for each non-zero value. fn may return errStop to end
// the walk.
func chainForEach(store *pagestore.Store, head pagestore.PageID, fn func(page pagestore.PageID, slot int, value pagestore.PageID) error) error {
	current := head
	for current != 0 {
		page, err := loadIndex(store, current)
		if err != nil {
			return err
		}
		for slot := 0; slot < payloadSlots; slot++ {
			if page.slots[slot] == 0 {
				continue
			}
			if err := fn(current, slot, page.slots[slot]); err != nil {
				if err == errStop {
					return nil
				}
				return err
			}
		}
		current = page.next()
	}
	return nil
}

// chainFree releases every index page of the chain. Payload values
// are not touched: directory chains must already be empty and file
// chains must already have had their data pages freed.
func chainFree(store *pagestore.Store, head pagestore.PageID) error {
	current := head
	for current != 0 {
		page, err := loadIndex(store, current)
		if err != nil {
			return err
		}
		if err := store.Free(current); err != nil {
			return err
		}
		current = page.next()
	}
	return nil
}
