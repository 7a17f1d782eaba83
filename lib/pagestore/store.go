// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagestore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// PageSize is the size of every page in bytes. All chain arithmetic
// in the layers above assumes this exact value; it is a constant, not
// a configuration knob.
const PageSize = 4096

// DefaultMaxPages caps a Store at 4 GiB of page memory unless the
// caller configures otherwise.
const DefaultMaxPages = 1 << 20

// PageID identifies an allocated page within a Store. IDs are stable
// for the lifetime of the page and are reused after Free.
//
// ID 0 is a valid page but, by construction, always holds the root
// inode: the filesystem allocates it first and never stores it in a
// chain slot, which is what lets the chain layer use 0 as its
// "empty slot" and "end of chain" sentinel.
type PageID int64

// NoPage is returned by lookups that found nothing.
const NoPage PageID = -1

// ErrOutOfPages is returned by Alloc when the store has reached its
// configured page limit.
var ErrOutOfPages = errors.New("pagestore: out of pages")

// ErrNotAllocated is returned when an operation names a page that is
// not currently allocated. Seeing it means a layer above holds a
// stale or corrupt page reference.
var ErrNotAllocated = errors.New("pagestore: page not allocated")

// Options configures a Store.
type Options struct {
	// MaxPages caps the number of simultaneously allocated pages.
	// Zero uses DefaultMaxPages.
	MaxPages int

	// Logger receives diagnostic messages. If nil, logging is
	// disabled.
	Logger *slog.Logger
}

// Store is a capped table of fixed-size pages. Allocation is
// first-free: the lowest free ID wins, so the very first Alloc on a
// fresh store always returns page 0.
type Store struct {
	// pages[id] is nil when the slot is free. The slice only grows;
	// freed slots are reused by the first-free scan.
	pages [][]byte

	// scanStart is a lower bound on the lowest free slot, advanced
	// on alloc and pulled back on free so the scan stays cheap.
	scanStart int

	allocated int
	maxPages  int
	logger    *slog.Logger
}

// New creates an empty Store.
func New(options Options) *Store {
	if options.MaxPages <= 0 {
		options.MaxPages = DefaultMaxPages
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		maxPages: options.MaxPages,
		logger:   options.Logger,
	}
}

// Alloc reserves the lowest free page slot, backs it with PageSize
// zeroed bytes, and returns its ID. Returns ErrOutOfPages when the
// store is at capacity.
func (s *Store) Alloc() (PageID, error) {
	if s.allocated >= s.maxPages {
		s.logger.Error("page allocation failed", "allocated", s.allocated, "max", s.maxPages)
		return NoPage, ErrOutOfPages
	}
	for id := s.scanStart; id < len(s.pages); id++ {
		if s.pages[id] == nil {
			s.pages[id] = make([]byte, PageSize)
			s.allocated++
			s.scanStart = id + 1
			return PageID(id), nil
		}
	}
	id := len(s.pages)
	if id >= s.maxPages {
		return NoPage, ErrOutOfPages
	}
	s.pages = append(s.pages, make([]byte, PageSize))
	s.allocated++
	s.scanStart = id + 1
	return PageID(id), nil
}

// Free releases a page. The slot becomes reusable by a later Alloc.
// Freeing a page that is not allocated indicates a corrupt reference
// in a layer above and is returned as an error rather than ignored.
func (s *Store) Free(id PageID) error {
	if err := s.check(id); err != nil {
		return err
	}
	s.pages[id] = nil
	s.allocated--
	if int(id) < s.scanStart {
		s.scanStart = int(id)
	}
	return nil
}

// Write copies min(len(data), PageSize) bytes to the start of the
// page. A nil or empty buffer is a no-op.
func (s *Store) Write(id PageID, data []byte) error {
	if err := s.check(id); err != nil {
		return err
	}
	if len(data) > PageSize {
		data = data[:PageSize]
	}
	copy(s.pages[id], data)
	return nil
}

// Read copies min(len(dst), PageSize) bytes from the start of the
// page into dst.
func (s *Store) Read(id PageID, dst []byte) error {
	if err := s.check(id); err != nil {
		return err
	}
	if len(dst) > PageSize {
		dst = dst[:PageSize]
	}
	copy(dst, s.pages[id])
	return nil
}

// WriteAt copies bytes into the page starting at off. The copy is
// clamped to the page end; the number of bytes written is returned.
func (s *Store) WriteAt(id PageID, data []byte, off int) (int, error) {
	if err := s.check(id); err != nil {
		return 0, err
	}
	if off < 0 || off >= PageSize {
		return 0, fmt.Errorf("pagestore: offset %d outside page", off)
	}
	return copy(s.pages[id][off:], data), nil
}

// ReadAt copies bytes from the page starting at off into dst. The
// copy is clamped to the page end; the number of bytes read is
// returned.
func (s *Store) ReadAt(id PageID, dst []byte, off int) (int, error) {
	if err := s.check(id); err != nil {
		return 0, err
	}
	if off < 0 || off >= PageSize {
		return 0, fmt.Errorf("pagestore: offset %d outside page", off)
	}
	return copy(dst, s.pages[id][off:]), nil
}

// Allocated returns the number of currently allocated pages.
func (s *Store) Allocated() int { return s.allocated }

// InUse reports whether id names a currently allocated page.
func (s *Store) InUse(id PageID) bool {
	return id >= 0 && int(id) < len(s.pages) && s.pages[id] != nil
}

func (s *Store) check(id PageID) error {
	if !s.InUse(id) {
		return fmt.Errorf("page %d: %w", id, ErrNotAllocated)
	}
	return nil
}
