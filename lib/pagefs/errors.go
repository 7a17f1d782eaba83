// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import "errors"

// Sentinel errors returned by filesystem operations. The FUSE bridge
// maps these to errno values at the boundary; everything else maps
// to EIO.
var (
	// ErrNotFound reports that a path component or node does not
	// resolve.
	ErrNotFound = errors.New("pagefs: not found")

	// ErrExist reports an attempt to create an entry whose name is
	// already taken in the parent directory.
	ErrExist = errors.New("pagefs: already exists")

	// ErrNameTooLong reports a path component longer than MaxNameLen
	// bytes.
	ErrNameTooLong = errors.New("pagefs: name too long")

	// ErrOutOfNodes reports that the node id space is exhausted.
	ErrOutOfNodes = errors.New("pagefs: out of nodes")

	// ErrInvalidArgument reports a negative offset, an operation on
	// the root that cannot apply to it, or a similar caller mistake.
	ErrInvalidArgument = errors.New("pagefs: invalid argument")

	// ErrNotEmpty reports Rmdir of a directory that still has
	// children.
	ErrNotEmpty = errors.New("pagefs: directory not empty")

	// ErrNotDirectory reports a directory operation on a file.
	ErrNotDirectory = errors.New("pagefs: not a directory")

	// ErrIsDirectory reports a file operation on a directory.
	ErrIsDirectory = errors.New("pagefs: is a directory")

	// ErrCorrupt reports an internal invariant violation: a broken
	// chain link, a page owned twice, an unaccounted allocation.
	// Operations never return it for bad input: seeing it means the
	// filesystem state itself is damaged.
	ErrCorrupt = errors.New("pagefs: corruption detected")
)

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
