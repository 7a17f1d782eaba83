// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import (
	"fmt"
	"strings"
)

// splitPath breaks a path into its components. Paths arrive without
// a leading slash ("" is the root); one is tolerated anyway, and
// consecutive slashes collapse rather than producing empty
// components.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, "/")
	components := parts[:0]
	for _, component := range parts {
		if component == "" {
			continue
		}
		if len(component) > MaxNameLen {
			return nil, fmt.Errorf("component of %d bytes: %w", len(component), ErrNameTooLong)
		}
		components = append(components, component)
	}
	return components, nil
}

// resolve walks the directory tree from the root to the inode named
// by path.
func (fs *FS) resolve(path string) (*inode, error) {
	components, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	current, err := fs.inodeOf(RootID)
	if err != nil {
		return nil, err
	}
	for i, component := range components {
		if current.Kind != KindDir {
			return nil, fmt.Errorf("%s: %w", strings.Join(components[:i], "/"), ErrNotDirectory)
		}
		current, err = fs.dirLookup(current, component)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return current, nil
}

// resolveParent resolves everything but the last component of path,
// returning the parent directory and the leaf name. Intermediate
// components must already exist and be directories.
func (fs *FS) resolveParent(path string) (*inode, string, error) {
	components, err := splitPath(path)
	if err != nil {
		return nil, "", err
	}
	if len(components) == 0 {
		return nil, "", fmt.Errorf("root has no parent: %w", ErrInvalidArgument)
	}
	leaf := components[len(components)-1]

	current, err := fs.inodeOf(RootID)
	if err != nil {
		return nil, "", err
	}
	for _, component := range components[:len(components)-1] {
		if current.Kind != KindDir {
			return nil, "", fmt.Errorf("%s: %w", path, ErrNotDirectory)
		}
		current, err = fs.dirLookup(current, component)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
	}
	if current.Kind != KindDir {
		return nil, "", fmt.Errorf("%s: %w", path, ErrNotDirectory)
	}
	return current, leaf, nil
}

// createAt places a new inode of the given kind at path. The parent
// must exist; the leaf must not.
func (fs *FS) createAt(path string, kind Kind, stat Stat) (*inode, error) {
	parent, leaf, err := fs.resolveParent(path)
	if err != nil {
		return nil, err
	}
	if _, err := fs.dirLookup(parent, leaf); err == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrExist)
	} else if !isNotFound(err) {
		return nil, err
	}
	return fs.createInode(parent, kind, leaf, stat)
}
