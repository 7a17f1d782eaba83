// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pagefs implements an in-memory hierarchical filesystem
// encoded entirely onto fixed-size pages from lib/pagestore.
//
// Every filesystem object is built from pages. An inode is one page
// holding a CBOR metadata record. Hanging off every inode is a
// content chain: a singly-linked list of index pages, each an array
// of 512 page ids whose last slot links to the next index page. For
// a directory the chain's payload slots reference the inode pages of
// its children; for a file they reference raw data pages holding the
// file's bytes.
//
// The FS type is the operation surface a host bridge calls with
// path-based requests (GetAttr, ReadDir, MkNod, MkDir, Read, Write,
// Truncate, Unlink, Rmdir). All operations are serialized behind one
// mutex; the filesystem is volatile and all state is lost when the
// handle is garbage collected.
package pagefs
