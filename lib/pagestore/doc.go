// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pagestore provides the process-wide table of fixed-size
// anonymous memory pages that backs the pagefs filesystem.
//
// Every higher layer (index chains, inodes, file data) is encoded
// onto pages obtained from a Store. Pages are addressed by a stable
// PageID and are zeroed on allocation. The store itself is not
// goroutine-safe: the filesystem handle that owns it serializes all
// access behind a single mutex.
package pagestore
