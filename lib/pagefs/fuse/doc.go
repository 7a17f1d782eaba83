// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse mounts a pagefs filesystem into the host kernel via
// FUSE.
//
// The bridge is a thin adapter: every kernel callback resolves to a
// path-based operation on the pagefs.FS handle, which owns all state
// and serializes access internally. Nodes carry nothing but their
// path; there are no per-file handles, because the core is
// stateless across opens.
//
// Attribute and entry timeouts are short (one second) since the
// filesystem is mutable; negative entries expire faster so that a
// create following a failed lookup is visible promptly.
package fuse
