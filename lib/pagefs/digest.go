// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import (
	"fmt"

	"github.com/bureau-foundation/pagefs/lib/pagestore"
	"github.com/zeebo/blake3"
)

// Digest returns the BLAKE3 hash of the file's logical content,
// streamed page by page through the chain reader (holes hash as
// zeros, matching what Read returns for them). External tooling uses
// this to compare a mounted tree against source data without pulling
// the whole file through the kernel.
func (fs *FS) Digest(path string) ([32]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var digest [32]byte
	ino, err := fs.resolve(path)
	if err != nil {
		return digest, err
	}
	if ino.Kind != KindFile {
		return digest, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}

	hasher := blake3.New()
	buf := make([]byte, pagestore.PageSize)
	for off := int64(0); off < ino.Stat.Size; {
		n, err := fs.fileReadAt(ino, buf, off)
		if err != nil {
			return digest, err
		}
		if n == 0 {
			return digest, fmt.Errorf("%w: short read at offset %d of %s", ErrCorrupt, off, path)
		}
		hasher.Write(buf[:n])
		off += int64(n)
	}
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}
