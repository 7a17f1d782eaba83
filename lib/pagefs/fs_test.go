// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pagefs

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/pagefs/lib/clock"
	"github.com/bureau-foundation/pagefs/lib/pagestore"
)

func newTestFS(t *testing.T, options Options) (*FS, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Unix(1_700_000_000, 0).UTC())
	options.Clock = fake
	fsys, err := New(options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fsys, fake
}

// mustCheck verifies the structural invariants; every mutating test
// ends with it.
func mustCheck(t *testing.T, fsys *FS) {
	t.Helper()
	if err := fsys.Check(); err != nil {
		t.Fatalf("invariant check: %v", err)
	}
}

func readDirNames(t *testing.T, fsys *FS, path string) []string {
	t.Helper()
	var names []string
	err := fsys.ReadDir(path, func(name string, _ Stat) {
		names = append(names, name)
	})
	if err != nil {
		t.Fatalf("ReadDir(%q): %v", path, err)
	}
	return names
}

func TestFreshFilesystem(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})

	// Root inode page plus its content head.
	if got := fsys.AllocatedPages(); got != 2 {
		t.Errorf("fresh filesystem allocates %d pages, want 2", got)
	}

	stat, err := fsys.GetAttr("")
	if err != nil {
		t.Fatalf("GetAttr root: %v", err)
	}
	if !stat.IsDir() {
		t.Errorf("root mode %#o is not a directory", stat.Mode)
	}
	if stat.Size != 0 {
		t.Errorf("root size = %d, want 0", stat.Size)
	}
	mustCheck(t, fsys)
}

func TestMkdirReaddir(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkDir("foo", 0o755); err != nil {
		t.Fatalf("MkDir: %v", err)
	}

	names := readDirNames(t, fsys, "")
	want := []string{".", "..", "foo"}
	if len(names) != len(want) {
		t.Fatalf("ReadDir = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}
	mustCheck(t, fsys)
}

func TestCreateWriteRead(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkDir("foo", 0o755); err != nil {
		t.Fatalf("MkDir: %v", err)
	}
	if err := fsys.MkNod("foo/bar", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}

	n, err := fsys.Write("foo/bar", []byte("hello"), 0)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 5 {
		t.Fatalf("Write = %d, want 5", n)
	}

	stat, err := fsys.GetAttr("foo/bar")
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if stat.Size != 5 {
		t.Errorf("size = %d, want 5", stat.Size)
	}
	if stat.Mode&ModeTypeMask != ModeRegular {
		t.Errorf("mode %#o is not a regular file", stat.Mode)
	}

	buf := make([]byte, 5)
	n, err = fsys.Read("foo/bar", buf, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 5 || string(buf) != "hello" {
		t.Errorf("Read = %d %q, want 5 %q", n, buf, "hello")
	}
	mustCheck(t, fsys)
}

func TestWriteAcrossPageBoundary(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkNod("x", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}

	payload := bytes.Repeat([]byte{0xab}, pagestore.PageSize+1)
	if _, err := fsys.Write("x", payload, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	stat, _ := fsys.GetAttr("x")
	if stat.Size != pagestore.PageSize+1 {
		t.Errorf("size = %d, want %d", stat.Size, pagestore.PageSize+1)
	}

	// The two bytes straddling the data-page boundary.
	buf := make([]byte, 2)
	n, err := fsys.Read("x", buf, pagestore.PageSize-1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 || buf[0] != 0xab || buf[1] != 0xab {
		t.Errorf("Read = %d %v, want 2 [171 171]", n, buf)
	}
	mustCheck(t, fsys)
}

func TestLargeFileSpansIndexPages(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkNod("x", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}

	const size = 3_000_000
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i * 31)
	}
	if _, err := fsys.Write("x", payload, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// size > SpanPerIndex, so the chain spans two index pages:
	// root inode + root head + file inode + 2 index + 733 data.
	wantPages := 4 + 1 + (size+pagestore.PageSize-1)/pagestore.PageSize
	if got := fsys.AllocatedPages(); got != wantPages {
		t.Errorf("allocated pages = %d, want %d", got, wantPages)
	}

	buf := make([]byte, 1)
	n, err := fsys.Read("x", buf, 2_500_000)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 1 || buf[0] != payload[2_500_000] {
		t.Errorf("Read at 2500000 = %d %#x, want 1 %#x", n, buf[0], payload[2_500_000])
	}

	// Full round trip.
	out := make([]byte, size)
	if n, err := fsys.Read("x", out, 0); err != nil || n != size {
		t.Fatalf("Read full = %d, %v", n, err)
	}
	if !bytes.Equal(out, payload) {
		t.Error("content mismatch after multi-index-page write")
	}
	mustCheck(t, fsys)
}

func TestTruncateToZeroFreesEverything(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkNod("x", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	baseline := fsys.AllocatedPages()

	payload := bytes.Repeat([]byte{7}, 3_000_000)
	if _, err := fsys.Write("x", payload, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := fsys.Truncate("x", 0); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	// Every data page and the second index page are gone; only the
	// inode and head pages remain.
	if got := fsys.AllocatedPages(); got != baseline {
		t.Errorf("allocated pages = %d after truncate to 0, want %d", got, baseline)
	}

	buf := make([]byte, 10)
	n, err := fsys.Read("x", buf, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 0 {
		t.Errorf("Read after truncate = %d bytes, want 0", n)
	}
	mustCheck(t, fsys)
}

func TestTruncateShrinkKeepsExactPages(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkNod("x", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	baseline := fsys.AllocatedPages()

	if _, err := fsys.Write("x", bytes.Repeat([]byte{1}, 10*pagestore.PageSize), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Shrink to 2.5 pages: exactly 3 data pages survive.
	if err := fsys.Truncate("x", 2*pagestore.PageSize+pagestore.PageSize/2); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if got := fsys.AllocatedPages(); got != baseline+3 {
		t.Errorf("allocated pages = %d, want %d (3 data pages kept)", got, baseline+3)
	}

	// The surviving bytes are intact.
	buf := make([]byte, pagestore.PageSize)
	n, err := fsys.Read("x", buf, 2*pagestore.PageSize)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != pagestore.PageSize/2 {
		t.Errorf("Read = %d, want %d (clamped to new size)", n, pagestore.PageSize/2)
	}
	for i := 0; i < n; i++ {
		if buf[i] != 1 {
			t.Fatalf("byte %d = %d after shrink, want 1", i, buf[i])
		}
	}
	mustCheck(t, fsys)
}

func TestUnlinkThenGetattr(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkNod("a", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	if err := fsys.Unlink("a"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := fsys.GetAttr("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAttr after unlink: err = %v, want ErrNotFound", err)
	}
	mustCheck(t, fsys)
}

func TestCreateUnlinkLeavesAllocationUnchanged(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	baseline := fsys.AllocatedPages()

	if err := fsys.MkNod("a", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	if _, err := fsys.Write("a", bytes.Repeat([]byte{9}, 100_000), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fsys.Unlink("a"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}

	if got := fsys.AllocatedPages(); got != baseline {
		t.Errorf("allocated pages = %d after create+write+unlink, want %d", got, baseline)
	}
	mustCheck(t, fsys)
}

func TestMkdirMknodUnlinkRmdirLeavesEmptyRoot(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	baseline := fsys.AllocatedPages()

	if err := fsys.MkDir("a", 0o755); err != nil {
		t.Fatalf("MkDir: %v", err)
	}
	if err := fsys.MkNod("a/b", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	if err := fsys.Unlink("a/b"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := fsys.Rmdir("a"); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}

	if got := fsys.AllocatedPages(); got != baseline {
		t.Errorf("allocated pages = %d, want %d (empty root)", got, baseline)
	}
	if names := readDirNames(t, fsys, ""); len(names) != 2 {
		t.Errorf("root entries = %v, want only . and ..", names)
	}
	mustCheck(t, fsys)
}

func TestRmdirNonEmpty(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkDir("a", 0o755); err != nil {
		t.Fatalf("MkDir: %v", err)
	}
	if err := fsys.MkNod("a/b", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	if err := fsys.Rmdir("a"); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("Rmdir non-empty: err = %v, want ErrNotEmpty", err)
	}
	mustCheck(t, fsys)
}

func TestKindMismatches(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkDir("d", 0o755); err != nil {
		t.Fatalf("MkDir: %v", err)
	}
	if err := fsys.MkNod("f", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}

	if err := fsys.Unlink("d"); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Unlink directory: err = %v, want ErrIsDirectory", err)
	}
	if err := fsys.Rmdir("f"); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("Rmdir file: err = %v, want ErrNotDirectory", err)
	}
	if err := fsys.Rmdir(""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Rmdir root: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := fsys.Read("d", make([]byte, 1), 0); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Read directory: err = %v, want ErrIsDirectory", err)
	}
	if _, err := fsys.Write("d", []byte{1}, 0); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Write directory: err = %v, want ErrIsDirectory", err)
	}
	if err := fsys.Truncate("d", 0); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Truncate directory: err = %v, want ErrIsDirectory", err)
	}
	if err := fsys.MkNod("f/sub", 0o644, 0); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("MkNod under file: err = %v, want ErrNotDirectory", err)
	}
	mustCheck(t, fsys)
}

func TestOutOfNodes(t *testing.T) {
	fsys, _ := newTestFS(t, Options{MaxNodes: 3})
	if err := fsys.MkNod("a", 0o644, 0); err != nil {
		t.Fatalf("MkNod a: %v", err)
	}
	if err := fsys.MkNod("b", 0o644, 0); err != nil {
		t.Fatalf("MkNod b: %v", err)
	}
	if err := fsys.MkNod("c", 0o644, 0); !errors.Is(err, ErrOutOfNodes) {
		t.Errorf("MkNod past cap: err = %v, want ErrOutOfNodes", err)
	}

	// Node ids are never recycled: freeing does not make room.
	if err := fsys.Unlink("a"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := fsys.MkNod("c", 0o644, 0); !errors.Is(err, ErrOutOfNodes) {
		t.Errorf("MkNod after unlink: err = %v, want ErrOutOfNodes (ids are not reused)", err)
	}
	mustCheck(t, fsys)
}

func TestOutOfPages(t *testing.T) {
	fsys, _ := newTestFS(t, Options{MaxPages: 5})
	if err := fsys.MkNod("a", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	// One data page fits (page 5 of 5); the second does not.
	if _, err := fsys.Write("a", bytes.Repeat([]byte{1}, 2*pagestore.PageSize), 0); !errors.Is(err, pagestore.ErrOutOfPages) {
		t.Errorf("Write past page cap: err = %v, want ErrOutOfPages", err)
	}
	if err := fsys.MkNod("b", 0o644, 0); !errors.Is(err, pagestore.ErrOutOfPages) {
		t.Errorf("MkNod at page cap: err = %v, want ErrOutOfPages", err)
	}
}

func TestTimestamps(t *testing.T) {
	fsys, fake := newTestFS(t, Options{})
	if err := fsys.MkNod("a", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	created, _ := fsys.GetAttr("a")

	fake.Advance(5 * time.Second)
	if _, err := fsys.Write("a", []byte("x"), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	written, _ := fsys.GetAttr("a")

	if !written.Mtime.Equal(created.Mtime.Add(5 * time.Second)) {
		t.Errorf("mtime after write = %v, want %v", written.Mtime, created.Mtime.Add(5*time.Second))
	}
	if !written.Atime.Equal(created.Atime) {
		t.Errorf("atime changed by write: %v -> %v", created.Atime, written.Atime)
	}
	mustCheck(t, fsys)
}

func TestDigest(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkNod("a", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	payload := bytes.Repeat([]byte("pagefs"), 100_000)
	if _, err := fsys.Write("a", payload, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	first, err := fsys.Digest("a")
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}

	// Deterministic, and sensitive to content.
	second, err := fsys.Digest("a")
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if first != second {
		t.Error("digest of unchanged file differs")
	}
	if _, err := fsys.Write("a", []byte{0}, 17); err != nil {
		t.Fatalf("Write: %v", err)
	}
	third, err := fsys.Digest("a")
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if first == third {
		t.Error("digest unchanged after content change")
	}

	if _, err := fsys.Digest(""); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Digest of directory: err = %v, want ErrIsDirectory", err)
	}
	mustCheck(t, fsys)
}

func TestManyChildrenGrowDirectoryChain(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})

	// More children than one index page's payload holds.
	names := make([]string, 0, payloadSlots+5)
	for i := 0; i < payloadSlots+5; i++ {
		name := fmtName(i)
		if err := fsys.MkNod(name, 0o644, 0); err != nil {
			t.Fatalf("MkNod %s: %v", name, err)
		}
		names = append(names, name)
	}

	got := readDirNames(t, fsys, "")[2:] // drop . and ..
	if len(got) != len(names) {
		t.Fatalf("ReadDir returned %d children, want %d", len(got), len(names))
	}
	for i := range names {
		if got[i] != names[i] {
			t.Fatalf("child %d = %q, want %q (insertion order)", i, got[i], names[i])
		}
	}

	// Remove one from the first page: the chain compacts across the
	// page boundary and every remaining child stays visible.
	if err := fsys.Unlink(names[3]); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	got = readDirNames(t, fsys, "")[2:]
	if len(got) != len(names)-1 {
		t.Fatalf("ReadDir returned %d children after unlink, want %d", len(got), len(names)-1)
	}
	mustCheck(t, fsys)
}

func fmtName(i int) string {
	// Zero-padded so insertion order is also readable in failures.
	const digits = "0123456789"
	return "f" + string([]byte{digits[i/1000%10], digits[i/100%10], digits[i/10%10], digits[i%10]})
}

func TestCheckDetectsOrphanPage(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if _, err := fsys.store.Alloc(); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := fsys.Check(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Check with orphan page: err = %v, want ErrCorrupt", err)
	}
}

func TestCheckDetectsBrokenChain(t *testing.T) {
	fsys, _ := newTestFS(t, Options{})
	if err := fsys.MkNod("a", 0o644, 0); err != nil {
		t.Fatalf("MkNod: %v", err)
	}
	if _, err := fsys.Write("a", bytes.Repeat([]byte{1}, pagestore.PageSize), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Free the file's data page behind the filesystem's back.
	ino, err := fsys.resolve("a")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	head, err := loadIndex(fsys.store, ino.ContentHead)
	if err != nil {
		t.Fatalf("loadIndex: %v", err)
	}
	if err := fsys.store.Free(head.slots[0]); err != nil {
		t.Fatalf("Free: %v", err)
	}

	if err := fsys.Check(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Check with dangling data page: err = %v, want ErrCorrupt", err)
	}
}
