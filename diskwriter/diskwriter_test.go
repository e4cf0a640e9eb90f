/*
 *  MIT License
 *
 *  Copyright (c) 2020 Nicolas JUHEL
 *
 *  Permission is hereby granted, free of charge, to any person obtaining a copy
 *  of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 *  to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *  copies of the Software, and to permit persons to whom the Software is
 *  furnished to do so, subject to the following conditions:
 *
 *  The above copyright notice and this permission notice shall be included in all
 *  copies or substantial portions of the Software.
 *
 *  THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *  IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *  AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *  LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *  OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *  SOFTWARE.
 *
 */

package diskwriter_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/nabbar/go-archiver/diskwriter"
	"github.com/nabbar/go-archiver/entry"
)

// TestCanonicalPathRejectsDotDotUnderSecurePolicy covers the spec §8
// security invariant: a path containing ".." is rejected outright under
// SECURE_NODOTDOT, before any filesystem mutation.
func TestCanonicalPathRejectsDotDotUnderSecurePolicy(t *testing.T) {
	root := t.TempDir()
	w := diskwriter.New(diskwriter.Options{RootDir: root, Flags: diskwriter.FlagSecureNoDotDot})

	if _, err := w.CanonicalPath("../escape.txt"); err == nil {
		t.Fatal("CanonicalPath(\"../escape.txt\") should be rejected under SECURE_NODOTDOT")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt")); !os.IsNotExist(err) {
		t.Fatal("rejected path must not have been created outside RootDir")
	}
}

// TestCanonicalPathAllowsDotDotWithoutPolicy covers the converse: the
// same path is accepted when the flag isn't set, confirming the policy
// is opt-in rather than an always-on hard rule.
func TestCanonicalPathAllowsDotDotWithoutPolicy(t *testing.T) {
	root := t.TempDir()
	w := diskwriter.New(diskwriter.Options{RootDir: root})

	if _, err := w.CanonicalPath("sub/../file.txt"); err != nil {
		t.Fatalf("CanonicalPath without SECURE_NODOTDOT = %v, want nil", err)
	}
}

// TestCanonicalPathRejectsAbsolutePaths covers SECURE_NOABSOLUTEPATHS.
func TestCanonicalPathRejectsAbsolutePaths(t *testing.T) {
	root := t.TempDir()
	w := diskwriter.New(diskwriter.Options{RootDir: root, Flags: diskwriter.FlagSecureNoAbsolutePaths})

	if _, err := w.CanonicalPath("/etc/passwd"); err == nil {
		t.Fatal("CanonicalPath(\"/etc/passwd\") should be rejected under SECURE_NOABSOLUTEPATHS")
	}
}

// TestExtractRegularFileWritesBody covers the common path: a regular
// file entry is created under RootDir with its body copied byte for
// byte.
func TestExtractRegularFileWritesBody(t *testing.T) {
	root := t.TempDir()
	w := diskwriter.New(diskwriter.Options{RootDir: root, Flags: diskwriter.FlagPerm})

	e := entry.New()
	e.SetPathname("dir/file.txt")
	e.FileType = entry.TypeRegular
	e.Mode = 0o640
	e.SetSize(5)

	if err := w.Extract(e, bytes.NewReader([]byte("hello"))); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(root, "dir", "file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("file contents = %q, want %q", got, "hello")
	}
}

// TestExtractSizeMismatchErrors covers spec §4.7.2's post-write size
// check: a declared size that doesn't match what was actually written
// is a hard error.
func TestExtractSizeMismatchErrors(t *testing.T) {
	root := t.TempDir()
	w := diskwriter.New(diskwriter.Options{RootDir: root})

	e := entry.New()
	e.SetPathname("bad.txt")
	e.FileType = entry.TypeRegular
	e.SetSize(999)

	if err := w.Extract(e, bytes.NewReader([]byte("short"))); err == nil {
		t.Fatal("Extract with a declared size that doesn't match the body should error")
	}
}

// TestExtractNoOverwriteRejectsExistingFile covers the NO_OVERWRITE
// policy (spec §4.7.2).
func TestExtractNoOverwriteRejectsExistingFile(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "file.txt")
	if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := diskwriter.New(diskwriter.Options{RootDir: root, Flags: diskwriter.FlagNoOverwrite})
	e := entry.New()
	e.SetPathname("file.txt")
	e.FileType = entry.TypeRegular
	e.SetSize(3)

	if err := w.Extract(e, bytes.NewReader([]byte("new"))); err == nil {
		t.Fatal("Extract over an existing file should be rejected under NO_OVERWRITE")
	}
}

// TestExtractDirectoryThenFixupAppliesModeOnClose covers spec §4.7.3:
// directory metadata is deferred and only applied once Close runs,
// deepest path first.
func TestExtractDirectoryThenFixupAppliesModeOnClose(t *testing.T) {
	root := t.TempDir()
	w := diskwriter.New(diskwriter.Options{RootDir: root, Flags: diskwriter.FlagPerm})

	e := entry.New()
	e.SetPathname("a/b")
	e.FileType = entry.TypeDirectory
	e.Mode = 0o700

	if err := w.Extract(e, nil); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(filepath.Join(root, "a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	if !fi.IsDir() {
		t.Fatal("a/b should have been created as a directory")
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	fi, err = os.Stat(filepath.Join(root, "a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o700 {
		t.Fatalf("dir mode after Close = %o, want %o", fi.Mode().Perm(), 0o700)
	}
}

// TestExtractHardlinkForwardReferenceDeferredToClose covers spec §4.7.2
// step 3: a hardlink whose target doesn't exist yet at extraction time
// is queued and only materialized once Close runs.
func TestExtractHardlinkForwardReferenceDeferredToClose(t *testing.T) {
	root := t.TempDir()
	w := diskwriter.New(diskwriter.Options{RootDir: root})

	link := entry.New()
	link.SetPathname("link.txt")
	link.FileType = entry.TypeRegular
	link.SetHardlinkTarget("target.txt")

	if err := w.Extract(link, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(filepath.Join(root, "link.txt")); !os.IsNotExist(err) {
		t.Fatal("link.txt should not exist yet; its target hasn't been created")
	}

	target := entry.New()
	target.SetPathname("target.txt")
	target.FileType = entry.TypeRegular
	target.SetSize(4)
	if err := w.Extract(target, bytes.NewReader([]byte("data"))); err != nil {
		t.Fatal(err)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(root, "link.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "data" {
		t.Fatalf("link.txt contents = %q, want %q", got, "data")
	}
}

// TestCopyBodySparseSkipsHoles covers spec §4.7.2's sparse-file
// handling: data extents land at their declared offsets and the gaps
// between them read back as zero bytes without ever being written.
func TestCopyBodySparseSkipsHoles(t *testing.T) {
	root := t.TempDir()
	w := diskwriter.New(diskwriter.Options{RootDir: root, Flags: diskwriter.FlagSparse})

	e := entry.New()
	e.SetPathname("sparse.bin")
	e.FileType = entry.TypeRegular
	e.SetSize(20)
	e.AddSparse(0, 4)
	e.AddSparse(16, 4)

	body := bytes.NewReader([]byte("AAAABBBB"))
	if err := w.Extract(e, body); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(root, "sparse.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Fatalf("file length = %d, want 20", len(got))
	}
	if !bytes.Equal(got[0:4], []byte("AAAA")) {
		t.Fatalf("leading extent = %q, want %q", got[0:4], "AAAA")
	}
	if !bytes.Equal(got[16:20], []byte("BBBB")) {
		t.Fatalf("trailing extent = %q, want %q", got[16:20], "BBBB")
	}
	hole := got[4:16]
	for i, b := range hole {
		if b != 0 {
			t.Fatalf("hole byte %d = %#x, want 0", i, b)
		}
	}
}
