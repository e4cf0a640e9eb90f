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

package readarchive_test

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/format"
	_ "github.com/nabbar/go-archiver/format/tar"
	"github.com/nabbar/go-archiver/readarchive"
)

func entryFor(name string, body []byte) *entry.Entry {
	e := entry.New()
	e.SetPathname(name)
	e.SetSize(int64(len(body)))
	return e
}

// buildGzippedTar writes a single-entry tar archive through the
// registered "tar" format.Writer, then gzips the result, so the test
// exercises the real filter-negotiation + format-dispatch path rather
// than a hand-rolled fixture.
func buildGzippedTar(t *testing.T, name string, body []byte) []byte {
	t.Helper()
	w := format.WriterByName("tar")
	if w == nil {
		t.Fatal("tar writer not registered")
	}

	var raw bytes.Buffer
	sess, err := w.Open(nopCloser{&raw})
	if err != nil {
		t.Fatal(err)
	}
	e := entryFor(name, body)
	if err := sess.WriteHeader(e); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.WriteData(body); err != nil {
		t.Fatal(err)
	}
	if err := sess.FinishEntry(); err != nil {
		t.Fatal(err)
	}
	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	if _, err := gw.Write(raw.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return gz.Bytes()
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestOpenMemoryReadsGzippedTarEntry(t *testing.T) {
	archive := buildGzippedTar(t, "hello.txt", []byte("hello, archive"))

	h, err := readarchive.OpenMemory(archive)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	e, err := h.NextHeader()
	if err != nil {
		t.Fatal(err)
	}
	if e.Pathname.String() != "hello.txt" {
		t.Fatalf("Pathname = %q, want %q", e.Pathname.String(), "hello.txt")
	}
	if h.FormatName() != "tar" {
		t.Fatalf("FormatName = %q, want %q", h.FormatName(), "tar")
	}
	if len(h.FilterNames()) != 1 || h.FilterNames()[0] != "gzip" {
		t.Fatalf("FilterNames = %v, want [gzip]", h.FilterNames())
	}

	body, err := io.ReadAll(dataReader{h})
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "hello, archive" {
		t.Fatalf("body = %q, want %q", body, "hello, archive")
	}

	if _, err := h.NextHeader(); err != io.EOF {
		t.Fatalf("NextHeader after the only entry = %v, want io.EOF", err)
	}
}

type dataReader struct{ h *readarchive.Handle }

func (d dataReader) Read(p []byte) (int, error) { return d.h.ReadData(p) }

// TestNextHeaderAutoSkipsUnreadBody covers spec §4.4's convenience rule:
// calling NextHeader while the previous entry's body was never fully
// read discards the remainder instead of erroring.
func TestNextHeaderAutoSkipsUnreadBody(t *testing.T) {
	archive := buildGzippedTar(t, "a", []byte("some body bytes"))

	h, err := readarchive.OpenMemory(archive)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if _, err := h.NextHeader(); err != nil {
		t.Fatal(err)
	}
	// Body left unread on purpose.
	if _, err := h.NextHeader(); err != io.EOF {
		t.Fatalf("NextHeader with unread body = %v, want io.EOF (single-entry archive)", err)
	}
}

// TestReadDataOutsideDataStateErrors covers the state-machine rejection
// of out-of-order calls (spec §4.4).
func TestReadDataOutsideDataStateErrors(t *testing.T) {
	archive := buildGzippedTar(t, "a", []byte("x"))
	h, err := readarchive.OpenMemory(archive)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if _, err := h.ReadData(make([]byte, 1)); err == nil {
		t.Fatal("ReadData before any NextHeader call should be rejected")
	}
}

// TestSetOptionZipPasswordSeedsSideChannel covers the zip.password
// option wiring (spec §6.1/§6.4) without needing an encrypted fixture:
// the handle should record it and make it retrievable via Option.
func TestSetOptionZipPasswordSeedsSideChannel(t *testing.T) {
	h := readarchive.New()
	if err := h.SetOption("zip", "password", "s3cr3t"); err != nil {
		t.Fatal(err)
	}
	v, ok := h.Option("zip", "password")
	if !ok || v != "s3cr3t" {
		t.Fatalf("Option(zip, password) = (%q, %v), want (s3cr3t, true)", v, ok)
	}
}

// TestSetOptionAfterOpenRejected covers spec §6.1: options must precede
// Open.
func TestSetOptionAfterOpenRejected(t *testing.T) {
	archive := buildGzippedTar(t, "a", []byte("x"))
	h, err := readarchive.OpenMemory(archive)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := h.SetOption("zip", "password", "late"); err == nil {
		t.Fatal("SetOption after Open should be rejected")
	}
}
