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

package tar

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/stream"
)

// nopWriteCloser adapts a bytes.Buffer to io.WriteCloser for writer
// tests that never need a real sink to close.
type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func newSession(t *testing.T, archive []byte) *session {
	t.Helper()
	return &session{src: stream.New(bytes.NewReader(archive))}
}

// TestEmptyArchiveEOF covers spec §8 scenario 1: 1024 zero bytes reports
// EOF immediately and the format still bids on and recognizes it as tar.
func TestEmptyArchiveEOF(t *testing.T) {
	archive := make([]byte, 1024)

	if got := (reader{}).Bid(stream.New(bytes.NewReader(archive))); got == 0 {
		t.Fatalf("Bid(empty ustar) = 0, want > 0 so tar claims it over ErrNoFormat")
	}

	s := newSession(t, archive)
	if _, err := s.ReadHeader(); err != io.EOF {
		t.Fatalf("ReadHeader on empty archive = %v, want io.EOF", err)
	}
}

// TestSingleZeroBlockIsTruncated covers spec §478: a zero block followed
// by a non-zero block is a header error, not an end-of-archive marker —
// EOF requires two *consecutive* zero blocks.
func TestSingleZeroBlockIsTruncated(t *testing.T) {
	archive := make([]byte, 1024)
	archive[512] = 'X' // second block is not all-zero
	s := newSession(t, archive)
	if _, err := s.ReadHeader(); err == nil || err == io.EOF {
		t.Fatalf("ReadHeader on zero-block-then-garbage = %v, want a truncation error", err)
	}
}

// TestWriteReadRoundTrip covers spec §8 scenario 2.
func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := &writeSession{dst: nopWriteCloser{&buf}}

	e := entry.New()
	e.SetPathname("file")
	e.Mode = 0o644
	e.MTime = entry.TimeSpec{Sec: 123, Set: true}
	e.SetSize(5)

	if err := w.WriteHeader(e); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteData([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := w.FinishEntry(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	s := newSession(t, buf.Bytes())
	got, err := s.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if got.Pathname.String() != "file" {
		t.Fatalf("Pathname = %q, want %q", got.Pathname.String(), "file")
	}
	if !got.SizeSet || got.Size != 5 {
		t.Fatalf("Size = %d (set=%v), want 5 (set=true)", got.Size, got.SizeSet)
	}
	if got.MTime.Sec != 123 {
		t.Fatalf("MTime.Sec = %d, want 123", got.MTime.Sec)
	}

	body, err := io.ReadAll(dataReader{s})
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "hello" {
		t.Fatalf("body = %q, want %q", body, "hello")
	}

	if _, err := s.ReadHeader(); err != io.EOF {
		t.Fatalf("ReadHeader after the only entry = %v, want io.EOF", err)
	}
}

// dataReader adapts session.ReadData to io.Reader for io.ReadAll.
type dataReader struct{ s *session }

func (d dataReader) Read(p []byte) (int, error) {
	n, _, err := d.s.ReadData(p)
	return n, err
}

// TestPaxNanosecondMtimeRecord covers spec §8 scenario 3: the exact byte
// form of the pax extension record for a nanosecond mtime.
func TestPaxNanosecondMtimeRecord(t *testing.T) {
	got := paxRecord("mtime", formatPaxTime(entry.TimeSpec{Sec: 1000, Nsec: 123456789, Set: true}))
	want := "24 mtime=1000.123456789\n"
	if got != want {
		t.Fatalf("paxRecord = %q, want %q", got, want)
	}
}

// TestPaxRecordLengthIncludesItself covers spec §8's pax round-trip
// invariant for a range of key/value shapes that push the length field
// across a digit-width boundary.
func TestPaxRecordLengthIncludesItself(t *testing.T) {
	for _, tc := range []struct{ key, value string }{
		{"path", "short"},
		{"path", strings.Repeat("x", 90)},
		{"path", strings.Repeat("x", 990)},
	} {
		rec := paxRecord(tc.key, tc.value)
		sp := strings.IndexByte(rec, ' ')
		if sp < 0 {
			t.Fatalf("paxRecord(%q, ...) = %q: no length prefix found", tc.key, rec)
		}
		n, err := strconv.Atoi(rec[:sp])
		if err != nil {
			t.Fatalf("paxRecord(%q, ...) length prefix %q did not parse: %v", tc.key, rec[:sp], err)
		}
		if n != len(rec) {
			t.Fatalf("paxRecord(%q, ...) declared length %d, actual record length %d", tc.key, n, len(rec))
		}
	}
}

// TestChecksumInvariant covers spec §8's ustar checksum property.
func TestChecksumInvariant(t *testing.T) {
	var buf bytes.Buffer
	w := &writeSession{dst: nopWriteCloser{&buf}}
	e := entry.New()
	e.SetPathname("x")
	e.SetSize(0)
	if err := w.WriteHeader(e); err != nil {
		t.Fatal(err)
	}

	block := buf.Bytes()[:blockSize]
	if !validChecksum(block) {
		t.Fatal("freshly written ustar header block failed its own checksum validation")
	}
}

// TestGNUSparseRealsizeAndHoles covers spec §8 scenario 5: a GNU 1.0
// sparse entry's on-disk ASCII sparse map (count, then offset/length
// line pairs, padded to a 512-byte boundary) drives the reported
// logical size and the (data, offset) pairs ReadData yields, with the
// hole between them implicit.
func TestGNUSparseRealsizeAndHoles(t *testing.T) {
	var buf bytes.Buffer
	w := &writeSession{dst: nopWriteCloser{&buf}}

	e := entry.New()
	e.SetPathname("sparsefile")
	e.Mode = 0o644
	// On-disk body span: the 512-byte ASCII sparse map block plus the
	// 200 literal data bytes it describes (two 100-byte extents).
	e.SetSize(712)
	e.AddVendor("GNU.sparse.major", []byte("1"))
	e.AddVendor("GNU.sparse.realsize", []byte("10000"))

	if err := w.WriteHeader(e); err != nil {
		t.Fatal(err)
	}

	sparseMap := make([]byte, blockSize)
	copy(sparseMap, "2\n0\n100\n9900\n100\n")
	buf.Write(sparseMap)
	buf.Write(bytes.Repeat([]byte("A"), 100))
	buf.Write(bytes.Repeat([]byte("B"), 100))
	buf.Write(make([]byte, 312)) // pad the 712-byte on-disk body to the next 512 boundary
	buf.Write(make([]byte, blockSize*2)) // end-of-archive marker

	s := newSession(t, buf.Bytes())
	got, err := s.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if !got.SizeSet || got.Size != 10000 {
		t.Fatalf("Size = %d (set=%v), want 10000 (set=true)", got.Size, got.SizeSet)
	}
	if !got.IsSparse() {
		t.Fatal("GNU 1.0 sparse entry reports IsSparse() false")
	}

	type readChunk struct {
		data   string
		offset int64
	}
	var chunks []readChunk
	p := make([]byte, 256)
	for {
		n, offset, err := s.ReadData(p)
		if n > 0 {
			chunks = append(chunks, readChunk{data: string(p[:n]), offset: offset})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d data chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[0].offset != 0 || chunks[0].data != strings.Repeat("A", 100) {
		t.Fatalf("first chunk = %+v, want offset 0, 100 A's", chunks[0])
	}
	if chunks[1].offset != 9900 || chunks[1].data != strings.Repeat("B", 100) {
		t.Fatalf("second chunk = %+v, want offset 9900, 100 B's", chunks[1])
	}

	if _, err := s.ReadHeader(); err != io.EOF {
		t.Fatalf("ReadHeader after the only entry = %v, want io.EOF", err)
	}
}
