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

package zip

import (
	"bytes"
	"io"
	"testing"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/stream"
)

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func writeOneEntry(t *testing.T, name string, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := &writeSession{dst: nopWriteCloser{&buf}}

	e := entry.New()
	e.SetPathname(name)
	e.SetSize(int64(len(body)))

	if err := w.WriteHeader(e); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteData(body); err != nil {
		t.Fatal(err)
	}
	if err := w.FinishEntry(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// TestBidRecognizesLFHMagic covers spec §4.2's zip dispatch: a 4-byte
// "PK\x03\x04" magic bids 34.
func TestBidRecognizesLFHMagic(t *testing.T) {
	archive := writeOneEntry(t, "a", []byte("x"))
	if got := (reader{}).Bid(stream.New(bytes.NewReader(archive))); got != 34 {
		t.Fatalf("Bid = %d, want 34", got)
	}
}

// TestStreamWriteReadRoundTripLengthAtEnd covers spec §8 scenario 4: the
// writer always emits length-at-end (bit 3 set), and the literal crc32
// of "hello\n" (0x363A3020) round-trips through the data descriptor.
func TestStreamWriteReadRoundTripLengthAtEnd(t *testing.T) {
	body := []byte("hello\n")
	archive := writeOneEntry(t, "file.txt", body)

	s := &streamSession{src: stream.New(bytes.NewReader(archive))}
	e, err := s.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if e.Pathname.String() != "file.txt" {
		t.Fatalf("Pathname = %q, want %q", e.Pathname.String(), "file.txt")
	}
	if s.cur.flags&0x8 == 0 {
		t.Fatal("writer did not set the length-at-end flag (bit 3)")
	}
	if e.SizeSet {
		t.Fatal("length-at-end entry reports a size before its body has been read")
	}

	got, err := io.ReadAll(readerFunc(s.ReadData))
	if err != nil {
		t.Fatalf("ReadData: %v (crc verification should have passed)", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("body = %q, want %q", got, body)
	}
	if s.cur.crc32 != 0x363A3020 {
		t.Fatalf("recovered crc32 = %#x, want 0x363a3020", s.cur.crc32)
	}
	if !e.SizeSet || e.Size != int64(len(body)) {
		t.Fatalf("Size = %d (set=%v) after body consumed, want %d (set=true), recovered from the data descriptor", e.Size, e.SizeSet, len(body))
	}

	if _, err := s.ReadHeader(); err != io.EOF {
		t.Fatalf("ReadHeader after the only entry = %v, want io.EOF", err)
	}
}

// TestSeekModeTrustsCentralDirectory covers spec §4.6.5's seekable-mode
// invariant: sizes and crc32 come from the CDFH, not the data
// descriptor, and are known before any body bytes are read.
func TestSeekModeTrustsCentralDirectory(t *testing.T) {
	body := []byte("hello\n")
	archive := writeOneEntry(t, "file.txt", body)

	idx, order, err := buildCentralDirectoryIndex(sliceRandomAccess(archive))
	if err != nil {
		t.Fatal(err)
	}
	s := &seekSession{ra: sliceRandomAccess(archive), entries: idx, order: order}

	e, err := s.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	if !e.SizeSet || e.Size != int64(len(body)) {
		t.Fatalf("Size = %d (set=%v), want %d (set=true) known from the CDFH before any body read", e.Size, e.SizeSet, len(body))
	}

	got, err := io.ReadAll(readerFunc(s.ReadData))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("body = %q, want %q", got, body)
	}
}

// TestCRCMismatchDetected covers spec §4.6's crc32 invariant: a
// tampered body is caught by the reader rather than silently accepted.
func TestCRCMismatchDetected(t *testing.T) {
	archive := writeOneEntry(t, "file.txt", []byte("hello\n"))

	// Flip a byte inside the deflate stream (after the LFH + name).
	tampered := append([]byte(nil), archive...)
	tampered[lfhFixedLen+len("file.txt")+2] ^= 0xFF

	s := &streamSession{src: stream.New(bytes.NewReader(tampered))}
	if _, err := s.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	_, err := io.ReadAll(readerFunc(s.ReadData))
	if err == nil {
		t.Fatal("tampered entry body was accepted without a crc32 mismatch error")
	}
}

// readerFunc adapts a ReadData-shaped method (spec §4.5.3's
// read_data_block signature) to io.Reader for io.ReadAll.
type readerFunc func([]byte) (int, int64, error)

func (f readerFunc) Read(p []byte) (int, error) {
	n, _, err := f(p)
	return n, err
}

// sliceRandomAccess adapts a byte slice to stream.RandomAccess for the
// seekable-mode tests.
type sliceRandomAccess []byte

func (s sliceRandomAccess) Read(p []byte) (int, error)          { return bytes.NewReader(s).Read(p) }
func (s sliceRandomAccess) Close() error                        { return nil }
func (s sliceRandomAccess) Ahead(n int) ([]byte, error)         { return nil, io.EOF }
func (s sliceRandomAccess) Consume(n int) error                 { return nil }
func (s sliceRandomAccess) Skip(n int64) error                  { return nil }
func (s sliceRandomAccess) Seek(offset int64, whence int) (int64, error) { return 0, nil }
func (s sliceRandomAccess) Size() int64                          { return int64(len(s)) }
func (s sliceRandomAccess) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s)) {
		return 0, io.EOF
	}
	n := copy(p, s[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
