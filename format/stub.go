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

package format

import (
	"bytes"
	"io"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/sidechannel"
	"github.com/nabbar/go-archiver/stream"
)

// stubReader implements the Reader contract for a format named in spec
// §1's family list but explicitly out of scope for a full
// implementation ("per-format code beyond the two representatives...
// is out of scope"). It bids honestly off real magic bytes so format
// dispatch still correctly recognizes and rejects these archives with
// ErrUnsupported rather than silently misreporting them as tar/zip, but
// never opens a session.
type stubReader struct {
	name  string
	code  Code
	magic []byte
	score uint32
	// at is the byte offset the magic appears at; 0 for most, but e.g.
	// old tar's "ustar" lives at offset 257, which this module's tar
	// reader already owns, so stub formats needing an offset magic peek
	// further into the stream than filter.peekWindow allows.
	at int
}

func (s stubReader) Name() string { return s.name }
func (s stubReader) Code() Code   { return s.code }

func (s stubReader) Bid(src stream.Source) uint32 {
	peek, err := src.Ahead(s.at + len(s.magic))
	if err != nil || len(peek) < s.at+len(s.magic) {
		return 0
	}
	if bytes.Equal(peek[s.at:s.at+len(s.magic)], s.magic) {
		return s.score
	}
	return 0
}

func (s stubReader) Open(stream.Source, *sidechannel.Registry) (ReaderSession, error) {
	return nil, ErrUnsupported.Errorf("%s: reader not implemented by this module", s.name)
}

func init() {
	RegisterReader(stubReader{name: "cpio-odc", code: CodeCpio, magic: []byte("070707"), score: 36})
	RegisterReader(stubReader{name: "cpio-newc", code: CodeCpio, magic: []byte("070701"), score: 36})
	RegisterReader(stubReader{name: "cpio-crc", code: CodeCpio, magic: []byte("070702"), score: 36})
	RegisterReader(stubReader{name: "7z", code: Code7Zip, magic: []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}, score: 48})
	RegisterReader(stubReader{name: "rar", code: CodeRar, magic: []byte("Rar!\x1A\x07"), score: 48})
	RegisterReader(stubReader{name: "iso9660", code: CodeISO9660, magic: []byte("CD001"), at: 32769, score: 40})
	RegisterReader(stubReader{name: "lha", code: CodeLHA, magic: []byte("-lh"), at: 2, score: 24})
	RegisterReader(stubReader{name: "ar", code: CodeAr, magic: []byte("!<arch>\n"), score: 64})
	RegisterReader(stubReader{name: "xar", code: CodeXar, magic: []byte("xar!"), score: 32})
	RegisterReader(stubReader{name: "warc", code: CodeWARN, magic: []byte("WARC/"), score: 40})
	RegisterReader(stubReader{name: "rpm-container", code: CodeRPM, magic: []byte{0xED, 0xAB, 0xEE, 0xDB}, score: 32})
	RegisterReader(stubReader{name: "mtree", code: CodeMtree, magic: []byte("#mtree"), score: 16})

	RegisterWriter(rawWriter{})
}

// rawWriter is the write-side counterpart of the "none" filter
// (archive_write_set_format_raw.c): a single entry's body is written
// with no header or trailer framing at all, for callers that just want
// "compress this one file" without a container.
type rawWriter struct{}

func (rawWriter) Name() string { return "raw" }
func (rawWriter) Code() Code   { return CodeRaw }

func (rawWriter) Open(dst io.WriteCloser) (WriterSession, error) {
	return &rawWriteSession{dst: dst}, nil
}

type rawWriteSession struct {
	dst    io.WriteCloser
	opened bool
}

func (s *rawWriteSession) WriteHeader(e *entry.Entry) error {
	if s.opened {
		return ErrUnsupported.Errorf("raw format writer supports exactly one entry")
	}
	s.opened = true
	return nil
}

func (s *rawWriteSession) WriteData(p []byte) (int, error) { return s.dst.Write(p) }
func (s *rawWriteSession) FinishEntry() error               { return nil }
func (s *rawWriteSession) Close() error                     { return s.dst.Close() }
