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
	"hash"
	"hash/crc32"
	"io"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/sidechannel"
	"github.com/nabbar/go-archiver/stream"
)

// crcReadCloser tracks the running crc32 of decoded bytes as they pass
// through, so the reader can verify the stored checksum once the body
// is fully consumed (spec §4.6.5's crc32 invariant) without buffering
// the whole entry.
type crcReadCloser struct {
	r io.ReadCloser
	h hash.Hash32
}

func newCRCReadCloser(r io.ReadCloser) *crcReadCloser {
	return &crcReadCloser{r: r, h: crc32.NewIEEE()}
}

func (c *crcReadCloser) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.h.Write(p[:n])
	}
	return n, err
}

func (c *crcReadCloser) Close() error { return c.r.Close() }
func (c *crcReadCloser) Sum32() uint32 { return c.h.Sum32() }

// streamSession implements spec §4.6.5's non-seekable mode: each entry
// is located by its local file header only, sizes/CRC are trusted from
// the LFH when the general-purpose bit-3 "length at end" flag is
// clear, and recovered from the trailing data descriptor otherwise
// (relying on the entry codec being self-terminating to find that
// boundary, as stdlib archive/zip's own streaming reader does).
type streamSession struct {
	src  stream.Source
	side *sidechannel.Registry

	cur       lfh
	curEntry  *entry.Entry
	body      io.ReadCloser
	raw       *countingReader
	crc       *crcReadCloser
	skipCRC   bool
	bodyBytes int64
}

func (s *streamSession) ReadHeader() (*entry.Entry, error) {
	if s.body != nil {
		_ = s.body.Close()
		s.body = nil
	}

	peek, err := s.src.Ahead(4)
	if err != nil {
		return nil, err
	}
	if len(peek) < 4 || bytes.Equal(peek, magicCDFH) || bytes.Equal(peek, magicEOCD) || bytes.Equal(peek, []byte{0x50, 0x4B, 0x06, 0x06}) {
		return nil, io.EOF
	}
	if !bytes.Equal(peek, magicLFH) {
		return nil, ErrBadEOCD.Error()
	}

	fixed, err := s.src.Ahead(lfhFixedLen)
	if err != nil || len(fixed) < lfhFixedLen {
		return nil, ErrBadEOCD.Error()
	}
	nameLen := int(uint16le(fixed[26:28]))
	extraLen := int(uint16le(fixed[28:30]))
	full, err := s.src.Ahead(lfhFixedLen + nameLen + extraLen)
	if err != nil || len(full) < lfhFixedLen+nameLen+extraLen {
		return nil, ErrBadEOCD.Error()
	}
	h, err := parseLFH(full)
	if err != nil {
		return nil, err
	}
	if err := s.src.Consume(len(full)); err != nil {
		return nil, err
	}
	s.cur = h

	e := entry.New()
	e.SetPathname(h.name)
	mt := dosTime(h.modDate, h.modTime)
	e.MTime = entry.NewTime(mt)
	applyExtendedTimestamps(e, h.extra)
	applyUnixOwners(e, h.extra)
	if len(h.name) > 0 && h.name[len(h.name)-1] == '/' {
		e.FileType = entry.TypeDirectory
	} else {
		e.FileType = entry.TypeRegular
	}
	if h.flags&0x8 == 0 {
		e.SetSize(int64(h.size))
	}
	s.curEntry = e
	s.bodyBytes = 0

	if err := s.openBody(h); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *streamSession) openBody(h lfh) error {
	var r io.Reader = s.src
	s.raw = &countingReader{r: s.src}
	r = s.raw

	s.skipCRC = false
	method := h.method
	if h.flags&0x1 != 0 {
		password, _ := passwordFromSide(s.side)
		if aesF, ok := parseAESExtra(h.extra); ok {
			ar, err := newWinZipAESReader(r, password, aesF.strength)
			if err != nil {
				return err
			}
			r = ar
			method = aesF.actualMethod
			// WinZip AES authenticates via its own HMAC trailer; the
			// crc32 field is conventionally zeroed for AES entries, so
			// skip the separate checksum pass (spec §4.6.4).
			s.skipCRC = true
		} else {
			checkByte := byte(h.crc32 >> 24)
			if h.flags&0x8 != 0 {
				checkByte = byte(h.modTime >> 8)
			}
			zr, err := newZipCryptoReader(r, password, checkByte)
			if err != nil {
				return err
			}
			r = zr
		}
	}

	dec, err := newMethodDecoder(method, r)
	if err != nil {
		return err
	}
	s.crc = newCRCReadCloser(dec)
	s.body = s.crc
	return nil
}

func (s *streamSession) ReadData(p []byte) (int, int64, error) {
	if s.body == nil {
		return 0, 0, io.EOF
	}
	offset := s.bodyBytes
	n, err := s.body.Read(p)
	s.bodyBytes += int64(n)
	if err == io.EOF {
		if derr := s.consumeDataDescriptor(); derr != nil {
			return n, offset, derr
		}
		if derr := s.verifyCRC(); derr != nil {
			return n, offset, derr
		}
	}
	return n, offset, err
}

// verifyCRC compares the checksum computed while streaming the
// decoded body against the value carried in the LFH (or, for
// length-at-end entries, the trailing data descriptor captured by
// consumeDataDescriptor).
func (s *streamSession) verifyCRC() error {
	if s.skipCRC || s.crc == nil {
		return nil
	}
	if s.crc.Sum32() != s.cur.crc32 {
		return ErrCRCMismatch.Error()
	}
	return nil
}

func (s *streamSession) ReadDataSkip() error {
	if s.body == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, s.body)
	if err != nil && err != io.EOF {
		return err
	}
	return s.consumeDataDescriptor()
}

// consumeDataDescriptor drops the optional data descriptor following
// an entry whose general-purpose bit 3 was set: signature word (if
// present, per spec §4.6.5) plus crc32/compressed-size/uncompressed-size,
// 32-bit or 64-bit depending on whether the entry carried a ZIP64
// extra field. The uncompressed-size field is the only place a
// length-at-end entry's real size is ever recorded (the LFH carries
// zeros), so it is pushed onto the Entry here (spec §8 scenario 4).
func (s *streamSession) consumeDataDescriptor() error {
	if s.cur.flags&0x8 == 0 {
		return nil
	}
	peek, err := s.src.Ahead(4)
	if err != nil {
		return err
	}
	sizeLen := 4
	if _, ok := iterExtra(s.cur.extra)[extraZip64]; ok {
		sizeLen = 8
	}
	n := 4 + 2*sizeLen
	crcOff := 0
	if len(peek) == 4 && bytes.Equal(peek, magicDD) {
		n += 4
		crcOff = 4
	}
	dd, err := s.src.Ahead(n)
	if err != nil {
		return err
	}
	if len(dd) < n {
		return ErrBadEOCD.Error()
	}
	s.cur.crc32 = uint32le(dd[crcOff : crcOff+4])
	uncompOff := crcOff + 4 + sizeLen
	uncompSize := uint64(uint32le(dd[uncompOff : uncompOff+4]))
	if sizeLen == 8 {
		uncompSize = uint64le(dd[uncompOff : uncompOff+8])
	}
	if s.curEntry != nil {
		s.curEntry.SetSize(int64(uncompSize))
	}
	return s.src.Consume(n)
}

func (s *streamSession) Close() error {
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}

// countingReader counts the ciphertext/compressed-stream bytes taken
// from src. Its ReadByte lets decoders such as compress/flate read one
// byte at a time instead of wrapping it in their own bufio.Reader, which
// would consume the data descriptor and next header past the stream end.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	c.n++
	return b[0], nil
}
