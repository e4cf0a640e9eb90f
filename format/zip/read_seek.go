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

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/sidechannel"
	"github.com/nabbar/go-archiver/stream"
)

const (
	eocdFixedLen  = 22
	eocdMaxComment = 0xFFFF
	zip64LocatorLen = 20
	zip64EOCDMinLen = 56
)

// eocd is the parsed end-of-central-directory record (spec §4.6.1).
type eocd struct {
	cdEntries    uint64
	cdSize       uint64
	cdOffset     uint64
	comment      string
}

// buildCentralDirectoryIndex implements spec §4.6.5's seekable mode:
// scan backward from EOF for the EOCD signature (within the last
// 64 KiB + fixed record length, to cover the maximum comment size),
// resolve ZIP64 EOCD/locator if the classic record is all-0xFFFF, then
// walk the central directory once to index every entry by its LFH
// offset.
func buildCentralDirectoryIndex(ra stream.RandomAccess) (map[int64]*cdfh, []int64, error) {
	size := ra.Size()
	if size < eocdFixedLen {
		return nil, nil, ErrBadEOCD.Error()
	}

	scanLen := int64(eocdFixedLen + eocdMaxComment)
	if scanLen > size {
		scanLen = size
	}
	buf := make([]byte, scanLen)
	if _, err := ra.ReadAt(buf, size-scanLen); err != nil && err != io.EOF {
		return nil, nil, err
	}

	idx := bytes.LastIndex(buf, magicEOCD)
	if idx < 0 {
		return nil, nil, ErrBadEOCD.Error()
	}
	rec := buf[idx:]
	if len(rec) < eocdFixedLen {
		return nil, nil, ErrBadEOCD.Error()
	}

	e := eocd{
		cdEntries: uint64(uint16le(rec[10:12])),
		cdSize:    uint64(uint32le(rec[12:16])),
		cdOffset:  uint64(uint32le(rec[16:20])),
	}

	// ZIP64: classic fields pinned at 0xFFFF/0xFFFFFFFF signal the real
	// values live in the ZIP64 EOCD record, located via the locator
	// that immediately precedes the classic EOCD.
	eocdAbsOff := size - scanLen + int64(idx)
	if e.cdEntries == 0xFFFF || e.cdOffset == 0xFFFFFFFF {
		if locOff := eocdAbsOff - zip64LocatorLen; locOff >= 0 {
			loc := make([]byte, zip64LocatorLen)
			if _, err := ra.ReadAt(loc, locOff); err == nil && bytes.Equal(loc[0:4], []byte{0x50, 0x4B, 0x06, 0x07}) {
				z64Off := int64(uint64le(loc[8:16]))
				z64 := make([]byte, zip64EOCDMinLen)
				if _, err := ra.ReadAt(z64, z64Off); err == nil && bytes.Equal(z64[0:4], []byte{0x50, 0x4B, 0x06, 0x06}) {
					e.cdEntries = uint64le(z64[32:40])
					e.cdSize = uint64le(z64[40:48])
					e.cdOffset = uint64le(z64[48:56])
				}
			}
		}
	}

	cdBuf := make([]byte, e.cdSize)
	if e.cdSize > 0 {
		if _, err := ra.ReadAt(cdBuf, int64(e.cdOffset)); err != nil && err != io.EOF {
			return nil, nil, err
		}
	}

	entries := make(map[int64]*cdfh, e.cdEntries)
	order := make([]int64, 0, e.cdEntries)
	for len(cdBuf) >= 4 && bytes.Equal(cdBuf[0:4], magicCDFH) {
		c, n, err := parseCDFH(cdBuf)
		if err != nil {
			break
		}
		off := int64(c.lfhOffset)
		entries[off] = &c
		order = append(order, off)
		cdBuf = cdBuf[n:]
	}
	if len(entries) == 0 {
		return nil, nil, ErrBadEOCD.Error()
	}
	return entries, order, nil
}

// seekSession drives ReaderSession purely off the central-directory
// index: entry metadata and sizes come from the CDFH, never from the
// (possibly absent) data descriptor, per spec §4.6.5 "If seekable: ...
// the reader trusts CDFH sizes/CRC outright."
type seekSession struct {
	ra      stream.RandomAccess
	entries map[int64]*cdfh
	order   []int64
	pos     int
	side    *sidechannel.Registry

	cur       *cdfh
	body      io.ReadCloser
	mac       *aesCTRReader
	crc       *crcReadCloser
	skipCRC   bool
	bodyBytes int64
}

func (s *seekSession) ReadHeader() (*entry.Entry, error) {
	if s.body != nil {
		_ = s.body.Close()
		s.body = nil
	}
	if s.pos >= len(s.order) {
		return nil, io.EOF
	}
	c := s.entries[s.order[s.pos]]
	s.pos++
	s.cur = c
	s.bodyBytes = 0

	e := entry.New()
	e.SetPathname(c.name)
	e.SetSize(int64(c.size))
	mt := dosTime(c.modDate, c.modTime)
	e.MTime = entry.NewTime(mt)
	if c.externalAttrs != 0 {
		// Unix mode lives in the high 16 bits of externalAttrs when
		// version-made-by's host OS is 3 (Unix), per spec §4.6.2.
		e.Mode = c.externalAttrs >> 16 & 0xFFFF
	}
	if len(c.name) > 0 && c.name[len(c.name)-1] == '/' {
		e.FileType = entry.TypeDirectory
	} else {
		e.FileType = entry.TypeRegular
	}
	applyExtendedTimestamps(e, c.extra)
	applyUnixOwners(e, c.extra)

	if err := s.openBody(c); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *seekSession) openBody(c *cdfh) error {
	off := int64(c.lfhOffset)
	head := make([]byte, lfhFixedLen+len(c.name)+64)
	n, _ := s.ra.ReadAt(head, off)
	head = head[:n]
	h, err := parseLFH(head)
	if err != nil {
		return err
	}
	dataOff := off + h.headerLen
	compLen := int64(c.compressedSize)
	sr := io.NewSectionReader(s.ra, dataOff, compLen)

	s.skipCRC = false
	var r io.Reader = sr
	method := c.method
	if c.flags&0x1 != 0 {
		password, _ := passwordFromSide(s.side)
		if aesF, ok := parseAESExtra(c.extra); ok {
			ar, err := newWinZipAESReader(r, password, aesF.strength)
			if err != nil {
				return err
			}
			if cr, ok := ar.(*aesCTRReader); ok {
				s.mac = cr
			}
			r = ar
			method = aesF.actualMethod
			s.skipCRC = true
		} else {
			checkByte := byte(c.crc32 >> 24)
			if c.flags&0x8 != 0 {
				checkByte = byte(c.modTime >> 8)
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

func (s *seekSession) ReadData(p []byte) (int, int64, error) {
	if s.body == nil {
		return 0, 0, io.EOF
	}
	offset := s.bodyBytes
	n, err := s.body.Read(p)
	s.bodyBytes += int64(n)
	if err == io.EOF {
		if verr := s.verifyCRC(); verr != nil {
			return n, offset, verr
		}
	}
	return n, offset, err
}

func (s *seekSession) ReadDataSkip() error {
	if s.body == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, s.body)
	if err != nil && err != io.EOF {
		return err
	}
	return s.verifyCRC()
}

// verifyCRC compares the checksum computed while streaming the
// decoded body against the central directory's trusted crc32 field
// (spec §4.6.5's seekable-mode invariant).
func (s *seekSession) verifyCRC() error {
	if s.skipCRC || s.crc == nil || s.cur == nil {
		return nil
	}
	if s.crc.Sum32() != s.cur.crc32 {
		return ErrCRCMismatch.Error()
	}
	return nil
}

func (s *seekSession) Close() error {
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}

func passwordFromSide(side *sidechannel.Registry) (string, bool) {
	if side == nil {
		return "", false
	}
	v, ok := side.Get(sidechannel.ZipPasswordKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
