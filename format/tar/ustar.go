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
	"strconv"
	"strings"

	"github.com/nabbar/go-archiver/entry"
)

// ustarHeader is the parsed form of one 512-byte header block, field
// offsets per spec §4.5.1.
type ustarHeader struct {
	name     string
	mode     uint32
	uid      int64
	gid      int64
	size     int64
	mtime    int64
	typeflag byte
	linkname string
	uname    string
	gname    string
	devmajor int64
	devminor int64
	prefix   string
}

func parseUstarBlock(b []byte) ustarHeader {
	var h ustarHeader
	h.name = cstring(b[0:100])
	h.mode = uint32(parseNumeric(b[100:108]))
	h.uid = parseNumeric(b[108:116])
	h.gid = parseNumeric(b[116:124])
	h.size = parseNumeric(b[124:136])
	h.mtime = parseNumeric(b[136:148])
	h.typeflag = b[156]
	h.linkname = cstring(b[157:257])
	h.uname = cstring(b[265:297])
	h.gname = cstring(b[297:329])
	h.devmajor = parseNumeric(b[329:337])
	h.devminor = parseNumeric(b[337:345])
	h.prefix = cstring(b[345:500])
	return h
}

// parseNumeric decodes a ustar numeric field: either octal ASCII,
// NUL/space terminated, or — when the MSB of the first byte is set
// (0x80/0xFF) — a GNU base-256 two's-complement big-endian integer
// (spec §4.5.1, "Any numeric field whose MSB is 0x80/0xFF").
func parseNumeric(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	if b[0]&0x80 != 0 {
		return parseBase256(b)
	}
	s := strings.TrimRight(strings.TrimLeft(string(b), " "), " \x00")
	s = strings.TrimRight(s, "\x00")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseBase256(b []byte) int64 {
	// Bit 0x40 of the first byte is the sign; a negative value is read
	// through inverted bytes, whose magnitude v stands for -(v+1).
	var inv byte
	if b[0]&0x40 != 0 {
		inv = 0xFF
	}
	v := int64((b[0] ^ inv) & 0x7F)
	for _, c := range b[1:] {
		v = v<<8 | int64(c^inv)
	}
	if inv != 0 {
		v = ^v
	}
	return v
}

// validChecksum verifies the header checksum field against the sum of
// all 512 bytes with the checksum field itself treated as 8 spaces
// (spec §4.5.1, §4.5.5), accepting either the signed or unsigned sum
// per spec §4.5.4.
func validChecksum(b []byte) bool {
	stored := parseNumeric(b[148:156])

	var unsigned int64
	var signed int64
	for i, c := range b {
		v := c
		if i >= 148 && i < 156 {
			v = ' '
		}
		unsigned += int64(v)
		signed += int64(int8(v))
	}
	return stored == unsigned || stored == signed
}

func computeChecksum(b []byte) int64 {
	var sum int64
	for i, c := range b {
		if i >= 148 && i < 156 {
			c = ' '
		}
		sum += int64(c)
	}
	return sum
}

// parsePaxRecords decodes the length-prefixed record stream of spec
// §4.5.2: `"<LEN> <key>=<value>\n"`, LEN covering the whole record
// including itself and the trailing newline. Records whose LEN leaves
// out the length digits (or the digits and the separating space) are
// accepted too: each candidate end is tried in that order and the first
// one that lands on a '\n' is taken.
func parsePaxRecords(body []byte) (map[string]string, error) {
	records := map[string]string{}
	for len(body) > 0 {
		sp := bytes.IndexByte(body, ' ')
		if sp < 0 {
			return nil, ErrBadPaxRecord.Error()
		}
		length, err := strconv.Atoi(string(body[:sp]))
		if err != nil || length <= 0 {
			return nil, ErrBadPaxRecord.Error()
		}
		end := -1
		for _, cand := range []int{length, sp + length, sp + 1 + length} {
			if cand > sp+1 && cand <= len(body) && body[cand-1] == '\n' {
				end = cand
				break
			}
		}
		if end < 0 {
			return nil, ErrBadPaxRecord.Error()
		}
		record := body[sp+1 : end-1] // drop trailing '\n'
		eq := bytes.IndexByte(record, '=')
		if eq < 0 {
			return nil, ErrBadPaxRecord.Error()
		}
		records[string(record[:eq])] = string(record[eq+1:])
		body = body[end:]
	}
	return records, nil
}

// parseOldGNUSparse decodes the up-to-4 (offset,length) pairs embedded
// in a 'S' typeflag header, plus any chained sparse-extension blocks
// when the isextended flag is set (spec §4.5.3 "Old GNU").
func parseOldGNUSparse(s *session, block []byte) ([]entry.SparseExtent, int64, error) {
	var out []entry.SparseExtent
	// GNU sparse header layout: realsize at 483:495 (octal, 12 bytes),
	// isextended flag at 482, up to 4 pairs at 386:482 (offset,size
	// pairs of 12 bytes each, 24 bytes per pair).
	realSize := parseNumeric(block[483:495])
	for i := 0; i < 4; i++ {
		off := 386 + i*24
		offset := parseNumeric(block[off : off+12])
		length := parseNumeric(block[off+12 : off+24])
		if offset == 0 && length == 0 {
			continue
		}
		out = append(out, entry.SparseExtent{Offset: offset, Length: length})
	}

	extended := block[482] != 0
	for extended {
		ext, err := s.readBlock()
		if err != nil {
			return nil, 0, err
		}
		if ext == nil {
			return nil, 0, ErrTruncated.Error()
		}
		for i := 0; i < 21; i++ {
			off := i * 24
			offset := parseNumeric(ext[off : off+12])
			length := parseNumeric(ext[off+12 : off+24])
			if offset == 0 && length == 0 {
				continue
			}
			out = append(out, entry.SparseExtent{Offset: offset, Length: length})
		}
		extended = ext[504] != 0
	}

	return out, realSize, nil
}
