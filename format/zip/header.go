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
	"time"

	"github.com/nabbar/go-archiver/entry"
)

// lfh is the parsed local file header (spec §4.6.1).
type lfh struct {
	versionNeeded  uint16
	flags          uint16
	method         uint16
	modTime        uint16
	modDate        uint16
	crc32          uint32
	compressedSize uint64
	size           uint64
	name           string
	extra          []byte
	headerLen      int64 // bytes occupied by magic..extra, for offset math
}

const lfhFixedLen = 30

func parseLFH(b []byte) (lfh, error) {
	if len(b) < lfhFixedLen || !bytes.Equal(b[0:4], magicLFH) {
		return lfh{}, ErrBadEOCD.Error()
	}
	nameLen := int(uint16le(b[26:28]))
	extraLen := int(uint16le(b[28:30]))
	if len(b) < lfhFixedLen+nameLen+extraLen {
		return lfh{}, ErrBadEOCD.Error()
	}
	h := lfh{
		versionNeeded:  uint16le(b[4:6]),
		flags:          uint16le(b[6:8]),
		method:         uint16le(b[8:10]),
		modTime:        uint16le(b[10:12]),
		modDate:        uint16le(b[12:14]),
		crc32:          uint32le(b[14:18]),
		compressedSize: uint64(uint32le(b[18:22])),
		size:           uint64(uint32le(b[22:26])),
		name:           string(b[lfhFixedLen : lfhFixedLen+nameLen]),
		extra:          b[lfhFixedLen+nameLen : lfhFixedLen+nameLen+extraLen],
		headerLen:      int64(lfhFixedLen + nameLen + extraLen),
	}
	applyZip64Extra(&h.size, &h.compressedSize, nil, h.extra)
	return h, nil
}

// cdfh is the parsed central directory file header (spec §4.6.1):
// superset of lfh plus disk number, attributes, and the LFH offset.
type cdfh struct {
	lfh
	diskNumber      uint16
	internalAttrs   uint16
	externalAttrs   uint32
	lfhOffset       uint64
	comment         string
}

const cdfhFixedLen = 46

func parseCDFH(b []byte) (cdfh, int, error) {
	if len(b) < cdfhFixedLen || !bytes.Equal(b[0:4], magicCDFH) {
		return cdfh{}, 0, ErrBadEOCD.Error()
	}
	nameLen := int(uint16le(b[28:30]))
	extraLen := int(uint16le(b[30:32]))
	commentLen := int(uint16le(b[32:34]))
	total := cdfhFixedLen + nameLen + extraLen + commentLen
	if len(b) < total {
		return cdfh{}, 0, ErrBadEOCD.Error()
	}

	c := cdfh{
		lfh: lfh{
			versionNeeded:  uint16le(b[6:8]),
			flags:          uint16le(b[8:10]),
			method:         uint16le(b[10:12]),
			modTime:        uint16le(b[12:14]),
			modDate:        uint16le(b[14:16]),
			crc32:          uint32le(b[16:20]),
			compressedSize: uint64(uint32le(b[20:24])),
			size:           uint64(uint32le(b[24:28])),
			name:           string(b[cdfhFixedLen : cdfhFixedLen+nameLen]),
			extra:          b[cdfhFixedLen+nameLen : cdfhFixedLen+nameLen+extraLen],
		},
		diskNumber:    uint16le(b[34:36]),
		internalAttrs: uint16le(b[36:38]),
		externalAttrs: uint32le(b[38:42]),
		lfhOffset:     uint64(uint32le(b[42:46])),
		comment:       string(b[cdfhFixedLen+nameLen+extraLen : total]),
	}
	applyZip64Extra(&c.size, &c.compressedSize, &c.lfhOffset, c.extra)
	return c, total, nil
}

// applyZip64Extra overwrites 32-bit-overflowed fields (sentinel
// 0xFFFFFFFF) with their 64-bit counterparts from extra field 0x0001,
// in the fixed order the spec defines: uncompressed size, compressed
// size, LFH offset, disk number (spec §4.6.2).
func applyZip64Extra(size, compressedSize *uint64, lfhOffset *uint64, extra []byte) {
	for id, data := range iterExtra(extra) {
		if id != extraZip64 {
			continue
		}
		off := 0
		if *size == 0xFFFFFFFF && off+8 <= len(data) {
			*size = uint64le(data[off : off+8])
			off += 8
		}
		if *compressedSize == 0xFFFFFFFF && off+8 <= len(data) {
			*compressedSize = uint64le(data[off : off+8])
			off += 8
		}
		if lfhOffset != nil && *lfhOffset == 0xFFFFFFFF && off+8 <= len(data) {
			*lfhOffset = uint64le(data[off : off+8])
			off += 8
		}
	}
}

// iterExtra walks the (id, len, data) extra-field table (spec §4.6.2).
func iterExtra(extra []byte) map[uint16][]byte {
	out := map[uint16][]byte{}
	for len(extra) >= 4 {
		id := uint16le(extra[0:2])
		n := int(uint16le(extra[2:4]))
		if 4+n > len(extra) {
			break
		}
		out[id] = extra[4 : 4+n]
		extra = extra[4+n:]
	}
	return out
}

// dosTime converts a DOS date/time pair to a time.Time, per spec §6.5
// ("OS-specific file-mode/time conversions... given as small utility
// primitives"), grounded on the original archive_time.c DOS-time
// routines this module's SPEC_FULL.md records as a supplemented feature.
func dosTime(date, t uint16) time.Time {
	year := int(date>>9) + 1980
	month := int((date >> 5) & 0xF)
	day := int(date & 0x1F)
	hour := int(t >> 11)
	min := int((t >> 5) & 0x3F)
	sec := int((t & 0x1F) * 2)
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}

func toDosTime(tm time.Time) (date, t uint16) {
	tm = tm.UTC()
	if tm.Year() < 1980 {
		tm = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	date = uint16((tm.Year()-1980)<<9 | int(tm.Month())<<5 | tm.Day())
	t = uint16(tm.Hour()<<11 | tm.Minute()<<5 | tm.Second()/2)
	return
}

// applyExtendedTimestamps decodes extra field 0x5455 into the entry's
// time fields when present (spec §4.6.2).
func applyExtendedTimestamps(e *entry.Entry, extra []byte) {
	data, ok := iterExtra(extra)[extraExtTime]
	if !ok || len(data) < 1 {
		return
	}
	flags := data[0]
	off := 1
	readNext := func() (int64, bool) {
		if off+4 > len(data) {
			return 0, false
		}
		v := int64(int32(uint32le(data[off : off+4])))
		off += 4
		return v, true
	}
	if flags&0x1 != 0 {
		if v, ok := readNext(); ok {
			e.MTime = entry.TimeSpec{Sec: v, Set: true}
		}
	}
	if flags&0x2 != 0 {
		if v, ok := readNext(); ok {
			e.ATime = entry.TimeSpec{Sec: v, Set: true}
		}
	}
	if flags&0x4 != 0 {
		if v, ok := readNext(); ok {
			e.CTime = entry.TimeSpec{Sec: v, Set: true}
		}
	}
}

// applyUnixOwners decodes Info-ZIP Unix extra fields 0x5855 (old) and
// 0x7875 (new, variable-width) into uid/gid (spec §4.6.2).
func applyUnixOwners(e *entry.Entry, extra []byte) {
	table := iterExtra(extra)
	if data, ok := table[extraUnixNew]; ok && len(data) >= 1 {
		off := 1
		if off < len(data) {
			uidLen := int(data[off])
			off++
			if off+uidLen <= len(data) {
				e.UID = int64(leVarUint(data[off : off+uidLen]))
				off += uidLen
			}
			if off < len(data) {
				gidLen := int(data[off])
				off++
				if off+gidLen <= len(data) {
					e.GID = int64(leVarUint(data[off : off+gidLen]))
				}
			}
		}
		return
	}
	if data, ok := table[extraUnixOld]; ok && len(data) >= 12 {
		e.UID = int64(uint16le(data[8:10]))
		e.GID = int64(uint16le(data[10:12]))
	}
}

func leVarUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

