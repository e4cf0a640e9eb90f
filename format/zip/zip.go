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

// Package zip implements the zip representative format of spec §4.6:
// local file headers, the central directory, EOCD (with ZIP64
// variants), the extra-field table, the compression-method matrix, and
// ZipCrypto/WinZip-AES entry encryption. Grounded on the teacher's
// archive/archive/zip (thin wrapper over stdlib archive/zip) generalized
// here into a lower-level codec since stdlib's archive/zip has no
// extension point for AES-encrypted entries, lzma/zstd/xz methods, or
// streaming (length-at-end) central-directory-less reads (spec
// §4.6.5's "Otherwise: streaming mode").
package zip

import (
	"bytes"
	"encoding/binary"

	"github.com/nabbar/go-archiver/errs"
	"github.com/nabbar/go-archiver/format"
	"github.com/nabbar/go-archiver/sidechannel"
	"github.com/nabbar/go-archiver/stream"
)

const (
	ErrBadEOCD errs.CodeError = errs.MinPkgFormatZip + iota
	ErrNotSeekable
	ErrBadPassword
	ErrUnsupportedMethod
	ErrCRCMismatch
)

func init() {
	if errs.ExistInMapMessage(errs.MinPkgFormatZip) {
		panic("error code collision: format/zip")
	}
	errs.RegisterIdFctMessage(errs.MinPkgFormatZip, func(code errs.CodeError) string {
		switch code {
		case ErrBadEOCD:
			return "zip: end-of-central-directory record not found"
		case ErrNotSeekable:
			return "zip: streaming source requires length-at-end or a data descriptor"
		case ErrBadPassword:
			return "bad password or corrupt data"
		case ErrUnsupportedMethod:
			return "zip: unsupported compression method"
		case ErrCRCMismatch:
			return "zip: crc32 mismatch"
		default:
			return errs.NullMessage
		}
	})
}

var (
	magicLFH  = []byte{0x50, 0x4B, 0x03, 0x04}
	magicCDFH = []byte{0x50, 0x4B, 0x01, 0x02}
	magicEOCD = []byte{0x50, 0x4B, 0x05, 0x06}
	magicDD   = []byte{0x50, 0x4B, 0x07, 0x08}
)

// Compression methods (spec §4.6.3).
const (
	methodStored   = 0
	methodDeflate  = 8
	methodDeflate64 = 9
	methodBzip2    = 12
	methodLZMA     = 14
	methodZstd     = 93
	methodXZ       = 95
	methodAES      = 99
)

// Extra field IDs (spec §4.6.2).
const (
	extraZip64   = 0x0001
	extraNTFS    = 0x000A
	extraUnixOld = 0x5855
	extraUnixNew = 0x7875
	extraExtTime = 0x5455
	extraUniPath = 0x6375
	extraUniCmt  = 0x7075
	extraAES     = 0x9901
)

type reader struct{}

func init() {
	format.RegisterReader(reader{})
	format.RegisterWriter(writer{})
}

func (reader) Name() string      { return "zip" }
func (reader) Code() format.Code { return format.CodeZip }

func (reader) Bid(src stream.Source) uint32 {
	peek, err := src.Ahead(4)
	if err != nil || len(peek) < 4 {
		return 0
	}
	if bytes.Equal(peek, magicLFH) {
		return 34
	}
	return 0
}

func (reader) Open(src stream.Source, side *sidechannel.Registry) (format.ReaderSession, error) {
	if ra, ok := src.(stream.RandomAccess); ok {
		if idx, order, err := buildCentralDirectoryIndex(ra); err == nil {
			return &seekSession{ra: ra, entries: idx, order: order, side: side}, nil
		}
	}
	return &streamSession{src: src, side: side}, nil
}

func uint16le(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func uint32le(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func uint64le(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
