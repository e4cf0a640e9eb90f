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
	"compress/flate"
	"encoding/binary"
	"hash/crc32"
	"io"
	"runtime"
	"strings"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/format"
)

// writer implements format.Writer for the length-at-end write
// algorithm of spec §4.6.6: every LFH is emitted with sizes/CRC zeroed
// and general-purpose bit 3 set, the real values following in a data
// descriptor once the entry's body has been written, with the central
// directory and EOCD emitted at Close.
type writer struct{}

func (writer) Name() string      { return "zip" }
func (writer) Code() format.Code { return format.CodeZip }

func (writer) Open(dst io.WriteCloser) (format.WriterSession, error) {
	return &writeSession{dst: dst}, nil
}

type zipWriteEntry struct {
	name           string
	method         uint16
	modDate, modTime uint16
	crc32          uint32
	compressedSize uint64
	size           uint64
	lfhOffset      uint64
	externalAttrs  uint32
	flags          uint16
}

type writeSession struct {
	dst     io.WriteCloser
	offset  int64
	entries []zipWriteEntry

	cur     zipWriteEntry
	crc     uint32
	written uint64
	deflate *flate.Writer
	closed  bool
}

// normalizeZipName applies the backslash→forward-slash translation
// Open Question decision recorded in SPEC_FULL.md: only rewritten when
// the writing process itself runs on Windows, never unconditionally.
func normalizeZipName(name string) string {
	if runtime.GOOS == "windows" {
		name = strings.ReplaceAll(name, "\\", "/")
	}
	return name
}

func (w *writeSession) write(p []byte) error {
	_, err := w.writeRaw(p)
	return err
}

// writeRaw is the single path bytes take to reach dst, so w.offset
// always reflects the true physical stream position — including bytes
// produced by the deflate writer, which must flow through here too or
// every LFH/CD offset recorded after the first compressed entry goes
// stale.
func (w *writeSession) writeRaw(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.offset += int64(n)
	return n, err
}

// offsetWriter adapts writeSession as the flate writer's destination so
// compressed output is counted the same way uncompressed writes are.
type offsetWriter struct{ w *writeSession }

func (o offsetWriter) Write(p []byte) (int, error) { return o.w.writeRaw(p) }

func (w *writeSession) WriteHeader(e *entry.Entry) error {
	name := normalizeZipName(e.Pathname.String())
	if e.FileType == entry.TypeDirectory && !strings.HasSuffix(name, "/") {
		name += "/"
	}

	method := uint16(methodDeflate)
	if e.FileType == entry.TypeDirectory || e.Size == 0 {
		method = methodStored
	}

	date, t := toDosTime(e.MTime.Time())

	c := zipWriteEntry{
		name:          name,
		method:        method,
		modDate:       date,
		modTime:       t,
		lfhOffset:     uint64(w.offset),
		externalAttrs: uint32(e.Mode&0xFFFF) << 16,
		flags:         0x0008, // length-at-end; data descriptor follows the body
	}
	w.cur = c
	w.crc = 0
	w.written = 0

	header := make([]byte, lfhFixedLen)
	copy(header[0:4], magicLFH)
	binary.LittleEndian.PutUint16(header[4:6], 20)
	binary.LittleEndian.PutUint16(header[6:8], c.flags)
	binary.LittleEndian.PutUint16(header[8:10], c.method)
	binary.LittleEndian.PutUint16(header[10:12], c.modTime)
	binary.LittleEndian.PutUint16(header[12:14], c.modDate)
	// crc32/sizes left zero: recovered from the trailing data descriptor.
	binary.LittleEndian.PutUint16(header[26:28], uint16(len(name)))
	binary.LittleEndian.PutUint16(header[28:30], 0)
	if err := w.write(header); err != nil {
		return err
	}
	if err := w.write([]byte(name)); err != nil {
		return err
	}

	if method == methodDeflate {
		fw, err := flate.NewWriter(offsetWriter{w}, flate.DefaultCompression)
		if err != nil {
			return err
		}
		w.deflate = fw
	} else {
		w.deflate = nil
	}
	return nil
}

func (w *writeSession) WriteData(p []byte) (int, error) {
	w.crc = crc32.Update(w.crc, crc32.IEEETable, p)
	w.written += uint64(len(p))
	if w.deflate != nil {
		n, err := w.deflate.Write(p)
		return n, err
	}
	if err := w.write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *writeSession) FinishEntry() error {
	compressedSize := w.written
	if w.deflate != nil {
		if err := w.deflate.Close(); err != nil {
			return err
		}
		compressedSize = uint64(w.offset) - w.cur.lfhOffset - uint64(lfhFixedLen+len(w.cur.name))
	}

	w.cur.crc32 = w.crc
	w.cur.size = w.written
	w.cur.compressedSize = compressedSize
	w.entries = append(w.entries, w.cur)

	dd := make([]byte, 16)
	copy(dd[0:4], magicDD)
	binary.LittleEndian.PutUint32(dd[4:8], w.cur.crc32)
	binary.LittleEndian.PutUint32(dd[8:12], uint32(w.cur.compressedSize))
	binary.LittleEndian.PutUint32(dd[12:16], uint32(w.cur.size))
	return w.write(dd)
}

func (w *writeSession) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	cdStart := w.offset
	for _, e := range w.entries {
		rec := make([]byte, cdfhFixedLen)
		copy(rec[0:4], magicCDFH)
		binary.LittleEndian.PutUint16(rec[4:6], 20)  // version made by
		binary.LittleEndian.PutUint16(rec[6:8], 20)  // version needed
		binary.LittleEndian.PutUint16(rec[8:10], e.flags)
		binary.LittleEndian.PutUint16(rec[10:12], e.method)
		binary.LittleEndian.PutUint16(rec[12:14], e.modTime)
		binary.LittleEndian.PutUint16(rec[14:16], e.modDate)
		binary.LittleEndian.PutUint32(rec[16:20], e.crc32)
		binary.LittleEndian.PutUint32(rec[20:24], uint32(e.compressedSize))
		binary.LittleEndian.PutUint32(rec[24:28], uint32(e.size))
		binary.LittleEndian.PutUint16(rec[28:30], uint16(len(e.name)))
		binary.LittleEndian.PutUint32(rec[38:42], e.externalAttrs)
		binary.LittleEndian.PutUint32(rec[42:46], uint32(e.lfhOffset))
		if err := w.write(rec); err != nil {
			return err
		}
		if err := w.write([]byte(e.name)); err != nil {
			return err
		}
	}
	cdSize := w.offset - cdStart

	eocdRec := make([]byte, eocdFixedLen)
	copy(eocdRec[0:4], magicEOCD)
	binary.LittleEndian.PutUint16(eocdRec[8:10], uint16(len(w.entries)))
	binary.LittleEndian.PutUint16(eocdRec[10:12], uint16(len(w.entries)))
	binary.LittleEndian.PutUint32(eocdRec[12:16], uint32(cdSize))
	binary.LittleEndian.PutUint32(eocdRec[16:20], uint32(cdStart))
	if err := w.write(eocdRec); err != nil {
		return err
	}

	return w.dst.Close()
}
