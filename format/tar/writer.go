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
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/format"
)

// writer implements format.Writer for the pax write flavour of spec
// §4.5.5: ustar headers for entries that fit, with an 'x' pax
// pseudo-entry preceding any entry that overflows a ustar field.
type writer struct{}

func (writer) Name() string      { return "tar" }
func (writer) Code() format.Code { return format.CodeTar }

func (writer) Open(dst io.WriteCloser) (format.WriterSession, error) {
	return &writeSession{dst: dst}, nil
}

type writeSession struct {
	dst       io.WriteCloser
	written   int64
	finished  bool
}

func (w *writeSession) WriteHeader(e *entry.Entry) error {
	pax := map[string]string{}

	name := e.Pathname.String()
	ustarName, ustarPrefix, nameOverflow := splitUstarName(name)
	if nameOverflow {
		pax["path"] = name
	}

	linkname := ""
	typeflag := byte(tfRegular)
	switch e.FileType {
	case entry.TypeDirectory:
		typeflag = tfDir
	case entry.TypeSymlink:
		typeflag = tfSymlink
		linkname = e.SymlinkTarget.String()
	case entry.TypeCharDevice:
		typeflag = tfChar
	case entry.TypeBlockDevice:
		typeflag = tfBlock
	case entry.TypeFifo:
		typeflag = tfFifo
	}
	if e.HardlinkTarget.String() != "" {
		typeflag = tfLink
		linkname = e.HardlinkTarget.String()
	}
	if len(linkname) > 100 {
		pax["linkpath"] = linkname
	}

	if !fitsOctal(e.UID, 7) {
		pax["uid"] = strconv.FormatInt(e.UID, 10)
	}
	if !fitsOctal(e.GID, 7) {
		pax["gid"] = strconv.FormatInt(e.GID, 10)
	}
	if !fitsOctal(e.Size, 11) {
		pax["size"] = strconv.FormatInt(e.Size, 10)
	}
	if uname := e.Uname.String(); !isASCII(uname) {
		pax["uname"] = uname
	}
	if gname := e.Gname.String(); !isASCII(gname) {
		pax["gname"] = gname
	}
	if e.MTime.Nsec != 0 {
		pax["mtime"] = formatPaxTime(e.MTime)
	}
	if e.ATime.Set && e.ATime.Nsec != 0 {
		pax["atime"] = formatPaxTime(e.ATime)
	}
	if e.CTime.Set && e.CTime.Nsec != 0 {
		pax["ctime"] = formatPaxTime(e.CTime)
	}
	if !isASCII(name) {
		pax["path"] = name
	}
	for _, x := range e.Xattrs {
		pax["SCHILY.xattr."+x.Name] = string(x.Value)
	}
	for _, v := range e.Vendor {
		pax[v.Key] = string(v.Value)
	}

	if len(pax) > 0 {
		if err := w.writePaxHeader(pax); err != nil {
			return err
		}
	}

	block := make([]byte, blockSize)
	putString(block[0:100], ustarName)
	putOctal(block[100:108], int64(e.Mode&0o7777), 7)
	putOctal(block[108:116], clampOctal(e.UID, 7), 7)
	putOctal(block[116:124], clampOctal(e.GID, 7), 7)
	putOctal(block[124:136], clampOctal(e.Size, 11), 11)
	putOctal(block[136:148], e.MTime.Sec, 11)
	for i := 148; i < 156; i++ {
		block[i] = ' '
	}
	block[156] = typeflag
	putString(block[157:257], truncate(linkname, 100))
	copy(block[257:263], "ustar")
	block[263] = '0'
	block[264] = '0'
	putString(block[265:297], truncate(e.Uname.String(), 32))
	putString(block[297:329], truncate(e.Gname.String(), 32))
	putOctal(block[329:337], int64(e.DevMajor), 7)
	putOctal(block[337:345], int64(e.DevMinor), 7)
	putString(block[345:500], ustarPrefix)

	sum := computeChecksum(block)
	putChecksumField(block[148:156], sum)

	if _, err := w.dst.Write(block); err != nil {
		return err
	}
	w.written = 0
	w.finished = false
	return nil
}

func (w *writeSession) writePaxHeader(pax map[string]string) error {
	var body strings.Builder
	keys := make([]string, 0, len(pax))
	for k := range pax {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		body.WriteString(paxRecord(k, pax[k]))
	}
	data := []byte(body.String())

	block := make([]byte, blockSize)
	putString(block[0:100], "pax_global_header")
	putOctal(block[100:108], 0o644, 7)
	putOctal(block[124:136], int64(len(data)), 11)
	for i := 148; i < 156; i++ {
		block[i] = ' '
	}
	block[156] = tfPaxNext
	copy(block[257:263], "ustar")
	block[263] = '0'
	block[264] = '0'
	putChecksumField(block[148:156], computeChecksum(block))

	if _, err := w.dst.Write(block); err != nil {
		return err
	}
	return w.writePadded(data)
}

func (w *writeSession) writePadded(data []byte) error {
	if _, err := w.dst.Write(data); err != nil {
		return err
	}
	if pad := padding(int64(len(data))); pad > 0 {
		_, err := w.dst.Write(make([]byte, pad))
		return err
	}
	return nil
}

func (w *writeSession) WriteData(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *writeSession) FinishEntry() error {
	if w.finished {
		return nil
	}
	if pad := padding(w.written); pad > 0 {
		if _, err := w.dst.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	w.finished = true
	return nil
}

func (w *writeSession) Close() error {
	if _, err := w.dst.Write(make([]byte, blockSize*2)); err != nil {
		return err
	}
	return w.dst.Close()
}

func splitUstarName(name string) (ustarName, prefix string, overflow bool) {
	if len(name) <= 100 {
		return name, "", false
	}
	if len(name) > 255 {
		return truncate(name, 100), "", true
	}
	idx := strings.LastIndexByte(name[:len(name)-100+155], '/')
	if idx < 0 || idx > 154 {
		return truncate(name, 100), "", true
	}
	return name[idx+1:], name[:idx], false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func putString(dst []byte, s string) {
	copy(dst, s)
}

func putOctal(dst []byte, v int64, digits int) {
	s := strconv.FormatInt(v, 8)
	if len(s) > digits {
		s = s[len(s)-digits:]
	}
	for i := range dst {
		dst[i] = 0
	}
	pad := digits - len(s)
	copy(dst[pad:digits], s)
}

func putChecksumField(dst []byte, sum int64) {
	s := fmt.Sprintf("%06o\x00 ", sum)
	copy(dst, s)
}

func fitsOctal(v int64, digits int) bool {
	if v < 0 {
		return false
	}
	max := int64(1)
	for i := 0; i < digits*3; i++ {
		max *= 2
	}
	return v < max
}

func clampOctal(v int64, digits int) int64 {
	if fitsOctal(v, digits) {
		return v
	}
	return 0
}

func isASCII(s string) bool {
	for _, r := range s {
		if r >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func formatPaxTime(t entry.TimeSpec) string {
	return fmt.Sprintf("%d.%09d", t.Sec, t.Nsec)
}

// paxRecord renders a length-prefixed pax extension record (spec
// §4.5.2): LEN is the decimal length of the whole record including the
// LEN field itself. The field's own width feeds back into the total
// length it encodes, so the length is solved by fixed-point iteration
// (it converges in at most one extra digit-width step).
func paxRecord(key, value string) string {
	suffix := fmt.Sprintf(" %s=%s\n", key, value)
	length := len(suffix)
	for {
		total := len(strconv.Itoa(length)) + len(suffix)
		if total == length {
			break
		}
		length = total
	}
	return strconv.Itoa(length) + suffix
}
