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

// Package entry is the format-agnostic file metadata record (spec §3.1):
// built by format readers, consumed by format writers and the
// write-to-disk engine. It owns its ACL/xattr/sparse/vendor sub-lists as
// plain slices — no shared references between clones.
package entry

import "time"

// FileType enumerates the portable file type taxonomy of spec §3.1.
type FileType uint8

const (
	TypeUnknown FileType = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
	TypeCharDevice
	TypeBlockDevice
	TypeFifo
	TypeSocket
)

// SymlinkType hints at what a symlink target is expected to resolve to;
// Undef means the writer didn't know (most formats never record this).
type SymlinkType uint8

const (
	SymlinkUndef SymlinkType = iota
	SymlinkFile
	SymlinkDir
)

// TimeSpec is a (seconds, nanoseconds, set?) time value: formats with no
// sub-second resolution, or that never carry a given timestamp at all,
// leave Set false so writers can omit the field entirely.
type TimeSpec struct {
	Sec   int64
	Nsec  uint32
	Set   bool
}

func NewTime(t time.Time) TimeSpec {
	return TimeSpec{Sec: t.Unix(), Nsec: uint32(t.Nanosecond()), Set: true}
}

func (t TimeSpec) Time() time.Time {
	if !t.Set {
		return time.Time{}
	}
	return time.Unix(t.Sec, int64(t.Nsec)).UTC()
}

// TextField holds a value that may have been produced from raw archive
// bytes in an unknown charset: Raw is authoritative, UTF8/UCS are lazily
// (re)computed by Convert and invalidated whenever Raw is replaced.
type TextField struct {
	Raw     []byte
	Charset string // empty means "unknown / assume UTF-8"
	utf8    string
	ucs     []uint16
	haveU8  bool
	haveUCS bool
}

func NewText(s string) TextField {
	return TextField{Raw: []byte(s), Charset: "UTF-8", utf8: s, haveU8: true}
}

func (t *TextField) SetRaw(raw []byte, charset string) {
	t.Raw = raw
	t.Charset = charset
	t.haveU8 = false
	t.haveUCS = false
}

// String returns the best-effort UTF-8 rendering, converting (and
// caching) from Raw via Convert on first use. Conversion failure falls
// back to the raw bytes unchanged, per spec §4.3 ("Failure produces an
// error but retains the original bytes" — here surfaced by String
// always returning *something*; callers that need the error should
// call Convert directly).
func (t *TextField) String() string {
	if t.haveU8 {
		return t.utf8
	}
	s, err := Convert(t.Raw, t.Charset)
	if err != nil {
		s = string(t.Raw)
	}
	t.utf8 = s
	t.haveU8 = true
	return s
}

func (t TextField) IsZero() bool { return len(t.Raw) == 0 }

// Entry is a value type: Clone performs a deep copy, no sub-list is
// shared between the original and the clone (spec §3.5).
type Entry struct {
	Pathname       TextField
	Uname          TextField
	Gname          TextField
	SymlinkTarget  TextField
	HardlinkTarget TextField
	SourcePath     TextField

	FileType FileType
	Mode     uint32 // POSIX permission bits + setuid/gid/sticky

	UID, GID int64

	Size    int64
	SizeSet bool

	ATime, MTime, CTime, BirthTime TimeSpec

	NLink       uint32
	SymlinkHint SymlinkType

	DevMajor, DevMinor             uint32
	ContainingDevMajor, ContainingDevMinor uint32

	Inode uint64

	FileFlagsBitmap uint64
	FileFlagsText   string

	ACL     []ACLEntry
	Xattrs  []Xattr
	Sparse  []SparseExtent
	Vendor  []VendorAttr

	DataEncrypted     bool
	MetadataEncrypted bool
}

// New returns a zero-value Entry (spec §4.3 new()).
func New() *Entry { return &Entry{} }

// Clone performs a deep copy: every sub-slice is copied, never shared.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.ACL = append([]ACLEntry(nil), e.ACL...)
	c.Xattrs = make([]Xattr, len(e.Xattrs))
	for i, x := range e.Xattrs {
		c.Xattrs[i] = Xattr{Name: x.Name, Value: append([]byte(nil), x.Value...)}
	}
	c.Sparse = append([]SparseExtent(nil), e.Sparse...)
	c.Vendor = make([]VendorAttr, len(e.Vendor))
	for i, v := range e.Vendor {
		c.Vendor[i] = VendorAttr{Key: v.Key, Value: append([]byte(nil), v.Value...)}
	}
	return &c
}

// Clear resets the Entry to its zero value in place, so its backing
// memory can be reused across next_header() calls (spec §3.5).
func (e *Entry) Clear() {
	*e = Entry{}
}

func (e *Entry) SetPathname(s string)       { e.Pathname = NewText(s) }
func (e *Entry) SetUname(s string)          { e.Uname = NewText(s) }
func (e *Entry) SetGname(s string)          { e.Gname = NewText(s) }
func (e *Entry) SetSymlinkTarget(s string)  { e.SymlinkTarget = NewText(s) }
func (e *Entry) SetHardlinkTarget(s string) { e.HardlinkTarget = NewText(s) }

func (e *Entry) SetSize(n int64) {
	e.Size = n
	e.SizeSet = true
}

// AddSparse appends a (offset, length) data extent, preserving insertion
// order (spec §4.3).
func (e *Entry) AddSparse(offset, length int64) {
	e.Sparse = append(e.Sparse, SparseExtent{Offset: offset, Length: length})
}

// AddXattr appends an extended attribute; duplicates by name are kept in
// order, matching the ordered-list semantics of spec §3.1.
func (e *Entry) AddXattr(name string, value []byte) {
	e.Xattrs = append(e.Xattrs, Xattr{Name: name, Value: value})
}

// AddVendor appends a pax-style vendor attribute (UPPERCASE.key).
func (e *Entry) AddVendor(key string, value []byte) {
	e.Vendor = append(e.Vendor, VendorAttr{Key: key, Value: value})
}

// IsSparse reports whether the entry carries an explicit sparse map; its
// absence means the entry occupies a single dense [0, Size) extent.
func (e *Entry) IsSparse() bool { return len(e.Sparse) > 0 }
