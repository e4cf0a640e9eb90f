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

package entry_test

import (
	"testing"

	"github.com/nabbar/go-archiver/entry"
)

func TestCloneIsDeep(t *testing.T) {
	e := entry.New()
	e.SetPathname("a/b")
	e.AddXattr("user.foo", []byte("bar"))
	e.AddSparse(0, 10)
	e.AddVendor("SCHILY.xattr.user.foo", []byte("bar"))
	e.AddACL(entry.ACLEntry{Type: entry.ACLAccess, Tag: entry.TagUser, QualifierID: 1000, Perms: entry.PermRead})

	c := e.Clone()
	c.Xattrs[0].Value[0] = 'X'
	c.Sparse[0].Offset = 999
	c.Vendor[0].Value[0] = 'X'
	c.ACL[0].QualifierID = 2000

	if e.Xattrs[0].Value[0] == 'X' {
		t.Fatal("clone shares Xattrs backing array with original")
	}
	if e.Sparse[0].Offset == 999 {
		t.Fatal("clone shares Sparse backing array with original")
	}
	if e.Vendor[0].Value[0] == 'X' {
		t.Fatal("clone shares Vendor backing array with original")
	}
	if e.ACL[0].QualifierID == 2000 {
		t.Fatal("clone shares ACL backing array with original")
	}
}

func TestCloneNil(t *testing.T) {
	var e *entry.Entry
	if e.Clone() != nil {
		t.Fatal("cloning a nil Entry should return nil")
	}
}

func TestClearResetsToZeroValue(t *testing.T) {
	e := entry.New()
	e.SetPathname("a")
	e.SetSize(42)
	e.Clear()

	if e.Pathname.String() != "" {
		t.Fatalf("Clear left Pathname = %q, want empty", e.Pathname.String())
	}
	if e.SizeSet {
		t.Fatal("Clear left SizeSet true")
	}
}

func TestSetSizeMarksSizeSet(t *testing.T) {
	e := entry.New()
	if e.SizeSet {
		t.Fatal("zero-value Entry should not have SizeSet")
	}
	e.SetSize(5)
	if !e.SizeSet || e.Size != 5 {
		t.Fatalf("SetSize(5): got Size=%d SizeSet=%v", e.Size, e.SizeSet)
	}
}

func TestIsSparse(t *testing.T) {
	e := entry.New()
	if e.IsSparse() {
		t.Fatal("entry with no sparse extents reported IsSparse() true")
	}
	e.AddSparse(0, 100)
	if !e.IsSparse() {
		t.Fatal("entry with a sparse extent reported IsSparse() false")
	}
}

func TestAddXattrPreservesOrderAndDuplicates(t *testing.T) {
	e := entry.New()
	e.AddXattr("user.a", []byte("1"))
	e.AddXattr("user.a", []byte("2"))

	if len(e.Xattrs) != 2 {
		t.Fatalf("AddXattr with duplicate name: got %d entries, want 2 (ordered list, not a map)", len(e.Xattrs))
	}
	if string(e.Xattrs[0].Value) != "1" || string(e.Xattrs[1].Value) != "2" {
		t.Fatalf("AddXattr did not preserve insertion order: %+v", e.Xattrs)
	}
}

func TestTimeSpecRoundTrip(t *testing.T) {
	ts := entry.TimeSpec{Sec: 1000, Nsec: 123456789, Set: true}
	got := ts.Time()
	if got.Unix() != 1000 || got.Nanosecond() != 123456789 {
		t.Fatalf("TimeSpec.Time() = %v, want sec=1000 nsec=123456789", got)
	}
}

func TestTimeSpecUnsetReturnsZero(t *testing.T) {
	var ts entry.TimeSpec
	if !ts.Time().IsZero() {
		t.Fatalf("unset TimeSpec.Time() = %v, want zero time", ts.Time())
	}
}

func TestACLAddIsIdempotent(t *testing.T) {
	e := entry.New()
	a := entry.ACLEntry{Type: entry.ACLAccess, Tag: entry.TagUserObj, Perms: entry.PermRead | entry.PermWrite}
	e.AddACL(a)
	e.AddACL(a)
	if len(e.ACL) != 1 {
		t.Fatalf("AddACL with an equal tuple twice: got %d entries, want 1 (idempotent add)", len(e.ACL))
	}
}

func TestACLIteratorResetNext(t *testing.T) {
	e := entry.New()
	e.AddACL(entry.ACLEntry{Tag: entry.TagUserObj})
	e.AddACL(entry.ACLEntry{Tag: entry.TagGroupObj})

	it := e.ACLIterate()
	count := 0
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("iterated %d entries, want 2", count)
	}
	it.Reset()
	if _, ok := it.Next(); !ok {
		t.Fatal("Next() after Reset() should yield the first entry again")
	}
}
