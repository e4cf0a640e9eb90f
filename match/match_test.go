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

package match_test

import (
	"testing"
	"time"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/match"
)

func entryNamed(name string) *entry.Entry {
	e := entry.New()
	e.SetPathname(name)
	return e
}

func TestEmptyRulesMatchEverything(t *testing.T) {
	r := match.New()
	if !r.Match(entryNamed("anything/at/all")) {
		t.Fatal("an empty Rules set should match every entry")
	}
}

func TestIncludeRestrictsToPattern(t *testing.T) {
	r := match.New()
	if err := r.AddInclude("*.txt"); err != nil {
		t.Fatal(err)
	}
	if !r.Match(entryNamed("notes.txt")) {
		t.Fatal("notes.txt should match *.txt")
	}
	if r.Match(entryNamed("image.png")) {
		t.Fatal("image.png should not match *.txt")
	}
}

// TestExcludeWinsOverInclude covers the libarchive "exclude wins on a
// tie" rule: a name matched by both an include and an exclude pattern
// is rejected.
func TestExcludeWinsOverInclude(t *testing.T) {
	r := match.New()
	if err := r.AddInclude("*.txt"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddExclude("secret.txt"); err != nil {
		t.Fatal(err)
	}
	if r.Match(entryNamed("secret.txt")) {
		t.Fatal("secret.txt matches both include and exclude; exclude should win")
	}
	if !r.Match(entryNamed("public.txt")) {
		t.Fatal("public.txt should still match the include pattern")
	}
}

// TestExcludeMatchesLeafComponentAtAnyDepth covers the "exclude baz
// matches foo/bar/baz too" libarchive semantics.
func TestExcludeMatchesLeafComponentAtAnyDepth(t *testing.T) {
	r := match.New()
	if err := r.AddExclude("baz"); err != nil {
		t.Fatal(err)
	}
	if r.Match(entryNamed("foo/bar/baz")) {
		t.Fatal("foo/bar/baz should be excluded by a leaf pattern of baz")
	}
	if !r.Match(entryNamed("foo/bar/qux")) {
		t.Fatal("foo/bar/qux should not be excluded")
	}
}

func TestNewerThanRejectsOlderEntries(t *testing.T) {
	r := match.New()
	cutoff := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	r.SetNewerThan(cutoff)

	old := entryNamed("old")
	old.MTime = entry.NewTime(cutoff.Add(-time.Hour))
	if r.Match(old) {
		t.Fatal("an entry older than the cutoff should not match")
	}

	newer := entryNamed("newer")
	newer.MTime = entry.NewTime(cutoff.Add(time.Hour))
	if !r.Match(newer) {
		t.Fatal("an entry newer than the cutoff should match")
	}
}

func TestOwnerAllowList(t *testing.T) {
	r := match.New()
	r.AllowUID(1000)

	allowed := entryNamed("a")
	allowed.UID = 1000
	if !r.Match(allowed) {
		t.Fatal("uid 1000 is on the allow-list and should match")
	}

	denied := entryNamed("b")
	denied.UID = 2000
	if r.Match(denied) {
		t.Fatal("uid 2000 is not on the allow-list and should not match")
	}
}

func TestAddIncludeRejectsBadPattern(t *testing.T) {
	r := match.New()
	if err := r.AddInclude("["); err == nil {
		t.Fatal("an unterminated character class should be rejected as a bad pattern")
	}
}
