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

package linkresolver_test

import (
	"testing"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/linkresolver"
)

func sharedInodeEntry(name string) *entry.Entry {
	e := entry.New()
	e.SetPathname(name)
	e.NLink = 2
	e.Inode = 42
	e.ContainingDevMajor = 0
	e.ContainingDevMinor = 1
	return e
}

// TestGNUTarFirstSeenCarries covers spec scenario #6: A and B share
// dev=1,ino=42,nlink=2; under the GNUTar strategy A (seen first) stays a
// normal entry and B is rewritten into a link entry pointing at A with
// size 0.
func TestGNUTarFirstSeenCarries(t *testing.T) {
	r := linkresolver.New(linkresolver.GNUTar)

	a := sharedInodeEntry("A")
	outA := r.Offer(a)
	if len(outA) != 1 || outA[0] != a {
		t.Fatalf("Offer(A) = %v, want [A] unmodified (first sibling carries the body)", outA)
	}

	b := sharedInodeEntry("B")
	outB := r.Offer(b)
	if len(outB) != 1 {
		t.Fatalf("Offer(B) = %v, want exactly one rewritten link entry", outB)
	}
	link := outB[0]
	if link.HardlinkTarget.String() != "A" {
		t.Fatalf("HardlinkTarget = %q, want %q", link.HardlinkTarget.String(), "A")
	}
	if !link.SizeSet || link.Size != 0 {
		t.Fatalf("link entry Size = %d (set=%v), want 0 (set=true)", link.Size, link.SizeSet)
	}
	if link.Pathname.String() != "B" {
		t.Fatalf("link entry Pathname = %q, want %q (rewriting must not rename the sibling)", link.Pathname.String(), "B")
	}
	if len(r.Close()) != 0 {
		t.Fatal("GNUTar resolves eagerly; Close should have nothing left to flush")
	}
}

// TestEntriesBelowNlinkThresholdPassThrough covers spec §4.8 step 3:
// entries with NLink < 2 bypass the resolver untouched.
func TestEntriesBelowNlinkThresholdPassThrough(t *testing.T) {
	r := linkresolver.New(linkresolver.GNUTar)
	e := entry.New()
	e.SetPathname("regular")
	e.NLink = 1

	out := r.Offer(e)
	if len(out) != 1 || out[0] != e {
		t.Fatalf("Offer(regular) = %v, want [e] unmodified", out)
	}
}

// TestOldCpioLastSeenCarries covers the OldCpio strategy: nothing is
// released until Close, and the *last* member of the group ends up
// carrying the body while every earlier sibling becomes a link entry.
func TestOldCpioLastSeenCarries(t *testing.T) {
	r := linkresolver.New(linkresolver.OldCpio)

	a := sharedInodeEntry("A")
	b := sharedInodeEntry("B")
	c := sharedInodeEntry("C")

	if out := r.Offer(a); out != nil {
		t.Fatalf("OldCpio Offer(A) = %v, want nil (buffered until Close)", out)
	}
	if out := r.Offer(b); out != nil {
		t.Fatalf("OldCpio Offer(B) = %v, want nil (buffered until Close)", out)
	}
	if out := r.Offer(c); out != nil {
		t.Fatalf("OldCpio Offer(C) = %v, want nil (buffered until Close)", out)
	}

	out := r.Close()
	if len(out) != 3 {
		t.Fatalf("Close() returned %d entries, want 3", len(out))
	}
	if out[0] != c {
		t.Fatalf("carrier = %v, want the last-seen member C", out[0])
	}
	for _, link := range out[1:] {
		if link.HardlinkTarget.String() != "C" {
			t.Fatalf("HardlinkTarget = %q, want %q", link.HardlinkTarget.String(), "C")
		}
		if !link.SizeSet || link.Size != 0 {
			t.Fatalf("link entry Size = %d (set=%v), want 0 (set=true)", link.Size, link.SizeSet)
		}
	}
}

// TestPaxAnyOrderResolvesEagerly mirrors the GNUTar case: PaxAnyOrder
// also releases the first-seen member immediately as the carrier.
func TestPaxAnyOrderResolvesEagerly(t *testing.T) {
	r := linkresolver.New(linkresolver.PaxAnyOrder)

	a := sharedInodeEntry("A")
	if out := r.Offer(a); len(out) != 1 || out[0] != a {
		t.Fatalf("Offer(A) = %v, want [A] unmodified", out)
	}

	b := sharedInodeEntry("B")
	out := r.Offer(b)
	if len(out) != 1 || out[0].HardlinkTarget.String() != "A" {
		t.Fatalf("Offer(B) = %v, want a link entry targeting A", out)
	}
}

// TestDistinctInodesDoNotGroup covers the negative case: two entries
// with different (dev, ino) are never treated as siblings, even with
// NLink >= 2 each.
func TestDistinctInodesDoNotGroup(t *testing.T) {
	r := linkresolver.New(linkresolver.GNUTar)

	a := sharedInodeEntry("A")
	a.Inode = 1
	b := sharedInodeEntry("B")
	b.Inode = 2

	outA := r.Offer(a)
	outB := r.Offer(b)
	if len(outA) != 1 || outA[0] != a {
		t.Fatalf("Offer(A) = %v, want [A] unmodified", outA)
	}
	if len(outB) != 1 || outB[0] != b {
		t.Fatalf("Offer(B) = %v, want [B] unmodified (distinct inode, not a sibling of A)", outB)
	}
}
