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

// Package linkresolver implements the write-side hardlink resolver of
// spec §4.8: entries sharing (dev, ino) with nlink >= 2 collapse to one
// body-carrying entry plus zero-body link entries, per one of three
// strategies a format writer selects at construction time.
package linkresolver

import (
	"github.com/nabbar/go-archiver/entry"
)

// Strategy selects which sibling of an inode group carries the body
// (spec §4.8.2).
type Strategy uint8

const (
	// GNUTar: first-seen wins; later siblings become link entries.
	GNUTar Strategy = iota
	// OldCpio: last-seen carries the body; earlier siblings are
	// buffered until the carrier is seen, then rewritten and flushed.
	OldCpio
	// PaxAnyOrder: any order is acceptable; as with GNUTar, the first
	// member seen carries the body and later siblings become link
	// entries as they arrive, so nothing is left for Close.
	PaxAnyOrder
)

type inodeKey struct {
	dev, ino uint64
}

type group struct {
	carrier *entry.Entry // nil until the carrying entry has been seen
	members []*entry.Entry
}

// Resolver tracks inode groups across a write session and rewrites
// entries into body-carrier / link-entry pairs per its Strategy.
type Resolver struct {
	strategy Strategy
	groups   map[inodeKey]*group
	order    []inodeKey
}

// New returns a Resolver applying strategy.
func New(strategy Strategy) *Resolver {
	return &Resolver{strategy: strategy, groups: map[inodeKey]*group{}}
}

// Offer feeds e through the resolver (spec §4.8 step 1: "consumers
// pass every Entry they see through this resolver"). It returns the
// entry or entries that should actually be written now: for
// GNUTar/PaxAnyOrder that is e unmodified as the carrier or a clone of
// e rewritten into a link entry; for OldCpio it is always nil, every
// sibling being buffered until Close. Entries with
// NLink < 2 bypass the resolver entirely (spec §4.8 step 3).
func (r *Resolver) Offer(e *entry.Entry) []*entry.Entry {
	if e.NLink < 2 || e.Inode == 0 {
		return []*entry.Entry{e}
	}

	dev := uint64(e.ContainingDevMajor)<<32 | uint64(e.ContainingDevMinor)
	key := inodeKey{dev: dev, ino: e.Inode}
	g, ok := r.groups[key]
	if !ok {
		g = &group{}
		r.groups[key] = g
		r.order = append(r.order, key)
	}

	switch r.strategy {
	case GNUTar, PaxAnyOrder:
		if g.carrier == nil {
			g.carrier = e
			return []*entry.Entry{e}
		}
		return []*entry.Entry{asLinkEntry(e, g.carrier)}

	case OldCpio:
		// Every sibling is buffered; only the *last* one seen carries
		// the body, so nothing can be released until Close flushes the
		// group in the order the final member demands.
		g.members = append(g.members, e)
		return nil
	}
	return []*entry.Entry{e}
}

// Close flushes any entries the resolver deferred: OldCpio groups
// (last member carries the body, earlier ones become link entries
// pointing at it) and any PaxAnyOrder/GNUTar group still missing
// members are not applicable here since those strategies release
// eagerly — Close only ever has work to do under OldCpio.
func (r *Resolver) Close() []*entry.Entry {
	var out []*entry.Entry
	for _, key := range r.order {
		g := r.groups[key]
		if len(g.members) == 0 {
			continue
		}
		carrier := g.members[len(g.members)-1]
		out = append(out, carrier)
		for _, m := range g.members[:len(g.members)-1] {
			out = append(out, asLinkEntry(m, carrier))
		}
	}
	return out
}

// asLinkEntry returns a clone of e rewritten to reference carrier's
// path as its hardlink target, with no body (spec §4.8 step 1: "zero
// body").
func asLinkEntry(e, carrier *entry.Entry) *entry.Entry {
	c := e.Clone()
	c.SetHardlinkTarget(carrier.Pathname.String())
	c.SetSize(0)
	return c
}
