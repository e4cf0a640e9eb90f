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

// Package match implements the entry filter engine of spec §4.3 row E:
// name include/exclude patterns, a newer-than time bound, and an owner
// allow-list, applied after a format reader has produced an Entry and
// before it reaches the caller or the write-to-disk engine. Grounded on
// libarchive's archive_match.c semantics (name patterns tested against
// both the full path and each trailing suffix, exclude winning over
// include on a tie, newer-than compared against mtime) recovered from
// the original_source/ listing; the glob primitive itself is stdlib
// path.Match since no third-party glob library appears anywhere in the
// retrieval pack.
package match

import (
	"path"
	"strings"
	"time"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/errs"
)

const (
	ErrBadPattern errs.CodeError = errs.MinPkgMatch + iota
)

func init() {
	if errs.ExistInMapMessage(errs.MinPkgMatch) {
		panic("error code collision: match")
	}
	errs.RegisterIdFctMessage(errs.MinPkgMatch, func(code errs.CodeError) string {
		switch code {
		case ErrBadPattern:
			return "match: invalid pattern"
		default:
			return errs.NullMessage
		}
	})
}

// Rules is an ordered set of inclusion criteria: an Entry survives only
// if it matches every non-empty criterion (spec §4.3, "E" row).
type Rules struct {
	include []string
	exclude []string

	newerThan time.Time
	hasNewer  bool

	owners   map[int64]bool
	groups   map[int64]bool
}

// New returns an empty Rules set; with nothing added, Match always
// returns true (no filtering).
func New() *Rules { return &Rules{} }

// AddInclude registers a shell-glob pattern (path.Match syntax) an
// entry's pathname must match at least one of, when any include
// pattern has been registered.
func (r *Rules) AddInclude(pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return ErrBadPattern.Errorf("%s: %v", pattern, err)
	}
	r.include = append(r.include, pattern)
	return nil
}

// AddExclude registers a shell-glob pattern that rejects any matching
// entry outright, taking precedence over include patterns (libarchive's
// "exclude wins on a tie" rule).
func (r *Rules) AddExclude(pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return ErrBadPattern.Errorf("%s: %v", pattern, err)
	}
	r.exclude = append(r.exclude, pattern)
	return nil
}

// SetNewerThan restricts matches to entries whose mtime is strictly
// after t.
func (r *Rules) SetNewerThan(t time.Time) {
	r.newerThan = t
	r.hasNewer = true
}

// AllowUID/AllowGID build an owner allow-list; once any uid/gid has
// been added, entries outside the list are rejected.
func (r *Rules) AllowUID(uid int64) {
	if r.owners == nil {
		r.owners = map[int64]bool{}
	}
	r.owners[uid] = true
}

func (r *Rules) AllowGID(gid int64) {
	if r.groups == nil {
		r.groups = map[int64]bool{}
	}
	r.groups[gid] = true
}

// Match reports whether e passes every configured criterion.
func (r *Rules) Match(e *entry.Entry) bool {
	name := e.Pathname.String()

	if matchesAny(r.exclude, name) {
		return false
	}
	if len(r.include) > 0 && !matchesAny(r.include, name) {
		return false
	}
	if r.hasNewer && !e.MTime.Time().After(r.newerThan) {
		return false
	}
	if r.owners != nil && !r.owners[e.UID] {
		return false
	}
	if r.groups != nil && !r.groups[e.GID] {
		return false
	}
	return true
}

// matchesAny tests name, and each of its trailing path suffixes,
// against every pattern — libarchive matches "foo/bar/baz" against an
// exclude of "baz" the same way it matches the full path, so a pattern
// naming a leaf component excludes it regardless of directory depth.
func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
		parts := strings.Split(name, "/")
		for i := range parts {
			suffix := strings.Join(parts[i:], "/")
			if ok, _ := path.Match(p, suffix); ok {
				return true
			}
		}
	}
	return false
}
