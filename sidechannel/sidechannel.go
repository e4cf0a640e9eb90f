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

// Package sidechannel implements the handle-scoped private side-channel
// registry of spec §6.4: a name-keyed store that lets a filter (the RPM
// filter, principally) hand a later format reader typed state without
// widening the filter.ReadBidder vtable. Lifetime is tied to the owning
// read handle's Close, mirroring spec §5's "guarded by the handle, not
// globally shared" requirement.
package sidechannel

import "sync"

// Record is a single side-channel entry: an opaque value plus the
// destructor to run when the owning Registry is closed.
type Record struct {
	Value   any
	Destroy func()
}

// Registry is a per-handle, concurrency-safe key/value store. The zero
// value is ready to use.
type Registry struct {
	mu      sync.Mutex
	records map[string]Record
	closed  bool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// Set installs or replaces the record at key. If a prior record existed
// its destructor runs first.
func (r *Registry) Set(key string, value any, destroy func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		if destroy != nil {
			destroy()
		}
		return
	}
	if old, ok := r.records[key]; ok && old.Destroy != nil {
		old.Destroy()
	}
	r.records[key] = Record{Value: value, Destroy: destroy}
}

// Get returns the value registered at key, or (nil, false) if absent.
func (r *Registry) Get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, false
	}
	return rec.Value, true
}

// Delete removes the record at key, running its destructor if present.
func (r *Registry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[key]; ok {
		if rec.Destroy != nil {
			rec.Destroy()
		}
		delete(r.records, key)
	}
}

// Close runs every remaining destructor and marks the registry closed;
// subsequent Set calls run their destructor immediately instead of
// storing, and Get always misses.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	for k, rec := range r.records {
		if rec.Destroy != nil {
			rec.Destroy()
		}
		delete(r.records, k)
	}
	r.closed = true
	return nil
}

// RPMFileIndexKey is the well-known side-channel key the RPM filter
// (filter.rpmBidder) registers its parsed cpio-payload file index under
// (spec §4.1.1), for a downstream cpio-capable format reader to consume.
const RPMFileIndexKey = "rpm.fileindex"

// RPMFileEntry is one row of the RPM header's file index: enough to
// cross-check or enrich entries the payload format reader decodes on
// its own (cpio entries already carry this metadata in-band, but the
// RPM header is the authoritative copy when the two disagree).
type RPMFileEntry struct {
	Name      string
	Size      int64
	Mode      uint32
	MTime     int64
	UID       int
	GID       int
	Device    uint32
	Inode     uint32
	LinkGroup int
}

// ZipPasswordKey is the well-known side-channel key a read handle's
// read_set_option("zip", "password", ...) (spec §6.1) installs the
// decryption passphrase under, for format/zip's ZipCrypto/WinZip-AES
// entry decoder to retrieve without widening format.Reader.Open.
const ZipPasswordKey = "zip.password"
