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

// Package readarchive implements the read-side state machine of spec
// §4.4 and the read API surface of spec §6.1: it drives the filter
// bidder chain (package filter) into the format dispatch engine
// (package format), sequencing next_header/read_data/read_data_skip
// calls and rejecting any call made out of order. Grounded on the
// calling convention in the teacher's archive/archive.go
// (ExtractAll's try-BZ2-then-GZIP-then-TAR-or-ZIP cascade), generalized
// from that hand-written cascade into the bidder-driven dispatch the
// rest of this module already implements.
package readarchive

import (
	"bytes"
	"io"
	"os"

	"github.com/nabbar/go-archiver/alog"
	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/errs"
	"github.com/nabbar/go-archiver/filter"
	"github.com/nabbar/go-archiver/format"
	_ "github.com/nabbar/go-archiver/format/tar" // registers the tar format.Reader/Writer
	_ "github.com/nabbar/go-archiver/format/zip" // registers the zip format.Reader/Writer
	"github.com/nabbar/go-archiver/sidechannel"
	"github.com/nabbar/go-archiver/stream"
)

const (
	ErrInvalidState errs.CodeError = errs.MinPkgReadArchive + iota
	ErrAlreadyOpen
	ErrNotOpen
)

func init() {
	if errs.ExistInMapMessage(errs.MinPkgReadArchive) {
		panic("error code collision: readarchive")
	}
	errs.RegisterIdFctMessage(errs.MinPkgReadArchive, func(code errs.CodeError) string {
		switch code {
		case ErrInvalidState:
			return "readarchive: call not valid in the handle's current state"
		case ErrAlreadyOpen:
			return "readarchive: handle already open"
		case ErrNotOpen:
			return "readarchive: handle not open"
		default:
			return errs.NullMessage
		}
	})
}

// state is the read-side machine of spec §4.4: NEW -> HEADER -> DATA ->
// HEADER -> ... -> EOF -> CLOSED, with any FATAL error moving the handle
// to state fatal where only Close is legal thereafter.
type state uint8

const (
	stateNew state = iota
	stateHeader
	stateData
	stateEOF
	stateFatal
	stateClosed
)

// Handle is a single read session: independent state machine, no
// background goroutines (spec §5 "strictly single-threaded
// cooperative"). The zero value is not ready to use; call New.
type Handle struct {
	st state

	src stream.Source

	allowFilter map[filter.Code]bool
	allowFormat map[format.Code]bool

	side *sidechannel.Registry
	opts map[string]map[string]string

	concatenated bool

	sess        format.ReaderSession
	formatName  string
	filterNames []string

	fatalErr error
}

// New returns an unopened read Handle with every filter and format
// bidder enabled (spec §6.1 read_support_{filter,format}_all being the
// common default; call SupportFilter/SupportFormat to narrow it down
// before Open).
func New() *Handle {
	return &Handle{st: stateNew, side: sidechannel.New(), opts: map[string]map[string]string{}}
}

// SupportFilterAll re-enables every registered filter bidder (the
// default). SupportFilter restricts negotiation to the given codes.
func (h *Handle) SupportFilterAll() { h.allowFilter = nil }

func (h *Handle) SupportFilter(codes ...filter.Code) {
	h.allowFilter = map[filter.Code]bool{}
	for _, c := range codes {
		h.allowFilter[c] = true
	}
}

// SupportFormatAll re-enables every registered format bidder (the
// default). SupportFormat restricts dispatch to the given codes.
func (h *Handle) SupportFormatAll() { h.allowFormat = nil }

func (h *Handle) SupportFormat(codes ...format.Code) {
	h.allowFormat = map[format.Code]bool{}
	for _, c := range codes {
		h.allowFormat[c] = true
	}
}

// SetOption records a (module, key, value) triple (spec §6.1). It must
// be called before Open. A handful of well-known options act
// immediately: read.read_concatenated_archives toggles multi-archive
// scanning, zip.password seeds the side-channel the zip format reader
// consults for ZipCrypto/WinZip-AES decryption.
func (h *Handle) SetOption(module, key, value string) error {
	if h.st != stateNew {
		return ErrInvalidState.Errorf("SetOption must precede Open")
	}
	if h.opts[module] == nil {
		h.opts[module] = map[string]string{}
	}
	h.opts[module][key] = value

	switch {
	case (module == "read" || module == "") && key == "read_concatenated_archives":
		h.concatenated = value == "1" || value == "true"
	case module == "zip" && key == "password":
		h.side.Set(sidechannel.ZipPasswordKey, value, nil)
	}
	return nil
}

// Option returns a previously set option value and whether it was set.
func (h *Handle) Option(module, key string) (string, bool) {
	m, ok := h.opts[module]
	if !ok {
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

// Open binds src as the byte source and moves the handle to HEADER
// (spec §6.1 read_open_*; this module takes any stream.Source so
// filename/memory/fd/callbacks are all just different ways of
// constructing one — see OpenFilename/OpenMemory/OpenReader below).
func (h *Handle) Open(src stream.Source) error {
	if h.st != stateNew {
		return ErrAlreadyOpen.Errorf("Open called twice")
	}
	h.src = src
	h.st = stateHeader
	return nil
}

// OpenFilename opens path for reading, using random-access mode when
// the file is seekable (required for zip's central-directory index,
// spec §4.6.5) and falling back to streaming otherwise.
func OpenFilename(path string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	ra, err := stream.NewRandomAccess(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	h := New()
	if err := h.Open(ra); err != nil {
		_ = f.Close()
		return nil, err
	}
	return h, nil
}

// OpenMemory opens an in-memory archive image in random-access mode.
func OpenMemory(b []byte) (*Handle, error) {
	ra, err := stream.NewRandomAccess(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	h := New()
	if err := h.Open(ra); err != nil {
		return nil, err
	}
	return h, nil
}

// OpenReader opens a streaming (non-seekable) source, e.g. a pipe, a
// network body, or an fd wrapped in an *os.File the caller does not
// want random-accessed. Zip archives read this way fall back to
// streaming mode (spec §4.6.5).
func OpenReader(r io.Reader) (*Handle, error) {
	h := New()
	if err := h.Open(stream.New(r)); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handle) openNextArchive() error {
	filtered, names, err := filter.Negotiate(h.src, h.allowFilter)
	if err != nil {
		h.st = stateFatal
		h.fatalErr = err
		return err
	}
	h.filterNames = names
	alog.DebugLevel.Logf("readarchive: filter chain resolved to %v", names)

	sess, name, err := format.Detect(filtered, h.side, h.allowFormat)
	if err != nil {
		h.st = stateFatal
		h.fatalErr = err
		return err
	}
	h.sess = sess
	h.formatName = name
	alog.DebugLevel.Logf("readarchive: format dispatch selected %q", name)
	return nil
}

// NextHeader advances to the next entry (spec §6.1 read_next_header),
// returning io.EOF once the format reports end-of-archive (and, unless
// read_concatenated_archives is set, staying at EOF even if trailing
// bytes remain). If called while an entry's body has not been fully
// consumed, the remainder is skipped first (the common convenience
// every libarchive-style reader offers over the strict "must be called
// from HEADER" rule in spec §4.4).
func (h *Handle) NextHeader() (*entry.Entry, error) {
	switch h.st {
	case stateFatal:
		return nil, h.fatalErr
	case stateClosed:
		return nil, ErrInvalidState.Errorf("NextHeader called after Close")
	case stateNew:
		return nil, ErrNotOpen.Errorf("NextHeader called before Open")
	case stateData:
		if err := h.ReadDataSkip(); err != nil {
			return nil, err
		}
	case stateEOF:
		if !h.concatenated {
			return nil, io.EOF
		}
	case stateHeader:
		// ready
	}

	if h.sess == nil {
		if err := h.openNextArchive(); err != nil {
			return nil, err
		}
	}

	e, err := h.sess.ReadHeader()
	if err == io.EOF {
		h.st = stateEOF
		if h.concatenated {
			_ = h.sess.Close()
			h.sess = nil
			if peek, perr := h.src.Ahead(1); perr == nil && len(peek) > 0 {
				if err2 := h.openNextArchive(); err2 == nil {
					return h.NextHeader()
				}
			}
		}
		return nil, io.EOF
	}
	if err != nil {
		h.st = stateFatal
		h.fatalErr = err
		return nil, err
	}

	h.st = stateData
	return e, nil
}

// ReadData streams up to len(p) bytes of the current entry's body (spec
// §6.1 read_data_block), returning io.EOF once the entry is exhausted
// and implicitly moving the handle back to HEADER. It satisfies
// io.Reader; callers that need the sparse-hole offset spec §4.5.3
// carries should call ReadDataBlock instead.
func (h *Handle) ReadData(p []byte) (int, error) {
	n, _, err := h.ReadDataBlock(p)
	return n, err
}

// ReadDataBlock is the full read_data_block primitive of spec §6.1: it
// returns, alongside the bytes and error ReadData does, the logical
// offset of p[0] within the entry's reconstructed data so a caller can
// detect and reproduce sparse holes (spec §4.5.3, §8 scenario 5).
func (h *Handle) ReadDataBlock(p []byte) (int, int64, error) {
	if h.st != stateData {
		return 0, 0, ErrInvalidState.Errorf("ReadData called outside DATA state")
	}
	n, offset, err := h.sess.ReadData(p)
	if err == io.EOF {
		h.st = stateHeader
	} else if err != nil {
		h.st = stateFatal
		h.fatalErr = err
	}
	return n, offset, err
}

// ReadDataSkip discards the remainder of the current entry's body; it
// is idempotent when called from HEADER (spec §4.4).
func (h *Handle) ReadDataSkip() error {
	switch h.st {
	case stateData:
		if err := h.sess.ReadDataSkip(); err != nil {
			h.st = stateFatal
			h.fatalErr = err
			return err
		}
		h.st = stateHeader
		return nil
	case stateHeader:
		return nil
	default:
		return ErrInvalidState.Errorf("ReadDataSkip called outside DATA/HEADER state")
	}
}

// FormatName returns the name of the format that won dispatch (e.g.
// "tar", "zip"), valid once the first NextHeader call has succeeded.
func (h *Handle) FormatName() string { return h.formatName }

// FilterNames returns the head-first list of filters the bidder chain
// applied before the format reader started consuming bytes.
func (h *Handle) FilterNames() []string { return h.filterNames }

// Close releases the format session, the side-channel registry, and
// the underlying source, in that order (spec §3.5 teardown walks
// head->tail). Valid from any state; calling it twice is a no-op.
func (h *Handle) Close() error {
	if h.st == stateClosed {
		return nil
	}
	var err error
	if h.sess != nil {
		err = h.sess.Close()
		h.sess = nil
	}
	_ = h.side.Close()
	if h.src != nil {
		if cerr := h.src.Close(); err == nil {
			err = cerr
		}
	}
	h.st = stateClosed
	return err
}
