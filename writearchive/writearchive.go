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

// Package writearchive implements the write-side state machine of spec
// §4.4 and the write API surface of spec §6.2: a format writer
// (package format) feeds a chain of write-filters (package filter),
// terminating at the caller's sink. Grounded on the same
// archive/archive.go calling convention as package readarchive, mirrored
// to the write direction.
package writearchive

import (
	"bytes"
	"io"
	"os"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/errs"
	"github.com/nabbar/go-archiver/filter"
	"github.com/nabbar/go-archiver/format"
	_ "github.com/nabbar/go-archiver/format/tar" // registers the tar format.Reader/Writer
	_ "github.com/nabbar/go-archiver/format/zip" // registers the zip format.Reader/Writer
)

const (
	ErrInvalidState errs.CodeError = errs.MinPkgWriteArchive + iota
	ErrAlreadyOpen
	ErrNoFormat
	ErrUnknownFilter
	ErrUnknownFormat
)

func init() {
	if errs.ExistInMapMessage(errs.MinPkgWriteArchive) {
		panic("error code collision: writearchive")
	}
	errs.RegisterIdFctMessage(errs.MinPkgWriteArchive, func(code errs.CodeError) string {
		switch code {
		case ErrInvalidState:
			return "writearchive: call not valid in the handle's current state"
		case ErrAlreadyOpen:
			return "writearchive: handle already open"
		case ErrNoFormat:
			return "writearchive: no format set; call SetFormat before Open"
		case ErrUnknownFilter:
			return "writearchive: no write filter registered under that name"
		case ErrUnknownFormat:
			return "writearchive: no write format registered under that name"
		default:
			return errs.NullMessage
		}
	})
}

// state is the write-side machine of spec §4.4: NEW -> HEADER -> DATA ->
// HEADER -> ... -> CLOSED.
type state uint8

const (
	stateNew state = iota
	stateHeader
	stateData
	stateClosed
)

// Handle is a single write session.
type Handle struct {
	st state

	filterNames []string
	formatName  string

	opts map[string]map[string]string

	dst     io.WriteCloser
	closers []io.WriteCloser // build order: index 0 wraps dst directly

	sess format.WriterSession

	headerWritten bool
}

// New returns an unopened write Handle; call AddFilter (zero or more
// times) and SetFormat before Open.
func New() *Handle {
	return &Handle{st: stateNew, opts: map[string]map[string]string{}}
}

// AddFilter appends a named write filter to the chain (spec §6.2
// write_add_filter_<name>); filters are applied in call order, each
// wrapping the previous one's output, so the last filter added is the
// one the format writer writes into directly and the first sits
// closest to the raw sink.
func (h *Handle) AddFilter(name string) error {
	if h.st != stateNew {
		return ErrInvalidState.Errorf("AddFilter must precede Open")
	}
	if filter.ByName(name) == nil {
		return ErrUnknownFilter.Errorf("%s", name)
	}
	h.filterNames = append(h.filterNames, name)
	return nil
}

// SetFormat selects the format writer by name (spec §6.2
// write_set_format_<name>).
func (h *Handle) SetFormat(name string) error {
	if h.st != stateNew {
		return ErrInvalidState.Errorf("SetFormat must precede Open")
	}
	if format.WriterByName(name) == nil {
		return ErrUnknownFormat.Errorf("%s", name)
	}
	h.formatName = name
	return nil
}

// SetOption records a (module, key, value) triple (spec §6.2); this
// module's format/filter writers have no options of their own yet, so
// this is purely informational storage available via Option.
func (h *Handle) SetOption(module, key, value string) error {
	if h.st != stateNew {
		return ErrInvalidState.Errorf("SetOption must precede Open")
	}
	if h.opts[module] == nil {
		h.opts[module] = map[string]string{}
	}
	h.opts[module][key] = value
	return nil
}

func (h *Handle) Option(module, key string) (string, bool) {
	m, ok := h.opts[module]
	if !ok {
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

// Open builds the filter chain over dst and opens the selected
// format's writer session, moving the handle to HEADER.
func (h *Handle) Open(dst io.WriteCloser) error {
	if h.st != stateNew {
		return ErrAlreadyOpen.Errorf("Open called twice")
	}
	if h.formatName == "" {
		return ErrNoFormat.Error()
	}

	h.dst = dst
	cur := dst
	for _, name := range h.filterNames {
		wf := filter.ByName(name)
		nc, err := wf.NewWriter(cur)
		if err != nil {
			return err
		}
		h.closers = append(h.closers, nc)
		cur = nc
	}

	fw := format.WriterByName(h.formatName)
	sess, err := fw.Open(cur)
	if err != nil {
		return err
	}
	h.sess = sess
	h.st = stateHeader
	return nil
}

// FilenameSink creates (or truncates) path as the write-side sink
// (spec §6.2 write_open_filename): configure the Handle's filters and
// format first, then call Open with the returned *os.File.
func FilenameSink(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// MemorySink accumulates written bytes in memory (spec §6.2
// write_open_memory); Close is a no-op, Bytes retrieves the image.
type MemorySink struct {
	buf bytes.Buffer
}

func NewMemorySink() *MemorySink                  { return &MemorySink{} }
func (m *MemorySink) Write(p []byte) (int, error) { return m.buf.Write(p) }
func (m *MemorySink) Close() error                { return nil }
func (m *MemorySink) Bytes() []byte               { return m.buf.Bytes() }

// WriteHeader finishes any entry left open from a previous call (spec
// §4.4 "write_header asserts the previous entry was finished"), then
// writes e's header and moves the handle to DATA.
func (h *Handle) WriteHeader(e *entry.Entry) error {
	if h.st != stateHeader && h.st != stateData {
		return ErrInvalidState.Errorf("WriteHeader called before Open or after Close")
	}
	if h.st == stateData {
		if err := h.sess.FinishEntry(); err != nil {
			return err
		}
	}
	if err := h.sess.WriteHeader(e); err != nil {
		return err
	}
	h.st = stateData
	return nil
}

// WriteData streams p into the current entry's body (spec §6.2
// write_data); must be called from DATA.
func (h *Handle) WriteData(p []byte) (int, error) {
	if h.st != stateData {
		return 0, ErrInvalidState.Errorf("WriteData called outside DATA state")
	}
	return h.sess.WriteData(p)
}

// FinishEntry closes out the current entry's body (spec §6.2
// write_finish_entry), writing any required padding / length-at-end
// trailer, and returns the handle to HEADER.
func (h *Handle) FinishEntry() error {
	if h.st != stateData {
		return nil
	}
	if err := h.sess.FinishEntry(); err != nil {
		return err
	}
	h.st = stateHeader
	return nil
}

// Close finishes any open entry and closes the format writer session.
// Every write filter's Close cascades to its downstream writer (see
// filter.chainedWriteCloser), so closing the format writer's head
// writer is enough to flush and close the whole chain down to the raw
// sink; Close only falls back to closing the chain by hand if Open
// never got as far as creating a session.
func (h *Handle) Close() error {
	if h.st == stateClosed {
		return nil
	}
	var err error
	if h.sess != nil {
		if h.st == stateData {
			if ferr := h.sess.FinishEntry(); ferr != nil && err == nil {
				err = ferr
			}
		}
		if cerr := h.sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	} else {
		for i := len(h.closers) - 1; i >= 0; i-- {
			if cerr := h.closers[i].Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if h.dst != nil {
			if cerr := h.dst.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	h.st = stateClosed
	return err
}
