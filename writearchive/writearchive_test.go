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

package writearchive_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/nabbar/go-archiver/entry"
	"github.com/nabbar/go-archiver/readarchive"
	"github.com/nabbar/go-archiver/writearchive"
)

func entryFor(name string, body []byte) *entry.Entry {
	e := entry.New()
	e.SetPathname(name)
	e.SetSize(int64(len(body)))
	return e
}

// TestWriteThenReadTarRoundTrip exercises writearchive end to end through
// its own registered "tar" format writer, then reads the result back with
// readarchive, proving the two sides agree on wire format without either
// one's test file hand-rolling bytes.
func TestWriteThenReadTarRoundTrip(t *testing.T) {
	h := writearchive.New()
	if err := h.SetFormat("tar"); err != nil {
		t.Fatal(err)
	}
	sink := writearchive.NewMemorySink()
	if err := h.Open(sink); err != nil {
		t.Fatal(err)
	}

	body := []byte("hello, writearchive")
	if err := h.WriteHeader(entryFor("a.txt", body)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.WriteData(body); err != nil {
		t.Fatal(err)
	}
	if err := h.FinishEntry(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	rh, err := readarchive.OpenMemory(sink.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	defer rh.Close()

	e, err := rh.NextHeader()
	if err != nil {
		t.Fatal(err)
	}
	if e.Pathname.String() != "a.txt" {
		t.Fatalf("Pathname = %q, want %q", e.Pathname.String(), "a.txt")
	}
	got, err := io.ReadAll(dataReader{rh})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(body) {
		t.Fatalf("body = %q, want %q", got, body)
	}
	if _, err := rh.NextHeader(); err != io.EOF {
		t.Fatalf("NextHeader after the only entry = %v, want io.EOF", err)
	}
}

type dataReader struct{ h *readarchive.Handle }

func (d dataReader) Read(p []byte) (int, error) { return d.h.ReadData(p) }

// TestWriteHeaderFinishesPreviousEntry covers spec §4.4: calling
// WriteHeader while an entry is open implicitly finishes it rather than
// erroring, so a caller never needs to remember to call FinishEntry
// between entries.
func TestWriteHeaderFinishesPreviousEntry(t *testing.T) {
	h := writearchive.New()
	if err := h.SetFormat("tar"); err != nil {
		t.Fatal(err)
	}
	sink := writearchive.NewMemorySink()
	if err := h.Open(sink); err != nil {
		t.Fatal(err)
	}

	if err := h.WriteHeader(entryFor("first", []byte("one"))); err != nil {
		t.Fatal(err)
	}
	if _, err := h.WriteData([]byte("one")); err != nil {
		t.Fatal(err)
	}
	// No explicit FinishEntry: the next WriteHeader must close "first" out.
	if err := h.WriteHeader(entryFor("second", []byte("two"))); err != nil {
		t.Fatal(err)
	}
	if _, err := h.WriteData([]byte("two")); err != nil {
		t.Fatal(err)
	}
	if err := h.FinishEntry(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	rh, err := readarchive.OpenMemory(sink.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	defer rh.Close()

	names := []string{}
	for {
		e, err := rh.NextHeader()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, e.Pathname.String())
	}
	if len(names) != 2 || names[0] != "first" || names[1] != "second" {
		t.Fatalf("entries = %v, want [first second]", names)
	}
}

// TestWriteDataOutsideDataStateErrors covers the state-machine rejection
// of out-of-order calls (spec §4.4).
func TestWriteDataOutsideDataStateErrors(t *testing.T) {
	h := writearchive.New()
	if err := h.SetFormat("tar"); err != nil {
		t.Fatal(err)
	}
	if err := h.Open(writearchive.NewMemorySink()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.WriteData([]byte("x")); err == nil {
		t.Fatal("WriteData before any WriteHeader call should be rejected")
	}
}

// TestSetFormatRejectsUnknownName covers spec §6.2: selecting an
// unregistered format name must fail rather than silently succeed with a
// nil writer.
func TestSetFormatRejectsUnknownName(t *testing.T) {
	h := writearchive.New()
	if err := h.SetFormat("does-not-exist"); err == nil {
		t.Fatal("SetFormat with an unregistered name should be rejected")
	}
}

// TestAddFilterRejectsUnknownName covers spec §6.2: selecting an
// unregistered filter name must fail rather than silently succeed with a
// nil writer in the chain.
func TestAddFilterRejectsUnknownName(t *testing.T) {
	h := writearchive.New()
	if err := h.AddFilter("does-not-exist"); err == nil {
		t.Fatal("AddFilter with an unregistered name should be rejected")
	}
}

// TestSetFormatAfterOpenRejected covers spec §6.2: format/filter
// selection must precede Open.
func TestSetFormatAfterOpenRejected(t *testing.T) {
	h := writearchive.New()
	if err := h.SetFormat("tar"); err != nil {
		t.Fatal(err)
	}
	if err := h.Open(writearchive.NewMemorySink()); err != nil {
		t.Fatal(err)
	}
	if err := h.SetFormat("zip"); err == nil {
		t.Fatal("SetFormat after Open should be rejected")
	}
}

// TestOpenWithoutFormatRejected covers spec §6.2: Open requires a format
// to have been selected first.
func TestOpenWithoutFormatRejected(t *testing.T) {
	h := writearchive.New()
	if err := h.Open(writearchive.NewMemorySink()); err == nil {
		t.Fatal("Open without SetFormat should be rejected")
	}
}

// TestMemorySinkCloseIsNoop exercises MemorySink directly: Close never
// errors and Bytes reflects everything written.
func TestMemorySinkCloseIsNoop(t *testing.T) {
	m := writearchive.NewMemorySink()
	if _, err := m.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(m.Bytes(), []byte("abc")) {
		t.Fatalf("Bytes = %q, want %q", m.Bytes(), "abc")
	}
}
