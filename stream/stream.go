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

// Package stream is the component-A byte source/sink abstraction (spec
// §4.1): pull bytes with peek-ahead, push bytes downstream, with a
// cursor that can be advanced without a full read. It is modeled on the
// rdr type in nabbar/golib/archive/archive/reader.go, which already
// juggles bufio.Reader peeking against io.ReaderAt/io.Seeker random
// access for tar vs. zip; this package generalizes that into the single
// contract every filter and format bidder in this module peeks through.
package stream

import (
	"bufio"
	"io"
	"io/fs"
)

// Source is the read-side byte abstraction consumed by filter and format
// bidders: Ahead peeks without consuming, Consume advances the cursor,
// Skip fast-forwards without materializing the skipped bytes when the
// underlying reader supports seeking.
type Source interface {
	io.Reader
	io.Closer

	// Ahead returns up to min bytes without advancing the read cursor.
	// At EOF it returns fewer than min bytes (possibly zero) and a nil
	// error; only short reads caused by an actual I/O failure return an
	// error.
	Ahead(min int) ([]byte, error)
	// Consume advances the read cursor by n bytes, which must have been
	// returned by a prior Ahead call.
	Consume(n int) error
	// Skip advances the cursor by n bytes without necessarily reading
	// them, using Seek when available and falling back to a discard
	// copy otherwise.
	Skip(n int64) error
}

type source struct {
	r io.Reader
	b *bufio.Reader
	c io.Closer
}

// New wraps r in a Source with a default-sized peek buffer.
func New(r io.Reader) Source {
	c, _ := r.(io.Closer)
	return &source{r: r, b: bufio.NewReaderSize(r, 64*1024), c: c}
}

func (s *source) Read(p []byte) (int, error) { return s.b.Read(p) }

func (s *source) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

func (s *source) Ahead(min int) ([]byte, error) {
	buf, err := s.b.Peek(min)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return buf, nil
	}
	return buf, err
}

func (s *source) Consume(n int) error {
	_, err := s.b.Discard(n)
	return err
}

func (s *source) Skip(n int64) error {
	if n <= 0 {
		return nil
	}
	if sk, ok := s.r.(io.Seeker); ok {
		if _, err := sk.Seek(n, io.SeekCurrent); err == nil {
			s.b.Reset(s.r)
			return nil
		}
	}
	_, err := io.CopyN(io.Discard, s.b, n)
	return err
}

// RandomAccess is implemented by sources that additionally support
// seeking/reading at arbitrary offsets — the mode zip's central
// directory index requires (spec §4.6.5).
type RandomAccess interface {
	Source
	io.ReaderAt
	io.Seeker
	// Size returns the total byte length of the underlying stream, or 0
	// if it cannot be determined.
	Size() int64
}

type randomAccess struct {
	source
	ra io.ReaderAt
	sk io.Seeker
}

// NewRandomAccess wraps r (which must implement io.ReaderAt and
// io.Seeker — typically an *os.File or bytes.Reader) in a RandomAccess
// Source.
func NewRandomAccess(r interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}) (RandomAccess, error) {
	return &randomAccess{
		source: source{r: r, b: bufio.NewReaderSize(r, 64*1024)},
		ra:     r,
		sk:     r,
	}, nil
}

func (r *randomAccess) ReadAt(p []byte, off int64) (int, error) {
	return r.ra.ReadAt(p, off)
}

func (r *randomAccess) Seek(offset int64, whence int) (int64, error) {
	n, err := r.sk.Seek(offset, whence)
	if err == nil {
		r.b.Reset(r.r)
	}
	return n, err
}

func (r *randomAccess) Size() int64 {
	cur, err := r.sk.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	end, err := r.sk.Seek(0, io.SeekEnd)
	if err != nil {
		return 0
	}
	_, _ = r.sk.Seek(cur, io.SeekStart)
	r.b.Reset(r.r)
	return end
}

// ErrNotRandomAccess is returned when a format bidder requires seeking
// (zip's EOCD scan) but was only handed a streaming Source.
var ErrNotRandomAccess = fs.ErrInvalid
