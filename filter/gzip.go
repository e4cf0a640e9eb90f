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

package filter

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/nabbar/go-archiver/stream"
)

// gzipBidder recognizes the 2-byte gzip magic 1F 8B (spec §4.1), scoring
// the same way the teacher's compress.Gzip.DetectHeader does but
// expressed as a bit count rather than a boolean.
type gzipBidder struct{}

func (gzipBidder) Name() string { return "gzip" }
func (gzipBidder) Code() Code   { return CodeGzip }

func (gzipBidder) Bid(peek []byte) uint32 {
	if len(peek) >= 2 && bytes.Equal(peek[0:2], []byte{0x1F, 0x8B}) {
		return 16
	}
	return 0
}

func (gzipBidder) Open(upstream stream.Source) (stream.Source, error) {
	r, err := gzip.NewReader(upstreamReader(upstream))
	if err != nil {
		return nil, err
	}
	return wrapDecoder(upstream, r), nil
}

type gzipWrite struct{}

func (gzipWrite) Name() string { return "gzip" }
func (gzipWrite) Code() Code   { return CodeGzip }

func (gzipWrite) NewWriter(w io.WriteCloser) (io.WriteCloser, error) {
	gz := gzip.NewWriter(w)
	return &chainedWriteCloser{w: gz, downstream: w}, nil
}

// chainedWriteCloser closes the codec writer, flushing its trailer,
// then closes the downstream sink.
type chainedWriteCloser struct {
	w          io.WriteCloser
	downstream io.Closer
}

func (c *chainedWriteCloser) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *chainedWriteCloser) Close() error {
	err := c.w.Close()
	if e := c.downstream.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
