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
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/nabbar/go-archiver/stream"
)

// lz4Bidder recognizes the 4-byte LZ4 frame magic 04 22 4D 18 (spec
// §4.1), the same constant the teacher's compress.LZ4.DetectHeader
// checks.
type lz4Bidder struct{}

func (lz4Bidder) Name() string { return "lz4" }
func (lz4Bidder) Code() Code   { return CodeLZ4 }

func (lz4Bidder) Bid(peek []byte) uint32 {
	magic := []byte{0x04, 0x22, 0x4D, 0x18}
	if len(peek) >= 4 && bytes.Equal(peek[:4], magic) {
		return 32
	}
	return 0
}

func (lz4Bidder) Open(upstream stream.Source) (stream.Source, error) {
	r := lz4.NewReader(upstreamReader(upstream))
	return wrapDecoder(upstream, io.NopCloser(r)), nil
}

type lz4Write struct{}

func (lz4Write) Name() string { return "lz4" }
func (lz4Write) Code() Code   { return CodeLZ4 }

func (lz4Write) NewWriter(w io.WriteCloser) (io.WriteCloser, error) {
	lw := lz4.NewWriter(w)
	return &chainedWriteCloser{w: lw, downstream: w}, nil
}
