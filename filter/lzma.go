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
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/nabbar/go-archiver/stream"
)

// lzmaBidder recognizes the legacy .lzma alone-format magic: byte 0 is
// the properties byte (lc/lp/pb packed, almost always 0x5D for the
// default lc=3,lp=0,pb=2), followed by a 4-byte little-endian
// dictionary size whose low bytes are usually zero (spec §4.1: "5D 00
// 00"). This header has no fixed magic the way gzip/xz do; bidding is
// necessarily weaker evidence, reflected in its lower score.
type lzmaBidder struct{}

func (lzmaBidder) Name() string { return "lzma" }
func (lzmaBidder) Code() Code   { return CodeLZMA }

func (lzmaBidder) Bid(peek []byte) uint32 {
	if len(peek) >= 3 && peek[0] == 0x5D && peek[1] == 0x00 && peek[2] == 0x00 {
		return 24
	}
	return 0
}

func (lzmaBidder) Open(upstream stream.Source) (stream.Source, error) {
	r, err := lzma.NewReader(upstreamReader(upstream))
	if err != nil {
		return nil, err
	}
	return wrapDecoder(upstream, io.NopCloser(r)), nil
}

type lzmaWrite struct{}

func (lzmaWrite) Name() string { return "lzma" }
func (lzmaWrite) Code() Code   { return CodeLZMA }

func (lzmaWrite) NewWriter(w io.WriteCloser) (io.WriteCloser, error) {
	lw, err := lzma.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &chainedWriteCloser{w: lw, downstream: w}, nil
}

// NewRawLZMAReader decodes a single-stream LZMA body as embedded in a
// zip entry compressed with method 14: a 4-byte properties prefix
// (major, minor, properties-size LE u16) precedes the LZMA-alone
// stream proper, which this then hands to the same decoder used for
// standalone .lzma files. See format/zip's method-14 wiring (spec
// §4.6.3).
func NewRawLZMAReader(r io.Reader) (io.ReadCloser, error) {
	lr, err := lzma.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(lr), nil
}
