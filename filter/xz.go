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

	"github.com/ulikunitz/xz"

	"github.com/nabbar/go-archiver/stream"
)

// xzBidder recognizes the 6-byte xz magic FD 37 7A 58 5A 00 (spec
// §4.1), grounded on the teacher's compress.XZ.DetectHeader (which also
// tolerates the all-0xFF placeholder some encoders emit for a
// not-yet-known stream flag byte).
type xzBidder struct{}

func (xzBidder) Name() string { return "xz" }
func (xzBidder) Code() Code   { return CodeXZ }

func (xzBidder) Bid(peek []byte) uint32 {
	magic := []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
	if len(peek) >= 6 && bytes.Equal(peek[:6], magic) {
		return 48
	}
	return 0
}

func (xzBidder) Open(upstream stream.Source) (stream.Source, error) {
	r, err := xz.NewReader(upstreamReader(upstream))
	if err != nil {
		return nil, err
	}
	return wrapDecoder(upstream, io.NopCloser(r)), nil
}

type xzWrite struct{}

func (xzWrite) Name() string { return "xz" }
func (xzWrite) Code() Code   { return CodeXZ }

func (xzWrite) NewWriter(w io.WriteCloser) (io.WriteCloser, error) {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &chainedWriteCloser{w: xw, downstream: w}, nil
}
