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
	"compress/bzip2"
	"io"

	dsbzip2 "github.com/dsnet/compress/bzip2"

	"github.com/nabbar/go-archiver/stream"
)

// bzip2Bidder recognizes "BZh" followed by a block-size digit '1'-'9'
// (spec §4.1 magic bytes: BZh). Decoding uses the standard library
// (read-only); the teacher's archive/bz2 package is likewise read-only,
// so encoding is grounded on the pack's dsnet/compress/bzip2, the only
// bzip2 *writer* available in the retrieval pack.
type bzip2Bidder struct{}

func (bzip2Bidder) Name() string { return "bzip2" }
func (bzip2Bidder) Code() Code   { return CodeBzip2 }

func (bzip2Bidder) Bid(peek []byte) uint32 {
	if len(peek) >= 4 && peek[0] == 'B' && peek[1] == 'Z' && peek[2] == 'h' && peek[3] >= '1' && peek[3] <= '9' {
		return 32
	}
	return 0
}

func (bzip2Bidder) Open(upstream stream.Source) (stream.Source, error) {
	r := bzip2.NewReader(upstreamReader(upstream))
	return wrapDecoder(upstream, r), nil
}

type bzip2Write struct{}

func (bzip2Write) Name() string { return "bzip2" }
func (bzip2Write) Code() Code   { return CodeBzip2 }

func (bzip2Write) NewWriter(w io.WriteCloser) (io.WriteCloser, error) {
	bw, err := dsbzip2.NewWriter(w, &dsbzip2.WriterConfig{Level: dsbzip2.DefaultCompression})
	if err != nil {
		return nil, err
	}
	return &chainedWriteCloser{w: bw, downstream: w}, nil
}
