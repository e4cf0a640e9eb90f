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
	"encoding/binary"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/nabbar/go-archiver/stream"
)

// pbzxBidder recognizes Apple's pbzx container (spec §4.1): a 4-byte
// magic, a big-endian u64 block size, then a sequence of xz-compressed
// chunks, each preceded by an 8-byte big-endian uncompressed length and
// an 8-byte big-endian compressed length, used by Apple's installer
// payloads to wrap a cpio archive. Only the "pbzx" magic (xz chunks) is
// recognized; the "pbzz", "pbze" and "pbz4" variants are not.
type pbzxBidder struct{}

func (pbzxBidder) Name() string { return "pbzx" }
func (pbzxBidder) Code() Code   { return CodePBZX }

var pbzxMagic = []byte("pbzx")

func (pbzxBidder) Bid(peek []byte) uint32 {
	if len(peek) >= 4 && bytes.Equal(peek[:4], pbzxMagic) {
		return 32
	}
	return 0
}

func (pbzxBidder) Open(upstream stream.Source) (stream.Source, error) {
	if err := upstream.Consume(4); err != nil {
		return nil, err
	}
	// Block size word, not needed to decode the chunk stream itself.
	var blockSize [8]byte
	if _, err := io.ReadFull(upstream, blockSize[:]); err != nil {
		return nil, err
	}
	r := &pbzxReader{src: upstream}
	return wrapDecoder(upstream, r), nil
}

// pbzxReader decodes the chunk sequence that follows the magic and
// block-size word: each chunk is [8-byte BE uncompressed length][8-byte
// BE compressed length][xz stream of that compressed length], repeated
// until upstream EOF (spec §4.1), concatenated into the cpio payload.
type pbzxReader struct {
	src  stream.Source
	cur  io.Reader
	done bool
}

func (p *pbzxReader) Read(buf []byte) (int, error) {
	for {
		if p.cur != nil {
			n, err := p.cur.Read(buf)
			if n > 0 {
				return n, nil
			}
			if err != nil && err != io.EOF {
				return 0, err
			}
			p.cur = nil
			continue
		}
		if p.done {
			return 0, io.EOF
		}

		var hdr [16]byte
		if _, err := io.ReadFull(p.src, hdr[:]); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				p.done = true
				return 0, io.EOF
			}
			return 0, err
		}
		compressedLen := binary.BigEndian.Uint64(hdr[8:16])

		chunk := io.LimitReader(p.src, int64(compressedLen))
		xr, err := xz.NewReader(chunk)
		if err != nil {
			return 0, err
		}
		p.cur = xr
	}
}

func (p *pbzxReader) Close() error { return nil }
