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
	"bufio"
	"bytes"
	"encoding/base64"
	"io"
	"strings"

	"github.com/nabbar/go-archiver/stream"
)

// uuencodeBidder recognizes the text-mode "begin MODE NAME\n" framing
// line of classic uuencode (spec §4.1: "uuencode/base64: text wrapper;
// begin /====/base64 framing"). Scoring is deliberately modest: unlike
// the binary filters, this header is just ASCII text and collides
// easily with unrelated content, so it only wins bidding when nothing
// stronger claims the stream.
type uuencodeBidder struct{}

func (uuencodeBidder) Name() string { return "uuencode" }
func (uuencodeBidder) Code() Code   { return CodeUUEncode }

func (uuencodeBidder) Bid(peek []byte) uint32 {
	if bytes.HasPrefix(peek, []byte("begin ")) {
		return 8
	}
	return 0
}

func (uuencodeBidder) Open(upstream stream.Source) (stream.Source, error) {
	r := &uudecodeReader{src: bufio.NewReader(upstreamReader(upstream))}
	return wrapDecoder(upstream, r), nil
}

// uudecodeReader strips the "begin ... / end" envelope and decodes the
// classic 6-bit-per-character body, one line at a time, into a plain
// byte stream consumable like any other filter output.
type uudecodeReader struct {
	src     *bufio.Reader
	pending []byte
	started bool
	done    bool
}

func (u *uudecodeReader) Read(p []byte) (int, error) {
	for len(u.pending) == 0 {
		if u.done {
			return 0, io.EOF
		}
		line, err := u.src.ReadString('\n')
		if line == "" && err != nil {
			u.done = true
			return 0, io.EOF
		}
		line = strings.TrimRight(line, "\r\n")

		if !u.started {
			if strings.HasPrefix(line, "begin ") {
				u.started = true
			}
			if err != nil {
				u.done = true
			}
			continue
		}
		if line == "end" || line == "`" || line == "" {
			if line == "end" {
				u.done = true
			}
			if err != nil {
				u.done = true
			}
			continue
		}

		decoded, derr := uudecodeLine(line)
		if derr == nil {
			u.pending = decoded
		}
		if err != nil {
			u.done = true
		}
	}

	n := copy(p, u.pending)
	u.pending = u.pending[n:]
	return n, nil
}

func (u *uudecodeReader) Close() error { return nil }

// uudecodeLine decodes one body line of traditional uuencoding: the
// first character encodes the byte count, each subsequent group of 4
// characters packs 3 bytes using the 6-bit alphabet starting at ' '
// (0x20), with '`' standing in for a run of zero bits.
func uudecodeLine(line string) ([]byte, error) {
	if len(line) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	n := int(uudecodeChar(line[0]))
	body := line[1:]
	out := make([]byte, 0, n)

	for i := 0; i+4 <= len(body) && len(out) < n; i += 4 {
		c0 := uudecodeChar(body[i])
		c1 := uudecodeChar(body[i+1])
		c2 := uudecodeChar(body[i+2])
		c3 := uudecodeChar(body[i+3])
		out = append(out, (c0<<2)|(c1>>4), (c1<<4)|(c2>>2), (c2<<6)|c3)
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func uudecodeChar(c byte) byte {
	if c == '`' {
		return 0
	}
	return (c - ' ') & 0x3F
}

// base64Bidder recognizes a bare base64 text stream (spec §4.1): no
// framing header of its own, so it scores weaker than uuencode's
// "begin" line and only ever wins when the peek window decodes cleanly
// as base64 alphabet characters.
type base64Bidder struct{}

func (base64Bidder) Name() string { return "base64" }
func (base64Bidder) Code() Code   { return CodeBase64 }

func (base64Bidder) Bid(peek []byte) uint32 {
	trimmed := bytes.TrimRight(peek, "\r\n")
	if len(trimmed) < 8 {
		return 0
	}
	for _, c := range trimmed {
		if !isBase64Char(c) {
			return 0
		}
	}
	return 4
}

func isBase64Char(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '+' || c == '/' || c == '=':
		return true
	default:
		return false
	}
}

func (base64Bidder) Open(upstream stream.Source) (stream.Source, error) {
	dec := base64.NewDecoder(base64.StdEncoding, upstreamReader(upstream))
	return wrapDecoder(upstream, io.NopCloser(dec)), nil
}
