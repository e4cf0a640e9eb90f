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

// Package filter implements the streaming codec chain of spec §4.1: a
// singly-linked list of filters, each negotiated by peeking at the
// current head of the chain and bidding a confidence score. The highest
// bidder wins, wraps the head, and bidding repeats until nobody scores
// above zero.
//
// This mirrors the archive/compress subpackage of the teacher
// (nabbar/golib/archive/compress), generalized from its closed
// none/gzip/bzip2/lz4/xz set to the full filter family named in spec
// §4.1, and restructured around the bidder-chain negotiation protocol
// the teacher's Detect/DetectOnly pair only does once (this module
// loops it, since archives may stack filters: e.g. an RPM payload
// wrapping a gzip-compressed cpio).
package filter

import (
	"io"

	"github.com/nabbar/go-archiver/errs"
	"github.com/nabbar/go-archiver/stream"
)

const (
	ErrNoBidder errs.CodeError = errs.MinPkgFilter + iota
	ErrBidderInit
	ErrShortPeek
)

func init() {
	if errs.ExistInMapMessage(errs.MinPkgFilter) {
		panic("error code collision: filter")
	}
	errs.RegisterIdFctMessage(errs.MinPkgFilter, func(code errs.CodeError) string {
		switch code {
		case ErrNoBidder:
			return "no filter bidder matched the input"
		case ErrBidderInit:
			return "filter failed to initialize"
		case ErrShortPeek:
			return "insufficient bytes to bid"
		default:
			return errs.NullMessage
		}
	})
}

// Code is the numeric filter identifier exposed as Format/Filter.Code()
// (spec §3.3), stable across registration order changes.
type Code uint16

const (
	CodeNone Code = iota
	CodeGzip
	CodeBzip2
	CodeXZ
	CodeLZMA
	CodeLZ4
	CodeZstd
	CodeCompress
	CodeUUEncode
	CodeBase64
	CodeRPM
	CodePBZX
	CodeAndroidBackup
	CodeLZOP
)

// ReadBidder is the read-side filter vtable of spec §3.3/§4.1: Bid peeks
// the current chain head (without consuming) and scores its confidence;
// Open is called on the winning bidder to push a new Source onto the
// head.
type ReadBidder interface {
	Name() string
	Code() Code
	// Bid returns the number of bits of evidence matched in peek, or 0
	// if this filter does not recognize the input. peek is typically
	// 6-16 bytes (spec §4.1).
	Bid(peek []byte) uint32
	// Open consumes the filter's own header from upstream (if any) and
	// returns a Source that decodes the body.
	Open(upstream stream.Source) (stream.Source, error)
}

// WriteFilter is the write-side counterpart: wraps a downstream
// io.WriteCloser with a streaming encoder.
type WriteFilter interface {
	Name() string
	Code() Code
	NewWriter(downstream io.WriteCloser) (io.WriteCloser, error)
}

var readBidders []ReadBidder
var writeFilters = map[string]WriteFilter{}

// RegisterReadBidder adds b to the set of bidders consulted during
// filter negotiation. Registration order breaks ties (spec §4.1).
func RegisterReadBidder(b ReadBidder) {
	readBidders = append(readBidders, b)
}

// RegisterWriteFilter adds w to the set of filters addressable by name
// on the write side (spec §6.2 write_add_filter_<name>).
func RegisterWriteFilter(w WriteFilter) {
	writeFilters[w.Name()] = w
}

// ByName returns the registered write filter with the given name, or
// nil if none is registered.
func ByName(name string) WriteFilter {
	return writeFilters[name]
}

func init() {
	RegisterReadBidder(noneBidder{})
	RegisterReadBidder(gzipBidder{})
	RegisterReadBidder(bzip2Bidder{})
	RegisterReadBidder(xzBidder{})
	RegisterReadBidder(lzmaBidder{})
	RegisterReadBidder(lz4Bidder{})
	RegisterReadBidder(zstdBidder{})
	RegisterReadBidder(compressBidder{})
	RegisterReadBidder(uuencodeBidder{})
	RegisterReadBidder(base64Bidder{})
	RegisterReadBidder(rpmBidder{})
	RegisterReadBidder(pbzxBidder{})
	RegisterReadBidder(androidBackupBidder{})
	RegisterReadBidder(lzopBidder{})

	RegisterWriteFilter(noneWrite{})
	RegisterWriteFilter(gzipWrite{})
	RegisterWriteFilter(bzip2Write{})
	RegisterWriteFilter(xzWrite{})
	RegisterWriteFilter(lzmaWrite{})
	RegisterWriteFilter(lz4Write{})
	RegisterWriteFilter(zstdWrite{})
	RegisterWriteFilter(lzopWrite{})
}

const peekWindow = 16

// Negotiate runs the bidding protocol of spec §4.1 starting from src:
// repeatedly ask every registered bidder for a confidence score over the
// current head's peek window, push the highest bidder's filter, and
// repeat until nobody scores above zero. It returns the final Source
// (identity-wrapped at minimum, per the "every chain has >=1 filter"
// invariant) and the ordered list of filter names applied, head-first.
func Negotiate(src stream.Source, allow map[Code]bool) (stream.Source, []string, error) {
	head := src
	var names []string

	for {
		peek, err := head.Ahead(peekWindow)
		if err != nil {
			return nil, nil, err
		}

		var best ReadBidder
		var bestScore uint32

		for _, b := range readBidders {
			if allow != nil && !allow[b.Code()] {
				continue
			}
			if b.Code() == CodeNone {
				continue // identity filter is implicit, never bid for it
			}
			score := b.Bid(peek)
			if score > bestScore {
				best = b
				bestScore = score
			}
		}

		if best == nil {
			break
		}

		next, err := best.Open(head)
		if err != nil {
			return nil, nil, ErrBidderInit.ErrorParent(err)
		}

		head = next
		names = append(names, best.Name())
	}

	if len(names) == 0 {
		names = []string{"none"}
	}

	return head, names, nil
}
