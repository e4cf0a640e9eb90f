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

	"github.com/nabbar/go-archiver/sidechannel"
	"github.com/nabbar/go-archiver/stream"
)

// wrapDecoder adapts a plain io.Reader decoder (gzip.Reader, bzip2
// reader, xz.Reader, ...) plus its upstream Source into a new Source:
// closing it closes both the decoder (if closeable) and the upstream.
func wrapDecoder(upstream stream.Source, r io.Reader) stream.Source {
	return stream.New(&closingReader{r: r, upstream: upstream})
}

type closingReader struct {
	r        io.Reader
	upstream stream.Source
}

func (c *closingReader) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *closingReader) Close() error {
	var err error
	if rc, ok := c.r.(io.Closer); ok {
		err = rc.Close()
	}
	if c.upstream != nil {
		if e := c.upstream.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// upstreamReader exposes a stream.Source as a plain io.Reader, for
// feeding into third-party decoder constructors that only want
// io.Reader.
func upstreamReader(s stream.Source) io.Reader { return s }

// SideChannelCarrier is implemented by a Source that has a side-channel
// registry attached (the readarchive handle wraps its root Source this
// way before running filter negotiation), letting a bidder like rpmBidder
// reach the handle-scoped registry of spec §6.4 without widening
// ReadBidder.Open's signature.
type SideChannelCarrier interface {
	SideChannel() *sidechannel.Registry
}

// RegistryFromSource walks up from s looking for a SideChannelCarrier.
// It returns nil if none of the chain exposes one, in which case
// bidders that would publish side-channel state simply skip doing so.
func RegistryFromSource(s stream.Source) *sidechannel.Registry {
	if c, ok := s.(SideChannelCarrier); ok {
		return c.SideChannel()
	}
	return nil
}
