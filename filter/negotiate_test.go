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

package filter_test

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/nabbar/go-archiver/filter"
	"github.com/nabbar/go-archiver/stream"
)

func gzipBytes(t *testing.T, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNegotiateUnwrapsGzip(t *testing.T) {
	raw := gzipBytes(t, "hello, archive")
	src := stream.New(bytes.NewReader(raw))

	head, names, err := filter.Negotiate(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "gzip" {
		t.Fatalf("filter chain = %v, want [gzip]", names)
	}

	got, err := io.ReadAll(head)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello, archive" {
		t.Fatalf("decoded payload = %q, want %q", got, "hello, archive")
	}
}

func TestNegotiatePlainBytesIsIdentity(t *testing.T) {
	src := stream.New(bytes.NewReader([]byte("not compressed at all")))

	head, names, err := filter.Negotiate(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "none" {
		t.Fatalf("filter chain over plain bytes = %v, want [none]", names)
	}

	got, err := io.ReadAll(head)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "not compressed at all" {
		t.Fatalf("identity filter altered bytes: got %q", got)
	}
}

// TestAheadAfterEOFStaysZero verifies spec §8's filter EOF invariant:
// "a filter F that reports EOF: subsequent ahead(1) returns (_, 0)
// forever".
func TestAheadAfterEOFStaysZero(t *testing.T) {
	src := stream.New(bytes.NewReader([]byte("ab")))
	if err := src.Consume(0); err != nil {
		t.Fatal(err)
	}
	peek, err := src.Ahead(2)
	if err != nil || len(peek) != 2 {
		t.Fatalf("Ahead(2) = (%v, %v), want 2 bytes nil error", peek, err)
	}
	if err := src.Consume(2); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		peek, err = src.Ahead(1)
		if err != nil {
			t.Fatalf("Ahead(1) at EOF returned an error: %v", err)
		}
		if len(peek) != 0 {
			t.Fatalf("Ahead(1) at EOF returned %d bytes, want 0", len(peek))
		}
	}
}
