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
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/nabbar/go-archiver/stream"
)

// androidBackupBidder recognizes the "ANDROID BACKUP\n" ASCII header
// (spec §4.1) emitted by `adb backup`: four newline-terminated text
// lines (magic, version, compressed flag, encryption algorithm or
// "none", and — when encrypted — further key-derivation lines) followed
// by a tar stream, optionally raw-DEFLATE compressed. Encrypted backups
// are out of scope: the reader errors rather than guess a passphrase.
type androidBackupBidder struct{}

func (androidBackupBidder) Name() string { return "android-backup" }
func (androidBackupBidder) Code() Code   { return CodeAndroidBackup }

var androidBackupMagic = []byte("ANDROID BACKUP\n")

func (androidBackupBidder) Bid(peek []byte) uint32 {
	if bytes.HasPrefix(peek, androidBackupMagic) {
		return 120
	}
	return 0
}

var errAndroidBackupEncrypted = errors.New("android-backup: encrypted backups are not supported")

func (androidBackupBidder) Open(upstream stream.Source) (stream.Source, error) {
	br := bufio.NewReader(upstreamReader(upstream))

	magic, err := br.ReadString('\n')
	if err != nil || magic != string(androidBackupMagic) {
		return nil, errors.New("android-backup: bad magic line")
	}
	if _, err := br.ReadString('\n'); err != nil { // version
		return nil, err
	}
	compressedLine, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	encLine, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(encLine) != "none" {
		return nil, errAndroidBackupEncrypted
	}

	var body io.Reader = br
	if strings.TrimSpace(compressedLine) == "1" {
		body = flate.NewReader(br)
	}

	return wrapDecoder(upstream, io.NopCloser(body)), nil
}
