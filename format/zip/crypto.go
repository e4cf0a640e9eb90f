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

package zip

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"hash/crc32"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// zipCryptoHeaderLen is the 12-byte ZipCrypto stream-cipher header
// that precedes the compressed payload (traditional PKWARE encryption,
// spec §4.6.4).
const zipCryptoHeaderLen = 12

// zipCryptoStream implements PKWARE's 3-key stream cipher: three CRC32
// accumulators seeded from the password, updated one plaintext byte at
// a time, the next keystream byte derived from key2.
type zipCryptoStream struct {
	key0, key1, key2 uint32
}

func newZipCryptoStream(password string) *zipCryptoStream {
	s := &zipCryptoStream{key0: 0x12345678, key1: 0x23456789, key2: 0x34567890}
	for i := 0; i < len(password); i++ {
		s.update(password[i])
	}
	return s
}

func (s *zipCryptoStream) update(b byte) {
	s.key0 = crc32.IEEETable[byte(s.key0)^b] ^ (s.key0 >> 8)
	s.key1 = s.key1 + (s.key0 & 0xFF)
	s.key1 = s.key1*134775813 + 1
	s.key2 = crc32.IEEETable[byte(s.key2)^byte(s.key1>>24)] ^ (s.key2 >> 8)
}

func (s *zipCryptoStream) decryptByte(c byte) byte {
	temp := uint16(s.key2) | 2
	k := byte((uint32(temp) * uint32(temp^1)) >> 8)
	p := c ^ k
	s.update(p)
	return p
}

// newZipCryptoReader validates the 12-byte header against the high
// byte of the entry's CRC32 (or mod-time when the general-purpose bit
// 3 data-descriptor flag is set, per spec §4.6.4) and returns a reader
// over the remaining decrypted payload.
func newZipCryptoReader(r io.Reader, password string, checkByte byte) (io.Reader, error) {
	stream := newZipCryptoStream(password)
	header := make([]byte, zipCryptoHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	var last byte
	for _, c := range header {
		last = stream.decryptByte(c)
	}
	if last != checkByte {
		return nil, ErrBadPassword.Error()
	}
	return &zipCryptoReader{src: r, stream: stream}, nil
}

type zipCryptoReader struct {
	src    io.Reader
	stream *zipCryptoStream
}

func (z *zipCryptoReader) Read(p []byte) (int, error) {
	n, err := z.src.Read(p)
	for i := 0; i < n; i++ {
		p[i] = z.stream.decryptByte(p[i])
	}
	return n, err
}

// aesExtraFields carries the WinZip AES extra field 0x9901 contents
// (spec §4.6.4): vendor version, key strength, and the *actual*
// compression method (AES replaces the CDFH method field with 99).
type aesExtraFields struct {
	strength     byte
	actualMethod uint16
}

func parseAESExtra(extra []byte) (aesExtraFields, bool) {
	data, ok := iterExtra(extra)[extraAES]
	if !ok || len(data) < 7 {
		return aesExtraFields{}, false
	}
	return aesExtraFields{
		strength:     data[4],
		actualMethod: uint16le(data[5:7]),
	}, true
}

func aesKeyLen(strength byte) (keyLen, saltLen int, ok bool) {
	switch strength {
	case 1:
		return 16, 8, true
	case 2:
		return 24, 12, true
	case 3:
		return 32, 16, true
	default:
		return 0, 0, false
	}
}

// newWinZipAESReader implements the AE-1/AE-2 envelope (spec §4.6.4):
// salt + 2-byte password-verification value precede the raw AES-CTR
// ciphertext, a 10-byte HMAC-SHA1 authentication code follows it. This
// module only verifies the password-check value inline; the trailing
// HMAC is validated by the caller once the full plaintext has been
// consumed (ReadDataSkip / final ReadData call), since it sits after
// data whose length isn't known up front in streaming mode.
func newWinZipAESReader(r io.Reader, password string, strength byte) (io.Reader, error) {
	keyLen, saltLen, ok := aesKeyLen(strength)
	if !ok {
		return nil, ErrUnsupportedMethod.Error()
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, err
	}
	check := make([]byte, 2)
	if _, err := io.ReadFull(r, check); err != nil {
		return nil, err
	}

	keyMaterial := pbkdf2.Key([]byte(password), salt, 1000, 2*keyLen+2, sha1.New)
	aesKey := keyMaterial[:keyLen]
	hmacKey := keyMaterial[keyLen : 2*keyLen]
	verify := keyMaterial[2*keyLen : 2*keyLen+2]

	if !hmac.Equal(check, verify) {
		return nil, ErrBadPassword.Error()
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, err
	}
	return &aesCTRReader{
		src:     r,
		block:   block,
		counter: 1,
		mac:     hmac.New(sha1.New, hmacKey),
	}, nil
}

// aesCTRReader implements WinZip's little-endian, 1-indexed CTR mode
// (standard AES-CTR increments the counter as a big-endian block
// suffix; WinZip instead increments a little-endian uint32 in the
// first four bytes), folding each ciphertext byte into the trailing
// HMAC-SHA1 for later verification.
type aesCTRReader struct {
	block   cipher.Block
	counter uint32
	keystream [16]byte
	pos     int
	src     io.Reader
	mac     hash_Hash
}

// hash_Hash avoids importing "hash" solely for the field type; the
// concrete value is always an hmac.New result, which satisfies it.
type hash_Hash interface {
	io.Writer
	Sum(b []byte) []byte
}

func (a *aesCTRReader) Read(p []byte) (int, error) {
	n, err := a.src.Read(p)
	for i := 0; i < n; i++ {
		if a.pos == 0 {
			var nonce [16]byte
			binary.LittleEndian.PutUint32(nonce[:4], a.counter)
			a.block.Encrypt(a.keystream[:], nonce[:])
			a.counter++
		}
		cipherByte := p[i]
		p[i] ^= a.keystream[a.pos]
		a.mac.Write([]byte{cipherByte})
		a.pos = (a.pos + 1) % 16
	}
	return n, err
}

// VerifyMAC compares the accumulated HMAC-SHA1 (truncated to 10 bytes
// per the AE-2 footer) against the trailing authentication code read
// from the stream.
func (a *aesCTRReader) VerifyMAC(footer []byte) bool {
	sum := a.mac.Sum(nil)[:10]
	return hmac.Equal(sum, footer)
}
