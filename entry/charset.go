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

package entry

import (
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Convert renders raw bytes captured in the given named charset as UTF-8.
// An empty or "UTF-8"/"BINARY" charset is passed through unchanged
// (spec §4.5.2 hdrcharset=BINARY keeps raw bytes). Unknown charsets fall
// back to Latin-1, the same fallback libarchive's archive_string uses
// when iconv is unavailable.
func Convert(raw []byte, charset string) (string, error) {
	switch strings.ToUpper(charset) {
	case "", "UTF-8", "BINARY":
		return string(raw), nil
	case "CP437", "IBM437":
		return charmap.CodePage437.NewDecoder().String(string(raw))
	case "CP1252", "WINDOWS-1252":
		return charmap.Windows1252.NewDecoder().String(string(raw))
	case "ISO-8859-1", "LATIN1":
		return charmap.ISO8859_1.NewDecoder().String(string(raw))
	case "UTF-16", "UCS-2", "UTF-16LE":
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		return dec.String(string(raw))
	case "UTF-16BE":
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		return dec.String(string(raw))
	default:
		return charmap.ISO8859_1.NewDecoder().String(string(raw))
	}
}

// Encoder returns the byte-to-UTF8 decoder for a named charset, for
// callers (format readers) that want streaming conversion rather than
// whole-string Convert.
func Encoder(charset string) *encoding.Decoder {
	switch strings.ToUpper(charset) {
	case "CP437", "IBM437":
		return charmap.CodePage437.NewDecoder()
	case "CP1252", "WINDOWS-1252":
		return charmap.Windows1252.NewDecoder()
	default:
		return charmap.ISO8859_1.NewDecoder()
	}
}

// ToUCS2 renders s as a UCS-2 (i.e. UTF-16 code unit) slice, the "wide"
// mirror named in spec §3.1 for Windows-facing formats (zip NTFS extra,
// ISO9660 Joliet).
func ToUCS2(s string) []uint16 {
	return utf16.Encode([]rune(s))
}
