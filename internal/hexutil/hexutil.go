/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * Hex string helpers used by the layout parser and the CLI
 */

// Package hexutil converts between byte slices and the whitespace/colon
// tolerant hex strings used throughout the layout document and the CLI.
package hexutil

import (
	"errors"
	"strings"
)

// ErrOddLength is returned by Decode when a hex string has a trailing
// unpaired nibble.
var ErrOddLength = errors.New("odd-length hex string")

// ErrInvalidChar is returned by Decode when a non-hex, non-separator
// character is encountered.
var ErrInvalidChar = errors.New("invalid hex string")

// Decode parses s as a hex string, ignoring spaces, colons, tabs and
// newlines used as separators, and returns the decoded bytes.
func Decode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)/2)

	var hi byte
	haveHi := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case ' ', ':', '\t', '\n', '\r':
			continue
		}

		n, ok := nibble(c)
		if !ok {
			return nil, ErrInvalidChar
		}

		if !haveHi {
			hi = n
			haveHi = true
			continue
		}

		out = append(out, hi<<4|n)
		haveHi = false
	}

	if haveHi {
		return nil, ErrOddLength
	}

	return out, nil
}

// nibble decodes a single case-insensitive hex digit.
func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// hexDigits is used by Encode to render lower-case hex.
const hexDigits = "0123456789abcdef"

// Encode renders v as lower-case hex digits separated by single spaces,
// with no trailing separator.
func Encode(v []byte) string {
	var b strings.Builder
	for i, c := range v {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

// ParseFID decodes a 2-byte file identifier from its hex representation,
// returning it as a big-endian uint16. Any separators tolerated by Decode
// are allowed; the decoded length must be exactly 2 bytes.
func ParseFID(fidHex string) (uint16, error) {
	b, err := Decode(fidHex)
	if err != nil {
		return 0, err
	}
	if len(b) != 2 {
		return 0, errors.New("FID must consist of 2 bytes")
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}
