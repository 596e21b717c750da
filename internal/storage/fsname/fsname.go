// Package fsname converts arbitrary strings to file names that are safe on
// every supported filesystem and back.
//
// Bytes outside [A-Za-z0-9._-] are written as %XX with uppercase hex digits.
// The names "." and ".." are fully escaped so they never address a directory.
package fsname

import (
	"fmt"
	"strings"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
)

// MaxLength is the longest encoded name accepted by common filesystems
const MaxLength = 255

const upperHex = "0123456789ABCDEF"

// Encode returns the file-safe form of name
func Encode(name string) (string, error) {
	var encoded string
	switch name {
	case ".":
		encoded = "%2E"
	case "..":
		encoded = "%2E%2E"
	default:
		encoded = escape(name)
	}
	if len(encoded) > MaxLength {
		return "", dberrors.New(dberrors.StringLengthExceeded,
			"encoded name is %d bytes, maximum allowed is %d", len(encoded), MaxLength)
	}
	return encoded, nil
}

// Decode reverses Encode
func Decode(name string) (string, error) {
	if !strings.Contains(name, "%") {
		return name, nil
	}
	buf := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c != '%' {
			buf = append(buf, c)
			continue
		}
		if i+2 >= len(name) {
			return "", fmt.Errorf("truncated escape in %q", name)
		}
		hi, ok1 := unhex(name[i+1])
		lo, ok2 := unhex(name[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid escape %q in %q", name[i:i+3], name)
		}
		buf = append(buf, hi<<4|lo)
		i += 2
	}
	return string(buf), nil
}

func escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0F])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '.', c == '-', c == '_':
		return true
	}
	return false
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
