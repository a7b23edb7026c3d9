package mikrotik

import (
	"encoding/hex"
	"unicode/utf8"
)

// Comment fields are hex-encoded on the wire: the RouterOS API does not
// reliably preserve non-ASCII bytes in free text, so arbitrary Unicode
// must ride through as hex digits.

// EncodeComment encodes a comment for writing to the device.
func EncodeComment(s string) string {
	return hex.EncodeToString([]byte(s))
}

// DecodeComment decodes a comment read from the device. Values written
// before the encoding was introduced are plain text; anything that is
// not even-length hex, or does not decode to valid UTF-8, is returned
// unchanged.
func DecodeComment(s string) string {
	if s == "" || len(s)%2 != 0 {
		return s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return s
	}
	if !utf8.Valid(raw) {
		return s
	}
	return string(raw)
}
