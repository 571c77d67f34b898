package github

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

var lineSeparators = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// IsBase64Encoded reports whether s, once line separators are removed, is canonical
// standard base64 of UTF-8 text.
func IsBase64Encoded(s string) bool {
	_, ok := decodeCanonical(s)
	return ok
}

// DecodeBase64 decodes s once if it is base64 encoded and returns it unchanged otherwise.
func DecodeBase64(s string) string {
	if decoded, ok := decodeCanonical(s); ok {
		return decoded
	}
	return s
}

func decodeCanonical(s string) (string, bool) {
	stripped := lineSeparators.Replace(s)
	raw, err := base64.StdEncoding.Strict().DecodeString(stripped)
	if err != nil {
		return "", false
	}
	// Re-encoding must reproduce the input exactly.
	if base64.StdEncoding.EncodeToString(raw) != stripped {
		return "", false
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}
