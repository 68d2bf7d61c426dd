package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxStemLength bounds the route-derived part of an artifact file name.
	MaxStemLength = 64

	// hashSuffixLength is "_" plus eight hex characters.
	hashSuffixLength = 9

	// DefaultStem is used when a route name has no usable characters.
	DefaultStem = "route"
)

// Stem turns a route name into a safe file name component.
//
// Letters, digits, '_' and '-' are kept; everything else, including path
// separators, becomes '_'. Runs of '_' collapse and are trimmed from the
// ends. Overlong stems are truncated with a hash suffix so distinct names
// stay distinct.
//
//	"login"        -> "login"
//	"Login Page"   -> "Login_Page"
//	"../../etc"    -> "etc"
//	"" or "!!!"    -> "route"
func Stem(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	stem := b.String()
	for strings.Contains(stem, "__") {
		stem = strings.ReplaceAll(stem, "__", "_")
	}
	stem = strings.Trim(stem, "_")
	if stem == "" {
		return DefaultStem
	}
	if len(stem) > MaxStemLength {
		stem = truncateWithHash(name, stem)
	}
	return stem
}

// truncateWithHash shortens stem and appends a hash of the original name.
func truncateWithHash(name, stem string) string {
	sum := sha256.Sum256([]byte(name))
	suffix := "_" + hex.EncodeToString(sum[:])[:8]
	return strings.TrimRight(stem[:MaxStemLength-hashSuffixLength], "_") + suffix
}
