// Package cachekey derives deterministic 128-bit fingerprints for cached
// external-API requests and derived artifacts. Two calls with the same
// category and the same kwargs, in any order, produce the same key.
package cachekey

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const fieldSep = "\x1f"

// Fingerprint hashes (category, kwargs) into a fixed 32-hex-char key.
// Kwargs are canonicalized by key sort, so argument order never matters,
// while the category participates in both halves so identical kwargs under
// different categories cannot collide.
func Fingerprint(category string, kwargs map[string]string) string {
	canonical := Canonical(kwargs)
	hi := xxhash.Sum64String(category + fieldSep + canonical)
	lo := xxhash.Sum64String(canonical + fieldSep + category)
	return fmt.Sprintf("%016x%016x", hi, lo)
}

// Canonical renders kwargs as a stable "k=v&k=v" string sorted by key.
func Canonical(kwargs map[string]string) string {
	if len(kwargs) == 0 {
		return ""
	}

	keys := make([]string, 0, len(kwargs))
	for key := range kwargs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(kwargs[key])
	}
	return b.String()
}
