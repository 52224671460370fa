package storage

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 63

// Slugify converts a display name into a lowercase DNS-safe slug. Accents are
// folded to their base letter and every other run of unsupported characters
// collapses to a single hyphen.
func Slugify(name string) string {
	return slugify(name, maxSlugLength, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	})
}

// VersionSlug converts a branch or tag name into a version slug. Dots and
// underscores survive so "v1.2" and "release_2" stay readable.
func VersionSlug(name string) string {
	return slugify(name, 255, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_'
	})
}

func slugify(name string, limit int, allowed func(rune) bool) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(strings.TrimSpace(folded))

	var b strings.Builder
	pendingHyphen := false
	for _, r := range folded {
		if allowed(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	slug := b.String()
	if len(slug) > limit {
		slug = strings.TrimRight(slug[:limit], "-._")
	}
	return slug
}
