package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reNonWord    = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	reMultiSpace = regexp.MustCompile(`\s+`)
)

// Title is the matching key for a title: lowercased, punctuation removed,
// whitespace collapsed. "Spider-Man: No Way Home" -> "spiderman no way home".
func Title(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Fold width/compatibility forms (full-width letters, ligatures).
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = reNonWord.ReplaceAllString(s, "")
	s = reMultiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Loose is Title with diacritics removed (é -> e). Used for fuzzy keys only.
func Loose(s string) string {
	return Title(stripDiacritics(s))
}

// stripDiacritics removes combining marks after NFD decomposition.
func stripDiacritics(s string) string {
	decomp := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomp))
	for _, r := range decomp {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
