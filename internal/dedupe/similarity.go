package dedupe

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

var runWhitespace = regexp.MustCompile(`\s+`)

// NormalizeBody lowercases, collapses whitespace runs and strips a single
// trailing statement terminator.
func NormalizeBody(body string) string {
	s := strings.ToLower(strings.TrimSpace(body))
	s = runWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// Similarity returns the sequence-matcher ratio of two normalized bodies
// in [0,1]. It is symmetric: inputs are ordered before matching.
// Either side empty yields 0.
func Similarity(a, b string) float64 {
	na, nb := NormalizeBody(a), NormalizeBody(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	if nb < na {
		na, nb = nb, na
	}
	return difflib.NewMatcher(runes(na), runes(nb)).Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
