package dedupe

import "github.com/hpungsan/qlib/internal/query"

// UnknownRank is the rank of any source or category missing from its table.
const UnknownRank = 100

// sourceRanks orders known provenance collections. Lower wins.
var sourceRanks = map[string]int{
	"fleet-docs":             1,
	"fleet-internal":         2,
	"palantir-configuration": 3,
	"chainguard-defense-kit": 4,
	"osquery-packs":          5,
	"mitre-attck":            6,
	"osquery-configuration":  7,
	"palantir":               8,
	"imessage-detection":     9,
}

// categoryRanks is derived from the ordered category set, 1-based.
// "incident_response" is accepted as an alias for directory names.
var categoryRanks = func() map[query.Category]int {
	m := make(map[query.Category]int, len(query.Categories)+1)
	for i, c := range query.Categories {
		m[c] = i + 1
	}
	m["incident_response"] = m[query.CategoryIncidentResponse]
	return m
}()

// SourceRank returns the precedence rank of a source collection.
func SourceRank(source string) int {
	if r, ok := sourceRanks[source]; ok {
		return r
	}
	return UnknownRank
}

// CategoryRank returns the precedence rank of a category.
func CategoryRank(c query.Category) int {
	if r, ok := categoryRanks[c]; ok {
		return r
	}
	return UnknownRank
}

// Score computes an occurrence's precedence. Lower wins; the generic
// "all" bucket loses to a concrete platform by one point.
func Score(source string, category query.Category, platform query.Platform) int {
	s := SourceRank(source)*100 + CategoryRank(category)
	if platform == query.PlatformAll {
		s++
	}
	return s
}
