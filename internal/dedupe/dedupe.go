// Package dedupe collapses same-named query occurrences across a corpus.
//
// Occurrences are grouped by name. Within a group the lowest precedence
// score wins; every other occurrence is compared to the winner's body and
// either removed (similar) or kept alongside it (different).
package dedupe

import (
	"sort"

	"go.uber.org/zap"

	"github.com/hpungsan/qlib/internal/logging"
	"github.com/hpungsan/qlib/internal/query"
)

// DefaultThreshold is the similarity at or above which an occurrence is a duplicate.
const DefaultThreshold = 0.85

// Occurrence is one record in the corpus, addressed by its collection and index.
type Occurrence struct {
	Name     string         `json:"name"`
	Body     string         `json:"-"`
	Source   string         `json:"source"`
	Category query.Category `json:"category"`
	Platform query.Platform `json:"platform"`

	// Location is the storage location (collection file) holding the record.
	Location string `json:"location"`

	// Index is the record position within Location.
	Index int `json:"index"`
}

// Decision is an occurrence with its computed score and, for non-winners,
// its similarity to the winner.
type Decision struct {
	Occurrence
	Score      int     `json:"score"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Group is the outcome for one duplicated name.
type Group struct {
	Name     string     `json:"name"`
	Winner   Decision   `json:"winner"`
	Losers   []Decision `json:"losers,omitempty"`
	KeptBoth []Decision `json:"kept_both,omitempty"`

	// SharedLocation lists kept-both occurrences stored in the same
	// location as another survivor of this group.
	SharedLocation []Decision `json:"shared_location,omitempty"`
}

// Summary holds aggregate counts.
type Summary struct {
	Occurrences        int `json:"occurrences"`
	NamesWithDuplicate int `json:"names_with_duplicates"`
	Kept               int `json:"kept"`
	Removed            int `json:"removed"`
	KeptBoth           int `json:"kept_both"`
}

// Report is the full dedup outcome.
type Report struct {
	Threshold float64 `json:"threshold"`
	Groups    []Group `json:"groups"`
	Summary   Summary `json:"summary"`
}

// Removals returns the losers keyed by location, indices in ascending order.
func (r *Report) Removals() map[string][]int {
	out := make(map[string][]int)
	for _, g := range r.Groups {
		for _, l := range g.Losers {
			out[l.Location] = append(out[l.Location], l.Index)
		}
	}
	for loc := range out {
		sort.Ints(out[loc])
	}
	return out
}

// Dedupe decides winners, losers and kept-both occurrences. occs must be in
// discovery order; equal scores keep that order. A non-positive threshold
// uses DefaultThreshold.
func Dedupe(occs []Occurrence, threshold float64) *Report {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	report := &Report{Threshold: threshold, Groups: []Group{}}
	report.Summary.Occurrences = len(occs)

	byName := make(map[string][]Occurrence)
	for _, o := range occs {
		byName[o.Name] = append(byName[o.Name], o)
	}

	names := make([]string, 0, len(byName))
	for name, group := range byName {
		if len(group) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	log := logging.L()
	for _, name := range names {
		g := decide(name, byName[name], threshold)
		report.Groups = append(report.Groups, g)
		report.Summary.NamesWithDuplicate++
		report.Summary.Kept++
		report.Summary.Removed += len(g.Losers)
		report.Summary.KeptBoth += len(g.KeptBoth)

		log.Debug("dedup group decided",
			zap.String("name", name),
			zap.String("winner", g.Winner.Location),
			zap.Int("losers", len(g.Losers)),
			zap.Int("kept_both", len(g.KeptBoth)))
	}
	return report
}

func decide(name string, group []Occurrence, threshold float64) Group {
	decisions := make([]Decision, len(group))
	for i, o := range group {
		decisions[i] = Decision{Occurrence: o, Score: Score(o.Source, o.Category, o.Platform)}
	}
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Score < decisions[j].Score
	})

	g := Group{Name: name, Winner: decisions[0]}
	survivors := map[string]bool{g.Winner.Location: true}
	for _, d := range decisions[1:] {
		d.Similarity = Similarity(g.Winner.Body, d.Body)
		if d.Similarity >= threshold {
			g.Losers = append(g.Losers, d)
			continue
		}
		g.KeptBoth = append(g.KeptBoth, d)
		if survivors[d.Location] {
			g.SharedLocation = append(g.SharedLocation, d)
			logging.L().Warn("same-named queries kept in one location",
				zap.String("name", name),
				zap.String("location", d.Location),
				zap.Float64("similarity", d.Similarity))
		}
		survivors[d.Location] = true
	}
	return g
}
