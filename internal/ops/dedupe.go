package ops

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/corpus"
	"github.com/hpungsan/qlib/internal/db"
	"github.com/hpungsan/qlib/internal/dedupe"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/logging"
)

// DedupeInput contains parameters for the Dedupe operation.
type DedupeInput struct {
	Root      string  // default: "."
	Threshold float64 // default: configured similarity_threshold
	DryRun    bool
}

// DedupeOutput contains the result of the Dedupe operation.
type DedupeOutput struct {
	RunID  string         `json:"run_id,omitempty"`
	DryRun bool           `json:"dry_run"`
	Files  int            `json:"files"`
	Report *dedupe.Report `json:"report"`

	// Excluded counts records without a name or body.
	Excluded int `json:"excluded"`

	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// Dedupe removes near-identical same-named records from the library,
// keeping the highest-precedence occurrence.
func Dedupe(ctx context.Context, database *sql.DB, cfg *config.Config, input DedupeInput) (*DedupeOutput, error) {
	started := time.Now()

	threshold := input.Threshold
	if threshold == 0 {
		threshold = cfg.SimilarityThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, errors.NewInvalidRequest("threshold must be between 0 and 1")
	}

	root, err := resolveRoot(input.Root)
	if err != nil {
		return nil, err
	}
	lib, err := libDir(root, cfg)
	if err != nil {
		return nil, err
	}

	// Every collection is loaded before any decision is made.
	collections, err := loadCorpus(ctx, lib, cfg.Workers)
	if err != nil {
		return nil, err
	}

	out := &DedupeOutput{DryRun: input.DryRun, Files: len(collections), Modified: []string{}, Deleted: []string{}}
	byRel := make(map[string]*corpus.Collection, len(collections))
	var occs []dedupe.Occurrence
	for _, c := range collections {
		byRel[c.Rel] = c
		loc := c.Location()
		for _, r := range c.Records() {
			if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Body) == "" {
				out.Excluded++
				continue
			}
			occs = append(occs, dedupe.Occurrence{
				Name:     r.Name,
				Body:     r.Body,
				Source:   loc.Source,
				Category: loc.Category,
				Platform: loc.Platform,
				Location: c.Rel,
				Index:    r.Origin.Index,
			})
		}
	}

	out.Report = dedupe.Dedupe(occs, threshold)

	removals := out.Report.Removals()
	rels := make([]string, 0, len(removals))
	for rel := range removals {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	log := logging.L()
	for _, rel := range rels {
		c := byRel[rel]
		c.Remove(removals[rel])
		empty := len(c.Items) == 0
		if !input.DryRun {
			if _, err := corpus.Save(c); err != nil {
				return nil, err
			}
		}
		if empty {
			out.Deleted = append(out.Deleted, rel)
		} else {
			out.Modified = append(out.Modified, rel)
		}
		log.Info("removed duplicates",
			zap.String("file", rel),
			zap.Int("count", len(removals[rel])),
			zap.Bool("deleted", empty),
			zap.Bool("dry_run", input.DryRun))
	}

	summary := struct {
		dedupe.Summary
		Excluded int `json:"excluded"`
		Modified int `json:"modified"`
		Deleted  int `json:"deleted"`
	}{out.Report.Summary, out.Excluded, len(out.Modified), len(out.Deleted)}
	out.RunID = recordRun(database, OpDedupe, root, input.DryRun, started, summary, dedupeDecisions(out.Report))
	return out, nil
}

func dedupeDecisions(report *dedupe.Report) []db.Decision {
	var decisions []db.Decision
	add := func(role string, d dedupe.Decision, withSimilarity bool) {
		score := d.Score
		dec := db.Decision{
			Name:     d.Name,
			Role:     role,
			Path:     d.Location,
			Index:    d.Index,
			Source:   d.Source,
			Category: string(d.Category),
			Platform: string(d.Platform),
			Score:    &score,
		}
		if withSimilarity {
			sim := d.Similarity
			dec.Similarity = &sim
		}
		decisions = append(decisions, dec)
	}
	for _, g := range report.Groups {
		add("winner", g.Winner, false)
		for _, l := range g.Losers {
			add("removed", l, true)
		}
		for _, k := range g.KeptBoth {
			add("kept_both", k, true)
		}
	}
	return decisions
}
