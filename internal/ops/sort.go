package ops

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/qlib/internal/classify"
	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/corpus"
	"github.com/hpungsan/qlib/internal/db"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/logging"
	"github.com/hpungsan/qlib/internal/parse"
	"github.com/hpungsan/qlib/internal/query"
	"github.com/hpungsan/qlib/internal/source"
)

// SortInput contains parameters for the Sort operation.
type SortInput struct {
	Root string // default: "."

	// Sources names source directories under Root. Empty means every
	// discovered source.
	Sources []string

	// Folders overrides the output folder per source name. Defaults to the
	// slugified source name.
	Folders map[string]string

	// Prefix is prepended to names derived from SQL file names.
	// Nil uses the configured name_prefix.
	Prefix *string

	Device string // default: configured device, then "both"
	DryRun bool
}

// Stats counts records through a sort.
type Stats struct {
	Total      int            `json:"total"`
	Converted  int            `json:"converted"`
	Skipped    int            `json:"skipped"`
	Malformed  int            `json:"malformed_files"`
	ByPlatform map[string]int `json:"by_platform"`
	ByCategory map[string]int `json:"by_category"`
}

func newStats() Stats {
	return Stats{ByPlatform: map[string]int{}, ByCategory: map[string]int{}}
}

func (s *Stats) add(o Stats) {
	s.Total += o.Total
	s.Converted += o.Converted
	s.Skipped += o.Skipped
	s.Malformed += o.Malformed
	for k, v := range o.ByPlatform {
		s.ByPlatform[k] += v
	}
	for k, v := range o.ByCategory {
		s.ByCategory[k] += v
	}
}

// SourceReport is the per-source outcome of a sort.
type SourceReport struct {
	Name   string      `json:"name"`
	Type   source.Type `json:"type"`
	Folder string      `json:"folder"`
	Stats  Stats       `json:"stats"`
}

// Placement records where one record was written.
type Placement struct {
	Name       string         `json:"name"`
	From       string         `json:"from"`
	Index      int            `json:"index"`
	Path       string         `json:"path"`
	Source     string         `json:"source"`
	Platform   query.Platform `json:"platform"`
	Label      string         `json:"label,omitempty"`
	Category   query.Category `json:"category"`
	PlatformBy string         `json:"platform_by"`
	CategoryBy string         `json:"category_by"`
}

// SortOutput contains the result of the Sort operation.
type SortOutput struct {
	RunID      string          `json:"run_id,omitempty"`
	DryRun     bool            `json:"dry_run"`
	Sources    []SourceReport  `json:"sources"`
	Totals     Stats           `json:"totals"`
	Placements []Placement     `json:"placements"`
	Dropped    []query.Dropped `json:"dropped,omitempty"`
	Warnings   []parse.Warning `json:"warnings,omitempty"`

	// Files lists the collection files written, library relative.
	Files []string `json:"files"`
}

// Sort parses, classifies and writes source records into the library.
// Preview runs make the same decisions without writing.
func Sort(ctx context.Context, database *sql.DB, cfg *config.Config, input SortInput) (*SortOutput, error) {
	started := time.Now()

	root, err := resolveRoot(input.Root)
	if err != nil {
		return nil, err
	}
	lib, err := libDir(root, cfg)
	if err != nil {
		return nil, err
	}
	device, err := resolveDevice(input.Device, cfg)
	if err != nil {
		return nil, err
	}
	prefix := cfg.NamePrefix
	if input.Prefix != nil {
		prefix = strings.TrimSpace(*input.Prefix)
	}
	defaultInterval := cfg.DefaultInterval
	if defaultInterval <= 0 {
		defaultInterval = config.DefaultInterval
	}

	sources, err := selectSources(root, cfg, input.Sources)
	if err != nil {
		return nil, err
	}

	out := &SortOutput{
		DryRun:     input.DryRun,
		Sources:    []SourceReport{},
		Totals:     newStats(),
		Placements: []Placement{},
		Files:      []string{},
	}
	classifier := classify.New()
	staged := map[string]*corpus.Collection{}
	log := logging.L()

	for _, src := range sources {
		folder := strings.TrimSpace(input.Folders[src.Name])
		if folder == "" {
			folder = query.Slugify(src.Name)
		}
		folder = corpus.SanitizeSegment(folder)

		files, err := source.Files(src)
		if err != nil {
			return nil, err
		}
		parsed, err := source.ParseAll(ctx, src, files, cfg.Workers)
		if err != nil {
			return nil, err
		}

		stats := newStats()
		for _, p := range parsed {
			if p.Err != nil {
				stats.Malformed++
				out.Warnings = append(out.Warnings, parse.Warning{Path: p.File.Display, Message: p.Err.Error()})
				continue
			}
			if p.Result.Malformed {
				stats.Malformed++
			}
			out.Warnings = append(out.Warnings, p.Result.Warnings...)

			for _, r := range p.Result.Records {
				stats.Total++
				if reason, ok := query.Validate(r); !ok {
					stats.Skipped++
					out.Dropped = append(out.Dropped, query.Dropped{
						Name: r.Name, Path: r.Origin.Path, Index: r.Origin.Index, Reason: reason,
					})
					log.Info("skipping invalid record",
						zap.String("file", r.Origin.Path),
						zap.Int("index", r.Origin.Index),
						zap.String("reason", string(reason)))
					continue
				}

				res := classifier.Classify(r)
				spec, slug, category := placeRecord(r, res, p.File, prefix, defaultInterval)
				rel := corpus.PathFor(res.Platform, device, folder, category, slug)

				c, err := stage(staged, lib, rel)
				if err != nil {
					return nil, err
				}
				if !c.Flat {
					stats.Skipped++
					out.Warnings = append(out.Warnings, parse.Warning{
						Path:    c.Rel,
						Subject: query.Str(spec, "name"),
						Message: "destination is not a flat record list; run convert first",
					})
					continue
				}
				if c.Upsert(spec) {
					log.Debug("replaced existing record",
						zap.String("path", c.Rel),
						zap.String("name", query.Str(spec, "name")))
				}

				stats.Converted++
				stats.ByPlatform[string(res.Platform)]++
				stats.ByCategory[string(category)]++
				out.Placements = append(out.Placements, Placement{
					Name:       query.Str(spec, "name"),
					From:       r.Origin.Path,
					Index:      r.Origin.Index,
					Path:       c.Rel,
					Source:     src.Name,
					Platform:   res.Platform,
					Label:      res.Label,
					Category:   category,
					PlatformBy: res.PlatformBy,
					CategoryBy: res.CategoryBy,
				})
			}
		}

		log.Info("sorted source",
			zap.String("source", src.Name),
			zap.String("type", string(src.Type)),
			zap.String("folder", folder),
			zap.Int("total", stats.Total),
			zap.Int("converted", stats.Converted),
			zap.Int("skipped", stats.Skipped),
			zap.Bool("dry_run", input.DryRun))

		out.Sources = append(out.Sources, SourceReport{Name: src.Name, Type: src.Type, Folder: folder, Stats: stats})
		out.Totals.add(stats)
	}

	rels := make([]string, 0, len(staged))
	for rel, c := range staged {
		if c.Flat && len(c.Items) > 0 {
			rels = append(rels, rel)
		}
	}
	sort.Strings(rels)
	for _, rel := range rels {
		if !input.DryRun {
			if _, err := corpus.Save(staged[rel]); err != nil {
				return nil, err
			}
		}
		out.Files = append(out.Files, rel)
	}

	out.RunID = recordRun(database, OpSort, root, input.DryRun, started, out.Totals, sortDecisions(out))
	return out, nil
}

// placeRecord builds the output mapping, file slug and category for a
// valid record.
func placeRecord(r query.Record, res classify.Result, f source.File, prefix string, defaultInterval int) (*yaml.Node, string, query.Category) {
	category := res.Category
	var spec *yaml.Node
	var slug string

	if r.Origin.Format == query.FormatSQL || r.Spec == nil {
		if f.RelDir != "." && f.RelDir != "" {
			if classify.Category("", nil, "", f.RelDir, "") != query.CategoryGeneral {
				category = query.Category(f.RelDir)
			}
		}
		if prefix != "" {
			r.Name = query.DeriveName(r.Origin.FileName, prefix)
		}
		spec = query.SQLSpec(r, res.Label, defaultInterval)
		slug = query.Slugify(strings.TrimSuffix(r.Origin.FileName, filepath.Ext(r.Origin.FileName)))
	} else {
		spec = query.Ordered(r.Spec, res.Label)
		slug = query.Slugify(r.Name)
	}
	if slug == "" {
		slug = "unnamed"
	}
	return spec, slug, category
}

func stage(staged map[string]*corpus.Collection, lib, rel string) (*corpus.Collection, error) {
	key := filepath.ToSlash(rel)
	if c, ok := staged[key]; ok {
		return c, nil
	}
	c, err := corpus.LoadOrNew(filepath.Join(lib, rel), rel)
	if err != nil {
		return nil, err
	}
	staged[key] = c
	return c, nil
}

func resolveDevice(device string, cfg *config.Config) (string, error) {
	if device == "" {
		device = cfg.Device
	}
	if device == "" {
		device = corpus.DeviceBoth
	}
	switch device {
	case corpus.DeviceBoth, corpus.DeviceDevices, corpus.DeviceServers:
		return device, nil
	}
	return "", errors.NewInvalidRequest("device must be one of: both, devices, servers")
}

// selectSources returns the named sources, or every discovered source.
func selectSources(root string, cfg *config.Config, names []string) ([]source.Source, error) {
	if len(names) == 0 {
		return source.Discover(root, cfg.LibDir)
	}
	var sources []source.Source
	for _, name := range names {
		name = strings.TrimSpace(name)
		if err := corpus.ValidateRelDir(name); err != nil {
			return nil, err
		}
		src, err := source.Inspect(filepath.Join(root, name))
		if err != nil {
			return nil, err
		}
		src.Name = filepath.ToSlash(filepath.Clean(name))
		sources = append(sources, src)
	}
	return sources, nil
}

func sortDecisions(out *SortOutput) []db.Decision {
	decisions := make([]db.Decision, 0, len(out.Placements)+len(out.Dropped))
	for _, p := range out.Placements {
		decisions = append(decisions, db.Decision{
			Name:     p.Name,
			Role:     "placed",
			Path:     p.Path,
			Index:    p.Index,
			Source:   p.Source,
			Category: string(p.Category),
			Platform: string(p.Platform),
		})
	}
	for _, d := range out.Dropped {
		decisions = append(decisions, db.Decision{
			Name:  d.Name,
			Role:  "dropped_" + string(d.Reason),
			Path:  d.Path,
			Index: d.Index,
		})
	}
	return decisions
}
