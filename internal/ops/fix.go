package ops

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/corpus"
	"github.com/hpungsan/qlib/internal/db"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/logging"
	"github.com/hpungsan/qlib/internal/query"
)

// YaraMode selects how records with YARA-style variables are handled.
type YaraMode string

const (
	YaraRemove YaraMode = "remove" // default: drop the record
	YaraMove   YaraMode = "move"   // move the whole collection under yara/
)

// YaraDir is the directory, relative to the repo root, that receives
// collections moved out of the library.
const YaraDir = "yara"

// FixInput contains parameters for the Fix operation.
type FixInput struct {
	Root   string   // default: "."
	Yara   YaraMode // default: YaraRemove
	DryRun bool
}

// FixChange is one repaired or removed record.
type FixChange struct {
	Path   string `json:"path"`
	Name   string `json:"name,omitempty"`
	Index  int    `json:"index"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// FileMove is a collection relocated out of the library.
type FileMove struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FixOutput contains the result of the Fix operation.
type FixOutput struct {
	RunID          string      `json:"run_id,omitempty"`
	DryRun         bool        `json:"dry_run"`
	Files          int         `json:"files"`
	NoSQLRemoved   int         `json:"no_sql_removed"`
	YaraRemoved    int         `json:"yara_removed"`
	IntervalsFixed int         `json:"intervals_fixed"`
	Moved          []FileMove  `json:"moved"`
	Modified       []string    `json:"modified"`
	Deleted        []string    `json:"deleted"`
	Changes        []FixChange `json:"changes"`
}

// Fix action names.
const (
	ActionRemoveNoSQL = "remove_no_sql"
	ActionRemoveYara  = "remove_yara"
	ActionInterval    = "interval_to_int"
)

// Fix repairs data defects in the library: records without SQL are removed,
// YARA-style records are removed or moved aside, and string intervals
// become integers.
func Fix(ctx context.Context, database *sql.DB, cfg *config.Config, input FixInput) (*FixOutput, error) {
	started := time.Now()

	if input.Yara == "" {
		input.Yara = YaraRemove
	}
	if input.Yara != YaraRemove && input.Yara != YaraMove {
		return nil, errors.NewInvalidRequest("yara must be one of: remove, move")
	}

	root, err := resolveRoot(input.Root)
	if err != nil {
		return nil, err
	}
	lib, err := libDir(root, cfg)
	if err != nil {
		return nil, err
	}

	collections, err := loadCorpus(ctx, lib, cfg.Workers)
	if err != nil {
		return nil, err
	}

	out := &FixOutput{
		DryRun:   input.DryRun,
		Files:    len(collections),
		Moved:    []FileMove{},
		Modified: []string{},
		Deleted:  []string{},
		Changes:  []FixChange{},
	}
	log := logging.L()

	for _, c := range collections {
		if !c.Flat || len(c.Items) == 0 {
			continue
		}

		if input.Yara == YaraMove && hasYara(c) {
			dest := filepath.Join(root, YaraDir, filepath.FromSlash(c.Rel))
			if !input.DryRun {
				if err := moveFile(c.Path, dest); err != nil {
					return nil, err
				}
			}
			out.Moved = append(out.Moved, FileMove{From: relToRoot(root, c.Path), To: relToRoot(root, dest)})
			log.Info("moved yara collection", zap.String("file", c.Rel), zap.Bool("dry_run", input.DryRun))
			continue
		}

		changes := fixCollection(c, input.Yara)
		if len(changes) == 0 {
			continue
		}
		for _, ch := range changes {
			switch ch.Action {
			case ActionRemoveNoSQL:
				out.NoSQLRemoved++
			case ActionRemoveYara:
				out.YaraRemoved++
			case ActionInterval:
				out.IntervalsFixed++
			}
		}
		out.Changes = append(out.Changes, changes...)

		empty := len(c.Items) == 0
		if !input.DryRun {
			if _, err := corpus.Save(c); err != nil {
				return nil, err
			}
		}
		if empty {
			out.Deleted = append(out.Deleted, c.Rel)
		} else {
			out.Modified = append(out.Modified, c.Rel)
		}
	}

	summary := struct {
		NoSQLRemoved   int `json:"no_sql_removed"`
		YaraRemoved    int `json:"yara_removed"`
		YaraMoved      int `json:"yara_moved"`
		IntervalsFixed int `json:"intervals_fixed"`
		Modified       int `json:"modified"`
		Deleted        int `json:"deleted"`
	}{out.NoSQLRemoved, out.YaraRemoved, len(out.Moved), out.IntervalsFixed, len(out.Modified), len(out.Deleted)}
	out.RunID = recordRun(database, OpFix, root, input.DryRun, started, summary, fixDecisions(out))
	return out, nil
}

// fixCollection repairs c in place and returns what changed. Indices refer
// to positions before removal.
func fixCollection(c *corpus.Collection, mode YaraMode) []FixChange {
	var changes []FixChange
	var remove []int
	for i, item := range c.Items {
		if item.Kind != yaml.MappingNode {
			continue
		}
		name := query.Str(item, "name")
		body := query.Str(item, "query")

		if strings.TrimSpace(body) == "" {
			changes = append(changes, FixChange{Path: c.Rel, Name: name, Index: i, Action: ActionRemoveNoSQL})
			remove = append(remove, i)
			continue
		}
		if mode == YaraRemove && query.HasYaraVariables(body) {
			changes = append(changes, FixChange{Path: c.Rel, Name: name, Index: i, Action: ActionRemoveYara})
			remove = append(remove, i)
			continue
		}
		if v := query.Get(item, "interval"); v != nil && v.Kind == yaml.ScalarNode && v.ShortTag() == "!!str" {
			if n, err := strconv.Atoi(strings.TrimSpace(v.Value)); err == nil {
				query.Set(item, "interval", query.IntNode(n))
				changes = append(changes, FixChange{
					Path: c.Rel, Name: name, Index: i, Action: ActionInterval,
					Detail: strconv.Quote(v.Value) + " -> " + strconv.Itoa(n),
				})
			}
		}
	}
	c.Remove(remove)
	return changes
}

func hasYara(c *corpus.Collection) bool {
	for _, item := range c.Items {
		if query.HasYaraVariables(query.Str(item, "query")) {
			return true
		}
	}
	return false
}

func moveFile(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return errors.NewUnwritable(filepath.Dir(to), err)
	}
	if err := os.Rename(from, to); err != nil {
		return errors.NewUnwritable(to, err)
	}
	return nil
}

func fixDecisions(out *FixOutput) []db.Decision {
	decisions := make([]db.Decision, 0, len(out.Changes)+len(out.Moved))
	for _, ch := range out.Changes {
		decisions = append(decisions, db.Decision{Name: ch.Name, Role: ch.Action, Path: ch.Path, Index: ch.Index})
	}
	for _, m := range out.Moved {
		decisions = append(decisions, db.Decision{Role: "move_yara", Path: m.From, Index: -1})
	}
	return decisions
}
