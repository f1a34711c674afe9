package ops

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/corpus"
	"github.com/hpungsan/qlib/internal/db"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/query"
)

// ConvertInput contains parameters for the Convert operation.
type ConvertInput struct {
	Root   string // default: "."
	DryRun bool
}

// ConvertedFile is one collection rewritten as a flat record list.
type ConvertedFile struct {
	Path    string `json:"path"`
	Queries int    `json:"queries"`
}

// FileError is a collection that could not be converted.
type FileError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ConvertOutput contains the result of the Convert operation.
type ConvertOutput struct {
	RunID     string          `json:"run_id,omitempty"`
	DryRun    bool            `json:"dry_run"`
	Converted []ConvertedFile `json:"converted"`
	Skipped   int             `json:"skipped"`
	Errors    []FileError     `json:"errors"`
}

// Convert rewrites legacy {apiVersion, kind, spec} document streams in the
// library into flat record lists restricted to the legacy field set.
// Files already holding a list, and empty files, are skipped.
func Convert(ctx context.Context, database *sql.DB, cfg *config.Config, input ConvertInput) (*ConvertOutput, error) {
	started := time.Now()

	root, err := resolveRoot(input.Root)
	if err != nil {
		return nil, err
	}
	lib, err := libDir(root, cfg)
	if err != nil {
		return nil, err
	}
	files, err := corpus.Scan(lib)
	if err != nil {
		return nil, err
	}

	out := &ConvertOutput{DryRun: input.DryRun, Converted: []ConvertedFile{}, Errors: []FileError{}}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := relToRoot(lib, path)

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		items, skip, err := convertContent(data)
		if skip {
			out.Skipped++
			continue
		}
		if err != nil {
			out.Errors = append(out.Errors, FileError{Path: rel, Message: err.Error()})
			continue
		}

		if !input.DryRun {
			content, err := corpus.Marshal(items)
			if err != nil {
				return nil, errors.NewInternal(err)
			}
			if err := corpus.WriteFile(path, content); err != nil {
				return nil, err
			}
		}
		out.Converted = append(out.Converted, ConvertedFile{Path: filepath.ToSlash(rel), Queries: len(items)})
	}

	decisions := make([]db.Decision, 0, len(out.Converted))
	for _, f := range out.Converted {
		decisions = append(decisions, db.Decision{Role: "converted", Path: f.Path, Index: -1})
	}
	summary := map[string]int{"converted": len(out.Converted), "skipped": out.Skipped, "errors": len(out.Errors)}
	out.RunID = recordRun(database, OpConvert, root, input.DryRun, started, summary, decisions)
	return out, nil
}

// convertContent flattens a legacy document stream. skip is set for empty
// files and files that already hold a list.
func convertContent(data []byte) (items []*yaml.Node, skip bool, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, true, nil
	}

	var docs []*yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			return nil, false, errors.NewMalformedSource("", err)
		}
		if n := query.Unwrap(&doc); n != nil && !isNull(n) {
			docs = append(docs, n)
		}
	}
	if len(docs) == 0 {
		return nil, false, errors.NewInvalidRequest("no documents")
	}
	if docs[0].Kind == yaml.SequenceNode {
		return nil, true, nil
	}

	for _, doc := range docs {
		if doc.Kind != yaml.MappingNode {
			continue
		}
		var spec *yaml.Node
		switch {
		case query.Has(doc, "apiVersion") && query.Has(doc, "kind") && query.Has(doc, "spec"):
			spec = query.Get(doc, "spec")
		case query.Has(doc, "name") && query.Has(doc, "query"):
			spec = doc
		}
		if spec == nil || spec.Kind != yaml.MappingNode || len(spec.Content) == 0 {
			continue
		}
		if m := query.Restrict(spec, query.LegacyKeepFields); len(m.Content) > 0 {
			items = append(items, m)
		}
	}
	if len(items) == 0 {
		return nil, false, errors.NewInvalidRequest("no queries found")
	}
	return items, false, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}
