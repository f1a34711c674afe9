package parse

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/qlib/internal/query"
)

var (
	docBoundary = regexp.MustCompile(`(?m)^---\s*$`)
	nameHint    = regexp.MustCompile(`name:\s*(.+)`)
)

// YAML parses a document stream. Each document is either a {kind, spec}
// envelope or a flat sequence of records. Malformed documents are skipped
// with a warning.
func YAML(content string, origin query.Origin) ([]query.Record, []Warning) {
	var (
		records  []query.Record
		warnings []Warning
	)

	for i, raw := range docBoundary.Split(content, -1) {
		raw = strings.TrimSpace(raw)
		if raw == "" || commentOnly(raw) {
			continue
		}

		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
			hint := fmt.Sprintf("document #%d", i)
			if m := nameHint.FindStringSubmatch(raw); m != nil {
				hint = strings.TrimSpace(m[1])
			}
			warnings = append(warnings, Warning{
				Path:    origin.Path,
				Subject: hint,
				Message: err.Error(),
			})
			continue
		}

		root := query.Unwrap(&doc)
		if root == nil {
			continue
		}
		switch root.Kind {
		case yaml.MappingNode:
			spec := query.Get(root, "spec")
			if spec == nil || spec.Kind != yaml.MappingNode {
				continue
			}
			o := origin
			o.Index = len(records)
			records = append(records, query.FromSpec(query.Str(root, "kind"), spec, o))
		case yaml.SequenceNode:
			for _, item := range root.Content {
				if item.Kind != yaml.MappingNode {
					continue
				}
				o := origin
				o.Index = len(records)
				records = append(records, query.FromSpec("", item, o))
			}
		}
	}
	return records, warnings
}

// IsEnvelopeStream reports whether content holds {kind, spec} documents
// rather than a flat record sequence.
func IsEnvelopeStream(content string) bool {
	for _, raw := range docBoundary.Split(content, -1) {
		raw = strings.TrimSpace(raw)
		if raw == "" || commentOnly(raw) {
			continue
		}
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		root := query.Unwrap(&doc)
		if root == nil {
			continue
		}
		return root.Kind == yaml.MappingNode && query.Has(root, "spec")
	}
	return false
}

func commentOnly(doc string) bool {
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return false
		}
	}
	return true
}
