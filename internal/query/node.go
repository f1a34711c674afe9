package query

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyOrder is the fixed output key order. Unknown keys follow in input order.
var KeyOrder = []string{
	"name", "platform", "description", "query", "powershell", "bash",
	"purpose", "tags", "discovery", "contributors", "remediation",
	"interval", "logging", "observer_can_run", "automations_enabled",
	"discard_data", "labels_include_any", "snapshot", "value",
}

// LegacyKeepFields is the field allow-list used when flattening
// {apiVersion, kind, spec} documents.
var LegacyKeepFields = []string{
	"name", "description", "query", "platform", "interval",
	"observer_can_run", "automations_enabled", "logging",
	"min_osquery_version", "discard_data",
}

// Get returns the value node for key in mapping m, or nil.
func Get(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// Has reports whether mapping m has key.
func Has(m *yaml.Node, key string) bool {
	return Get(m, key) != nil
}

// Set replaces the value for key in mapping m or appends it.
func Set(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, StringNode(key), value)
}

// Delete removes key from mapping m. Reports whether it was present.
func Delete(m *yaml.Node, key string) bool {
	if m == nil {
		return false
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return true
		}
	}
	return false
}

// Keys returns the mapping keys in order.
func Keys(m *yaml.Node) []string {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		keys = append(keys, m.Content[i].Value)
	}
	return keys
}

// Str returns the scalar value of the node at key, or "".
func Str(m *yaml.Node, key string) string {
	n := Get(m, key)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

// StringList reads key as a list of strings. A scalar is split on whitespace.
func StringList(m *yaml.Node, key string) []string {
	n := Get(m, key)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind == yaml.ScalarNode && c.Value != "" {
				out = append(out, c.Value)
			}
		}
		return out
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
		return strings.Fields(n.Value)
	}
	return nil
}

// Interval reads key "interval" as an int, accepting numeric strings.
func Interval(m *yaml.Node) *int {
	n := Get(m, "interval")
	if n == nil || n.Kind != yaml.ScalarNode {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(n.Value))
	if err != nil {
		return nil
	}
	return &v
}

// StringNode builds a string scalar. Multi-line values use literal style.
func StringNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.Contains(s, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

// IntNode builds an int scalar.
func IntNode(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}

// BoolNode builds a bool scalar.
func BoolNode(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
}

// StringSeqNode builds a flow-free sequence of strings.
func StringSeqNode(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, s := range items {
		n.Content = append(n.Content, StringNode(s))
	}
	return n
}

// NewMapping returns an empty mapping node.
func NewMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

// Unwrap returns the content of a document node, or n itself.
func Unwrap(n *yaml.Node) *yaml.Node {
	if n != nil && n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

// FromSpec builds a Record from a flat field mapping.
func FromSpec(kind string, spec *yaml.Node, origin Origin) Record {
	if kind == "" {
		kind = "query"
	}
	return Record{
		Name:         strings.TrimSpace(Str(spec, "name")),
		Body:         Str(spec, "query"),
		PlatformHint: Str(spec, "platform"),
		Purpose:      Str(spec, "purpose"),
		Description:  Str(spec, "description"),
		Interval:     Interval(spec),
		Tags:         StringList(spec, "tags"),
		Kind:         kind,
		Spec:         spec,
		Origin:       origin,
	}
}

// Ordered returns a copy of spec with KeyOrder keys first, then the rest
// in input order. If label is set and spec has no platform, it is added.
func Ordered(spec *yaml.Node, label string) *yaml.Node {
	out := NewMapping()
	seen := make(map[string]bool, len(KeyOrder))
	for _, key := range KeyOrder {
		if v := Get(spec, key); v != nil {
			out.Content = append(out.Content, StringNode(key), literalize(key, v))
			seen[key] = true
		}
	}
	if spec != nil {
		for i := 0; i+1 < len(spec.Content); i += 2 {
			key := spec.Content[i].Value
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Content = append(out.Content, spec.Content[i], spec.Content[i+1])
		}
	}
	if label != "" && !seen["platform"] {
		Set(out, "platform", StringNode(label))
		reorderPlatform(out)
	}
	return out
}

// Restrict returns a mapping holding only the given keys, in the given order.
func Restrict(spec *yaml.Node, keys []string) *yaml.Node {
	out := NewMapping()
	for _, key := range keys {
		if v := Get(spec, key); v != nil {
			out.Content = append(out.Content, StringNode(key), literalize(key, v))
		}
	}
	return out
}

func literalize(key string, v *yaml.Node) *yaml.Node {
	if (key == "query" || key == "powershell" || key == "bash") &&
		v.Kind == yaml.ScalarNode && strings.Contains(v.Value, "\n") && v.Style != yaml.LiteralStyle {
		c := *v
		c.Style = yaml.LiteralStyle
		return &c
	}
	return v
}

// reorderPlatform moves a trailing platform key to sit right after name.
func reorderPlatform(m *yaml.Node) {
	n := len(m.Content)
	if n < 4 || m.Content[n-2].Value != "platform" {
		return
	}
	k, v := m.Content[n-2], m.Content[n-1]
	rest := m.Content[:n-2]
	insert := 0
	if len(rest) >= 2 && rest[0].Value == "name" {
		insert = 2
	}
	content := make([]*yaml.Node, 0, n)
	content = append(content, rest[:insert]...)
	content = append(content, k, v)
	content = append(content, rest[insert:]...)
	m.Content = content
}
