package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/qlib/internal/query"
)

// Pack parses JSON or osquery .conf content in one of three shapes:
// a pack ({"queries": {name: def}}), an array of records, or one record.
// Field order is kept. Malformed JSON returns an error.
func Pack(content []byte, origin query.Origin) ([]query.Record, error) {
	root, err := jsonToNode(content)
	if err != nil {
		return nil, err
	}

	var records []query.Record
	add := func(spec *yaml.Node) {
		o := origin
		o.Index = len(records)
		records = append(records, query.FromSpec("query", spec, o))
	}

	switch root.Kind {
	case yaml.MappingNode:
		if queries := query.Get(root, "queries"); queries != nil && queries.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(queries.Content); i += 2 {
				def := queries.Content[i+1]
				if def.Kind != yaml.MappingNode {
					continue
				}
				add(packEntry(queries.Content[i].Value, def))
			}
			return records, nil
		}
		if query.Has(root, "query") || query.Has(root, "name") {
			add(root)
		}
	case yaml.SequenceNode:
		for _, item := range root.Content {
			if item.Kind == yaml.MappingNode {
				add(item)
			}
		}
	}
	return records, nil
}

// packEntry prepends the pack key as name. An explicit name in def wins
// but keeps the leading position.
func packEntry(name string, def *yaml.Node) *yaml.Node {
	spec := query.NewMapping()
	nameValue := query.StringNode(name)
	if v := query.Get(def, "name"); v != nil {
		nameValue = v
	}
	spec.Content = append(spec.Content, query.StringNode("name"), nameValue)
	for i := 0; i+1 < len(def.Content); i += 2 {
		if def.Content[i].Value == "name" {
			continue
		}
		spec.Content = append(spec.Content, def.Content[i], def.Content[i+1])
	}
	return spec
}

// jsonToNode decodes JSON into an order-preserving YAML node tree with
// block styling. Repeated object keys keep the last value.
func jsonToNode(content []byte) (*yaml.Node, error) {
	if !json.Valid(content) {
		// Decode once more to surface a positioned error message.
		var v any
		if err := json.Unmarshal(content, &v); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invalid JSON")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, content); err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(yamlEscapes(compact.Bytes()), &doc); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	root := query.Unwrap(&doc)
	if root == nil {
		return nil, fmt.Errorf("empty JSON document")
	}
	restyle(root)
	return root, nil
}

// yamlEscapes rewrites the JSON string escapes YAML rejects: "\/" and
// UTF-16 surrogate pairs become raw UTF-8. Lone surrogates become U+FFFD.
// Backslashes only occur inside strings in valid JSON.
func yamlEscapes(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\/`)) && !bytes.Contains(bytes.ToLower(b), []byte(`\ud`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		switch b[i+1] {
		case '/':
			out = append(out, '/')
			i++
		case 'u':
			if r, n := surrogate(b[i:]); n > 0 {
				out = utf8.AppendRune(out, r)
				i += n - 1
				continue
			}
			out = append(out, b[i], b[i+1])
			i++
		default:
			out = append(out, b[i], b[i+1])
			i++
		}
	}
	return out
}

// surrogate decodes a \uXXXX escape at the start of s when it is a UTF-16
// surrogate, consuming the low half of a pair. n is zero for other escapes.
func surrogate(s []byte) (r rune, n int) {
	hi, ok := hex4(s)
	if !ok || !utf16.IsSurrogate(hi) {
		return 0, 0
	}
	if len(s) >= 12 && s[6] == '\\' && s[7] == 'u' {
		if lo, ok := hex4(s[6:]); ok {
			if r := utf16.DecodeRune(hi, lo); r != utf8.RuneError {
				return r, 12
			}
		}
	}
	return utf8.RuneError, 6
}

func hex4(s []byte) (rune, bool) {
	if len(s) < 6 {
		return 0, false
	}
	v, err := strconv.ParseUint(string(s[2:6]), 16, 32)
	return rune(v), err == nil
}

func restyle(n *yaml.Node) {
	n.Style = 0
	if n.Kind == yaml.MappingNode {
		pairs := n.Content
		n.Content = nil
		for i := 0; i+1 < len(pairs); i += 2 {
			query.Set(n, pairs[i].Value, pairs[i+1])
		}
		for i := 1; i < len(n.Content); i += 2 {
			restyle(n.Content[i])
		}
		return
	}
	for _, c := range n.Content {
		restyle(c)
	}
}
