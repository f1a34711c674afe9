package query

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

var (
	leadingOrdinal = regexp.MustCompile(`^\d+-`)
	slugStrip      = regexp.MustCompile(`[^a-z0-9\s\-]`)
	slugSpace      = regexp.MustCompile(`[\s_]+`)
	slugDashes     = regexp.MustCompile(`-+`)
)

// maxSlugLen caps generated file name stems.
const maxSlugLen = 80

// DeriveName turns a SQL file name into a display name:
// "012-check_ssh-config.sql" becomes "Check Ssh Config".
// A non-empty prefix yields "prefix - Name".
func DeriveName(fileName, prefix string) string {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	stem = leadingOrdinal.ReplaceAllString(stem, "")
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	name := TitleCase(stem)
	if prefix != "" {
		return prefix + " - " + name
	}
	return name
}

// TitleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}

// Slugify converts a name to a kebab-case file name stem.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugSpace.ReplaceAllString(strings.TrimSpace(slug), "-")
	slug = slugDashes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return slug
}

// HasYaraVariables reports whether body references a $variable that is
// neither escaped ($$) nor a Fleet variable ($FLEET_...).
func HasYaraVariables(body string) bool {
	for i := 0; i < len(body)-1; i++ {
		if body[i] != '$' {
			continue
		}
		next := body[i+1]
		if next == '$' {
			continue
		}
		if strings.HasPrefix(body[i+1:], "FLEET_") {
			continue
		}
		if next == '_' || (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') {
			return true
		}
	}
	return false
}

// SQLSpec builds the output field mapping for a record parsed from
// commented SQL.
func SQLSpec(r Record, label string, defaultInterval int) *yaml.Node {
	m := NewMapping()
	Set(m, "name", StringNode(r.Name))
	if label != "" {
		Set(m, "platform", StringNode(label))
	}
	desc := r.Description
	if desc == "" {
		desc = r.Name
	}
	Set(m, "description", StringNode(desc))
	body := r.Body
	if strings.Contains(body, "\n") {
		body += "\n"
	}
	Set(m, "query", StringNode(body))
	interval := defaultInterval
	if r.Interval != nil && *r.Interval != 0 {
		interval = *r.Interval
	}
	Set(m, "interval", IntNode(interval))
	Set(m, "logging", StringNode("snapshot"))
	Set(m, "observer_can_run", BoolNode(true))
	Set(m, "automations_enabled", BoolNode(false))
	Set(m, "discard_data", BoolNode(false))
	return m
}
