package query

import "strings"

// DropReason explains why a record was excluded.
type DropReason string

const (
	DropNoSQL  DropReason = "no_sql"
	DropNoName DropReason = "no_name"
	DropYara   DropReason = "yara_variables"
)

// Validate reports whether r may enter classification and dedup.
// A missing body is checked first: it is the terminal defect.
func Validate(r Record) (DropReason, bool) {
	if strings.TrimSpace(r.Body) == "" {
		return DropNoSQL, false
	}
	if strings.TrimSpace(r.Name) == "" {
		return DropNoName, false
	}
	return "", true
}

// Dropped is a record excluded from processing, with its reason.
type Dropped struct {
	Name   string     `json:"name,omitempty"`
	Path   string     `json:"path"`
	Index  int        `json:"index"`
	Reason DropReason `json:"reason"`
}
