// Package parse turns query source files into records.
//
// Three shapes are understood: commented SQL (.sql), YAML document streams
// (.yml, .yaml) and JSON packs (.json, .conf). Malformed input never fails
// the caller; it yields zero records and a Warning.
package parse

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/logging"
	"github.com/hpungsan/qlib/internal/query"
)

// Warning describes a skipped file or document.
type Warning struct {
	Path    string `json:"path"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of parsing one file.
type Result struct {
	Records  []query.Record `json:"-"`
	Warnings []Warning      `json:"warnings,omitempty"`

	// Malformed is set when the whole file was unparseable.
	Malformed bool `json:"malformed,omitempty"`
}

// FormatOf maps a file extension to an input format.
func FormatOf(path string) (query.Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sql":
		return query.FormatSQL, true
	case ".yml", ".yaml":
		return query.FormatYAML, true
	case ".json":
		return query.FormatJSON, true
	case ".conf":
		return query.FormatConf, true
	}
	return "", false
}

// File reads and parses path. origin.Path is used for classification and
// reporting and may differ from the read path; FileName and Format are
// filled in when empty. Only read failures return an error.
func File(path string, origin query.Origin) (*Result, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, errors.NewInvalidRequest("unsupported source file: " + path)
	}
	if origin.Path == "" {
		origin.Path = path
	}
	if origin.FileName == "" {
		origin.FileName = filepath.Base(path)
	}
	origin.Format = format

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}

	return Content(data, origin), nil
}

// Content parses already-read data according to origin.Format.
func Content(data []byte, origin query.Origin) *Result {
	res := &Result{}
	switch origin.Format {
	case query.FormatSQL:
		res.Records = []query.Record{SQL(string(data), origin)}
	case query.FormatYAML:
		res.Records, res.Warnings = YAML(string(data), origin)
	case query.FormatJSON, query.FormatConf:
		records, err := Pack(data, origin)
		if err != nil {
			res.Malformed = true
			res.Warnings = append(res.Warnings, Warning{Path: origin.Path, Message: err.Error()})
		}
		res.Records = records
	}

	for _, w := range res.Warnings {
		logging.L().Warn("skipping malformed source",
			zap.String("file", w.Path),
			zap.String("subject", w.Subject),
			zap.String("error", w.Message))
	}
	return res
}

// sniffBytes bounds how much of a file IsQueryFile inspects.
const sniffBytes = 3000

// IsQueryFile reports whether path looks like it holds query definitions,
// judged from its extension and the first few kilobytes.
func IsQueryFile(path string) bool {
	format, ok := FormatOf(path)
	if !ok {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, sniffBytes)
	n, _ := f.Read(buf)
	return LooksLikeQueries(format, string(buf[:n]))
}

// LooksLikeQueries applies the content sniff to a file head.
func LooksLikeQueries(format query.Format, head string) bool {
	upper := strings.ToUpper(head)
	switch format {
	case query.FormatSQL:
		return strings.Contains(upper, "SELECT")
	case query.FormatYAML:
		return (strings.Contains(head, "query:") || strings.Contains(head, "name:")) &&
			(strings.Contains(upper, "SELECT") || strings.Contains(head, "spec:") || strings.Contains(head, "platform:"))
	case query.FormatJSON, query.FormatConf:
		return strings.Contains(head, `"query"`) &&
			(strings.Contains(head, `"name"`) || strings.Contains(upper, `"SELECT`))
	}
	return false
}
