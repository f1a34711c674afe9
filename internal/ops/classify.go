package ops

import (
	"path/filepath"
	"strings"

	"github.com/hpungsan/qlib/internal/classify"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/parse"
	"github.com/hpungsan/qlib/internal/query"
)

// ClassifyInput contains parameters for the Classify operation.
type ClassifyInput struct {
	Path string // required: source file to classify

	// Root, when set, makes the classification path relative to it.
	Root string
}

// ClassifiedRecord is one record with its classification and the strategies
// that decided it.
type ClassifiedRecord struct {
	Name          string           `json:"name"`
	Index         int              `json:"index"`
	Platform      query.Platform   `json:"platform,omitempty"`
	Label         string           `json:"label,omitempty"`
	Category      query.Category   `json:"category,omitempty"`
	PlatformBy    string           `json:"platform_by,omitempty"`
	CategoryBy    string           `json:"category_by,omitempty"`
	Dropped       query.DropReason `json:"dropped,omitempty"`
	YaraVariables bool             `json:"yara_variables,omitempty"`
}

// ClassifyOutput contains the result of the Classify operation.
type ClassifyOutput struct {
	Path     string             `json:"path"`
	Format   query.Format       `json:"format"`
	Records  []ClassifiedRecord `json:"records"`
	Warnings []parse.Warning    `json:"warnings,omitempty"`
}

// Classify parses one source file and classifies each of its records
// without writing anything.
func Classify(input ClassifyInput) (*ClassifyOutput, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}

	display := filepath.ToSlash(input.Path)
	if input.Root != "" {
		if abs, err := filepath.Abs(input.Path); err == nil {
			if root, err := filepath.Abs(input.Root); err == nil {
				display = relToRoot(root, abs)
			}
		}
	}

	res, err := parse.File(input.Path, query.Origin{Path: display})
	if err != nil {
		return nil, err
	}
	format, _ := parse.FormatOf(input.Path)

	out := &ClassifyOutput{Path: display, Format: format, Records: []ClassifiedRecord{}, Warnings: res.Warnings}
	classifier := classify.New()
	for _, r := range res.Records {
		rec := ClassifiedRecord{
			Name:          r.Name,
			Index:         r.Origin.Index,
			YaraVariables: query.HasYaraVariables(r.Body),
		}
		if reason, ok := query.Validate(r); !ok {
			rec.Dropped = reason
			out.Records = append(out.Records, rec)
			continue
		}
		c := classifier.Classify(r)
		rec.Platform = c.Platform
		rec.Label = c.Label
		rec.Category = c.Category
		rec.PlatformBy = c.PlatformBy
		rec.CategoryBy = c.CategoryBy
		out.Records = append(out.Records, rec)
	}
	return out, nil
}
