package classify

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/qlib/internal/logging"
	"github.com/hpungsan/qlib/internal/query"
)

// CategoryChain returns the category strategies in authority order:
// purpose, tags, file name, path segments, query name.
func CategoryChain() *Chain[query.Category] {
	return NewChain[query.Category](query.CategoryGeneral,
		StrategyFunc[query.Category]{Label: "purpose", Fn: purposeCategory},
		StrategyFunc[query.Category]{Label: "tags", Fn: tagCategory},
		StrategyFunc[query.Category]{Label: "file_name", Fn: fileNameCategory},
		StrategyFunc[query.Category]{Label: "path", Fn: pathCategory},
		StrategyFunc[query.Category]{Label: "name", Fn: nameCategory},
	)
}

// Category classifies a record's category from raw evidence.
func Category(purpose string, tags []string, fileName, filePath, name string) query.Category {
	c, _ := CategoryChain().Resolve(Evidence{
		Purpose:  purpose,
		Tags:     tags,
		FileName: fileName,
		FilePath: filePath,
		Name:     name,
	})
	return c
}

// NormalizePurpose maps a purpose string through the synonym table.
// Unmapped values pass through as custom categories.
func NormalizePurpose(purpose string) query.Category {
	p := strings.ToLower(strings.TrimSpace(purpose))
	p = strings.NewReplacer(" ", "-", "_", "-").Replace(p)
	if p == "" {
		return query.CategoryGeneral
	}
	if c, ok := purposeSynonyms[p]; ok {
		return c
	}
	return query.Category(p)
}

// MatchKeywords returns the first vocabulary with a keyword contained in text.
func MatchKeywords(text string) (query.Category, bool) {
	for _, v := range categoryVocabularies {
		for _, kw := range v.keywords {
			if strings.Contains(text, kw) {
				return v.category, true
			}
		}
	}
	return "", false
}

func purposeCategory(ev Evidence) (query.Category, bool) {
	if strings.TrimSpace(ev.Purpose) == "" {
		return "", false
	}
	c := NormalizePurpose(ev.Purpose)
	if !IsKnown(c) {
		logging.L().Debug("custom category from purpose",
			zap.String("purpose", ev.Purpose),
			zap.String("file", ev.FilePath))
	}
	return c, true
}

func tagCategory(ev Evidence) (query.Category, bool) {
	for _, tag := range ev.Tags {
		if c, ok := MatchKeywords(strings.ToLower(tag)); ok {
			return c, true
		}
	}
	return "", false
}

func fileNameCategory(ev Evidence) (query.Category, bool) {
	if ev.FileName == "" {
		return "", false
	}
	base := strings.ToLower(strings.TrimSuffix(ev.FileName, filepath.Ext(ev.FileName)))
	if c, ok := MatchKeywords(base); ok {
		return c, true
	}
	switch {
	case strings.Contains(base, "rootkit"):
		return query.CategoryDetection, true
	case strings.Contains(base, "compliance"):
		return query.CategoryCompliance, true
	case strings.Contains(base, "registry") && strings.Contains(base, "monitor"):
		return query.CategoryDetection, true
	case strings.Contains(base, "security"):
		return query.CategoryDetection, true
	}
	return "", false
}

func pathCategory(ev Evidence) (query.Category, bool) {
	if ev.FilePath == "" {
		return "", false
	}
	for _, part := range strings.Split(strings.ToLower(filepath.ToSlash(ev.FilePath)), "/") {
		if part == "" || part == "packs" {
			continue
		}
		if c, ok := MatchKeywords(part); ok {
			return c, true
		}
		if c, ok := segmentCategories[part]; ok {
			return c, true
		}
	}
	return "", false
}

func nameCategory(ev Evidence) (query.Category, bool) {
	if ev.Name == "" {
		return "", false
	}
	return MatchKeywords(strings.ToLower(ev.Name))
}

// IsKnown reports whether c is in the ordered category set.
func IsKnown(c query.Category) bool {
	for _, k := range query.Categories {
		if k == c {
			return true
		}
	}
	return false
}
