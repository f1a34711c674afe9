package classify

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/qlib/internal/logging"
)

// PlatformChain returns the platform strategies in authority order:
// explicit field, file name, path, body tables.
func PlatformChain() *Chain[PlatformResult] {
	return NewChain[PlatformResult](anyOS,
		StrategyFunc[PlatformResult]{Label: "explicit", Fn: explicitPlatform},
		StrategyFunc[PlatformResult]{Label: "file_name", Fn: fileNamePlatform},
		StrategyFunc[PlatformResult]{Label: "path", Fn: pathPlatform},
		StrategyFunc[PlatformResult]{Label: "body", Fn: bodyPlatform},
	)
}

// Platform classifies a record's platform from raw evidence.
func Platform(explicit, fileName, filePath, body string) PlatformResult {
	p, _ := PlatformChain().Resolve(Evidence{
		PlatformHint: explicit,
		FileName:     fileName,
		FilePath:     filePath,
		Body:         body,
	})
	return p
}

// ResolvePlatformString maps an explicit platform value to a placement.
// Unknown and multi-valued strings land in the all bucket with the original
// string kept as the label.
func ResolvePlatformString(s string) PlatformResult {
	trimmed := strings.TrimSpace(s)
	if p, ok := platformAliases[strings.ToLower(trimmed)]; ok {
		return p
	}
	return PlatformResult{Bucket: anyOS.Bucket, Label: trimmed}
}

func explicitPlatform(ev Evidence) (PlatformResult, bool) {
	if strings.TrimSpace(ev.PlatformHint) == "" {
		return PlatformResult{}, false
	}
	return ResolvePlatformString(ev.PlatformHint), true
}

func fileNamePlatform(ev Evidence) (PlatformResult, bool) {
	return matchHints(strings.ToLower(ev.FileName), fileNameHints)
}

func pathPlatform(ev Evidence) (PlatformResult, bool) {
	if ev.FilePath == "" {
		return PlatformResult{}, false
	}
	// Every segment, the first included, is slash-delimited.
	p := "/" + strings.TrimPrefix(strings.ToLower(filepath.ToSlash(ev.FilePath)), "/")
	return matchHints(p, pathHints)
}

func matchHints(s string, hints []hint) (PlatformResult, bool) {
	if s == "" {
		return PlatformResult{}, false
	}
	for _, h := range hints {
		if strings.Contains(s, h.needle) {
			return h.result, true
		}
	}
	return PlatformResult{}, false
}

// bodyPlatform counts platform-exclusive tables referenced by the body.
// Only a strict unique maximum decides; ties fall through.
func bodyPlatform(ev Evidence) (PlatformResult, bool) {
	if ev.Body == "" {
		return PlatformResult{}, false
	}
	body := strings.ToLower(ev.Body)

	best, bestScore, tied := PlatformResult{}, 0, false
	for _, vocab := range platformTables {
		score := 0
		for _, re := range vocab.patterns {
			if re.MatchString(body) {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = vocab.result, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore == 0 {
		return PlatformResult{}, false
	}
	if tied {
		logging.L().Debug("platform body heuristic tied",
			zap.String("file", ev.FilePath),
			zap.String("name", ev.Name),
			zap.Int("score", bestScore))
		return PlatformResult{}, false
	}
	return best, true
}
