package parse

import (
	"strconv"
	"strings"

	"github.com/hpungsan/qlib/internal/query"
)

type sqlSection int

const (
	sectionNone sqlSection = iota
	sectionReferences
	sectionFalsePositives
)

// SQL parses a commented SQL file. Metadata lives in the leading run of
// "--" lines; the first other line ends metadata scanning for good.
// The record name is derived from origin.FileName.
func SQL(content string, origin query.Origin) query.Record {
	r := query.Record{
		Name:   query.DeriveName(origin.FileName, ""),
		Kind:   "query",
		Origin: origin,
	}

	var (
		section   = sectionNone
		descLines []string
		body      []string
		inMeta    = true
	)

	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	for _, line := range lines {
		stripped := strings.TrimRight(line, " \t\r")
		if !inMeta || !strings.HasPrefix(stripped, "--") {
			inMeta = false
			body = append(body, strings.TrimRight(line, "\r"))
			continue
		}

		text := strings.TrimSpace(strings.TrimLeft(stripped, "-"))
		lower := strings.ToLower(text)

		switch {
		case strings.HasPrefix(lower, "tags:"):
			r.Tags = strings.Fields(text[len("tags:"):])
			section = sectionNone
		case strings.HasPrefix(lower, "platform:"):
			r.PlatformHint = strings.TrimSpace(text[len("platform:"):])
			section = sectionNone
		case strings.HasPrefix(lower, "interval:"):
			if v, err := strconv.Atoi(strings.TrimSpace(text[len("interval:"):])); err == nil {
				r.Interval = &v
			}
			section = sectionNone
		case strings.HasPrefix(lower, "references:"):
			section = sectionReferences
		case strings.HasPrefix(lower, "false positive"):
			section = sectionFalsePositives
		case section != sectionNone && strings.HasPrefix(text, "* "):
			item := strings.TrimSpace(text[2:])
			if section == sectionReferences {
				r.References = append(r.References, item)
			} else {
				r.FalsePositives = append(r.FalsePositives, item)
			}
		case text == "":
			section = sectionNone
		case section == sectionNone:
			descLines = append(descLines, text)
		}
	}

	r.Description = strings.Join(descLines, " ")
	r.Body = strings.Join(trimBlankLines(body), "\n")
	return r
}

func trimBlankLines(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return lines
}
