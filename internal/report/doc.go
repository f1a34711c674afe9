// Package report renders operation results as markdown, styled terminal
// text or HTML. Every renderer works from the same Doc so the three
// formats never disagree.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/qlib/internal/ops"
	"github.com/hpungsan/qlib/internal/parse"
)

// Doc is a format-neutral report.
type Doc struct {
	Title    string
	Sections []Section
}

// Section is a titled block of fields, an optional table and free lines.
type Section struct {
	Title  string
	Fields []Field
	Table  *Table
	Lines  []string
}

// Field is a labelled value.
type Field struct {
	Key   string
	Value string
}

// Table is a header row plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Build converts an operation output into a Doc. Unknown values yield a
// Doc with a single line holding their %v rendering.
func Build(v any) *Doc {
	switch out := v.(type) {
	case *ops.DiscoverOutput:
		return discoverDoc(out)
	case *ops.SortOutput:
		return sortDoc(out)
	case *ops.DedupeOutput:
		return dedupeDoc(out)
	case *ops.FixOutput:
		return fixDoc(out)
	case *ops.ConvertOutput:
		return convertDoc(out)
	case *ops.PathsOutput:
		return pathsDoc(out)
	case *ops.ClassifyOutput:
		return classifyDoc(out)
	case *ops.HistoryOutput:
		return historyDoc(out)
	case *ops.FetchRunOutput:
		return runDoc(out)
	}
	return &Doc{Title: "Result", Sections: []Section{{Lines: []string{fmt.Sprintf("%v", v)}}}}
}

func discoverDoc(out *ops.DiscoverOutput) *Doc {
	t := &Table{Header: []string{"source", "type", "files", "extensions"}}
	for _, s := range out.Sources {
		t.Rows = append(t.Rows, []string{s.Name, string(s.Type), strconv.Itoa(s.FileCount), strings.Join(s.Extensions, ", ")})
	}
	return &Doc{
		Title: "Sources",
		Sections: []Section{{
			Fields: []Field{{"root", out.Root}, {"sources", strconv.Itoa(len(out.Sources))}},
			Table:  t,
		}},
	}
}

func sortDoc(out *ops.SortOutput) *Doc {
	d := &Doc{Title: titled("Sort", out.DryRun)}
	d.Sections = append(d.Sections, statsSection("Totals", out.Totals))
	for _, s := range out.Sources {
		sec := statsSection("Source "+s.Name, s.Stats)
		sec.Fields = append([]Field{{"type", string(s.Type)}, {"folder", s.Folder}}, sec.Fields...)
		d.Sections = append(d.Sections, sec)
	}
	if len(out.Placements) > 0 {
		t := &Table{Header: []string{"name", "from", "to", "platform", "category"}}
		for _, p := range out.Placements {
			t.Rows = append(t.Rows, []string{p.Name, p.From, p.Path, string(p.Platform), string(p.Category)})
		}
		d.Sections = append(d.Sections, Section{Title: "Placements", Table: t})
	}
	if len(out.Dropped) > 0 {
		t := &Table{Header: []string{"file", "index", "name", "reason"}}
		for _, dr := range out.Dropped {
			t.Rows = append(t.Rows, []string{dr.Path, strconv.Itoa(dr.Index), dr.Name, string(dr.Reason)})
		}
		d.Sections = append(d.Sections, Section{Title: "Dropped", Table: t})
	}
	if len(out.Warnings) > 0 {
		d.Sections = append(d.Sections, warningsSection(out.Warnings))
	}
	if len(out.Files) > 0 {
		d.Sections = append(d.Sections, Section{Title: "Files", Lines: out.Files})
	}
	return d
}

func statsSection(title string, s ops.Stats) Section {
	sec := Section{
		Title: title,
		Fields: []Field{
			{"total", strconv.Itoa(s.Total)},
			{"converted", strconv.Itoa(s.Converted)},
			{"skipped", strconv.Itoa(s.Skipped)},
			{"malformed files", strconv.Itoa(s.Malformed)},
		},
	}
	for _, k := range sortedKeys(s.ByPlatform) {
		sec.Fields = append(sec.Fields, Field{"platform " + k, strconv.Itoa(s.ByPlatform[k])})
	}
	for _, k := range sortedKeys(s.ByCategory) {
		sec.Fields = append(sec.Fields, Field{"category " + k, strconv.Itoa(s.ByCategory[k])})
	}
	return sec
}

func dedupeDoc(out *ops.DedupeOutput) *Doc {
	sum := out.Report.Summary
	d := &Doc{
		Title: titled("Dedupe", out.DryRun),
		Sections: []Section{{
			Title: "Summary",
			Fields: []Field{
				{"files", strconv.Itoa(out.Files)},
				{"occurrences", strconv.Itoa(sum.Occurrences)},
				{"names with duplicates", strconv.Itoa(sum.NamesWithDuplicate)},
				{"kept", strconv.Itoa(sum.Kept)},
				{"removed", strconv.Itoa(sum.Removed)},
				{"different, same name", strconv.Itoa(sum.KeptBoth)},
				{"excluded", strconv.Itoa(out.Excluded)},
				{"threshold", strconv.FormatFloat(out.Report.Threshold, 'f', 2, 64)},
			},
		}},
	}

	for _, g := range out.Report.Groups {
		t := &Table{Header: []string{"role", "location", "index", "score", "similarity"}}
		t.Rows = append(t.Rows, []string{"winner", g.Winner.Location, strconv.Itoa(g.Winner.Index), strconv.Itoa(g.Winner.Score), ""})
		for _, l := range g.Losers {
			t.Rows = append(t.Rows, []string{"removed", l.Location, strconv.Itoa(l.Index), strconv.Itoa(l.Score), percent(l.Similarity)})
		}
		for _, k := range g.KeptBoth {
			t.Rows = append(t.Rows, []string{"kept", k.Location, strconv.Itoa(k.Index), strconv.Itoa(k.Score), percent(k.Similarity)})
		}
		sec := Section{Title: g.Name, Table: t}
		for _, s := range g.SharedLocation {
			sec.Lines = append(sec.Lines, "shares a file with another survivor: "+s.Location)
		}
		d.Sections = append(d.Sections, sec)
	}

	d.Sections = append(d.Sections, filesSection(out.Modified, out.Deleted))
	return d
}

func fixDoc(out *ops.FixOutput) *Doc {
	d := &Doc{
		Title: titled("Fix", out.DryRun),
		Sections: []Section{{
			Title: "Summary",
			Fields: []Field{
				{"files", strconv.Itoa(out.Files)},
				{"no-SQL removed", strconv.Itoa(out.NoSQLRemoved)},
				{"YARA removed", strconv.Itoa(out.YaraRemoved)},
				{"YARA files moved", strconv.Itoa(len(out.Moved))},
				{"intervals fixed", strconv.Itoa(out.IntervalsFixed)},
			},
		}},
	}
	if len(out.Changes) > 0 {
		t := &Table{Header: []string{"file", "index", "name", "action", "detail"}}
		for _, c := range out.Changes {
			t.Rows = append(t.Rows, []string{c.Path, strconv.Itoa(c.Index), c.Name, c.Action, c.Detail})
		}
		d.Sections = append(d.Sections, Section{Title: "Changes", Table: t})
	}
	if len(out.Moved) > 0 {
		var lines []string
		for _, m := range out.Moved {
			lines = append(lines, m.From+" -> "+m.To)
		}
		d.Sections = append(d.Sections, Section{Title: "Moved", Lines: lines})
	}
	d.Sections = append(d.Sections, filesSection(out.Modified, out.Deleted))
	return d
}

func convertDoc(out *ops.ConvertOutput) *Doc {
	d := &Doc{
		Title: titled("Convert", out.DryRun),
		Sections: []Section{{
			Title: "Summary",
			Fields: []Field{
				{"converted", strconv.Itoa(len(out.Converted))},
				{"skipped", strconv.Itoa(out.Skipped)},
				{"errors", strconv.Itoa(len(out.Errors))},
			},
		}},
	}
	if len(out.Converted) > 0 {
		t := &Table{Header: []string{"file", "queries"}}
		for _, c := range out.Converted {
			t.Rows = append(t.Rows, []string{c.Path, strconv.Itoa(c.Queries)})
		}
		d.Sections = append(d.Sections, Section{Title: "Converted", Table: t})
	}
	if len(out.Errors) > 0 {
		t := &Table{Header: []string{"file", "error"}}
		for _, e := range out.Errors {
			t.Rows = append(t.Rows, []string{e.Path, e.Message})
		}
		d.Sections = append(d.Sections, Section{Title: "Errors", Table: t})
	}
	return d
}

func pathsDoc(out *ops.PathsOutput) *Doc {
	d := &Doc{
		Title: "Query paths",
		Sections: []Section{{
			Fields: []Field{
				{"both", strconv.Itoa(len(out.Both))},
				{"devices", strconv.Itoa(len(out.Devices))},
				{"servers", strconv.Itoa(len(out.Servers))},
			},
		}},
	}
	for _, file := range sortedKeys(out.Blocks) {
		block := out.Blocks[file]
		if block == "" {
			block = "  (none)"
		}
		d.Sections = append(d.Sections, Section{Title: file, Lines: []string{block}})
	}
	if len(out.Updated) > 0 {
		d.Sections = append(d.Sections, Section{Title: "Updated", Lines: out.Updated})
	}
	if len(out.Missing) > 0 {
		d.Sections = append(d.Sections, Section{Title: "Missing", Lines: out.Missing})
	}
	return d
}

func classifyDoc(out *ops.ClassifyOutput) *Doc {
	t := &Table{Header: []string{"index", "name", "platform", "label", "category", "decided by"}}
	for _, r := range out.Records {
		if r.Dropped != "" {
			t.Rows = append(t.Rows, []string{strconv.Itoa(r.Index), r.Name, "", "", "", "dropped: " + string(r.Dropped)})
			continue
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Index), r.Name, string(r.Platform), r.Label, string(r.Category),
			r.PlatformBy + " / " + r.CategoryBy,
		})
	}
	d := &Doc{
		Title: "Classification",
		Sections: []Section{{
			Fields: []Field{{"file", out.Path}, {"format", string(out.Format)}},
			Table:  t,
		}},
	}
	if len(out.Warnings) > 0 {
		d.Sections = append(d.Sections, warningsSection(out.Warnings))
	}
	return d
}

func historyDoc(out *ops.HistoryOutput) *Doc {
	t := &Table{Header: []string{"id", "op", "started", "preview", "root"}}
	for _, r := range out.Runs {
		t.Rows = append(t.Rows, []string{r.ID, r.Op, formatTime(r.StartedAt), yesNo(r.DryRun), r.Root})
	}
	p := out.Pagination
	return &Doc{
		Title: "Runs",
		Sections: []Section{{
			Fields: []Field{
				{"total", strconv.Itoa(p.Total)},
				{"offset", strconv.Itoa(p.Offset)},
				{"more", yesNo(p.HasMore)},
			},
			Table: t,
		}},
	}
}

func runDoc(out *ops.FetchRunOutput) *Doc {
	r := out.Run
	d := &Doc{
		Title: "Run " + r.ID,
		Sections: []Section{{
			Fields: []Field{
				{"op", r.Op},
				{"root", r.Root},
				{"preview", yesNo(r.DryRun)},
				{"started", formatTime(r.StartedAt)},
				{"duration", (time.Duration(r.FinishedAt-r.StartedAt) * time.Second).String()},
			},
		}},
	}
	if len(r.Summary) > 0 {
		d.Sections = append(d.Sections, Section{Title: "Summary", Lines: []string{string(r.Summary)}})
	}
	if len(out.Decisions) > 0 {
		t := &Table{Header: []string{"role", "name", "path", "index", "score", "similarity"}}
		for _, dec := range out.Decisions {
			score, sim := "", ""
			if dec.Score != nil {
				score = strconv.Itoa(*dec.Score)
			}
			if dec.Similarity != nil {
				sim = percent(*dec.Similarity)
			}
			t.Rows = append(t.Rows, []string{dec.Role, dec.Name, dec.Path, strconv.Itoa(dec.Index), score, sim})
		}
		d.Sections = append(d.Sections, Section{Title: "Decisions", Table: t})
	}
	return d
}

func warningsSection(ws []parse.Warning) Section {
	var lines []string
	for _, w := range ws {
		line := w.Path
		if w.Subject != "" {
			line += " (" + w.Subject + ")"
		}
		lines = append(lines, line+": "+w.Message)
	}
	return Section{Title: "Warnings", Lines: lines}
}

func filesSection(modified, deleted []string) Section {
	sec := Section{
		Title:  "Files",
		Fields: []Field{{"modified", strconv.Itoa(len(modified))}, {"deleted", strconv.Itoa(len(deleted))}},
	}
	for _, m := range modified {
		sec.Lines = append(sec.Lines, "modified "+m)
	}
	for _, del := range deleted {
		sec.Lines = append(sec.Lines, "deleted "+del)
	}
	return sec
}

func titled(op string, dryRun bool) string {
	if dryRun {
		return op + " (preview)"
	}
	return op
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
