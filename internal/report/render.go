package report

import (
	"bytes"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders v as GitHub flavoured markdown.
func Markdown(v any) string {
	d := Build(v)
	var b strings.Builder
	b.WriteString("# " + escapeMarkdown(d.Title) + "\n")
	for _, sec := range d.Sections {
		b.WriteString("\n")
		if sec.Title != "" {
			b.WriteString("## " + escapeMarkdown(sec.Title) + "\n\n")
		}
		for _, f := range sec.Fields {
			b.WriteString("- **" + f.Key + "**: " + escapeMarkdown(f.Value) + "\n")
		}
		if len(sec.Fields) > 0 && (sec.Table != nil || len(sec.Lines) > 0) {
			b.WriteString("\n")
		}
		if sec.Table != nil && len(sec.Table.Rows) > 0 {
			writeMarkdownTable(&b, sec.Table)
			if len(sec.Lines) > 0 {
				b.WriteString("\n")
			}
		}
		if len(sec.Lines) > 0 {
			b.WriteString("```\n")
			for _, l := range sec.Lines {
				b.WriteString(l + "\n")
			}
			b.WriteString("```\n")
		}
	}
	return b.String()
}

func writeMarkdownTable(b *strings.Builder, t *Table) {
	row := func(cells []string) {
		b.WriteString("|")
		for _, c := range cells {
			b.WriteString(" " + escapeMarkdown(strings.ReplaceAll(c, "\n", " ")) + " |")
		}
		b.WriteString("\n")
	}
	row(t.Header)
	b.WriteString("|" + strings.Repeat(" --- |", len(t.Header)) + "\n")
	for _, r := range t.Rows {
		row(r)
	}
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "|", `\|`, "<", `\<`, ">", `\>`,
	"*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`,
)

// escapeMarkdown makes s render literally in inline markdown.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML renders v as an HTML fragment via its markdown form.
func HTML(v any) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(v)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Text renders v for a terminal using the given styles. Nil styles use
// NewStyles(nil).
func Text(v any, s *Styles) string {
	if s == nil {
		s = NewStyles(nil)
	}
	d := Build(v)
	var b strings.Builder
	b.WriteString(s.Title.Render(d.Title) + "\n")
	for _, sec := range d.Sections {
		b.WriteString("\n")
		if sec.Title != "" {
			b.WriteString(s.Subtitle.Render(sec.Title) + "\n")
		}
		width := 0
		for _, f := range sec.Fields {
			width = max(width, lipgloss.Width(f.Key))
		}
		label := s.Label.Width(width + 2)
		for _, f := range sec.Fields {
			b.WriteString("  " + label.Render(f.Key+":") + f.Value + "\n")
		}
		if sec.Table != nil && len(sec.Table.Rows) > 0 {
			writeTextTable(&b, sec.Table, s)
		}
		style := lipgloss.NewStyle()
		if sec.Title == "Warnings" {
			style = s.Warning
		}
		for _, l := range sec.Lines {
			for _, part := range strings.Split(l, "\n") {
				b.WriteString("  " + style.Render(part) + "\n")
			}
		}
	}
	return b.String()
}

func writeTextTable(b *strings.Builder, t *Table, s *Styles) {
	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range t.Rows {
		for i, c := range r {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(c))
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(widths))
		for i := range widths {
			c := ""
			if i < len(cells) {
				c = cells[i]
			}
			cell := style.Width(widths[i])
			if i == len(widths)-1 {
				cell = style
			}
			parts[i] = cell.Render(c)
		}
		b.WriteString("  " + strings.Join(parts, "  ") + "\n")
	}

	line(t.Header, s.Header)
	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}
	b.WriteString("  " + s.Muted.Render(strings.Join(rule, "  ")) + "\n")
	for _, r := range t.Rows {
		line(r, lipgloss.NewStyle())
	}
}
