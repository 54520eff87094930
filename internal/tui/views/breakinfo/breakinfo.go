// Package breakinfo renders the decoded BREAK banner as markdown.
package breakinfo

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/tui/theme"
)

type Model struct {
	Result *decoder.BreakResult
	Style  string // glamour standard style name

	renderer *glamour.TermRenderer
	wrap     int
}

func New(style string) Model {
	if style == "" {
		style = "dark"
	}
	return Model{Style: style}
}

func (m *Model) Set(res *decoder.BreakResult) {
	m.Result = res
}

// Markdown is the document shown for res.
func Markdown(res *decoder.BreakResult) string {
	if res == nil {
		return "# BREAK\n\nNo port open.\n"
	}
	var b strings.Builder
	b.WriteString("# BREAK\n\n")
	if res.Empty() {
		b.WriteString("The instrument did not answer.\n")
		return b.String()
	}
	if res.Banner != "" {
		fmt.Fprintf(&b, "**%s**\n\n", escape(res.Banner))
	}
	b.WriteString("| Field | Value |\n|---|---|\n")
	for _, row := range [][2]string{
		{"Serial number", res.SerialNumber},
		{"Firmware", res.Firmware},
		{"Mode", res.Mode},
	} {
		v := row[1]
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&b, "| %s | `%s` |\n", row[0], v)
	}
	b.WriteString("\n```\n")
	for _, l := range res.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("```\n")
	return b.String()
}

func escape(s string) string {
	return strings.NewReplacer("*", `\*`, "_", `\_`, "|", `\|`).Replace(s)
}

// View renders through glamour, or returns the markdown source if the
// renderer cannot be built.
func (m *Model) View(width int) string {
	wrap := max(width-4, 20)
	if m.renderer == nil || m.wrap != wrap {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.Style),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return theme.Panel(width).Render(Markdown(m.Result))
		}
		m.renderer, m.wrap = r, wrap
	}
	out, err := m.renderer.Render(Markdown(m.Result))
	if err != nil {
		out = Markdown(m.Result)
	}
	return theme.Panel(width).Render(strings.TrimRight(out, "\n"))
}
