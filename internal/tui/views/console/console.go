// Package console shows the raw ASCII stream read from the serial port.
package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rowetechinc/river/internal/tui/theme"
)

const maxLines = 500

// Model stitches serial_comm chunks into lines. A chunk may end mid-line;
// the tail is held in partial until the terminator arrives.
type Model struct {
	lines   []string
	partial string
	lastCR  bool // previous chunk ended in a bare CR
}

func New() Model {
	return Model{}
}

func (m *Model) Write(chunk string) {
	if m.lastCR && strings.HasPrefix(chunk, "\n") {
		chunk = chunk[1:]
	}
	m.lastCR = strings.HasSuffix(chunk, "\r")
	text := m.partial + strings.ReplaceAll(chunk, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	parts := strings.Split(text, "\n")
	m.partial = parts[len(parts)-1]
	m.lines = append(m.lines, parts[:len(parts)-1]...)
	if over := len(m.lines) - maxLines; over > 0 {
		m.lines = append(m.lines[:0], m.lines[over:]...)
	}
}

// Lines returns the completed lines followed by the pending partial line,
// if any.
func (m Model) Lines() []string {
	out := append([]string(nil), m.lines...)
	if m.partial != "" {
		out = append(out, m.partial)
	}
	return out
}

func (m *Model) Clear() {
	m.lines = nil
	m.partial = ""
	m.lastCR = false
}

func (m Model) View(width, height int) string {
	rows := max(height-3, 1)
	lines := m.Lines()
	if len(lines) > rows {
		lines = lines[len(lines)-rows:]
	}
	inner := max(width-4, 8)
	for i, l := range lines {
		if len(l) > inner {
			lines[i] = l[:inner]
		}
	}

	body := theme.StyleDimmed.Render("no serial data")
	if len(lines) > 0 {
		body = lipgloss.NewStyle().Foreground(theme.ColorRaw).Render(strings.Join(lines, "\n"))
	}
	return theme.Panel(width).Height(rows + 1).Render(
		lipgloss.JoinVertical(lipgloss.Left, theme.StyleHeader.Render("SERIAL"), body))
}
