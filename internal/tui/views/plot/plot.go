// Package plot draws the rolling voltage window as a block sparkline.
package plot

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rowetechinc/river/internal/telemetry"
	"github.com/rowetechinc/river/internal/tui/theme"
)

var blocks = []rune("▁▂▃▄▅▆▇█")

type Model struct {
	Title string
	Unit  string
	Data  telemetry.Snapshot
}

func New(title, unit string) Model {
	return Model{Title: title, Unit: unit}
}

// Set replaces the window; update_plot always carries the whole buffer.
func (m *Model) Set(s telemetry.Snapshot) {
	m.Data = s
}

func (m *Model) Reset() {
	m.Data = telemetry.Snapshot{}
}

// Sparkline renders the newest width values scaled between their min and
// max. A flat series sits on the middle row.
func Sparkline(ys []float64, width int) string {
	if width <= 0 || len(ys) == 0 {
		return ""
	}
	if len(ys) > width {
		ys = ys[len(ys)-width:]
	}
	lo, hi := bounds(ys)
	var b strings.Builder
	for _, y := range ys {
		idx := len(blocks) / 2
		if hi > lo {
			idx = int(math.Round((y - lo) / (hi - lo) * float64(len(blocks)-1)))
		}
		b.WriteRune(blocks[idx])
	}
	return b.String()
}

func bounds(ys []float64) (lo, hi float64) {
	lo, hi = ys[0], ys[0]
	for _, y := range ys[1:] {
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	return lo, hi
}

func (m Model) View(width int) string {
	inner := max(width-4, 10)
	header := theme.StyleHeader.Render(m.Title)

	ys := m.Data.Y
	if len(ys) == 0 {
		return theme.Panel(width).Render(lipgloss.JoinVertical(lipgloss.Left, header,
			theme.StyleDimmed.Render("waiting for ensembles")))
	}

	lo, hi := bounds(ys)
	last := ys[len(ys)-1]
	stamp := ""
	if n := len(m.Data.X); n > 0 {
		stamp = m.Data.X[n-1]
	}
	line := lipgloss.NewStyle().Foreground(theme.ColorVoltage).Render(Sparkline(ys, inner))
	stats := theme.StyleDimmed.Render(fmt.Sprintf("last %.2f%s  min %.2f  max %.2f  n=%d  %s",
		last, m.Unit, lo, hi, len(ys), stamp))
	return theme.Panel(width).Render(lipgloss.JoinVertical(lipgloss.Left, header, line, stats))
}
