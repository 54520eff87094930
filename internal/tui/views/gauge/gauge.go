// Package gauge is a horizontal voltage bar whose needle eases toward each
// new reading on a critically damped spring.
package gauge

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/rowetechinc/river/internal/tui/theme"
)

const fps = 30

// TickMsg advances the animation by one frame.
type TickMsg struct{}

type Model struct {
	Min, Max  float64
	Low, High float64 // colour thresholds

	spring harmonica.Spring
	pos    float64
	vel    float64
	target float64
	set    bool
}

func New(lo, hi float64) Model {
	return Model{
		Min:    lo,
		Max:    hi,
		Low:    lo + (hi-lo)*0.25,
		High:   lo + (hi-lo)*0.85,
		spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 1.0),
		pos:    lo,
		target: lo,
	}
}

// SetTarget starts easing toward v. The first reading jumps straight to v.
func (m *Model) SetTarget(v float64) tea.Cmd {
	m.target = v
	if !m.set {
		m.pos, m.vel, m.set = v, 0, true
		return nil
	}
	return Tick()
}

// Update steps the spring and asks for another frame while still moving.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(TickMsg); !ok {
		return nil
	}
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if m.Settled() {
		m.pos, m.vel = m.target, 0
		return nil
	}
	return Tick()
}

func (m Model) Settled() bool {
	return math.Abs(m.pos-m.target) < 0.001 && math.Abs(m.vel) < 0.001
}

func (m Model) Value() float64 { return m.pos }

func (m Model) Target() float64 { return m.target }

func Tick() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return TickMsg{} })
}

func (m Model) View(width int) string {
	bar := max(width-18, 10)
	frac := 0.0
	if m.Max > m.Min {
		frac = (m.pos - m.Min) / (m.Max - m.Min)
	}
	frac = math.Max(0, math.Min(1, frac))
	filled := int(math.Round(frac * float64(bar)))

	color := theme.VoltageColor(m.target, m.Low, m.High)
	label := "  --.--V"
	if m.set {
		label = fmt.Sprintf(" %6.2fV", m.pos)
	}
	return lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		theme.StyleDimmed.Render(strings.Repeat("░", bar-filled)) +
		lipgloss.NewStyle().Bold(true).Render(label)
}
