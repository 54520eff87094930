// Package status renders the one-line header: websocket link, serial
// session and heartbeat.
package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rowetechinc/river/internal/session"
	"github.com/rowetechinc/river/internal/tui/theme"
)

type Model struct {
	Linked    bool
	State     session.State
	Heartbeat int
	Gaps      uint64
	Width     int
}

func New() Model {
	return Model{}
}

func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")

	var parts []string
	if m.Linked {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorConnected).Render("● server"))
	} else {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorConnecting).Render("○ connecting..."))
	}

	parts = append(parts, m.serial())

	if m.State.EnsembleNumber > 0 {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorEnsemble).
			Render(fmt.Sprintf("ens #%d (%d)", m.State.EnsembleNumber, m.State.EnsembleCount)))
	}
	if m.State.BreakPhase != session.BreakIdle && m.State.BreakPhase != session.BreakDecoded {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorBreak).Render("BREAK "+m.State.BreakPhase.String()))
	}
	parts = append(parts, theme.StyleDimmed.Render(fmt.Sprintf("hb %d", m.Heartbeat)))
	if m.Gaps > 0 {
		parts = append(parts, theme.StyleError.Render(fmt.Sprintf("%d missed", m.Gaps)))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.Join(parts, sep))
}

func (m Model) serial() string {
	st := m.State
	label := session.StatusDisconnected
	if len(st.SerialStatus) > 0 {
		label = st.SerialStatus[0]
	}
	color := theme.SerialStatusColor(label, st.HasError && !st.Connected)
	text := label
	if st.Connected {
		text = fmt.Sprintf("%s %s @ %d", label, st.SelectedPort, st.SelectedBaud)
	} else if st.HasError && st.LastError != "" {
		text = label + ": " + st.LastError
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
