// Package theme provides the Lip Gloss palette and shared styles for the
// river TUI. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Connection colors.
var (
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorDisconnected = lipgloss.Color("#9ca3af")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorError        = lipgloss.Color("#dc2626")
)

// Data colors.
var (
	ColorVoltage  = lipgloss.Color("#06b6d4")
	ColorEnsemble = lipgloss.Color("#a855f7")
	ColorRaw      = lipgloss.Color("#d1d5db")
	ColorBreak    = lipgloss.Color("#f59e0b")
)

// Voltage thresholds for the gauge.
var (
	ColorVoltageLow  = lipgloss.Color("#dc2626")
	ColorVoltageOK   = lipgloss.Color("#22c55e")
	ColorVoltageHigh = lipgloss.Color("#d97706")
)

// UI chrome colors.
var (
	ColorBorder = lipgloss.Color("#4b5563")
	ColorDimmed = lipgloss.Color("#6b7280")
	ColorBright = lipgloss.Color("#f9fafb")
	ColorAccent = lipgloss.Color("#3b82f6")
)

// SerialStatusColor maps the first serial_status entry to a color.
func SerialStatusColor(status string, hasError bool) lipgloss.Color {
	switch {
	case hasError:
		return ColorError
	case status == "Connected":
		return ColorConnected
	default:
		return ColorDisconnected
	}
}

// VoltageColor colors a reading against [low, high].
func VoltageColor(v, low, high float64) lipgloss.Color {
	switch {
	case v < low:
		return ColorVoltageLow
	case v > high:
		return ColorVoltageHigh
	default:
		return ColorVoltageOK
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)
)

// Panel is the bordered box used by every view.
func Panel(width int) lipgloss.Style {
	if width < 10 {
		width = 10
	}
	return StyleBorder.Width(width - 2).Padding(0, 1)
}
