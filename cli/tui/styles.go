// Package tui provides the opt-in (--tui) Bubble Tea views of the uadp
// CLI: a live decoder dashboard and a pager over decoded messages. Both
// are read-only and render the same adapter.DecodedEvent values as the
// text and JSON output.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	purple = lipgloss.Color("#7C3AED")
	green  = lipgloss.Color("#10B981")
	amber  = lipgloss.Color("#F59E0B")
	red    = lipgloss.Color("#EF4444")
	gray   = lipgloss.Color("#6B7280")
	blue   = lipgloss.Color("#3B82F6")
	white  = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(purple).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(gray).Width(16)
	valueStyle = lipgloss.NewStyle().Foreground(white)
	helpStyle  = lipgloss.NewStyle().Foreground(gray).MarginTop(1)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(gray).Padding(1, 2)

	counterStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2).Width(20).Align(lipgloss.Center)
	counterLabel = lipgloss.NewStyle().Foreground(gray).Align(lipgloss.Center)
	counterValue = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
)

// kindColors colors a decoded message kind: schema-resolved frames are
// green, partial or liveness traffic amber, and frames that could not be
// resolved red.
var kindColors = map[string]lipgloss.Color{
	"key":       green,
	"delta":     green,
	"meta":      green,
	"chunk":     amber,
	"keepalive": amber,
	"dataframe": red,
	"envelope":  red,
}

func kindStyle(kind string) lipgloss.Style {
	if c, ok := kindColors[kind]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return valueStyle
}
