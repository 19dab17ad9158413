package style

import "github.com/charmbracelet/lipgloss"

var (
	Cyan    = lipgloss.Color("#00E5FF")
	Magenta = lipgloss.Color("#FF1B6B")
	Yellow  = lipgloss.Color("#FFB500")
	Green   = lipgloss.Color("#2AFFAA")
	Red     = lipgloss.Color("#FF5555")
	Blue    = lipgloss.Color("#3B82F6")

	Base03 = lipgloss.Color("#1B1D23")
	Base01 = lipgloss.Color("#6C7280")
	Base2  = lipgloss.Color("#ECEFF4")
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Info      lipgloss.Color

	Background lipgloss.Color
	Text       lipgloss.Color
	TextMuted  lipgloss.Color

	Buy       lipgloss.Color
	Sell      lipgloss.Color
	Completed lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Info:      Blue,

		Background: Base03,
		Text:       Base2,
		TextMuted:  Base01,

		Buy:       Green,
		Sell:      Red,
		Completed: Yellow,
	}
}

// Styles used across the dashboard.
var (
	Title = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Base01).
		Padding(0, 1)

	Header = lipgloss.NewStyle().
		Foreground(Magenta).
		Bold(true)

	Muted = lipgloss.NewStyle().Foreground(Base01)
	Buy   = lipgloss.NewStyle().Foreground(Green)
	Sell  = lipgloss.NewStyle().Foreground(Red)
	Done  = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	Error = lipgloss.NewStyle().Foreground(Red).Bold(true)
)
