package component

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/fairlaunch/internal/ui/style"
)

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a mini graph of the most recent spot prices of a curve.
type Sparkline struct {
	data  []float64
	width int
	color lipgloss.Color
}

// NewSparkline creates a new sparkline component
func NewSparkline(width int) *Sparkline {
	return &Sparkline{
		data:  make([]float64, 0, width),
		width: width,
		color: style.DefaultPalette().Primary,
	}
}

// Add appends a data point, keeping only the last width points.
func (s *Sparkline) Add(value float64) {
	s.data = append(s.data, value)
	if len(s.data) > s.width {
		s.data = s.data[len(s.data)-s.width:]
	}
}

// Len returns the number of points held.
func (s *Sparkline) Len() int { return len(s.data) }

// Trend returns an arrow for the direction of the last move.
func (s *Sparkline) Trend() string {
	if len(s.data) < 2 {
		return "→"
	}
	cur, prev := s.data[len(s.data)-1], s.data[len(s.data)-2]
	switch {
	case cur > prev:
		return "↗"
	case cur < prev:
		return "↘"
	default:
		return "→"
	}
}

// View renders the sparkline
func (s *Sparkline) View() string {
	return lipgloss.NewStyle().Foreground(s.color).Render(s.blocks())
}

func (s *Sparkline) blocks() string {
	if len(s.data) == 0 {
		return strings.Repeat("▁", s.width)
	}

	lo, hi := s.data[0], s.data[0]
	for _, v := range s.data {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	for _, v := range s.data {
		idx := len(sparkChars) / 2
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkChars)-1))
		}
		b.WriteRune(sparkChars[idx])
	}
	// pad by runes, not bytes
	if pad := s.width - len(s.data); pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	return b.String()
}
