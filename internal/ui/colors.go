package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// struct Palette groups the [lipgloss.Style] accents used by the status
// line; the list widgets carry their own styling.
type Palette struct {
	ok   lipgloss.Style
	warn lipgloss.Style
	err  lipgloss.Style
	dim  lipgloss.Style
}

var styles = Palette{
	ok:   accent("#04B575").Bold(true),
	warn: accent("#FFA500"),
	err:  accent("#FF5F5F").Bold(true),
	dim:  accent("#626262").Italic(true),
}

func accent(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}
