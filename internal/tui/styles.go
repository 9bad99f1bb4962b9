package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorCyan   = lipgloss.Color("#00FFFF")
	ColorGray   = lipgloss.Color("#666666")
	ColorRed    = lipgloss.Color("#FF0000")
	ColorYellow = lipgloss.Color("#FFFF00")
	ColorWhite  = lipgloss.Color("#FFFFFF")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	CaptionStyle = lipgloss.NewStyle().
			Foreground(ColorWhite).
			Bold(true)

	// Older lines in the caption window.
	DimmedCaptionStyle = lipgloss.NewStyle().
				Foreground(ColorGray).
				Faint(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)
)
