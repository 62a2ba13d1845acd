package ui

import "github.com/charmbracelet/lipgloss"

// Color palette - asitop-inspired lime green theme
// Single accent color for professional, distinctive look
const (
	ColorLime     = "154" // Primary accent (#AFFF00) - bright lime green
	ColorLimeDim  = "106" // Dimmed lime for secondary accents
	ColorWhite    = "255" // Headers, important text
	ColorGray     = "245" // Secondary text, labels
	ColorDarkGray = "238" // Separators, snippets
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings, degraded sources
)

// Styles holds all styles for terminal rendering.
type Styles struct {
	Header  lipgloss.Style
	Rank    lipgloss.Style
	Score   lipgloss.Style
	Source  lipgloss.Style
	Level   lipgloss.Style
	Snippet lipgloss.Style
	Label   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
}

// DefaultStyles returns styled components for color-capable terminals.
// Uses asitop-inspired lime green palette.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Rank:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Source:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLimeDim)),
		Level:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Snippet: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWhite)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Rank:    lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Source:  lipgloss.NewStyle(),
		Level:   lipgloss.NewStyle(),
		Snippet: lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
