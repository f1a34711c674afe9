package report

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colour palette used for terminal output.
type Theme struct {
	// Primary colours document titles.
	Primary lipgloss.Color

	// Secondary colours section titles.
	Secondary lipgloss.Color

	// Muted is for field labels and table rules.
	Muted lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:   lipgloss.Color("#7C3AED"), // Purple
		Secondary: lipgloss.Color("#06B6D4"), // Cyan
		Muted:     lipgloss.Color("#6C7086"), // Medium gray
		Success:   lipgloss.Color("#A6E3A1"), // Green
		Warning:   lipgloss.Color("#F9E2AF"), // Yellow
		Error:     lipgloss.Color("#F38BA8"), // Red
	}
}

// Styles contains pre-configured lipgloss styles.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Label    lipgloss.Style
	Header   lipgloss.Style
	Muted    lipgloss.Style
	Warning  lipgloss.Style
}

// NewStyles creates styles from a theme. A nil theme uses DefaultTheme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Primary),
		Subtitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Secondary),
		Label: lipgloss.NewStyle().
			Foreground(theme.Muted),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Success),
		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),
		Warning: lipgloss.NewStyle().
			Foreground(theme.Warning),
	}
}

// PlainStyles returns styles that add no escape sequences.
func PlainStyles() *Styles {
	s := lipgloss.NewStyle()
	return &Styles{Title: s, Subtitle: s, Label: s, Header: s, Muted: s, Warning: s}
}
