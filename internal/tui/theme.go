package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	Header   lipgloss.Style
	Frame    lipgloss.Style
	Muted    lipgloss.Style
	Selected lipgloss.Style
	Success  lipgloss.Style
	Pending  lipgloss.Style
	Danger   lipgloss.Style
	Input    lipgloss.Style
}

func defaultTheme() theme {
	accent := lipgloss.Color("#00FFFF")
	secondary := lipgloss.Color("#7D7D7D")
	success := lipgloss.Color("#00FF00")
	pending := lipgloss.Color("#5F87FF")
	danger := lipgloss.Color("#FF0055")

	return theme{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		Frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		Muted: lipgloss.NewStyle().
			Foreground(secondary),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		Success: lipgloss.NewStyle().
			Foreground(success),
		Pending: lipgloss.NewStyle().
			Foreground(pending),
		Danger: lipgloss.NewStyle().
			Foreground(danger),
		Input: lipgloss.NewStyle().
			Underline(true).
			Foreground(accent),
	}
}
