// Package tui is the default interactive renderer for `campers run`: a
// bubbletea program that polls the Event Bus and renders instance status,
// sync state, and the scrolling command log. Grounded on quarry's
// cli/tui package (tea.Model shape, lipgloss palette), read-only per
// spec.md §4.E1's single-producer-many-consumer contract — this model
// only ever calls Bus.Drain, never Publish.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(labelWidth)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	logStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "running", "launching":
		return lipgloss.NewStyle().Foreground(warningColor)
	case "stopping", "terminating":
		return lipgloss.NewStyle().Foreground(mutedColor)
	case "error":
		return lipgloss.NewStyle().Foreground(errorColor)
	default:
		return lipgloss.NewStyle().Foreground(successColor)
	}
}
