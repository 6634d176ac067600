// Package watch implements the `job watch` TUI: a live, polling view of the
// submission ledger.
package watch

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/ensemblectl/internal/ledger"
)

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	StatusQueued    lipgloss.Style
	StatusSubmitted lipgloss.Style
	StatusSucceeded lipgloss.Style
	StatusFailed    lipgloss.Style
	StatusDryRun    lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	PulseActive   lipgloss.Style
	PulseInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusQueued:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		StatusSubmitted: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusSucceeded: lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusDryRun:    lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		PulseActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		PulseInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// Status returns the style for a submission status.
func (t Theme) Status(s ledger.Status) lipgloss.Style {
	switch s {
	case ledger.StatusSubmitted:
		return t.StatusSubmitted
	case ledger.StatusSucceeded:
		return t.StatusSucceeded
	case ledger.StatusFailed:
		return t.StatusFailed
	case ledger.StatusDryRun:
		return t.StatusDryRun
	default:
		return t.StatusQueued
	}
}

// glyph is the one-cell status marker shown in the table.
func glyph(s ledger.Status) string {
	switch s {
	case ledger.StatusSubmitted:
		return "▶"
	case ledger.StatusSucceeded:
		return "✓"
	case ledger.StatusFailed:
		return "✗"
	case ledger.StatusDryRun:
		return "○"
	default:
		return "…"
	}
}
