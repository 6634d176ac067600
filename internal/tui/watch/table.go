package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/ensemblectl/internal/ledger"
)

const shortIDLen = 8

func newSubmissionTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "ID", Width: shortIDLen},
			{Title: "Kind", Width: 8},
			{Title: "Plugin", Width: 14},
			{Title: "Config", Width: 10},
			{Title: "Machine", Width: 10},
			{Title: "Label", Width: 14},
			{Title: "Job", Width: 10},
			{Title: "Age", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func submissionRows(subs []ledger.Submission, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(subs))
	for _, s := range subs {
		jobID := ""
		if s.BackendJobID != nil {
			jobID = *s.BackendJobID
		}
		rows = append(rows, table.Row{
			glyph(s.Status),
			shortID(s.ID),
			s.Kind,
			s.Plugin,
			s.Config,
			s.Machine,
			s.Label,
			jobID,
			formatDuration(now.Sub(s.CreatedAt)),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}
