package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/ensemblectl/internal/ledger"
)

// Source is the read side of the submission ledger the TUI polls.
type Source interface {
	List(ctx context.Context, f ledger.ListFilter) ([]ledger.Submission, error)
	Counts(ctx context.Context) (map[ledger.Status]int, error)
}

const pollTimeout = 2 * time.Second

// --- Message types ---

type snapshotMsg struct {
	submissions []ledger.Submission
	counts      map[ledger.Status]int
	at          time.Time
}

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// --- Commands ---

// fetchSnapshot reads the filtered submission list and the status totals.
func fetchSnapshot(src Source, filter ledger.ListFilter) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()

		subs, err := src.List(ctx, filter)
		if err != nil {
			return errMsg{err}
		}
		counts, err := src.Counts(ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{submissions: subs, counts: counts, at: time.Now()}
	}
}

func tick(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// fingerprint changes whenever a visible submission changes status.
func fingerprint(subs []ledger.Submission) string {
	var b []byte
	for _, s := range subs {
		b = append(b, s.ID...)
		b = append(b, ':')
		b = append(b, s.Status...)
		b = append(b, ';')
	}
	return string(b)
}
