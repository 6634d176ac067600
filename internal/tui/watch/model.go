package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/ensemblectl/internal/ledger"
)

// DefaultInterval is the ledger polling period.
const DefaultInterval = 2 * time.Second

const detailTailLines = 8

// filterCycle is the order the status filter steps through on "f".
var filterCycle = []ledger.Status{
	"",
	ledger.StatusQueued,
	ledger.StatusSubmitted,
	ledger.StatusSucceeded,
	ledger.StatusFailed,
	ledger.StatusDryRun,
}

// Options configures the watch view.
type Options struct {
	Plugin   string
	Limit    int
	Interval time.Duration
}

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	source Source
	opts   Options
	filter ledger.Status

	width  int
	height int

	submissions []ledger.Submission
	counts      map[ledger.Status]int
	lastRefresh time.Time
	seen        string

	table   table.Model
	detail  viewport.Model
	spinner spinner.Model
	pulse   Pulse
	theme   Theme

	lastError string
	now       func() time.Time
}

// New creates a new watch TUI model.
func New(source Source, opts Options) *Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Model{
		source:  source,
		opts:    opts,
		counts:  map[ledger.Status]int{},
		table:   newSubmissionTable(),
		detail:  viewport.New(80, detailTailLines+4),
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		theme:   NewDefaultTheme(),
		now:     time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refresh(),
		tick(m.opts.Interval),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func (m Model) refresh() tea.Cmd {
	return fetchSnapshot(m.source, ledger.ListFilter{
		Plugin: m.opts.Plugin,
		Status: m.filter,
		Limit:  m.opts.Limit,
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		case "f":
			m.filter = nextFilter(m.filter)
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-6, 20))
		m.table.SetHeight(max(m.height-(detailTailLines+20), 5))
		m.detail.Width = max(m.width-6, 20)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.pulse.Decay(m.now())
		return m, tea.Batch(m.refresh(), tick(m.opts.Interval))

	case snapshotMsg:
		fp := fingerprint(msg.submissions)
		if m.seen != "" && fp != m.seen {
			m.pulse.Fire(m.now())
		}
		m.seen = fp
		m.submissions = msg.submissions
		m.counts = msg.counts
		m.lastRefresh = msg.at
		m.lastError = ""
		m.table.SetRows(submissionRows(m.submissions, m.now()))
		m.syncDetail()
		return m, nil

	case errMsg:
		m.lastError = msg.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	m.syncDetail()
	return m, cmd
}

// syncDetail shows the selected submission in the detail pane.
func (m *Model) syncDetail() {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.submissions) {
		m.detail.SetContent(m.theme.Dim.Render("no submission selected"))
		return
	}
	m.detail.SetContent(renderDetail(m.submissions[i], m.theme))
}

func renderDetail(s ledger.Submission, theme Theme) string {
	lines := []string{
		fmt.Sprintf("%s  %s", s.ID, theme.Status(s.Status).Render(string(s.Status))),
		fmt.Sprintf("script %s  args%s", s.Script, s.Arguments),
	}
	if s.WorkspaceID != "" {
		lines = append(lines, "workspace "+s.WorkspaceID)
	}
	if s.ScanParameter != nil && s.ScanValue != nil {
		lines = append(lines, fmt.Sprintf("scan %s=%s", *s.ScanParameter, *s.ScanValue))
	}
	if s.LastError != nil {
		lines = append(lines, theme.StatusFailed.Render("error: "+*s.LastError))
	}
	if s.Output != nil {
		out := strings.Split(strings.TrimRight(*s.Output, "\n"), "\n")
		if len(out) > detailTailLines {
			out = out[len(out)-detailTailLines:]
		}
		for _, l := range out {
			lines = append(lines, theme.Dim.Render("  "+l))
		}
	}
	return strings.Join(lines, "\n")
}

func nextFilter(cur ledger.Status) ledger.Status {
	for i, s := range filterCycle {
		if s == cur {
			return filterCycle[(i+1)%len(filterCycle)]
		}
	}
	return ""
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading submissions..."
	}

	header := renderHeader(headerState{
		counts:      m.counts,
		filter:      m.filter,
		plugin:      m.opts.Plugin,
		lastRefresh: m.lastRefresh,
		spinner:     m.spinner.View(),
		pulse:       m.pulse,
		now:         m.now(),
	}, m.theme, m.width)

	body := m.table.View()
	if len(m.submissions) == 0 {
		body = m.theme.Dim.Render(" no submissions")
	}

	parts := []string{
		header,
		m.theme.Border.Render(body),
		m.theme.Border.Render(m.detail.View()),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Select • [f] Filter • [r] Refresh"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
