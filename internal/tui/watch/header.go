package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/ensemblectl/internal/ledger"
)

// headerOrder is the order status totals appear in the header.
var headerOrder = []ledger.Status{
	ledger.StatusQueued,
	ledger.StatusSubmitted,
	ledger.StatusSucceeded,
	ledger.StatusFailed,
	ledger.StatusDryRun,
}

type headerState struct {
	counts      map[ledger.Status]int
	filter      ledger.Status
	plugin      string
	lastRefresh time.Time
	spinner     string
	pulse       Pulse
	now         time.Time
}

func renderHeader(h headerState, theme Theme, width int) string {
	innerWidth := max(width-4, 20)

	title := fmt.Sprintf(" ENSEMBLECTL WATCH %s", theme.Highlight.Render(h.spinner))
	clock := theme.Dim.Render(h.now.Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	parts := make([]string, 0, len(headerOrder)+1)
	total := 0
	for _, s := range headerOrder {
		n := h.counts[s]
		total += n
		parts = append(parts, theme.Status(s).Render(fmt.Sprintf("%s %s %d", glyph(s), s, n)))
	}
	statsLine := fmt.Sprintf(" Total %d  %s", total, strings.Join(parts, "  "))

	filter := "all"
	if h.filter != "" {
		filter = string(h.filter)
	}
	scope := fmt.Sprintf(" Filter: %s", filter)
	if h.plugin != "" {
		scope += fmt.Sprintf("  Plugin: %s", h.plugin)
	}

	refreshed := "never"
	if !h.lastRefresh.IsZero() {
		refreshed = fmt.Sprintf("%s ago", formatDuration(h.now.Sub(h.lastRefresh)))
	}
	changed := "never"
	if last := h.pulse.LastChange(); !last.IsZero() {
		changed = fmt.Sprintf("%s ago", formatDuration(h.now.Sub(last)))
	}
	activity := fmt.Sprintf(" Refreshed %s  Last change %s %s", refreshed, changed, h.pulse.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, scope, activity)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
