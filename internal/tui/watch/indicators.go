package watch

import (
	"strings"
	"time"
)

const pulseWidth = 5

// Pulse lights up when the ledger changes between polls and fades out over
// the following ten seconds.
type Pulse struct {
	lit       int
	lastEvent time.Time
}

// Fire relights every dot.
func (p *Pulse) Fire(now time.Time) {
	p.lit = pulseWidth
	p.lastEvent = now
}

// Decay drops one dot per two seconds since the last change.
func (p *Pulse) Decay(now time.Time) {
	if p.lit == 0 {
		return
	}
	faded := int(now.Sub(p.lastEvent) / (2 * time.Second))
	p.lit = max(pulseWidth-faded, 0)
}

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for i := range pulseWidth {
		if i < p.lit {
			b.WriteString(theme.PulseActive.Render("●"))
		} else {
			b.WriteString(theme.PulseInactive.Render("○"))
		}
	}
	return b.String()
}

// LastChange is zero until the first change is seen.
func (p Pulse) LastChange() time.Time {
	return p.lastEvent
}
