package analytics

import "time"

// Period is a named trailing insight window.
type Period struct {
	Label  string
	Window time.Duration
}

var periods = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// DefaultPeriod is used for unknown labels.
var DefaultPeriod = Period{Label: "24h", Window: 24 * time.Hour}

// ParsePeriod resolves a label; anything unrecognised falls back to DefaultPeriod.
func ParsePeriod(label string) Period {
	if window, ok := periods[label]; ok {
		return Period{Label: label, Window: window}
	}
	return DefaultPeriod
}

// Start returns the first instant of the period ending at now.
func (p Period) Start(now time.Time) time.Time {
	return now.Add(-p.Window)
}
