package timer

import (
	"fmt"
	"strings"
	"time"
)

// recentEntries is how many completed entries the stats text lists.
const recentEntries = 10

// FormatDuration renders seconds as "1h 2m 3s", "2m 3s" or "3s". Negative
// values are the running marker.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		return "Running..."
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func formatStart(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// Text renders the confirmation shown to the user.
func (r *StartResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Timer started: %q (ID: %d)\nStarted: %s UTC", r.Description, r.EntryID, formatStart(r.StartTime))
	if r.ProjectID != nil {
		fmt.Fprintf(&b, "\nProject: %d", *r.ProjectID)
	}
	return b.String()
}

func (r *StopResult) Text() string {
	if !r.Stopped {
		return "No timer is currently running. Nothing to stop."
	}
	return fmt.Sprintf("Timer stopped: %q (ID: %d) - Duration: %s", r.Description, r.EntryID, FormatDuration(r.duration()))
}

func (r *StopResult) duration() int64 {
	if r.DurationSeconds == nil {
		return 0
	}
	return *r.DurationSeconds
}

func (s *Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Timer Stats (Last %d days):\n\n", s.Days)

	if len(s.Running) == 0 {
		b.WriteString("No timer currently running\n\n")
	}
	for _, r := range s.Running {
		fmt.Fprintf(&b, "Currently Running: %q - %s\n\n", r.Description, FormatDuration(r.DurationSeconds))
	}

	if len(s.Entries) == 0 {
		b.WriteString("No time entries found for the selected period.")
		return b.String()
	}

	fmt.Fprintf(&b, "Total Time Tracked: %s\n", FormatDuration(s.TotalSeconds))
	fmt.Fprintf(&b, "Number of Entries: %d\n", s.EntryCount)
	if s.EntryCount == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "Average Entry Duration: %s\n", FormatDuration(s.AverageSeconds))

	if len(s.ByDescription) > 1 {
		b.WriteString("\nBy Description:\n")
		for _, t := range s.ByDescription {
			fmt.Fprintf(&b, "  %s - %s (%d)\n", t.Key, FormatDuration(t.Seconds), t.Count)
		}
	}
	if len(s.ByProject) > 1 {
		b.WriteString("\nBy Project:\n")
		for _, t := range s.ByProject {
			fmt.Fprintf(&b, "  %s - %s (%d)\n", t.Key, FormatDuration(t.Seconds), t.Count)
		}
	}

	b.WriteString("\nRecent Entries:\n")
	shown := 0
	for _, e := range s.Entries {
		if e.Running || e.DurationSeconds <= 0 {
			continue
		}
		if shown == recentEntries {
			break
		}
		fmt.Fprintf(&b, "• %s - %s (started: %s)\n", e.Description, e.Duration, formatStart(e.Start))
		shown++
	}
	return b.String()
}
