package timer

import (
	"sort"
	"strconv"
	"time"

	"github.com/alanbuscaglia/toggl-mcp/internal/toggl"
)

// Summary aggregates a set of entries.
//
// Only completed entries with a positive duration count toward
// TotalSeconds, EntryCount, AverageSeconds and the tallies. Running entries
// are listed under Running with their elapsed time; zero-length entries
// are only listed in Entries.
type Summary struct {
	Days           int         `json:"days"`
	Since          time.Time   `json:"since"`
	Until          time.Time   `json:"until"`
	TotalSeconds   int64       `json:"total_seconds"`
	EntryCount     int         `json:"entry_count"`
	AverageSeconds int64       `json:"average_seconds"`
	RunningCount   int         `json:"running_count"`
	Running        []EntryView `json:"running,omitempty"`
	ByDescription  []Tally     `json:"by_description"`
	ByProject      []Tally     `json:"by_project"`
	Entries        []EntryView `json:"entries"`
}

// EntryView is the host-facing shape of one entry.
type EntryView struct {
	ID              int64     `json:"id"`
	Description     string    `json:"description"`
	ProjectID       *int64    `json:"project_id,omitempty"`
	Start           time.Time `json:"start"`
	DurationSeconds int64     `json:"duration_seconds"`
	Duration        string    `json:"duration"`
	Running         bool      `json:"running"`
}

// Tally is the tracked time of one group.
type Tally struct {
	Key     string `json:"key"`
	Seconds int64  `json:"seconds"`
	Count   int    `json:"count"`
}

const (
	noDescription = "No description"
	noProject     = "No project"
)

// Summarize computes the Summary of entries as seen at now. Entries are
// returned newest first.
func Summarize(entries []toggl.TimeEntry, now time.Time) *Summary {
	sum := &Summary{
		ByDescription: []Tally{},
		ByProject:     []Tally{},
		Entries:       make([]EntryView, 0, len(entries)),
	}
	byDesc := map[string]*Tally{}
	byProject := map[string]*Tally{}

	for _, e := range entries {
		view := newEntryView(e, now)
		sum.Entries = append(sum.Entries, view)

		if e.Running() {
			sum.RunningCount++
			sum.Running = append(sum.Running, view)
			continue
		}
		if e.Duration == 0 {
			continue
		}
		sum.TotalSeconds += e.Duration
		sum.EntryCount++
		addTally(byDesc, view.Description, e.Duration)
		addTally(byProject, projectKey(e.ProjectID), e.Duration)
	}

	if sum.EntryCount > 0 {
		sum.AverageSeconds = sum.TotalSeconds / int64(sum.EntryCount)
	}
	sort.SliceStable(sum.Entries, func(i, j int) bool {
		return sum.Entries[i].Start.After(sum.Entries[j].Start)
	})
	sum.ByDescription = sortedTallies(byDesc)
	sum.ByProject = sortedTallies(byProject)
	return sum
}

// addCurrent reports current as running unless the listed entries already
// include it.
func (s *Summary) addCurrent(current *toggl.TimeEntry, now time.Time) {
	if current == nil || !current.Running() {
		return
	}
	for _, r := range s.Running {
		if r.ID == current.ID {
			return
		}
	}
	s.RunningCount++
	s.Running = append(s.Running, newEntryView(*current, now))
}

func newEntryView(e toggl.TimeEntry, now time.Time) EntryView {
	desc := e.Description
	if desc == "" {
		desc = noDescription
	}
	secs := e.Elapsed(now)
	return EntryView{
		ID:              e.ID,
		Description:     desc,
		ProjectID:       e.ProjectID,
		Start:           e.Start,
		DurationSeconds: secs,
		Duration:        FormatDuration(secs),
		Running:         e.Running(),
	}
}

func projectKey(id *int64) string {
	if id == nil {
		return noProject
	}
	return "project " + strconv.FormatInt(*id, 10)
}

func addTally(m map[string]*Tally, key string, secs int64) {
	t, ok := m[key]
	if !ok {
		t = &Tally{Key: key}
		m[key] = t
	}
	t.Seconds += secs
	t.Count++
}

func sortedTallies(m map[string]*Tally) []Tally {
	out := make([]Tally, 0, len(m))
	for _, t := range m {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds > out[j].Seconds
		}
		return out[i].Key < out[j].Key
	})
	return out
}
