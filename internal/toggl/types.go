package toggl

import "time"

// RunningDuration is the duration Toggl expects when creating a running
// entry. Entries read back while running carry some negative duration.
const RunningDuration int64 = -1

// TimeEntry is a transient view over a Toggl time entry.
type TimeEntry struct {
	ID          int64
	WorkspaceID int64
	ProjectID   *int64
	Description string
	Tags        []string
	Start       time.Time
	Stop        *time.Time
	Duration    int64 // seconds; negative while running
}

// Running reports whether the entry is still accumulating time.
func (e TimeEntry) Running() bool {
	return e.Duration < 0
}

// Elapsed returns the tracked seconds, computing them from Start for a
// running entry.
func (e TimeEntry) Elapsed(now time.Time) int64 {
	if !e.Running() {
		return e.Duration
	}
	if e.Start.IsZero() || now.Before(e.Start) {
		return 0
	}
	return int64(now.Sub(e.Start) / time.Second)
}

// User is the subset of GET /me this adapter needs.
type User struct {
	ID                 int64
	Email              string
	Fullname           string
	DefaultWorkspaceID int64
	Timezone           string
}

// NewEntry describes a timer to start.
type NewEntry struct {
	Description string
	ProjectID   *int64
	Tags        []string
}

// rawTimeEntry mirrors the JSON from Toggl v9.
type rawTimeEntry struct {
	ID          int64      `json:"id"`
	WorkspaceID int64      `json:"workspace_id"`
	ProjectID   *int64     `json:"project_id"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	Start       time.Time  `json:"start"`
	Stop        *time.Time `json:"stop"`
	Duration    int64      `json:"duration"`
}

func (r rawTimeEntry) toEntry() TimeEntry {
	var project *int64
	if r.ProjectID != nil {
		p := *r.ProjectID
		project = &p
	}
	var stop *time.Time
	if r.Stop != nil {
		s := r.Stop.UTC()
		stop = &s
	}
	return TimeEntry{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		ProjectID:   project,
		Description: r.Description,
		Tags:        r.Tags,
		Start:       r.Start.UTC(),
		Stop:        stop,
		Duration:    r.Duration,
	}
}

type rawUser struct {
	ID                 int64  `json:"id"`
	Email              string `json:"email"`
	Fullname           string `json:"fullname"`
	DefaultWorkspaceID int64  `json:"default_workspace_id"`
	Timezone           string `json:"timezone"`
}

type createEntryRequest struct {
	Description string   `json:"description"`
	Start       string   `json:"start"`
	Duration    int64    `json:"duration"`
	CreatedWith string   `json:"created_with"`
	WorkspaceID int64    `json:"workspace_id"`
	ProjectID   *int64   `json:"project_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type stopEntryRequest struct {
	Stop string `json:"stop"`
}
