package models

import "time"

// Action is what a run did with one document.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionRemoved   Action = "removed"
	ActionMarked    Action = "marked"
	ActionSkipped   Action = "skipped"
	ActionUnchanged Action = "unchanged"
	ActionFailed    Action = "failed"
	ActionDeleted   Action = "deleted"
)

// Outcome is the result of processing one document.
type Outcome struct {
	Path     string `json:"path"`
	Action   Action `json:"action"`
	RecordID int64  `json:"record_id,omitempty"`
	Group    string `json:"group,omitempty"`
	// Checksum of the card pushed to the remote, empty when nothing was pushed.
	Checksum string `json:"checksum,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Report summarizes a sync run.
type Report struct {
	RunID      string    `json:"run_id,omitempty"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`

	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Removed     int `json:"removed"`
	Marked      int `json:"marked"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Quarantined int `json:"quarantined"`
}

// Add appends o and bumps the matching counter. Marked documents may also
// be created or updated in the same run, so marking is counted separately
// by the caller through Mark.
func (r *Report) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionRemoved:
		r.Removed++
	case ActionSkipped, ActionUnchanged:
		r.Skipped++
	case ActionFailed:
		r.Failed++
	}
}

// Mark counts a revision annotation.
func (r *Report) Mark() {
	r.Marked++
}

// RecordQuery selects remote records either by deck or by identity.
type RecordQuery struct {
	Group string
	IDs   []int64
}

// RecordSet is the result of a record query. Quarantined counts entries the
// remote returned that failed validation and were dropped.
type RecordSet struct {
	Records     []Record `json:"records"`
	Quarantined int      `json:"quarantined"`
}
