package models

import (
	"fmt"
	"time"
)

// ImportRun is the audit record of one follow-list import.
type ImportRun struct {
	ID         string
	State      string
	Pages      int
	Fetched    int
	Added      int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewImportRun starts a run record in the given state.
func NewImportRun(id, state string) *ImportRun {
	return &ImportRun{ID: id, State: state, StartedAt: time.Now().UTC()}
}

// Finish stamps the run with its terminal state and the error text, if any.
func (r *ImportRun) Finish(state string, err error) {
	now := time.Now().UTC()
	r.State = state
	r.FinishedAt = &now
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration is zero until the run has finished.
func (r *ImportRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks required fields.
func (r *ImportRun) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("import run id is required")
	}
	if r.State == "" {
		return fmt.Errorf("import run state is required")
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("import run start time is required")
	}
	return nil
}
