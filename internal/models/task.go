package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TaskState string

const (
	TaskStatePending  TaskState = "Pending"
	TaskStateWaiting  TaskState = "Waiting"
	TaskStateAssigned TaskState = "Assigned"
	TaskStateDone     TaskState = "Done"
)

func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateWaiting, TaskStateAssigned, TaskStateDone:
		return true
	default:
		return false
	}
}

// HasBenefactor reports whether a task in this state must carry an
// assigned benefactor.
func (s TaskState) HasBenefactor() bool {
	return s == TaskStateWaiting || s == TaskStateAssigned || s == TaskStateDone
}

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

type Task struct {
	ID                   uuid.UUID     `json:"id"`
	CharityID            uuid.UUID     `json:"charity_id"`
	AssignedBenefactorID uuid.NullUUID `json:"assigned_benefactor_id"`
	State                TaskState     `json:"state"`
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	Date                 *time.Time    `json:"date,omitempty"`
	AgeLimitFrom         *int          `json:"age_limit_from,omitempty"`
	AgeLimitTo           *int          `json:"age_limit_to,omitempty"`
	GenderLimit          *Gender       `json:"gender_limit,omitempty"`
	Version              int64         `json:"version"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Validate checks the field-level constraints every stored task must hold.
func (t *Task) Validate() error {
	if t.CharityID == uuid.Nil {
		return fmt.Errorf("task %s: charity_id is required", t.ID)
	}
	if !t.State.Valid() {
		return fmt.Errorf("task %s: invalid state %q", t.ID, t.State)
	}
	if t.State.HasBenefactor() != t.AssignedBenefactorID.Valid {
		return fmt.Errorf("task %s: assigned benefactor does not match state %s", t.ID, t.State)
	}
	if t.GenderLimit != nil && *t.GenderLimit != GenderMale && *t.GenderLimit != GenderFemale {
		return fmt.Errorf("task %s: invalid gender limit %q", t.ID, *t.GenderLimit)
	}
	if t.AgeLimitFrom != nil && t.AgeLimitTo != nil && *t.AgeLimitFrom > *t.AgeLimitTo {
		return fmt.Errorf("task %s: age_limit_from exceeds age_limit_to", t.ID)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate it without touching
// the original.
func (t *Task) Clone() *Task {
	c := *t
	if t.Date != nil {
		d := *t.Date
		c.Date = &d
	}
	if t.AgeLimitFrom != nil {
		v := *t.AgeLimitFrom
		c.AgeLimitFrom = &v
	}
	if t.AgeLimitTo != nil {
		v := *t.AgeLimitTo
		c.AgeLimitTo = &v
	}
	if t.GenderLimit != nil {
		g := *t.GenderLimit
		c.GenderLimit = &g
	}
	return &c
}
