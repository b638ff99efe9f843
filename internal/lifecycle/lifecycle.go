// Package lifecycle implements the task state machine:
//
//	Pending --request--> Waiting --accept--> Assigned --complete--> Done
//	   ^                    |
//	   +------reject--------+
//
// The decision functions only check state preconditions; callers verify
// who the actor is before invoking them.
package lifecycle

import (
	"fmt"

	"github.com/chepyr/charity-tasks/internal/apperr"
	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
)

type Decision int

const (
	Accept Decision = iota + 1
	Reject
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "Accept"
	case Reject:
		return "Reject"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// ParseDecision accepts exactly "Accept" or "Reject".
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "Accept":
		return Accept, nil
	case "Reject":
		return Reject, nil
	default:
		return 0, apperr.InvalidInput(`decision is required ("Accept" or "Reject")`)
	}
}

const (
	detailNotPending  = "This task is not pending."
	detailNotWaiting  = "This task is not waiting."
	detailNotAssigned = "Task is not assigned yet."
)

// Request moves a Pending task to Waiting for benefactorID.
func Request(task *models.Task, benefactorID uuid.UUID) error {
	if benefactorID == uuid.Nil {
		return apperr.InvalidInput("benefactor is required")
	}
	if task.State != models.TaskStatePending {
		return apperr.InvalidState(detailNotPending)
	}
	task.State = models.TaskStateWaiting
	task.AssignedBenefactorID = uuid.NullUUID{UUID: benefactorID, Valid: true}
	return nil
}

// Respond applies the charity's decision to a Waiting task.
func Respond(task *models.Task, decision Decision) error {
	if decision != Accept && decision != Reject {
		return apperr.InvalidInput(`decision is required ("Accept" or "Reject")`)
	}
	if task.State != models.TaskStateWaiting {
		return apperr.InvalidState(detailNotWaiting)
	}
	switch decision {
	case Accept:
		task.State = models.TaskStateAssigned
	case Reject:
		task.State = models.TaskStatePending
		task.AssignedBenefactorID = uuid.NullUUID{}
	}
	return nil
}

// Complete moves an Assigned task to Done.
func Complete(task *models.Task) error {
	if task.State != models.TaskStateAssigned {
		return apperr.InvalidState(detailNotAssigned)
	}
	task.State = models.TaskStateDone
	return nil
}
