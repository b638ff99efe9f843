package events

import (
	"context"
	"errors"
	"time"

	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
)

type Type string

const (
	TaskCreated   Type = "task_created"
	TaskRequested Type = "task_requested"
	TaskAccepted  Type = "task_accepted"
	TaskRejected  Type = "task_rejected"
	TaskCompleted Type = "task_completed"
)

// Event describes one lifecycle change of a task.
type Event struct {
	Type      Type             `json:"event"`
	TaskID    uuid.UUID        `json:"task_id"`
	CharityID uuid.UUID        `json:"charity_id"`
	State     models.TaskState `json:"state"`
	// Unset for task_created and task_rejected.
	BenefactorID uuid.NullUUID `json:"benefactor_id"`
	Title        string        `json:"title"`
	At           time.Time     `json:"at"`
}

// New builds an event from the task after the change.
func New(typ Type, task *models.Task) Event {
	return Event{
		Type:         typ,
		TaskID:       task.ID,
		CharityID:    task.CharityID,
		State:        task.State,
		BenefactorID: task.AssignedBenefactorID,
		Title:        task.Title,
		At:           task.UpdatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Forward publishes every event received on src to dst until src closes.
// Publish failures are passed to onErr when it is set.
func Forward(ctx context.Context, src <-chan Event, dst Publisher, onErr func(error)) {
	for event := range src {
		if err := dst.Publish(ctx, event); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
