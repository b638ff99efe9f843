package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/chepyr/charity-tasks/internal/apperr"
	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
)

// TaskStore is the storage the service needs. Save must fail with
// apperr.ErrVersionConflict when the stored version differs from
// task.Version.
type TaskStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Save(ctx context.Context, task *models.Task) error
}

const DefaultMaxAttempts = 5

type Service struct {
	store       TaskStore
	maxAttempts int
	now         func() time.Time
}

type Option func(*Service)

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store TaskStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestTask records benefactorID's request on a Pending task.
func (s *Service) RequestTask(ctx context.Context, taskID, benefactorID uuid.UUID) (*models.Task, error) {
	return s.transition(ctx, taskID, func(task *models.Task) error {
		return Request(task, benefactorID)
	})
}

// RespondToRequest accepts or rejects the pending request on a Waiting task.
func (s *Service) RespondToRequest(ctx context.Context, taskID uuid.UUID, decision Decision) (*models.Task, error) {
	if decision != Accept && decision != Reject {
		return nil, apperr.InvalidInput(`decision is required ("Accept" or "Reject")`)
	}
	return s.transition(ctx, taskID, func(task *models.Task) error {
		return Respond(task, decision)
	})
}

// CompleteTask marks an Assigned task as Done.
func (s *Service) CompleteTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	return s.transition(ctx, taskID, Complete)
}

// transition reads the task, applies decide and saves it with the version
// that was read. A version conflict means another transition won the
// race, so the decision is re-evaluated against the fresh record.
func (s *Service) transition(ctx context.Context, taskID uuid.UUID, decide func(*models.Task) error) (*models.Task, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task, err := s.store.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if err := decide(task); err != nil {
			return nil, err
		}
		task.UpdatedAt = s.now()

		err = s.store.Save(ctx, task)
		if errors.Is(err, apperr.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return task, nil
	}
	return nil, apperr.Conflict("Task is being modified concurrently, try again.")
}
