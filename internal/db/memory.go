package db

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/chepyr/charity-tasks/internal/apperr"
	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
)

var _ TaskStore = (*MemoryTaskStore)(nil)

// MemoryTaskStore is an in-process TaskStore with the same versioning
// rules as TaskRepository.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*models.Task
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[uuid.UUID]*models.Task),
	}
}

func (s *MemoryTaskStore) Create(_ context.Context, task *models.Task) error {
	if task.State != models.TaskStatePending || task.AssignedBenefactorID.Valid {
		return fmt.Errorf("task %s: new tasks must be pending without a benefactor", task.ID)
	}
	if task.Version == 0 {
		task.Version = 1
	}
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// Get returns a copy so callers cannot mutate stored state.
func (s *MemoryTaskStore) Get(_ context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, apperr.NotFound("Task not found")
	}
	return task.Clone(), nil
}

func (s *MemoryTaskStore) Save(_ context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[task.ID]
	if !ok {
		return apperr.NotFound("Task not found")
	}
	if stored.Version != task.Version {
		return apperr.ErrVersionConflict
	}

	next := task.Clone()
	next.CharityID = stored.CharityID
	next.CreatedAt = stored.CreatedAt
	next.Version = stored.Version + 1
	s.tasks[task.ID] = next
	task.Version = next.Version
	return nil
}

func (s *MemoryTaskStore) ListForActor(_ context.Context, actor models.Actor, filters, exclusions map[string]string) iter.Seq2[*models.Task, error] {
	return func(yield func(*models.Task, error) bool) {
		for field := range filters {
			if _, ok := ListFields[field]; !ok {
				yield(nil, apperr.InvalidInput(fmt.Sprintf("cannot filter on %q", field)))
				return
			}
		}
		for field := range exclusions {
			if _, ok := ListFields[field]; !ok {
				yield(nil, apperr.InvalidInput(fmt.Sprintf("cannot exclude on %q", field)))
				return
			}
		}

		s.mu.RLock()
		var matched []*models.Task
		for _, task := range s.tasks {
			if actor.CanSee(task) && matchesAll(task, filters) && !matchesAny(task, exclusions) {
				matched = append(matched, task.Clone())
			}
		}
		s.mu.RUnlock()

		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID.String() < matched[j].ID.String()
		})
		for _, task := range matched {
			if !yield(task, nil) {
				return
			}
		}
	}
}

// fieldValue returns the stored value of a list field, or false when NULL.
func fieldValue(task *models.Task, field string) (string, bool) {
	switch field {
	case "state":
		return string(task.State), true
	case "charity_id":
		return task.CharityID.String(), true
	case "assigned_benefactor_id":
		if !task.AssignedBenefactorID.Valid {
			return "", false
		}
		return task.AssignedBenefactorID.UUID.String(), true
	case "title":
		return task.Title, true
	case "gender_limit":
		if task.GenderLimit == nil {
			return "", false
		}
		return string(*task.GenderLimit), true
	}
	return "", false
}

func matchesAll(task *models.Task, filters map[string]string) bool {
	for field, want := range filters {
		if got, ok := fieldValue(task, field); !ok || got != want {
			return false
		}
	}
	return true
}

func matchesAny(task *models.Task, exclusions map[string]string) bool {
	for field, value := range exclusions {
		if got, ok := fieldValue(task, field); ok && got == value {
			return true
		}
	}
	return false
}
