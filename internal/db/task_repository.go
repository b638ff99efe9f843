package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/chepyr/charity-tasks/internal/apperr"
	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
)

// TaskStore defines the contract for task persistence
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Save(ctx context.Context, task *models.Task) error
	ListForActor(ctx context.Context, actor models.Actor, filters, exclusions map[string]string) iter.Seq2[*models.Task, error]
}

var _ TaskStore = (*TaskRepository)(nil)

// ListFields maps the field names accepted by filters and exclusions to
// their columns.
var ListFields = map[string]string{
	"state":                  "state",
	"charity_id":             "charity_id",
	"assigned_benefactor_id": "assigned_benefactor_id",
	"title":                  "title",
	"gender_limit":           "gender_limit",
}

const taskColumns = `id, charity_id, assigned_benefactor_id, state, title, description,
 task_date, age_limit_from, age_limit_to, gender_limit, version, created_at, updated_at`

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.State != models.TaskStatePending || task.AssignedBenefactorID.Valid {
		return fmt.Errorf("task %s: new tasks must be pending without a benefactor", task.ID)
	}
	if task.Version == 0 {
		task.Version = 1
	}
	if err := task.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO tasks (id, charity_id, assigned_benefactor_id, state, title, description,
	 task_date, age_limit_from, age_limit_to, gender_limit, version, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.CharityID, task.AssignedBenefactorID, task.State, task.Title, task.Description,
		task.Date, task.AgeLimitFrom, task.AgeLimitTo, task.GenderLimit, task.Version,
		task.CreatedAt, task.UpdatedAt)
	return err
}

func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Task not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// Save overwrites the stored record when its version still equals
// task.Version, then bumps task.Version. charity_id is never rewritten.
func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	query := `UPDATE tasks SET state = $1, assigned_benefactor_id = $2, title = $3, description = $4,
	 task_date = $5, age_limit_from = $6, age_limit_to = $7, gender_limit = $8,
	 version = version + 1, updated_at = $9
	 WHERE id = $10 AND version = $11`

	res, err := r.db.ExecContext(ctx, query,
		task.State, task.AssignedBenefactorID, task.Title, task.Description,
		task.Date, task.AgeLimitFrom, task.AgeLimitTo, task.GenderLimit,
		task.UpdatedAt, task.ID, task.Version)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	if affected == 0 {
		var exists bool
		query = `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`
		if err := r.db.QueryRowContext(ctx, query, task.ID).Scan(&exists); err != nil {
			return fmt.Errorf("save task %s: %w", task.ID, err)
		}
		if !exists {
			return apperr.NotFound("Task not found")
		}
		return apperr.ErrVersionConflict
	}
	task.Version++
	return nil
}

// ListForActor returns the tasks visible to actor that match every filter
// and no exclusion. Each iteration runs the query again.
func (r *TaskRepository) ListForActor(ctx context.Context, actor models.Actor, filters, exclusions map[string]string) iter.Seq2[*models.Task, error] {
	query, args, buildErr := buildListQuery(actor, filters, exclusions)
	return func(yield func(*models.Task, error) bool) {
		if buildErr != nil {
			yield(nil, buildErr)
			return
		}
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("list tasks: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				yield(nil, fmt.Errorf("list tasks: %w", err))
				return
			}
			if !yield(task, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("list tasks: %w", err))
		}
	}
}

func buildListQuery(actor models.Actor, filters, exclusions map[string]string) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var visible []string
	if actor.CharityID.Valid {
		visible = append(visible, "charity_id = "+arg(actor.CharityID.UUID))
	}
	if actor.BenefactorID.Valid {
		visible = append(visible, "state = "+arg(models.TaskStatePending))
		visible = append(visible, "assigned_benefactor_id = "+arg(actor.BenefactorID.UUID))
	}
	if len(visible) == 0 {
		visible = append(visible, "1 = 0")
	}
	where = append(where, "("+strings.Join(visible, " OR ")+")")

	for _, field := range sortedKeys(filters) {
		column, ok := ListFields[field]
		if !ok {
			return "", nil, apperr.InvalidInput(fmt.Sprintf("cannot filter on %q", field))
		}
		where = append(where, column+" = "+arg(filters[field]))
	}
	for _, field := range sortedKeys(exclusions) {
		column, ok := ListFields[field]
		if !ok {
			return "", nil, apperr.InvalidInput(fmt.Sprintf("cannot exclude on %q", field))
		}
		where = append(where, fmt.Sprintf("(%s IS NULL OR %s <> %s)", column, column, arg(exclusions[field])))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id`
	return query, args, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	err := row.Scan(
		&task.ID, &task.CharityID, &task.AssignedBenefactorID, &task.State, &task.Title, &task.Description,
		&task.Date, &task.AgeLimitFrom, &task.AgeLimitTo, &task.GenderLimit, &task.Version,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}
