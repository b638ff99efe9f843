package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chepyr/charity-tasks/internal/apperr"
	"github.com/chepyr/charity-tasks/internal/db"
	"github.com/chepyr/charity-tasks/internal/events"
	"github.com/chepyr/charity-tasks/internal/lifecycle"
	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
)

const (
	maxTitleLength = 60
	excludePrefix  = "exclude_"
)

type createTaskInput struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Date         *string `json:"date"`
	AgeLimitFrom *int    `json:"age_limit_from"`
	AgeLimitTo   *int    `json:"age_limit_to"`
	GenderLimit  *string `json:"gender_limit"`
}

type responseInput struct {
	Decision string `json:"decision"`
}

// HandleTasks serves GET (list visible tasks) and POST (create) on /tasks.
func (h *Handler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTasks(w, r)
	case http.MethodPost:
		h.createTask(w, r)
	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleTaskByID serves /tasks/{id} and /tasks/{id}/{request,response,complete}.
func (h *Handler) HandleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/")
	idPart, action, _ := strings.Cut(rest, "/")
	taskID, err := uuid.Parse(idPart)
	if err != nil {
		sendError(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.getTask(w, r, taskID)
	case "request", "response", "complete":
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch action {
		case "request":
			h.requestTask(w, r, taskID)
		case "response":
			h.respondToRequest(w, r, taskID)
		case "complete":
			h.completeTask(w, r, taskID)
		}
	default:
		sendError(w, "Not found", http.StatusNotFound)
	}
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.sendAppError(w, err)
		return
	}

	filters, exclusions := listParams(r)

	ctx, cancel := h.requestContext(r)
	defer cancel()

	tasks := []*models.Task{}
	for task, err := range h.TaskRepo.ListForActor(ctx, actor, filters, exclusions) {
		if err != nil {
			h.log().Error("Error listing tasks", map[string]any{"error": err.Error()})
			sendError(w, "Cannot list tasks", http.StatusInternalServerError)
			return
		}
		tasks = append(tasks, task)
	}
	sendJSON(w, http.StatusOK, tasks)
}

// listParams reads "field=value" filters and "exclude_field=value"
// exclusions for every listable field. Empty values and other
// parameters are ignored.
func listParams(r *http.Request) (filters, exclusions map[string]string) {
	filters = map[string]string{}
	exclusions = map[string]string{}
	query := r.URL.Query()
	for field := range db.ListFields {
		if v := query.Get(field); v != "" {
			filters[field] = v
		}
		if v := query.Get(excludePrefix + field); v != "" {
			exclusions[field] = v
		}
	}
	return filters, exclusions
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	if !actor.IsCharity() {
		h.sendAppError(w, apperr.Forbidden("Only charities can create tasks"))
		return
	}

	var input createTaskInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendAppError(w, err)
		return
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:          uuid.New(),
		CharityID:   actor.CharityID.UUID,
		State:       models.TaskStatePending,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := input.apply(task); err != nil {
		h.sendAppError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.TaskRepo.Create(ctx, task); err != nil {
		h.log().Error("Cannot save task", map[string]any{"error": err.Error()})
		sendError(w, "Cannot save task", http.StatusInternalServerError)
		return
	}

	h.log().Task(task.ID.String(), "Task created", map[string]any{"charity_id": task.CharityID.String()})
	h.publish(ctx, events.New(events.TaskCreated, task))

	w.Header().Set("Location", "/tasks/"+task.ID.String())
	sendJSON(w, http.StatusCreated, task)
}

// apply validates the optional payload and copies it onto task.
func (in createTaskInput) apply(task *models.Task) error {
	if task.Title == "" {
		return apperr.InvalidInput("Title is required")
	}
	if utf8.RuneCountInString(task.Title) > maxTitleLength {
		return apperr.InvalidInput(fmt.Sprintf("Title must be at most %d characters", maxTitleLength))
	}

	if in.Date != nil && *in.Date != "" {
		date, err := parseTaskDate(*in.Date)
		if err != nil {
			return apperr.InvalidInput("Date must be RFC3339 or YYYY-MM-DD")
		}
		task.Date = &date
	}

	for _, limit := range []*int{in.AgeLimitFrom, in.AgeLimitTo} {
		if limit != nil && *limit < 0 {
			return apperr.InvalidInput("Age limits cannot be negative")
		}
	}
	if in.AgeLimitFrom != nil && in.AgeLimitTo != nil && *in.AgeLimitFrom > *in.AgeLimitTo {
		return apperr.InvalidInput("age_limit_from cannot exceed age_limit_to")
	}
	task.AgeLimitFrom = in.AgeLimitFrom
	task.AgeLimitTo = in.AgeLimitTo

	if in.GenderLimit != nil && *in.GenderLimit != "" {
		gender := models.Gender(*in.GenderLimit)
		if gender != models.GenderMale && gender != models.GenderFemale {
			return apperr.InvalidInput(`Gender limit must be "M" or "F"`)
		}
		task.GenderLimit = &gender
	}
	return nil
}

func parseTaskDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	actor, err := h.actor(r)
	if err != nil {
		h.sendAppError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	task, err := h.TaskRepo.Get(ctx, taskID)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	if !actor.CanSee(task) {
		h.sendAppError(w, apperr.Forbidden("You do not have access to this task"))
		return
	}
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) requestTask(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	actor, err := h.actor(r)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	if !actor.IsBenefactor() {
		h.sendAppError(w, apperr.Forbidden("Only benefactors can request tasks"))
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	task, err := h.Lifecycle.RequestTask(ctx, taskID, actor.BenefactorID.UUID)
	if err != nil {
		h.sendAppError(w, err)
		return
	}

	h.log().Task(task.ID.String(), "Task requested", map[string]any{"benefactor_id": actor.BenefactorID.UUID.String()})
	h.publish(ctx, events.New(events.TaskRequested, task))
	sendJSON(w, http.StatusOK, detailResponse{Detail: "Request sent."})
}

func (h *Handler) respondToRequest(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	actor, err := h.actor(r)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	if !actor.IsCharity() {
		h.sendAppError(w, apperr.Forbidden("Only charities can respond to requests"))
		return
	}

	var input responseInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendAppError(w, err)
		return
	}
	decision, err := lifecycle.ParseDecision(input.Decision)
	if err != nil {
		h.sendAppError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.checkOwnership(ctx, actor, taskID); err != nil {
		h.sendAppError(w, err)
		return
	}

	task, err := h.Lifecycle.RespondToRequest(ctx, taskID, decision)
	if err != nil {
		h.sendAppError(w, err)
		return
	}

	eventType := events.TaskAccepted
	if decision == lifecycle.Reject {
		eventType = events.TaskRejected
	}
	h.log().Task(task.ID.String(), "Request answered", map[string]any{"decision": decision.String()})
	h.publish(ctx, events.New(eventType, task))
	sendJSON(w, http.StatusOK, detailResponse{Detail: "Response sent."})
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	actor, err := h.actor(r)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	if !actor.IsCharity() {
		h.sendAppError(w, apperr.Forbidden("Only charities can complete tasks"))
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.checkOwnership(ctx, actor, taskID); err != nil {
		h.sendAppError(w, err)
		return
	}

	task, err := h.Lifecycle.CompleteTask(ctx, taskID)
	if err != nil {
		h.sendAppError(w, err)
		return
	}

	h.log().Task(task.ID.String(), "Task completed")
	h.publish(ctx, events.New(events.TaskCompleted, task))
	sendJSON(w, http.StatusOK, detailResponse{Detail: "Task has been done successfully."})
}

// checkOwnership loads the task and requires actor to be its charity.
// Ownership never changes, so the check does not race the transition.
func (h *Handler) checkOwnership(ctx context.Context, actor models.Actor, taskID uuid.UUID) error {
	task, err := h.TaskRepo.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if !actor.OwnsTask(task) {
		return apperr.Forbidden("You do not own this task")
	}
	return nil
}
