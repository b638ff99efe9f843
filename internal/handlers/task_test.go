package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
)

func TestTaskLifecycle_HappyPath(t *testing.T) {
	h, router := setupHTTP(t)
	charityAuth, charityID := newCharity(t, router, "Shelter")
	benefactorA, _ := newBenefactor(t, router)
	benefactorB, benefactorBID := newBenefactor(t, router)

	task := createTask(t, router, charityAuth, "Walk dogs")
	if task.State != models.TaskStatePending || task.CharityID != charityID || task.AssignedBenefactorID.Valid {
		t.Fatalf("unexpected new task: %+v", task)
	}
	base := "/tasks/" + task.ID.String()

	// 1) A requests, charity rejects
	rec := do(t, router, http.MethodPost, base+"/request", benefactorA, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("request A: want 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "{\"detail\":\"Request sent.\"}\n" {
		t.Fatalf("request A: unexpected body %q", got)
	}

	rec = do(t, router, http.MethodPost, base+"/request", benefactorB, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("request B while waiting: want 409, got %d", rec.Code)
	}
	bodyContains(t, rec, "This task is not pending.")

	rec = do(t, router, http.MethodPost, base+"/response", charityAuth, `{"decision":"Reject"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: want 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	bodyContains(t, rec, `"detail":"Response sent."`)

	// 2) B requests, charity accepts
	if rec = do(t, router, http.MethodPost, base+"/request", benefactorB, ""); rec.Code != http.StatusOK {
		t.Fatalf("request B: want 200, got %d", rec.Code)
	}
	if rec = do(t, router, http.MethodPost, base+"/response", charityAuth, `{"decision":"Accept"}`); rec.Code != http.StatusOK {
		t.Fatalf("accept: want 200, got %d", rec.Code)
	}

	// 3) complete, then complete again
	rec = do(t, router, http.MethodPost, base+"/complete", charityAuth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: want 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	bodyContains(t, rec, `"detail":"Task has been done successfully."`)

	rec = do(t, router, http.MethodPost, base+"/complete", charityAuth, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second complete: want 409, got %d", rec.Code)
	}
	bodyContains(t, rec, `"kind":"invalid_state"`)

	stored, err := h.TaskRepo.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != models.TaskStateDone || stored.AssignedBenefactorID.UUID != benefactorBID {
		t.Fatalf("final task = %+v", stored)
	}
}

func TestTaskActions_StateErrors(t *testing.T) {
	_, router := setupHTTP(t)
	charityAuth, _ := newCharity(t, router, "Shelter")
	task := createTask(t, router, charityAuth, "Paint fence")
	base := "/tasks/" + task.ID.String()

	rec := do(t, router, http.MethodPost, base+"/response", charityAuth, `{"decision":"Accept"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("respond on pending: want 409, got %d", rec.Code)
	}
	bodyContains(t, rec, "This task is not waiting.")

	rec = do(t, router, http.MethodPost, base+"/complete", charityAuth, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("complete on pending: want 409, got %d", rec.Code)
	}
	bodyContains(t, rec, "Task is not assigned yet.")
}

func TestTaskActions_Permissions(t *testing.T) {
	_, router := setupHTTP(t)
	ownerAuth, _ := newCharity(t, router, "Owner")
	otherAuth, _ := newCharity(t, router, "Other")
	benefactorAuth, _ := newBenefactor(t, router)
	nobody := bearerForUser(t, uuid.NewString())

	task := createTask(t, router, ownerAuth, "Sort clothes")
	base := "/tasks/" + task.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		authz  string
		body   string
		want   int
	}{
		{"charity cannot request", http.MethodPost, base + "/request", ownerAuth, "", http.StatusForbidden},
		{"no role cannot request", http.MethodPost, base + "/request", nobody, "", http.StatusForbidden},
		{"benefactor cannot create", http.MethodPost, "/tasks", benefactorAuth, `{"title":"x"}`, http.StatusForbidden},
		{"benefactor cannot respond", http.MethodPost, base + "/response", benefactorAuth, `{"decision":"Accept"}`, http.StatusForbidden},
		{"other charity cannot respond", http.MethodPost, base + "/response", otherAuth, `{"decision":"Accept"}`, http.StatusForbidden},
		{"other charity cannot complete", http.MethodPost, base + "/complete", otherAuth, "", http.StatusForbidden},
		{"other charity cannot view", http.MethodGet, base, otherAuth, "", http.StatusForbidden},
		{"benefactor views pending", http.MethodGet, base, benefactorAuth, "", http.StatusOK},
		{"no token", http.MethodPost, base + "/request", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.authz, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d body=%s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTaskActions_BadInput(t *testing.T) {
	_, router := setupHTTP(t)
	charityAuth, _ := newCharity(t, router, "Shelter")
	task := createTask(t, router, charityAuth, "Cook")
	base := "/tasks/" + task.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"lowercase decision", http.MethodPost, base + "/response", `{"decision":"accept"}`, http.StatusBadRequest},
		{"missing decision", http.MethodPost, base + "/response", `{}`, http.StatusBadRequest},
		{"bad task id", http.MethodPost, "/tasks/not-a-uuid/complete", "", http.StatusBadRequest},
		{"unknown task", http.MethodPost, "/tasks/" + uuid.NewString() + "/complete", "", http.StatusNotFound},
		{"unknown action", http.MethodPost, base + "/cancel", "", http.StatusNotFound},
		{"wrong method", http.MethodGet, base + "/complete", "", http.StatusMethodNotAllowed},
		{"empty title", http.MethodPost, "/tasks", `{"title":"  "}`, http.StatusBadRequest},
		{"bad gender", http.MethodPost, "/tasks", `{"title":"t","gender_limit":"X"}`, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/tasks", `{"title":"t","date":"tomorrow"}`, http.StatusBadRequest},
		{"inverted ages", http.MethodPost, "/tasks", `{"title":"t","age_limit_from":30,"age_limit_to":20}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, charityAuth, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d body=%s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateTask_FullPayload(t *testing.T) {
	_, router := setupHTTP(t)
	charityAuth, _ := newCharity(t, router, "Shelter")

	rec := do(t, router, http.MethodPost, "/tasks", charityAuth,
		`{"title":"Read to kids","description":"Saturday","date":"2026-11-01","age_limit_from":18,"age_limit_to":65,"gender_limit":"F"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	task := decodeBody[models.Task](t, rec)
	if rec.Header().Get("Location") != "/tasks/"+task.ID.String() {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}
	if task.Date == nil || task.Date.Format("2006-01-02") != "2026-11-01" {
		t.Fatalf("date = %v", task.Date)
	}
	if task.GenderLimit == nil || *task.GenderLimit != models.GenderFemale {
		t.Fatalf("gender = %v", task.GenderLimit)
	}
	if *task.AgeLimitFrom != 18 || *task.AgeLimitTo != 65 {
		t.Fatalf("ages = %d-%d", *task.AgeLimitFrom, *task.AgeLimitTo)
	}
}

func TestListTasks_Visibility(t *testing.T) {
	_, router := setupHTTP(t)
	charityA, charityAID := newCharity(t, router, "A")
	charityB, _ := newCharity(t, router, "B")
	benefactor, benefactorID := newBenefactor(t, router)
	other, _ := newBenefactor(t, router)
	nobody := bearerForUser(t, uuid.NewString())

	a1 := createTask(t, router, charityA, "a1")
	createTask(t, router, charityA, "a2")
	b1 := createTask(t, router, charityB, "b1")

	// benefactor takes a1, so "other" no longer sees it
	if rec := do(t, router, http.MethodPost, "/tasks/"+a1.ID.String()+"/request", benefactor, ""); rec.Code != http.StatusOK {
		t.Fatalf("request: %d", rec.Code)
	}

	list := func(authz, query string) []models.Task {
		t.Helper()
		rec := do(t, router, http.MethodGet, "/tasks"+query, authz, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("list: want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
		return decodeBody[[]models.Task](t, rec)
	}
	titles := func(tasks []models.Task) map[string]bool {
		out := map[string]bool{}
		for _, task := range tasks {
			out[task.Title] = true
		}
		return out
	}

	if got := titles(list(charityA, "")); len(got) != 2 || !got["a1"] || !got["a2"] {
		t.Fatalf("charity A sees %v", got)
	}
	if got := titles(list(benefactor, "")); len(got) != 3 {
		t.Fatalf("benefactor sees %v", got)
	}
	if got := titles(list(other, "")); len(got) != 2 || got["a1"] {
		t.Fatalf("other benefactor sees %v", got)
	}

	rec := do(t, router, http.MethodGet, "/tasks", nobody, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("no-role actor: got %d %q", rec.Code, rec.Body.String())
	}

	if got := titles(list(benefactor, "?state=Waiting")); len(got) != 1 || !got["a1"] {
		t.Fatalf("state filter: %v", got)
	}
	if got := titles(list(benefactor, "?charity_id="+charityAID.String()+"&exclude_state=Waiting")); len(got) != 1 || !got["a2"] {
		t.Fatalf("filter+exclude: %v", got)
	}
	if got := titles(list(benefactor, "?assigned_benefactor_id="+benefactorID.String())); len(got) != 1 || !got["a1"] {
		t.Fatalf("assigned filter: %v", got)
	}
	if got := titles(list(benefactor, "?exclude_title=b1&ignored=1")); got[b1.Title] || len(got) != 2 {
		t.Fatalf("exclude title: %v", got)
	}

	// empty values do not filter
	if got := titles(list(benefactor, "?state=&title=")); len(got) != 3 {
		t.Fatalf("empty filters: %v", got)
	}
	if got := titles(list(benefactor, "?exclude_state=&exclude_charity_id=")); len(got) != 3 {
		t.Fatalf("empty exclusions: %v", got)
	}
}
