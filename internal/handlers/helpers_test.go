package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chepyr/charity-tasks/internal/db"
	"github.com/chepyr/charity-tasks/internal/lifecycle"
	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const testSecret = "super_secret_for_tests_0123456789"

func setupHTTP(t *testing.T) (*Handler, http.Handler) {
	t.Helper()

	dbx, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	dbx.SetMaxOpenConns(1)
	t.Cleanup(func() { dbx.Close() })
	if err := db.Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	taskRepo := db.NewTaskRepository(dbx)
	hub := NewWSHub(nil)
	rl := NewRateLimiter(100, time.Minute)
	t.Cleanup(rl.Stop)

	h := &Handler{
		UserRepo:    db.NewUserRepository(dbx),
		ProfileRepo: db.NewProfileRepository(dbx),
		TaskRepo:    taskRepo,
		Lifecycle:   lifecycle.NewService(taskRepo),
		RateLimiter: rl,
		WSHub:       hub,
		Publisher:   hub,
		JWTSecret:   []byte(testSecret),
	}
	return h, NewRouter(h)
}

func bearerForUser(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return "Bearer " + signed
}

// do sends a request through the router; an empty authz skips the header.
func do(t *testing.T, router http.Handler, method, path, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

// newCharity registers a charity profile for a fresh user and returns its
// bearer token and charity id.
func newCharity(t *testing.T, router http.Handler, name string) (string, uuid.UUID) {
	t.Helper()
	authz := bearerForUser(t, uuid.NewString())
	rec := do(t, router, http.MethodPost, "/charities", authz,
		`{"name":"`+name+`","reg_number":"REG-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register charity: want 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	return authz, decodeBody[models.Charity](t, rec).ID
}

func newBenefactor(t *testing.T, router http.Handler) (string, uuid.UUID) {
	t.Helper()
	authz := bearerForUser(t, uuid.NewString())
	rec := do(t, router, http.MethodPost, "/benefactors", authz,
		`{"experience":1,"free_time_per_week":5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register benefactor: want 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	return authz, decodeBody[models.Benefactor](t, rec).ID
}

func createTask(t *testing.T, router http.Handler, authz, title string) *models.Task {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/tasks", authz, `{"title":"`+title+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: want 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	task := decodeBody[models.Task](t, rec)
	return &task
}

func bodyContains(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("body %q does not contain %q", rec.Body.String(), want)
	}
}
