package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/chepyr/charity-tasks/internal/apperr"
	"github.com/chepyr/charity-tasks/internal/db"
	"github.com/chepyr/charity-tasks/internal/events"
	"github.com/chepyr/charity-tasks/internal/lifecycle"
	"github.com/chepyr/charity-tasks/internal/logger"
)

type Handler struct {
	UserRepo    db.UserRepositoryInterface
	ProfileRepo db.ProfileRepositoryInterface
	TaskRepo    db.TaskStore
	Lifecycle   *lifecycle.Service
	// RateLimiter guards register and login, keyed per route and client.
	RateLimiter   *RateLimiter
	WSRateLimiter *RateLimiter
	WSHub         *WSHub
	Publisher     events.Publisher
	Logger        *logger.Logger

	JWTSecret      []byte
	TokenTTL       time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
	// TrustedProxies may set X-Forwarded-For. Empty means the header is ignored.
	TrustedProxies []netip.Prefix
}

// NewRouter registers every route on a fresh mux and wraps it with
// request logging.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/accounts/register", h.Register)
	mux.HandleFunc("/accounts/login", h.Login)
	mux.HandleFunc("/charities", h.AuthMiddleware(h.RegisterCharity))
	mux.HandleFunc("/benefactors", h.AuthMiddleware(h.RegisterBenefactor))
	mux.HandleFunc("/tasks", h.AuthMiddleware(h.HandleTasks))
	mux.HandleFunc("/tasks/", h.AuthMiddleware(h.HandleTaskByID))
	mux.HandleFunc("/ws", h.AuthMiddleware(h.HandleWebSocket))
	return logger.Middleware(h.log())(mux)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) log() *logger.Logger {
	if h.Logger == nil {
		return logger.Discard()
	}
	return h.Logger
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := h.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

// publish fans an event out; delivery failures never fail the request.
func (h *Handler) publish(ctx context.Context, event events.Event) {
	if h.Publisher == nil {
		return
	}
	if err := h.Publisher.Publish(ctx, event); err != nil {
		h.log().Warn("Failed to publish task event", map[string]any{
			"event":   string(event.Type),
			"task_id": event.TaskID.String(),
			"error":   err.Error(),
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func sendError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, errorResponse{Error: message})
}

// sendAppError writes err with its kind and status; foreign errors become
// a generic 500 and are logged.
func (h *Handler) sendAppError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		h.log().Error("Unhandled error", map[string]any{"error": err.Error()})
		appErr = apperr.Internal("Internal server error")
	}
	sendJSON(w, appErr.Code, errorResponse{Error: appErr.Detail, Kind: string(appErr.Kind)})
}

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(strings.ToLower(ct), "application/json")
}

// decodeJSON enforces the content type and a 1MB body limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if !isJSONContentType(r) {
		return apperr.InvalidInput("Content-Type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.InvalidInput("Invalid JSON body")
	}
	return nil
}
