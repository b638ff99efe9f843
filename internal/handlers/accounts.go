package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/chepyr/charity-tasks/internal/apperr"
	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c credentials) validate() error {
	if !emailRegex.MatchString(c.Email) {
		return apperr.InvalidInput("Invalid email")
	}
	if len(c.Password) < 4 {
		return apperr.InvalidInput("Password must be at least 4 characters long")
	}
	// bcrypt ignores everything past 72 bytes
	if len(c.Password) > 72 {
		return apperr.InvalidInput("Password must be at most 72 characters long")
	}
	return nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, "Use POST method", http.StatusMethodNotAllowed)
		return
	}
	ip := h.clientIP(r)
	if h.RateLimiter != nil && !h.RateLimiter.Allow("register:"+ip) {
		h.log().Warn("Rate limit exceeded", map[string]any{"ip": ip, "route": "register"})
		sendError(w, "Too many register attempts. Please try again later.", http.StatusTooManyRequests)
		return
	}

	var input credentials
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendAppError(w, err)
		return
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := input.validate(); err != nil {
		h.sendAppError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if _, err := h.UserRepo.GetByEmail(ctx, input.Email); err == nil {
		h.sendAppError(w, apperr.Conflict("Email already registered"))
		return
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		h.sendAppError(w, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		h.log().Error("Error hashing password", map[string]any{"error": err.Error()})
		sendError(w, "Cannot hash password", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.UserRepo.Create(ctx, user); err != nil {
		// a concurrent registration for the same email won the insert
		if apperr.KindOf(err) == apperr.KindConflict {
			h.sendAppError(w, err)
			return
		}
		h.log().Error("Cannot save user", map[string]any{"error": err.Error()})
		sendError(w, "Cannot save user", http.StatusInternalServerError)
		return
	}

	h.log().Info("User registered", map[string]any{"user_id": user.ID.String()})
	sendJSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, "Use POST method for login", http.StatusMethodNotAllowed)
		return
	}
	ip := h.clientIP(r)
	if h.RateLimiter != nil && !h.RateLimiter.Allow("login:"+ip) {
		h.log().Warn("Rate limit exceeded", map[string]any{"ip": ip, "route": "login"})
		sendError(w, "Too many login attempts. Please try again later.", http.StatusTooManyRequests)
		return
	}

	var input credentials
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendAppError(w, err)
		return
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	ctx, cancel := h.requestContext(r)
	defer cancel()

	user, err := h.UserRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			h.log().Error("Error retrieving user", map[string]any{"error": err.Error()})
		}
		sendError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		sendError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := h.generateJWTToken(user.ID.String())
	if err != nil {
		h.log().Error("Error generating token", map[string]any{"error": err.Error()})
		sendError(w, "Cannot create token", http.StatusInternalServerError)
		return
	}

	h.log().Info("User logged in", map[string]any{"user_id": user.ID.String()})
	sendJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"token":   token,
	})
}

func (h *Handler) generateJWTToken(sub string) (string, error) {
	if len(h.JWTSecret) == 0 {
		return "", errors.New("JWT secret is not configured")
	}
	ttl := h.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	})

	signed, err := token.SignedString(h.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}
