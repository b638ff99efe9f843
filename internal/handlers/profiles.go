package handlers

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chepyr/charity-tasks/internal/apperr"
	"github.com/chepyr/charity-tasks/internal/db"
	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
)

type charityInput struct {
	Name      string `json:"name"`
	RegNumber string `json:"reg_number"`
}

func (in charityInput) validate() error {
	if in.Name == "" || utf8.RuneCountInString(in.Name) > 50 {
		return apperr.InvalidInput("Name must be 1-50 characters")
	}
	if in.RegNumber == "" || utf8.RuneCountInString(in.RegNumber) > 10 {
		return apperr.InvalidInput("Registration number must be 1-10 characters")
	}
	return nil
}

type benefactorInput struct {
	Experience      *int `json:"experience"`
	FreeTimePerWeek int  `json:"free_time_per_week"`
}

func (in benefactorInput) validate() error {
	if in.Experience != nil && !models.Experience(*in.Experience).Valid() {
		return apperr.InvalidInput("Experience must be 0, 1 or 2")
	}
	if in.FreeTimePerWeek < 0 {
		return apperr.InvalidInput("Free time per week cannot be negative")
	}
	return nil
}

// RegisterCharity attaches a charity profile to the authenticated user.
func (h *Handler) RegisterCharity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, "Use POST method", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input charityInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendAppError(w, err)
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	input.RegNumber = strings.TrimSpace(input.RegNumber)
	if err := input.validate(); err != nil {
		h.sendAppError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if _, err := h.ProfileRepo.CharityByUserID(ctx, userID); err == nil {
		h.sendAppError(w, apperr.Conflict("Charity profile already exists"))
		return
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		h.sendAppError(w, err)
		return
	}

	charity := &models.Charity{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      input.Name,
		RegNumber: input.RegNumber,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.ProfileRepo.CreateCharity(ctx, charity); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			h.sendAppError(w, err)
			return
		}
		h.log().Error("Cannot save charity", map[string]any{"error": err.Error()})
		sendError(w, "Cannot save charity", http.StatusInternalServerError)
		return
	}

	h.log().Info("Charity registered", map[string]any{"charity_id": charity.ID.String(), "user_id": userID.String()})
	sendJSON(w, http.StatusCreated, charity)
}

// RegisterBenefactor attaches a benefactor profile to the authenticated user.
func (h *Handler) RegisterBenefactor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, "Use POST method", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input benefactorInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendAppError(w, err)
		return
	}
	if err := input.validate(); err != nil {
		h.sendAppError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if _, err := h.ProfileRepo.BenefactorByUserID(ctx, userID); err == nil {
		h.sendAppError(w, apperr.Conflict("Benefactor profile already exists"))
		return
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		h.sendAppError(w, err)
		return
	}

	benefactor := &models.Benefactor{
		ID:              uuid.New(),
		UserID:          userID,
		Experience:      models.ExperienceBeginner,
		FreeTimePerWeek: input.FreeTimePerWeek,
		CreatedAt:       time.Now().UTC(),
	}
	if input.Experience != nil {
		benefactor.Experience = models.Experience(*input.Experience)
	}
	if err := h.ProfileRepo.CreateBenefactor(ctx, benefactor); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			h.sendAppError(w, err)
			return
		}
		h.log().Error("Cannot save benefactor", map[string]any{"error": err.Error()})
		sendError(w, "Cannot save benefactor", http.StatusInternalServerError)
		return
	}

	h.log().Info("Benefactor registered", map[string]any{"benefactor_id": benefactor.ID.String(), "user_id": userID.String()})
	sendJSON(w, http.StatusCreated, benefactor)
}

// actor resolves the roles of the authenticated user.
func (h *Handler) actor(r *http.Request) (models.Actor, error) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		return models.Actor{}, apperr.Unauthorized("Unauthorized")
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()
	return db.ResolveActor(ctx, h.ProfileRepo, userID)
}
