package models

import (
	"time"

	"github.com/google/uuid"
)

type Experience int

const (
	ExperienceBeginner Experience = iota
	ExperienceIntermediate
	ExperienceExpert
)

func (e Experience) Valid() bool {
	return e >= ExperienceBeginner && e <= ExperienceExpert
}

type Charity struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	RegNumber string    `json:"reg_number"`
	CreatedAt time.Time `json:"created_at"`
}

type Benefactor struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Experience      Experience `json:"experience"`
	FreeTimePerWeek int        `json:"free_time_per_week"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Actor is the authenticated caller with whichever roles it holds.
type Actor struct {
	UserID       uuid.UUID
	CharityID    uuid.NullUUID
	BenefactorID uuid.NullUUID
}

func (a Actor) IsCharity() bool    { return a.CharityID.Valid }
func (a Actor) IsBenefactor() bool { return a.BenefactorID.Valid }

// OwnsTask reports whether the actor is the charity that owns t.
func (a Actor) OwnsTask(t *Task) bool {
	return a.CharityID.Valid && a.CharityID.UUID == t.CharityID
}

// CanSee applies the listing visibility rule to a single task.
func (a Actor) CanSee(t *Task) bool {
	if a.OwnsTask(t) {
		return true
	}
	if !a.BenefactorID.Valid {
		return false
	}
	if t.State == TaskStatePending {
		return true
	}
	return t.AssignedBenefactorID.Valid && t.AssignedBenefactorID.UUID == a.BenefactorID.UUID
}
