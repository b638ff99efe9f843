package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chepyr/charity-tasks/internal/apperr"
	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
)

// ProfileRepositoryInterface covers the charity and benefactor profiles
// attached to a user.
type ProfileRepositoryInterface interface {
	CreateCharity(ctx context.Context, charity *models.Charity) error
	CreateBenefactor(ctx context.Context, benefactor *models.Benefactor) error
	CharityByUserID(ctx context.Context, userID uuid.UUID) (*models.Charity, error)
	BenefactorByUserID(ctx context.Context, userID uuid.UUID) (*models.Benefactor, error)
}

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) CreateCharity(ctx context.Context, charity *models.Charity) error {
	query := `INSERT INTO charities (id, user_id, name, reg_number, created_at)
	 VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(
		ctx, query, charity.ID, charity.UserID, charity.Name, charity.RegNumber, charity.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("Charity profile already exists")
	}
	return err
}

func (r *ProfileRepository) CreateBenefactor(ctx context.Context, benefactor *models.Benefactor) error {
	query := `INSERT INTO benefactors (id, user_id, experience, free_time_per_week, created_at)
	 VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(
		ctx, query, benefactor.ID, benefactor.UserID, benefactor.Experience,
		benefactor.FreeTimePerWeek, benefactor.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("Benefactor profile already exists")
	}
	return err
}

func (r *ProfileRepository) CharityByUserID(ctx context.Context, userID uuid.UUID) (*models.Charity, error) {
	query := `SELECT id, user_id, name, reg_number, created_at FROM charities WHERE user_id = $1`
	charity := &models.Charity{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&charity.ID, &charity.UserID, &charity.Name, &charity.RegNumber, &charity.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Charity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get charity for user %s: %w", userID, err)
	}
	return charity, nil
}

func (r *ProfileRepository) BenefactorByUserID(ctx context.Context, userID uuid.UUID) (*models.Benefactor, error) {
	query := `SELECT id, user_id, experience, free_time_per_week, created_at FROM benefactors WHERE user_id = $1`
	benefactor := &models.Benefactor{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&benefactor.ID, &benefactor.UserID, &benefactor.Experience,
		&benefactor.FreeTimePerWeek, &benefactor.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Benefactor not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get benefactor for user %s: %w", userID, err)
	}
	return benefactor, nil
}

// ResolveActor loads whichever profiles userID holds.
func ResolveActor(ctx context.Context, repo ProfileRepositoryInterface, userID uuid.UUID) (models.Actor, error) {
	actor := models.Actor{UserID: userID}

	charity, err := repo.CharityByUserID(ctx, userID)
	switch {
	case err == nil:
		actor.CharityID = uuid.NullUUID{UUID: charity.ID, Valid: true}
	case apperr.KindOf(err) != apperr.KindNotFound:
		return actor, err
	}

	benefactor, err := repo.BenefactorByUserID(ctx, userID)
	switch {
	case err == nil:
		actor.BenefactorID = uuid.NullUUID{UUID: benefactor.ID, Valid: true}
	case apperr.KindOf(err) != apperr.KindNotFound:
		return actor, err
	}
	return actor, nil
}
