package repository

import (
	"context"
	"database/sql"
	"errors"

	"reflow_oven/internal/models"
)

var ErrNotFound = errors.New("record not found")

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

type ProfileRepo interface {
	Create(ctx context.Context, p models.Profile) error
	Update(ctx context.Context, p models.Profile) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Profile, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.RunEvent) error
	List(ctx context.Context, f EventFilter) ([]models.RunEvent, error)
}

type SettingsRepo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type Repository struct {
	ProfileRepo  ProfileRepo
	EventRepo    EventRepo
	SettingsRepo SettingsRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		ProfileRepo:  NewProfileSQLite(db),
		EventRepo:    NewEventSQLite(db),
		SettingsRepo: NewSettingsSQLite(db),
		Auth:         NewOperatorRepository(db),
	}
}
