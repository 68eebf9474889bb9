package repository

import (
	"context"
	"database/sql"
	"time"

	"meterbridge/internal/cloud"
	"meterbridge/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// TokenRepo persists the cloud token pair across restarts. This is the
// storage end of the credential-refresh side channel: the coordinator's
// token sink writes here at the cycle boundary, startup reads it back.
type TokenRepo interface {
	Save(ctx context.Context, tok cloud.Token) error
	Load(ctx context.Context) (*cloud.Token, error)
}

// ReadingLogRepo is the append-only per-cycle readings trace.
type ReadingLogRepo interface {
	Append(ctx context.Context, rec models.ReadingRecord) error
	List(ctx context.Context, from, to time.Time, meterID int64) ([]models.ReadingRecord, error)
}

type Repository struct {
	Tokens   TokenRepo
	Readings ReadingLogRepo
	Auth     Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Tokens:   NewTokenSQLite(db),
		Readings: NewReadingLogSQLite(db),
		Auth:     NewUserRepository(db),
	}
}
