package service

import (
	"context"
	"time"

	"meterbridge/internal/logger"
	"meterbridge/internal/models"
	"meterbridge/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Bridge exposes the coordinator to the HTTP layer: snapshot reads,
// the force-refresh "button" and health reporting.
type Bridge interface {
	Snapshot() *models.Snapshot
	Meters() []*models.Meter
	Meter(id int64) (*models.Meter, bool)
	ForceRefresh(ctx context.Context) error
	Health() Health
}

// History exposes the append-only readings log with filtering access.
type History interface {
	List(ctx context.Context, f HistoryFilter) ([]models.ReadingRecord, error)
}

// HistoryFilter narrows a history listing; zero values mean "no bound".
type HistoryFilter struct {
	From    time.Time
	To      time.Time
	MeterID int64
}

// Service aggregates all sub-services.
type Service struct {
	Bridge
	History
	Authorization
}

// NewService wires the coordinator and repository layer into concrete
// services.
func NewService(coord Refresher, repos *repository.Repository, auth AuthConfig, log *logger.Logger) *Service {
	return &Service{
		Bridge:        NewBridgeService(coord, log),
		History:       NewHistoryService(repos.Readings),
		Authorization: NewAuthService(repos.Auth, auth),
	}
}
