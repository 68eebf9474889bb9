package service

import (
	"context"

	"meterbridge/internal/models"
	"meterbridge/internal/repository"
)

// HistoryService reads the append-only readings log.
type HistoryService struct {
	repo repository.ReadingLogRepo
}

func NewHistoryService(repo repository.ReadingLogRepo) *HistoryService {
	return &HistoryService{repo: repo}
}

// List returns reading records matching the filter, oldest first.
func (s *HistoryService) List(ctx context.Context, f HistoryFilter) ([]models.ReadingRecord, error) {
	return s.repo.List(ctx, f.From, f.To, f.MeterID)
}
