package service

import (
	"context"
	"time"

	"meterbridge/internal/logger"
	"meterbridge/internal/models"
	"meterbridge/internal/repository"
)

const recordTimeout = 10 * time.Second

// RecorderService flattens each published snapshot into readings-log rows.
// It hangs off the coordinator's snapshot hook; persistence problems are
// logged and never fail a cycle.
type RecorderService struct {
	repo repository.ReadingLogRepo
	log  *logger.Logger
}

func NewRecorderService(repo repository.ReadingLogRepo, log *logger.Logger) *RecorderService {
	return &RecorderService{repo: repo, log: log}
}

// RecordSnapshot appends one row per meter that carries a usable reading
// time. Meters without one are skipped silently; they contributed nothing
// new this cycle.
func (s *RecorderService) RecordSnapshot(snap *models.Snapshot) {
	if snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	for _, m := range snap.Meters {
		if m.LastReadingAt.IsZero() {
			continue
		}
		rec := models.ReadingRecord{
			MeterID:      m.ID,
			SerialNumber: m.Info.SerialNumber,
			EnergyTotal:  m.Readings.EnergyTotal(),
			ReadingAt:    m.LastReadingAt,
		}
		if m.Readings != nil {
			rec.Signal = m.Readings.Controller.Signal
		}
		if err := s.repo.Append(ctx, rec); err != nil {
			s.log.Errorw("reading_record_append_failed",
				"meter_id", m.ID, "serial", m.Info.SerialNumber, "err", err)
		}
	}
}
