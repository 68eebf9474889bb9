package service

import (
	"context"
	"sort"
	"time"

	"meterbridge/internal/logger"
	"meterbridge/internal/models"
)

// Refresher is the slice of the coordinator the service layer needs.
type Refresher interface {
	Snapshot() *models.Snapshot
	ForceRefresh(ctx context.Context) error
	LastCycleSucceeded() bool
	CurrentInterval() time.Duration
	Phase() string
}

// Health is the bridge's liveness summary rendered by /health.
type Health struct {
	Phase              string    `json:"phase"`
	LastCycleSucceeded bool      `json:"last_cycle_succeeded"`
	IntervalSeconds    float64   `json:"interval_seconds"`
	Meters             int       `json:"meters"`
	SnapshotAt         time.Time `json:"snapshot_at,omitzero"`
}

// BridgeService adapts the coordinator for HTTP consumers.
type BridgeService struct {
	coord Refresher
	log   *logger.Logger
}

func NewBridgeService(coord Refresher, log *logger.Logger) *BridgeService {
	return &BridgeService{coord: coord, log: log}
}

// Snapshot returns the published snapshot, nil before the first
// successful cycle.
func (s *BridgeService) Snapshot() *models.Snapshot {
	return s.coord.Snapshot()
}

// Meters lists all meters from the current snapshot, ordered by ID for a
// stable API response.
func (s *BridgeService) Meters() []*models.Meter {
	snap := s.coord.Snapshot()
	if snap == nil {
		return nil
	}
	out := make([]*models.Meter, 0, len(snap.Meters))
	for _, m := range snap.Meters {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Meter looks up a single meter by ID in the current snapshot.
func (s *BridgeService) Meter(id int64) (*models.Meter, bool) {
	snap := s.coord.Snapshot()
	if snap == nil {
		return nil, false
	}
	m, ok := snap.Meters[id]
	return m, ok
}

// ForceRefresh triggers a full rediscovery cycle right now.
func (s *BridgeService) ForceRefresh(ctx context.Context) error {
	if s.log != nil {
		s.log.Infow("force_refresh_requested")
	}
	return s.coord.ForceRefresh(ctx)
}

// Health summarizes the coordinator state.
func (s *BridgeService) Health() Health {
	h := Health{
		Phase:              s.coord.Phase(),
		LastCycleSucceeded: s.coord.LastCycleSucceeded(),
		IntervalSeconds:    s.coord.CurrentInterval().Seconds(),
	}
	if snap := s.coord.Snapshot(); snap != nil {
		h.Meters = len(snap.Meters)
		h.SnapshotAt = snap.UpdatedAt
	}
	return h
}
