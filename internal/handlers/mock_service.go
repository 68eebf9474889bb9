package handlers

import (
	"context"
	"net/http"
	"time"

	"meterbridge/internal/models"
	"meterbridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockBridge struct {
	snap       *models.Snapshot
	health     service.Health
	refreshErr error

	refreshCalls int
}

func (m *mockBridge) Snapshot() *models.Snapshot { return m.snap }

func (m *mockBridge) Meters() []*models.Meter {
	if m.snap == nil {
		return nil
	}
	out := make([]*models.Meter, 0, len(m.snap.Meters))
	for _, mt := range m.snap.Meters {
		out = append(out, mt)
	}
	return out
}

func (m *mockBridge) Meter(id int64) (*models.Meter, bool) {
	if m.snap == nil {
		return nil, false
	}
	mt, ok := m.snap.Meters[id]
	return mt, ok
}

func (m *mockBridge) ForceRefresh(ctx context.Context) error {
	m.refreshCalls++
	return m.refreshErr
}

func (m *mockBridge) Health() service.Health { return m.health }

type mockHistory struct {
	resp []models.ReadingRecord
	err  error

	lastFilter service.HistoryFilter
}

func (m *mockHistory) List(ctx context.Context, f service.HistoryFilter) ([]models.ReadingRecord, error) {
	m.lastFilter = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Meters: map[int64]*models.Meter{
			1: {
				ID:   1,
				Info: models.MeterInfo{ID: 1, SerialNumber: "SN-1", Name: "flat"},
				Readings: &models.Readings{
					Economizer: models.Economizer{
						LastReading: map[string]any{"ts_tz": float64(1700000000), "energy_a": "10.5"},
						Timezone:    3,
					},
				},
				LastReadingAt: time.Date(2023, 11, 14, 19, 13, 20, 0, time.UTC),
			},
			2: {
				ID:   2,
				Info: models.MeterInfo{ID: 2, SerialNumber: "SN-2", Name: "garage"},
			},
		},
		UpdatedAt: time.Date(2023, 11, 14, 19, 15, 0, 0, time.UTC),
	}
}
