package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"meterbridge/internal/models"
	"meterbridge/internal/service"
)

func historyRouter(hist *mockHistory) http.Handler {
	s := &service.Service{
		Authorization: &mockAuth{parseID: 7},
		History:       hist,
	}
	return newTestRouter(s)
}

func TestGetHistory_NoFilters(t *testing.T) {
	hist := &mockHistory{resp: []models.ReadingRecord{
		{RecordID: "a", MeterID: 1, SerialNumber: "SN-1"},
		{RecordID: "b", MeterID: 2, SerialNumber: "SN-2"},
	}}
	r := historyRouter(hist)

	w := doAuthed(r, http.MethodGet, "/api/v1/history")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Count   int                    `json:"count"`
		Records []models.ReadingRecord `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Records) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !hist.lastFilter.From.IsZero() || !hist.lastFilter.To.IsZero() || hist.lastFilter.MeterID != 0 {
		t.Fatalf("filter must be empty: %+v", hist.lastFilter)
	}
}

func TestGetHistory_DateOnlyToIsEndOfDay(t *testing.T) {
	hist := &mockHistory{}
	r := historyRouter(hist)

	w := doAuthed(r, http.MethodGet, "/api/v1/history?from=2025-08-01&to=2025-08-27&meter_id=7")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}

	wantFrom := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	if !hist.lastFilter.From.Equal(wantFrom) {
		t.Fatalf("from = %v, want %v", hist.lastFilter.From, wantFrom)
	}
	// date-only "to" covers the whole day
	endOfDay := time.Date(2025, 8, 27, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	if !hist.lastFilter.To.Equal(endOfDay) {
		t.Fatalf("to = %v, want %v", hist.lastFilter.To, endOfDay)
	}
	if hist.lastFilter.MeterID != 7 {
		t.Fatalf("meter_id = %d, want 7", hist.lastFilter.MeterID)
	}
}

func TestGetHistory_RFC3339Bounds(t *testing.T) {
	hist := &mockHistory{}
	r := historyRouter(hist)

	w := doAuthed(r, http.MethodGet, "/api/v1/history?from=2025-08-27T10:00:00Z&to=2025-08-27T12:00:00Z")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if !hist.lastFilter.From.Equal(time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("from = %v", hist.lastFilter.From)
	}
	if !hist.lastFilter.To.Equal(time.Date(2025, 8, 27, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("to = %v", hist.lastFilter.To)
	}
}

func TestGetHistory_BadInputs(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"bad from", "/api/v1/history?from=yesterday"},
		{"bad to", "/api/v1/history?to=27.08.2025"},
		{"bad meter id", "/api/v1/history?meter_id=zero"},
		{"negative meter id", "/api/v1/history?meter_id=-1"},
		{"inverted range", "/api/v1/history?from=2025-08-27&to=2025-08-01"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := historyRouter(&mockHistory{})
			w := doAuthed(r, http.MethodGet, tc.target)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d, want 400, body=%s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetHistory_RepoError(t *testing.T) {
	hist := &mockHistory{err: errors.New("db down")}
	r := historyRouter(hist)

	w := doAuthed(r, http.MethodGet, "/api/v1/history")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", w.Code)
	}
}
