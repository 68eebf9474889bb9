package models

import "time"

// ReadingRecord is one row of the append-only readings log: a flattened
// trace of what each successful cycle observed per meter.
type ReadingRecord struct {
	RecordID     string    `json:"record_id"`
	MeterID      int64     `json:"meter_id"`
	SerialNumber string    `json:"serial_number"`
	EnergyTotal  string    `json:"energy_total,omitempty"`
	Signal       int       `json:"signal"`
	ReadingAt    time.Time `json:"reading_at"`
	RecordedAt   time.Time `json:"recorded_at"`
}
