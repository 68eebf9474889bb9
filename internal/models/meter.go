package models

import "time"

// MeterInfo is the static part of a meter record. It is filled once during
// discovery and never changes until discovery runs again.
type MeterInfo struct {
	ID           int64  `json:"id"`
	SerialNumber string `json:"serialNumber"`
	Name         string `json:"name"`
	MeterTypeID  int    `json:"meterTypeId"`
}

// Meter is one discovered device with its latest known state.
type Meter struct {
	ID       int64          `json:"id"`
	Info     MeterInfo      `json:"info"`
	Extended map[string]any `json:"extended,omitempty"`
	Readings *Readings      `json:"readings,omitempty"`
	// LastReadingAt is derived from the readings payload (ts_tz + timezone
	// offset), normalized to UTC. Zero when no reading has been seen.
	LastReadingAt time.Time `json:"last_reading_at,omitzero"`
}

// Clone returns a copy safe to mutate while the original stays published.
// Readings are replaced wholesale each cycle, so sharing the pointer with
// the previous snapshot is fine until the new payload arrives.
func (m *Meter) Clone() *Meter {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Extended != nil {
		cp.Extended = make(map[string]any, len(m.Extended))
		for k, v := range m.Extended {
			cp.Extended[k] = v
		}
	}
	return &cp
}

// Snapshot is the complete map of meter records at one point in time.
// The coordinator builds a fresh snapshot every cycle and replaces the
// published one atomically; consumers must treat it as read-only.
type Snapshot struct {
	Meters    map[int64]*Meter `json:"meters"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Clone deep-copies the snapshot into a working copy for the next cycle.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := &Snapshot{
		Meters:    make(map[int64]*Meter, len(s.Meters)),
		UpdatedAt: s.UpdatedAt,
	}
	for id, m := range s.Meters {
		cp.Meters[id] = m.Clone()
	}
	return cp
}

// Len reports the number of meters; nil-safe.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Meters)
}
