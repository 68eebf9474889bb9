package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Field names inside the readings envelope that the bridge itself needs.
// Everything else in the payload is carried opaquely for consumers.
const (
	fieldLastReadingTS = "ts_tz"
)

var (
	// ErrNoReadingTime marks a readings payload without a usable ts_tz
	// field. Callers skip such meters instead of failing the cycle.
	ErrNoReadingTime = errors.New("readings: no usable reading timestamp")
)

// Readings is the per-meter measurement envelope fetched every cycle and
// replaced wholesale. Measurement leaves stay untyped: the cloud nests
// energy totals, instantaneous values and per-phase arrays that the bridge
// passes through without interpreting.
type Readings struct {
	Economizer Economizer     `json:"economizer"`
	Meter      map[string]any `json:"meter,omitempty"`
	Controller Controller     `json:"controller"`
}

// Economizer carries the last reading block and the reporting timezone.
type Economizer struct {
	LastReading map[string]any `json:"lastReading"`
	// Timezone is the UTC offset, in hours, of the clock that produced
	// the ts_tz value.
	Timezone  int            `json:"timezone"`
	AddParams map[string]any `json:"addParams,omitempty"`
}

// Controller identifies the reporting modem and its signal quality.
type Controller struct {
	ID     string `json:"id"`
	Signal int    `json:"signal"`
}

// TimestampTZ extracts the raw last-reading timestamp and its UTC offset
// in hours. The timestamp encodes the meter's local wall clock as Unix
// seconds; converting it to real UTC is the caller's concern.
func (r *Readings) TimestampTZ() (ts int64, offsetHours int, err error) {
	if r == nil || r.Economizer.LastReading == nil {
		return 0, 0, ErrNoReadingTime
	}
	raw, ok := r.Economizer.LastReading[fieldLastReadingTS]
	if !ok {
		return 0, 0, ErrNoReadingTime
	}
	switch v := raw.(type) {
	case float64:
		ts = int64(v)
	case int64:
		ts = v
	case int:
		ts = int64(v)
	case json.Number:
		ts, err = v.Int64()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrNoReadingTime, err)
		}
	default:
		return 0, 0, fmt.Errorf("%w: unexpected type %T", ErrNoReadingTime, raw)
	}
	if ts <= 0 {
		return 0, 0, ErrNoReadingTime
	}
	return ts, r.Economizer.Timezone, nil
}

// EnergyTotal returns the cumulative energy field as a string, empty when
// absent. The cloud reports numeric values as strings.
func (r *Readings) EnergyTotal() string {
	if r == nil || r.Economizer.LastReading == nil {
		return ""
	}
	if v, ok := r.Economizer.LastReading["energy_a"].(string); ok {
		return v
	}
	return ""
}
