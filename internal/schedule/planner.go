package schedule

import (
	"math/rand"
	"time"

	"meterbridge/internal/models"
)

// Jitter bounds. The fallback clusters polls a couple of minutes past the
// grid boundary without stampeding exactly on it; the wait path only needs
// enough spread to decorrelate instances.
const (
	fallbackJitterMin = 2 * time.Minute
	fallbackJitterMax = 3 * time.Minute
	subMinuteJitter   = time.Minute

	waitJitterMin = 30 * time.Second
	waitJitterMax = 90 * time.Second
)

// Planner computes how long to sleep before the next poll cycle.
type Planner struct {
	Period time.Duration
	Drift  time.Duration

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewPlanner builds a planner; non-positive period/drift fall back to the
// package defaults.
func NewPlanner(period, drift time.Duration) *Planner {
	if period <= 0 {
		period = DefaultGridPeriod
	}
	if drift < 0 {
		drift = DefaultDriftBuffer
	}
	return &Planner{Period: period, Drift: drift}
}

func (p *Planner) timeNow() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// PlanNextInterval returns a strictly positive duration to sleep before
// the next cycle.
//
// When the snapshot yields a usable earliest-expected report time in the
// future, the planner waits until then plus a small jitter. In every other
// case (no snapshot, malformed reading payloads, data already overdue) it
// falls back to the grid-aligned interval so the loop always makes forward
// progress and never busy-polls.
func (p *Planner) PlanNextInterval(snap *models.Snapshot) time.Duration {
	now := p.timeNow()
	if expected := p.earliestExpected(snap); !expected.IsZero() && expected.After(now) {
		return expected.Sub(now) + randomBetween(waitJitterMin, waitJitterMax)
	}
	return p.fallbackInterval(now)
}

// earliestExpected finds the soonest ExpectedNextReport across all meters.
// Meters without a usable timestamp are skipped, not fatal.
func (p *Planner) earliestExpected(snap *models.Snapshot) time.Time {
	if snap == nil {
		return time.Time{}
	}
	var earliest time.Time
	for _, m := range snap.Meters {
		ts, offset, err := m.Readings.TimestampTZ()
		if err != nil {
			continue
		}
		expected := ExpectedNextReport(UTCFromTimestampTZ(ts, offset), offset, p.Period, p.Drift)
		if earliest.IsZero() || expected.Before(earliest) {
			earliest = expected
		}
	}
	return earliest
}

// fallbackInterval aligns "now" to the next multiple of the grid period
// measured from the Unix epoch. Anchoring to the epoch rather than local
// midnight keeps the grid stable across DST transitions.
func (p *Planner) fallbackInterval(now time.Time) time.Duration {
	periodSec := int64(p.Period / time.Second)
	nowSec := now.Unix()
	nextSec := (nowSec/periodSec + 1) * periodSec

	interval := time.Duration(nextSec-nowSec) * time.Second
	interval += randomBetween(fallbackJitterMin, fallbackJitterMax)
	interval += randomBetween(0, subMinuteJitter)
	return interval
}

func randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
