// Package schedule infers when the upstream meters will emit their next
// reading and turns that into poll intervals. Meters report on a fixed
// clock-aligned grid (every half hour by default) using their own, slightly
// imprecise clocks, so every expectation carries a drift buffer.
package schedule

import "time"

const (
	// DefaultGridPeriod is the reporting grid most meters use.
	DefaultGridPeriod = 30 * time.Minute
	// DefaultDriftBuffer absorbs the meter's own clock imprecision.
	DefaultDriftBuffer = 3 * time.Minute
)

// UTCFromTimestampTZ converts the payload's ts_tz field to real UTC.
// ts encodes the meter's local wall clock as Unix seconds; the actual UTC
// instant is ts minus the reported offset.
func UTCFromTimestampTZ(ts int64, offsetHours int) time.Time {
	return time.Unix(ts, 0).UTC().Add(-time.Duration(offsetHours) * time.Hour)
}

// NextAlignedSlot returns the start of the next grid slot strictly after t.
// Slots divide each day into equal periods starting at midnight in t's
// location; a slot offset reaching 24h lands on the following day.
func NextAlignedSlot(t time.Time, period time.Duration) time.Time {
	if period <= 0 {
		period = DefaultGridPeriod
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	slot := t.Sub(midnight) / period
	return midnight.Add((slot + 1) * period)
}

// ExpectedNextReport computes, in UTC, when a meter whose last reading was
// taken at lastReadingUTC (clock offset offsetHours) should emit its next
// one: the next grid slot on the meter's wall clock plus the drift buffer.
func ExpectedNextReport(lastReadingUTC time.Time, offsetHours int, period, drift time.Duration) time.Time {
	zone := time.FixedZone("meter", offsetHours*3600)
	local := lastReadingUTC.In(zone)
	return NextAlignedSlot(local, period).Add(drift).UTC()
}
