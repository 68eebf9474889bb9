// Package coordinator runs the refresh loop against the meter cloud:
// discover meters when needed, fetch readings for every known meter,
// publish an immutable snapshot, and plan the next wake-up from the
// meters' own reporting grid.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"meterbridge/internal/cloud"
	"meterbridge/internal/logger"
	"meterbridge/internal/metrics"
	"meterbridge/internal/models"
	"meterbridge/internal/retry"
	"meterbridge/internal/schedule"
)

// Host-visible failure categories. Everything a cycle can fail with maps
// to exactly one of these two.
var (
	// ErrReauthRequired means the cloud rejected our credentials; polling
	// cannot continue until the account is re-authenticated.
	ErrReauthRequired = errors.New("reauthentication required")
	// ErrRetryLater means the cloud is temporarily unavailable or returned
	// nothing useful; the next scheduled cycle may succeed.
	ErrRetryLater = errors.New("temporarily unavailable")
)

var errNoMeters = errors.New("account has no meters")

// Cloud operation names used for retry logging and metrics labels.
const (
	opMeters   = "meters"
	opInfo     = "meter_info"
	opReadings = "meter_readings"
)

// Config wires the coordinator's collaborators.
type Config struct {
	Client  cloud.Client
	Planner *schedule.Planner
	Policy  retry.Policy
	Log     *logger.Logger

	// OnSnapshot, when set, is invoked after every successful publish,
	// outside the coordinator's locks.
	OnSnapshot func(*models.Snapshot)
}

// Coordinator owns the snapshot, the force-refresh flag and the refresh
// cadence. One instance drives one cloud account.
type Coordinator struct {
	api        cloud.Client
	planner    *schedule.Planner
	policy     retry.Policy
	log        *logger.Logger
	onSnapshot func(*models.Snapshot)

	machine *fsm.FSM

	// cycleMu serializes cycles: the run loop and ForceRefresh may race,
	// but only one cycle ever executes at a time.
	cycleMu sync.Mutex

	mu          sync.RWMutex
	snapshot    *models.Snapshot
	interval    time.Duration
	lastSuccess bool
	forceNext   bool

	// trigger wakes the run loop early after an out-of-band refresh so it
	// replans its timer.
	trigger chan struct{}
}

// New constructs a coordinator; it does not start polling until Run.
func New(cfg Config) *Coordinator {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	planner := cfg.Planner
	if planner == nil {
		planner = schedule.NewPlanner(schedule.DefaultGridPeriod, schedule.DefaultDriftBuffer)
	}
	return &Coordinator{
		api:        cfg.Client,
		planner:    planner,
		policy:     cfg.Policy,
		log:        log,
		onSnapshot: cfg.OnSnapshot,
		machine:    newCycleMachine(),
		interval:   planner.PlanNextInterval(nil),
		trigger:    make(chan struct{}, 1),
	}
}

// Snapshot returns the currently published snapshot, nil before the first
// successful cycle. Callers must not mutate it.
func (c *Coordinator) Snapshot() *models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastCycleSucceeded reports the outcome of the most recent cycle.
func (c *Coordinator) LastCycleSucceeded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// CurrentInterval returns the wake-up interval planned after the most
// recent cycle.
func (c *Coordinator) CurrentInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// Phase returns the current cycle phase.
func (c *Coordinator) Phase() string {
	return c.machine.Current()
}

// ForceNextUpdate reports whether a forced refresh is pending. It must be
// false after any cycle completes.
func (c *Coordinator) ForceNextUpdate() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.forceNext
}

// ForceRefresh runs a full refresh immediately, re-running discovery even
// when a snapshot exists, then lets the run loop resume its cadence.
func (c *Coordinator) ForceRefresh(ctx context.Context) error {
	c.mu.Lock()
	c.forceNext = true
	c.mu.Unlock()

	err := c.Refresh(ctx)
	c.poke()
	return err
}

// poke wakes the run loop so it replans its timer; never blocks.
func (c *Coordinator) poke() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run drives the refresh loop until ctx is cancelled. The first cycle runs
// immediately; each subsequent cycle is scheduled by the interval planner.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Infow("coordinator_started")
	if err := c.Refresh(ctx); err != nil {
		c.log.Errorw("initial_refresh_failed", "err", err)
	}
	for {
		timer := time.NewTimer(c.CurrentInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			c.log.Infow("coordinator_stopped")
			return
		case <-c.trigger:
			// A forced refresh already ran its cycle; just replan.
			timer.Stop()
			continue
		case <-timer.C:
			if err := c.Refresh(ctx); err != nil {
				c.log.Errorw("refresh_failed", "err", err)
			}
		}
	}
}

// Refresh executes exactly one cycle. The force-refresh flag is consulted
// once at the start and cleared unconditionally at the end; the next
// wake-up interval is recomputed regardless of outcome, from whatever
// snapshot is current.
func (c *Coordinator) Refresh(ctx context.Context) (err error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.mu.Lock()
	forced := c.forceNext
	prev := c.snapshot
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.forceNext = false
		c.mu.Unlock()

		interval := c.planner.PlanNextInterval(c.Snapshot())
		c.mu.Lock()
		c.interval = interval
		c.mu.Unlock()
		metrics.SetPlannedInterval(interval)

		_ = c.machine.Event(ctx, eventSleep)
		c.log.Debugw("cycle_finished", "interval", interval.String(), "forced", forced, "err", err)
	}()

	c.log.Debugw("cycle_started", "forced", forced, "have_snapshot", prev != nil)

	var working *models.Snapshot
	if prev == nil || forced {
		if merr := c.machine.Event(ctx, eventDiscover); merr != nil {
			c.log.Warnw("phase_transition_rejected", "event", eventDiscover, "err", merr)
		}
		working, err = c.discover(ctx)
		if err != nil {
			return c.failCycle(ctx, err)
		}
	} else {
		working = prev.Clone()
	}

	if merr := c.machine.Event(ctx, eventFetch); merr != nil {
		c.log.Warnw("phase_transition_rejected", "event", eventFetch, "err", merr)
	}
	if err = c.fetchReadings(ctx, working); err != nil {
		return c.failCycle(ctx, err)
	}

	working.UpdatedAt = time.Now().UTC()
	c.mu.Lock()
	c.snapshot = working
	c.lastSuccess = true
	c.mu.Unlock()

	_ = c.machine.Event(ctx, eventSucceed)
	metrics.ObserveCycle(metrics.ResultSuccess)
	metrics.SetMeterCount(working.Len())
	c.log.Infow("cycle_succeeded", "meters", working.Len())

	if c.onSnapshot != nil {
		c.onSnapshot(working)
	}
	return nil
}

// discover fetches the meter list and per-meter static info, building a
// fresh snapshot. Zero meters is a valid cloud response but a failed cycle:
// nothing is published and the host retries on its normal cadence.
func (c *Coordinator) discover(ctx context.Context) (*models.Snapshot, error) {
	infos, err := retry.Do(ctx, c.policy, opMeters,
		func(ctx context.Context) ([]models.MeterInfo, error) {
			return c.api.Meters(ctx)
		}, nil)
	c.observe(opMeters, err)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		c.log.Warnw("no_meters_in_account")
		return nil, errNoMeters
	}
	c.log.Debugw("meters_retrieved", "count", len(infos))

	snap := &models.Snapshot{Meters: make(map[int64]*models.Meter, len(infos))}
	for _, info := range infos {
		meterID := info.ID
		extended, err := retry.Do(ctx, c.policy, opInfo,
			func(ctx context.Context) (map[string]any, error) {
				return c.api.MeterInfo(ctx, meterID)
			},
			func(m map[string]any) bool { return len(m) > 0 })
		c.observe(opInfo, err)
		if err != nil {
			return nil, err
		}
		snap.Meters[meterID] = &models.Meter{
			ID:       meterID,
			Info:     info,
			Extended: extended,
		}
		c.log.Debugw("meter_info_retrieved", "serial", info.SerialNumber)
	}
	return snap, nil
}

// fetchReadings replaces every meter's readings payload and recomputes its
// derived last-reading time. Any failed fetch fails the whole cycle; a
// payload without a usable timestamp does not.
func (c *Coordinator) fetchReadings(ctx context.Context, snap *models.Snapshot) error {
	for meterID, meter := range snap.Meters {
		id := meterID
		readings, err := retry.Do(ctx, c.policy, opReadings,
			func(ctx context.Context) (*models.Readings, error) {
				return c.api.MeterReadings(ctx, id)
			},
			func(r *models.Readings) bool { return r != nil })
		c.observe(opReadings, err)
		if err != nil {
			return err
		}

		meter.Readings = readings
		if ts, offset, terr := readings.TimestampTZ(); terr == nil {
			meter.LastReadingAt = schedule.UTCFromTimestampTZ(ts, offset)
		} else {
			c.log.Debugw("reading_timestamp_unusable",
				"meter_id", id, "serial", meter.Info.SerialNumber, "err", terr)
		}
		c.log.Debugw("readings_retrieved", "serial", meter.Info.SerialNumber)
	}
	return nil
}

// failCycle marks the cycle failed without publishing anything and maps
// the cause to one of the two host-visible categories.
func (c *Coordinator) failCycle(ctx context.Context, cause error) error {
	_ = c.machine.Event(ctx, eventFail)
	c.mu.Lock()
	c.lastSuccess = false
	c.mu.Unlock()

	if cloud.IsAuthError(cause) {
		metrics.ObserveCycle(metrics.ResultAuthFailed)
		c.log.Errorw("cycle_auth_failed", "err", cause)
		return fmt.Errorf("%w: %w", ErrReauthRequired, cause)
	}
	metrics.ObserveCycle(metrics.ResultRetryLater)
	c.log.Warnw("cycle_failed", "err", cause)
	return fmt.Errorf("%w: %w", ErrRetryLater, cause)
}

// observe records the post-retry outcome of one cloud operation.
func (c *Coordinator) observe(op string, err error) {
	switch {
	case err == nil:
		metrics.ObserveCloudRequest(op, metrics.ResultSuccess)
	case cloud.IsAuthError(err):
		metrics.ObserveCloudRequest(op, metrics.ResultAuthFailed)
	default:
		metrics.ObserveCloudRequest(op, metrics.ResultError)
	}
}
