package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reflow_oven/internal/device"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrRunActive         = errors.New("a run is already active")
	ErrInvalidTransition = errors.New("invalid run state transition")
	ErrDeviceUnavailable = errors.New("device unavailable")
)

const powerOffTimeout = 5 * time.Second

// FaultOverheat is the fault reason for a measurement above RunOptions.MaxTempC.
const FaultOverheat = "OVERHEAT"

// RunOptions tunes the controller. Zero values fall back to defaults.
type RunOptions struct {
	FollowUp          time.Duration // sampling after run-out
	MaxDeviceFailures int           // consecutive failed ticks before Faulted
	OvershootBandC    float64       // cut power when this far above target
	MaxTempC          float64       // fault above this temperature; 0 disables
}

func (o RunOptions) withDefaults() RunOptions {
	if o.FollowUp <= 0 {
		o.FollowUp = 30 * time.Second
	}
	if o.MaxDeviceFailures < 1 {
		o.MaxDeviceFailures = 2
	}
	if o.OvershootBandC <= 0 {
		o.OvershootBandC = 10
	}
	return o
}

// ProfileSource yields the operator's selected profile. WithSelected keeps
// the profile from being deleted while fn runs.
type ProfileSource interface {
	Selected() (models.Profile, error)
	WithSelected(fn func(models.Profile) error) error
}

// DeviceSource yields the operator's selected oven.
type DeviceSource interface {
	Selected() (device.Adapter, error)
}

// Controller runs one profile on one oven at a time.
//
// opMu serializes Start, Stop, Reset, Shutdown and Tick, and guards the
// run-private fields below it; all device I/O happens under opMu only.
// mu guards the snapshot read by queries, so a slow device call never
// blocks Status.
type Controller struct {
	profiles ProfileSource
	devices  DeviceSource
	events   repository.EventRepo
	log      *logger.Logger
	opts     RunOptions
	now      func() time.Time
	buf      *Buffer

	opMu            sync.Mutex
	adapter         device.Adapter
	profile         models.Profile
	startedAt       time.Time
	failures        int
	runOutAt        float64
	sampling        bool
	powerOffPending bool

	mu      sync.RWMutex
	status  models.RunStatus
	targets models.Targets
}

func NewController(profiles ProfileSource, devices DeviceSource, events repository.EventRepo, opts RunOptions, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		profiles: profiles,
		devices:  devices,
		events:   events,
		log:      log,
		opts:     opts.withDefaults(),
		now:      time.Now,
		buf:      NewBuffer(),
		status:   models.RunStatus{State: models.StateIdle},
	}
}

// SetClock replaces the time source. Call before the loop starts.
func (c *Controller) SetClock(now func() time.Time) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.now = now
}

// Run ticks at the given interval until ctx is canceled.
func (c *Controller) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Tick(ctx)
		}
	}
}

// Start begins a run with the selected device and profile.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if st := c.State(); st != models.StateIdle {
		return fmt.Errorf("%w: state is %s", ErrRunActive, st)
	}
	adapter, err := c.devices.Selected()
	if err != nil {
		return err
	}
	dev := adapter.Info()
	if !adapter.IsConnected() {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, dev.ID)
	}

	// The run is published while the profile store is read-locked, so a
	// concurrent Delete either completes first or sees the profile in use.
	var p models.Profile
	err = c.profiles.WithSelected(func(selected models.Profile) error {
		p = selected.Clone()
		now := c.now()
		c.adapter = adapter
		c.profile = p
		c.startedAt = now
		c.failures = 0
		c.runOutAt = 0
		c.sampling = false
		c.powerOffPending = false
		c.buf.Clear()

		first, _ := TargetAt(p, 0)
		startedAt := now.UTC()

		c.mu.Lock()
		c.status = models.RunStatus{
			RunID:     uuid.NewString(),
			State:     models.StateRunning,
			Running:   true,
			ProfileID: p.ID,
			DeviceID:  dev.ID,
			StartedAt: &startedAt,
		}
		c.targets = first
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Infow("run_started", "run_id", c.runID(), "profile_id", p.ID, "device_id", dev.ID)
	c.appendEvent(ctx, models.EventStart, "Run started", map[string]any{
		"profile_id":   p.ID,
		"profile_name": p.Name,
		"device_id":    dev.ID,
	})
	return nil
}

// Tick advances the active run by one sampling step.
func (c *Controller) Tick(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch c.State() {
	case models.StateRunning:
		c.tickRunning(ctx)
	case models.StateRunOut:
		c.tickRunOut(ctx)
	}
}

func (c *Controller) elapsed() float64 {
	return c.now().Sub(c.startedAt).Seconds()
}

func (c *Controller) tickRunning(ctx context.Context) {
	elapsed := c.elapsed()
	targets, complete := TargetAt(c.profile, elapsed)
	if complete {
		c.enterRunOut(ctx, elapsed, targets)
		return
	}

	power := targets.PowerPct
	if last, ok := c.buf.Last(); ok && last.TempC > targets.TempC+c.opts.OvershootBandC {
		power = 0
	}

	err := c.adapter.SetPower(ctx, power)

	c.mu.Lock()
	c.status.ElapsedS = elapsed
	c.targets = targets
	if err == nil {
		c.status.LastPower = power
	}
	c.mu.Unlock()

	if err != nil {
		c.deviceFailed(ctx, err)
		return
	}
	temp, err := c.adapter.ReadTemperature(ctx)
	if err != nil {
		c.deviceFailed(ctx, err)
		return
	}
	c.failures = 0
	c.record(ctx, elapsed, temp)
}

func (c *Controller) enterRunOut(ctx context.Context, elapsed float64, targets models.Targets) {
	c.runOutAt = elapsed
	c.sampling = true

	c.mu.Lock()
	c.status.State = models.StateRunOut
	c.status.Running = false
	c.status.RunOut = true
	c.status.ElapsedS = elapsed
	c.targets = targets
	c.mu.Unlock()

	c.log.Infow("run_out", "run_id", c.runID(), "elapsed", elapsed)
	c.appendEvent(ctx, models.EventRunOut, "Profile complete; heater off", map[string]any{"elapsed": elapsed})

	if err := c.adapter.SetPower(ctx, 0); err != nil {
		c.powerOffPending = true
		c.deviceFailed(ctx, err)
		return
	}
	c.setLastPower(0)
}

// tickRunOut keeps sampling for FollowUp after run-out so the cool-down
// curve is recorded. A power-off that failed at run-out is retried first.
func (c *Controller) tickRunOut(ctx context.Context) {
	if c.powerOffPending {
		if err := c.adapter.SetPower(ctx, 0); err != nil {
			c.deviceFailed(ctx, err)
			return
		}
		c.powerOffPending = false
		c.setLastPower(0)
	}
	if !c.sampling {
		return
	}
	elapsed := c.elapsed()
	if elapsed-c.runOutAt > c.opts.FollowUp.Seconds() {
		c.sampling = false
		c.log.Infow("follow_up_complete", "run_id", c.runID(), "samples", c.buf.Len())
		return
	}
	temp, err := c.adapter.ReadTemperature(ctx)
	if err != nil {
		c.deviceFailed(ctx, err)
		return
	}
	c.failures = 0

	c.mu.Lock()
	c.status.ElapsedS = elapsed
	c.mu.Unlock()
	c.record(ctx, elapsed, temp)
}

func (c *Controller) record(ctx context.Context, elapsed, temp float64) {
	if err := c.buf.Append(models.Sample{TimeS: elapsed, TempC: temp}); err != nil {
		c.log.Debugw("sample_dropped", "run_id", c.runID(), "err", err)
	}
	if c.opts.MaxTempC > 0 && temp > c.opts.MaxTempC {
		c.fault(ctx, FaultOverheat, map[string]any{"temp_c": temp, "max_temp_c": c.opts.MaxTempC})
	}
}

func (c *Controller) deviceFailed(ctx context.Context, err error) {
	c.failures++
	c.log.Warnw("device_call_failed", "run_id", c.runID(), "failures", c.failures, "err", err)
	if c.failures >= c.opts.MaxDeviceFailures {
		c.fault(ctx, err.Error(), map[string]any{"failures": c.failures})
	}
}

// fault stops heating and parks the run in Faulted until Reset.
func (c *Controller) fault(ctx context.Context, reason string, meta map[string]any) {
	off := c.powerOff(ctx)

	c.mu.Lock()
	c.status.State = models.StateFaulted
	c.status.Running = false
	c.status.RunOut = false
	c.status.Fault = reason
	if off {
		c.status.LastPower = 0
	}
	c.mu.Unlock()

	c.sampling = false
	c.log.Errorw("run_faulted", "run_id", c.runID(), "reason", reason)
	c.appendEvent(ctx, models.EventFault, "Run faulted: "+reason, meta)
}

// Stop ends a Running or RunOut run. Stopping an idle controller is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch st := c.State(); st {
	case models.StateIdle:
		return nil
	case models.StateRunning, models.StateRunOut:
	default:
		return fmt.Errorf("%w: cannot stop from %s", ErrInvalidTransition, st)
	}

	c.setState(models.StateStopping)
	c.finish(ctx, "Run stopped by operator")
	return nil
}

// Reset acknowledges a fault.
func (c *Controller) Reset(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if st := c.State(); st != models.StateFaulted {
		return fmt.Errorf("%w: cannot reset from %s", ErrInvalidTransition, st)
	}
	c.mu.Lock()
	fault := c.status.Fault
	c.status.State = models.StateIdle
	c.status.Fault = ""
	c.mu.Unlock()

	c.release()
	c.log.Infow("run_reset", "run_id", c.runID(), "fault", fault)
	c.appendEvent(ctx, models.EventReset, "Fault acknowledged", map[string]any{"fault": fault})
	return nil
}

// Shutdown commands 0% power one last time if a run holds a device.
func (c *Controller) Shutdown(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.adapter == nil {
		return
	}
	switch c.State() {
	case models.StateRunning, models.StateRunOut, models.StateStopping:
		c.finish(ctx, "Run stopped on shutdown")
	default:
		c.powerOff(ctx)
		c.release()
	}
	c.log.Infow("controller_shutdown")
}

// finish turns the heater off and returns to Idle, keeping telemetry.
func (c *Controller) finish(ctx context.Context, why string) {
	off := c.powerOff(ctx)
	elapsed := c.Status().ElapsedS

	c.mu.Lock()
	c.status.State = models.StateIdle
	c.status.Running = false
	c.status.RunOut = false
	if off {
		c.status.LastPower = 0
	}
	c.mu.Unlock()

	c.release()
	c.log.Infow("run_stopped", "run_id", c.runID(), "elapsed", elapsed)
	c.appendEvent(ctx, models.EventStop, why, map[string]any{"elapsed": elapsed, "samples": c.buf.Len()})
}

// powerOff is the final 0% command on every exit path. A failure is logged
// and not retried. The command outlives a canceled caller context but is
// bounded by powerOffTimeout.
func (c *Controller) powerOff(ctx context.Context) bool {
	if c.adapter == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), powerOffTimeout)
	defer cancel()
	if err := c.adapter.SetPower(ctx, 0); err != nil {
		c.log.Errorw("power_off_failed", "run_id", c.runID(), "device_id", c.adapter.Info().ID, "err", err)
		return false
	}
	return true
}

func (c *Controller) release() {
	c.adapter = nil
	c.sampling = false
	c.powerOffPending = false
	c.failures = 0
}

func (c *Controller) setState(st models.RunState) {
	c.mu.Lock()
	c.status.State = st
	c.mu.Unlock()
}

func (c *Controller) setLastPower(p float64) {
	c.mu.Lock()
	c.status.LastPower = p
	c.mu.Unlock()
}

func (c *Controller) runID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.RunID
}

func (c *Controller) appendEvent(ctx context.Context, typ, desc string, meta map[string]any) {
	if c.events == nil {
		return
	}
	ev := models.RunEvent{
		EventID:     uuid.NewString(),
		RunID:       c.runID(),
		OccurredAt:  c.now().UTC(),
		Type:        typ,
		Description: desc,
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}
	if err := c.events.Append(ctx, ev); err != nil {
		c.log.Warnw("event_append_failed", "type", typ, "err", err)
	}
}
