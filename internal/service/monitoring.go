package service

import "reflow_oven/internal/models"

// Status returns a consistent copy of the run state. Elapsed time moves only
// on ticks, so repeated calls between ticks agree.
func (c *Controller) Status() models.RunStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Controller) State() models.RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.State
}

// CurrentTargets returns the last computed targets, or the selected
// profile's start values while idle.
func (c *Controller) CurrentTargets() models.Targets {
	c.mu.RLock()
	st, t := c.status.State, c.targets
	c.mu.RUnlock()
	if st != models.StateIdle {
		return t
	}
	p, err := c.profiles.Selected()
	if err != nil {
		return models.Targets{}
	}
	t, _ = TargetAt(p, 0)
	return t
}

func (c *Controller) LastSample() (models.Sample, bool) { return c.buf.Last() }

// SamplesSince returns samples with time strictly greater than t.
func (c *Controller) SamplesSince(t float64) []models.Sample { return c.buf.Since(t) }

func (c *Controller) Samples() []models.Sample { return c.buf.All() }

// Snapshot bundles status, targets and the newest sample.
func (c *Controller) Snapshot() models.RunSnapshot {
	s := models.RunSnapshot{Status: c.Status(), Targets: c.CurrentTargets()}
	if last, ok := c.buf.Last(); ok {
		s.LastSample = &last
	}
	return s
}

// Active reports whether a run holds a device.
func (c *Controller) Active() bool { return c.State() != models.StateIdle }

// DeviceInUse reports whether the active run drives device id.
func (c *Controller) DeviceInUse(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.State != models.StateIdle && c.status.DeviceID == id
}

// ProfileInUse reports whether the active run was started from profile id.
func (c *Controller) ProfileInUse(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.State != models.StateIdle && c.status.ProfileID == id
}
