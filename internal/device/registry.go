package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"

	"golang.org/x/time/rate"
)

var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrNoDeviceSelected = errors.New("no device selected")
	ErrRescanThrottled  = errors.New("rescan requested too often")
)

// manual rescans hit every serial port; allow one every few seconds
const (
	rescanEvery = 3 * time.Second
	rescanBurst = 1
)

// Registry is the ordered list of known ovens and the operator's current
// selection. Drivers are queried in order, so the simulator registered first
// stays first in the list.
type Registry struct {
	drivers []Driver
	log     *logger.Logger
	limiter *rate.Limiter

	mu       sync.RWMutex
	adapters []Adapter
	selected string
	inUse    func(id string) bool
}

func NewRegistry(log *logger.Logger, drivers ...Driver) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		drivers: drivers,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(rescanEvery), rescanBurst),
		inUse:   func(string) bool { return false },
	}
}

// SetInUse installs the check that keeps a device listed while a run uses it.
func (r *Registry) SetInUse(fn func(id string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		fn = func(string) bool { return false }
	}
	r.inUse = fn
}

// Refresh re-runs discovery on every driver. Adapters that disappeared are
// dropped unless a run still references them. The first device is selected
// when nothing is.
func (r *Registry) Refresh(ctx context.Context) error {
	var (
		next []Adapter
		errs []error
	)
	for _, drv := range r.drivers {
		found, err := drv.Discover(ctx)
		if err != nil {
			r.log.Warnw("device_discovery_failed", "driver", drv.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s discovery: %w", drv.Name(), err))
		}
		next = append(next, found...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(next))
	for _, a := range next {
		seen[a.Info().ID] = true
	}
	for _, old := range r.adapters {
		id := old.Info().ID
		if !seen[id] && r.inUse(id) {
			r.log.Warnw("device_vanished_during_run", "device_id", id)
			next = append(next, old)
			seen[id] = true
		}
	}
	r.adapters = next

	if r.selected != "" && !seen[r.selected] {
		r.log.Infow("selected_device_removed", "device_id", r.selected)
		r.selected = ""
	}
	if r.selected == "" && len(r.adapters) > 0 {
		r.selected = r.adapters[0].Info().ID
	}
	return errors.Join(errs...)
}

// Rescan is a rate-limited Refresh for operator requests.
func (r *Registry) Rescan(ctx context.Context) error {
	if !r.limiter.Allow() {
		return ErrRescanThrottled
	}
	return r.Refresh(ctx)
}

// Watch refreshes periodically until ctx is canceled, standing in for
// hot-plug notifications.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.log.Debugw("device_watch_refresh_failed", "err", err)
			}
		}
	}
}

// List returns the known devices in discovery order.
func (r *Registry) List() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Device, 0, len(r.adapters))
	for _, a := range r.adapters {
		d := a.Info()
		d.Selected = d.ID == r.selected
		out = append(out, d)
	}
	return out
}

func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

func (r *Registry) lookup(id string) (Adapter, error) {
	for _, a := range r.adapters {
		if a.Info().ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
}

// Select makes id the current device.
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.lookup(id); err != nil {
		return err
	}
	r.selected = id
	return nil
}

// SelectedID returns the current device id, or "" when none is selected.
func (r *Registry) SelectedID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Selected returns the current device.
func (r *Registry) Selected() (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected == "" {
		return nil, ErrNoDeviceSelected
	}
	return r.lookup(r.selected)
}

// Close closes every adapter.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, a := range r.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.adapters = nil
	r.selected = ""
	return errors.Join(errs...)
}
