package service

import (
	"context"
	"fmt"

	"reflow_oven/internal/device"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"
)

// DeviceService exposes the registry to operators and persists the
// selected oven across restarts.
type DeviceService struct {
	registry *device.Registry
	settings repository.SettingsRepo
	active   func() bool
	log      *logger.Logger
}

func NewDeviceService(registry *device.Registry, settings repository.SettingsRepo, active func() bool, log *logger.Logger) *DeviceService {
	if log == nil {
		log = logger.Nop()
	}
	if active == nil {
		active = func() bool { return false }
	}
	return &DeviceService{registry: registry, settings: settings, active: active, log: log}
}

func (s *DeviceService) List() []models.Device { return s.registry.List() }

// Select changes the current oven. Refused while a run is active.
func (s *DeviceService) Select(ctx context.Context, id string) error {
	if s.active() {
		return fmt.Errorf("%w: cannot change device", ErrRunActive)
	}
	if err := s.registry.Select(id); err != nil {
		return err
	}
	if err := s.settings.Set(ctx, repository.SettingSelectedDevice, id); err != nil {
		s.log.Warnw("device_selection_save_failed", "device_id", id, "err", err)
	}
	s.log.Infow("device_selected", "device_id", id)
	return nil
}

func (s *DeviceService) Rescan(ctx context.Context) error {
	return s.registry.Rescan(ctx)
}

// Restore re-selects the persisted oven if it was discovered again.
func (s *DeviceService) Restore(ctx context.Context) {
	id, err := s.settings.Get(ctx, repository.SettingSelectedDevice)
	if err != nil || id == "" {
		return
	}
	if err := s.registry.Select(id); err != nil {
		s.log.Infow("persisted_device_missing", "device_id", id)
	}
}
