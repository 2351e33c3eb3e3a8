package service

import (
	"context"
	"time"

	"reflow_oven/internal/config"
	"reflow_oven/internal/device"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Profiles manages the stored heat profiles and the operator's selection.
type Profiles interface {
	List() []models.Profile
	Get(id string) (models.Profile, error)
	Create(ctx context.Context, name string, waypoints []models.Waypoint) (models.Profile, error)
	Update(ctx context.Context, id, name string, waypoints []models.Waypoint) (models.Profile, error)
	Delete(ctx context.Context, id string) error
	Select(ctx context.Context, id string) error
}

// Devices lists ovens and switches between them.
type Devices interface {
	List() []models.Device
	Select(ctx context.Context, id string) error
	Rescan(ctx context.Context) error
}

// RunControl exposes the run transitions.
type RunControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Monitoring exposes read-only run state. Safe from any goroutine.
type Monitoring interface {
	Status() models.RunStatus
	CurrentTargets() models.Targets
	LastSample() (models.Sample, bool)
	SamplesSince(t float64) []models.Sample
	Snapshot() models.RunSnapshot
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.RunEvent, error)
}

// Sampler runs the background loop that ticks the run controller.
// Stop via context cancellation in main() for graceful shutdown.
type Sampler interface {
	Run(ctx context.Context, tick time.Duration)
	Shutdown(ctx context.Context)
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Profiles
	Devices
	RunControl
	Monitoring
	EventLog
	Sampler
	Authorization

	profiles *ProfileService
	devices  *DeviceService
}

// NewService wires the repository layer and the device registry into
// concrete services.
func NewService(repos *repository.Repository, registry *device.Registry, cfg *config.Config, log *logger.Logger) *Service {
	profiles := NewProfileService(repos.ProfileRepo, repos.SettingsRepo, log.Named("profiles"))
	ctrl := NewController(profiles, registry, repos.EventRepo, RunOptions{
		FollowUp:          cfg.Run.FollowUp,
		MaxDeviceFailures: cfg.Run.MaxDeviceFailures,
		OvershootBandC:    cfg.Run.OvershootBandC,
		MaxTempC:          cfg.Run.MaxTempC,
	}, log.Named("run"))
	profiles.SetInUse(ctrl.ProfileInUse)
	registry.SetInUse(ctrl.DeviceInUse)
	devices := NewDeviceService(registry, repos.SettingsRepo, ctrl.Active, log.Named("devices"))

	return &Service{
		Profiles:      profiles,
		Devices:       devices,
		RunControl:    ctrl,
		Monitoring:    ctrl,
		EventLog:      NewEventLogService(repos.EventRepo),
		Sampler:       ctrl,
		Authorization: NewAuthService(repos.Auth, cfg.Auth.SigningKey, cfg.Auth.TokenTTL),
		profiles:      profiles,
		devices:       devices,
	}
}

// Load restores profiles and the persisted selections. Call after the
// first device discovery.
func (s *Service) Load(ctx context.Context) error {
	if err := s.profiles.Load(ctx); err != nil {
		return err
	}
	s.devices.Restore(ctx)
	return nil
}
