package device

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"reflow_oven/internal/models"
)

// Simulation defaults.
const (
	DefaultAmbientC   = 25.0
	DefaultSimMaxC    = 320.0
	DefaultTauSeconds = 40.0

	SimulatedPort = "simulated"
)

// SimConfig parameterises the thermal model.
type SimConfig struct {
	ID         string
	Name       string
	AmbientC   float64
	MaxTempC   float64 // temperature reached at 100% power in steady state
	TauSeconds float64 // first-order time constant
	Now        func() time.Time
}

// SimulatedDevice models a first-order thermal lag: the measured temperature
// approaches a setpoint derived from the commanded power.
type SimulatedDevice struct {
	mu sync.Mutex

	cfg       SimConfig
	tempC     float64
	power     float64
	lastStep  time.Time
	connected bool

	failNext   int
	failErr    error
	powerCalls []float64
}

// NewSimulatedDevice returns a connected simulator sitting at ambient.
func NewSimulatedDevice(cfg SimConfig) *SimulatedDevice {
	if cfg.ID == "" {
		cfg.ID = "simulator_1"
	}
	if cfg.Name == "" {
		cfg.Name = "Simulator 1"
	}
	if cfg.AmbientC == 0 {
		cfg.AmbientC = DefaultAmbientC
	}
	if cfg.MaxTempC == 0 {
		cfg.MaxTempC = DefaultSimMaxC
	}
	if cfg.TauSeconds <= 0 {
		cfg.TauSeconds = DefaultTauSeconds
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SimulatedDevice{
		cfg:       cfg,
		tempC:     cfg.AmbientC,
		lastStep:  cfg.Now(),
		connected: true,
	}
}

func (s *SimulatedDevice) Info() models.Device {
	return models.Device{
		ID:        s.cfg.ID,
		Name:      s.cfg.Name,
		Port:      SimulatedPort,
		Kind:      models.DeviceKindSimulated,
		Connected: s.IsConnected(),
	}
}

// setpoint is the steady-state temperature for a power level.
func (s *SimulatedDevice) setpoint(power float64) float64 {
	return s.cfg.AmbientC + power/MaxPower*(s.cfg.MaxTempC-s.cfg.AmbientC)
}

// step advances the model to now. Caller holds mu.
func (s *SimulatedDevice) step() {
	now := s.cfg.Now()
	dt := now.Sub(s.lastStep).Seconds()
	s.lastStep = now
	if dt <= 0 {
		return
	}
	alpha := 1 - math.Exp(-dt/s.cfg.TauSeconds)
	s.tempC += (s.setpoint(s.power) - s.tempC) * alpha
}

// injected returns the queued failure, if any. Caller holds mu.
func (s *SimulatedDevice) injected() error {
	if !s.connected {
		return ErrDisconnected
	}
	if s.failNext > 0 {
		s.failNext--
		return s.failErr
	}
	return nil
}

func (s *SimulatedDevice) ReadTemperature(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(); err != nil {
		return 0, err
	}
	s.step()
	return s.tempC, nil
}

func (s *SimulatedDevice) SetPower(_ context.Context, percent float64) error {
	if err := ValidatePower(percent); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerCalls = append(s.powerCalls, percent)
	if err := s.injected(); err != nil {
		return err
	}
	// integrate up to now with the previous power before switching
	s.step()
	s.power = percent
	return nil
}

func (s *SimulatedDevice) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *SimulatedDevice) Close() error { return nil }

// FailNext makes the next n device calls return err.
func (s *SimulatedDevice) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = ErrTimeout
	}
	s.failNext, s.failErr = n, err
}

// SetConnected simulates unplugging or re-plugging the oven.
func (s *SimulatedDevice) SetConnected(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = ok
}

// SetTemperature forces the modelled temperature.
func (s *SimulatedDevice) SetTemperature(c float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempC = c
	s.lastStep = s.cfg.Now()
}

// LastPower is the power most recently applied.
func (s *SimulatedDevice) LastPower() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

// PowerCalls lists every SetPower argument, including failed attempts.
func (s *SimulatedDevice) PowerCalls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.powerCalls...)
}

// SimulatedDriver always discovers exactly one simulator.
type SimulatedDriver struct {
	dev *SimulatedDevice
}

func NewSimulatedDriver(cfg SimConfig) *SimulatedDriver {
	return &SimulatedDriver{dev: NewSimulatedDevice(cfg)}
}

func (d *SimulatedDriver) Name() string { return models.DeviceKindSimulated }

func (d *SimulatedDriver) Discover(_ context.Context) ([]Adapter, error) {
	if d.dev == nil {
		return nil, fmt.Errorf("simulated driver not initialised")
	}
	return []Adapter{d.dev}, nil
}

// Device exposes the simulator for tests and the composition root.
func (d *SimulatedDriver) Device() *SimulatedDevice { return d.dev }
