// Package device abstracts ovens behind a small capability set so the run
// controller never talks to hardware directly.
package device

import (
	"context"
	"errors"
	"fmt"
	"math"

	"reflow_oven/internal/models"
)

var (
	ErrTimeout         = errors.New("device timeout")
	ErrDisconnected    = errors.New("device disconnected")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Power limits accepted by SetPower.
const (
	MinPower = 0.0
	MaxPower = 100.0
)

// Adapter is one oven the controller can drive.
type Adapter interface {
	Info() models.Device
	ReadTemperature(ctx context.Context) (float64, error)
	SetPower(ctx context.Context, percent float64) error
	// IsConnected must not block.
	IsConnected() bool
	Close() error
}

// Driver finds adapters of one kind.
type Driver interface {
	Name() string
	Discover(ctx context.Context) ([]Adapter, error)
}

// ValidatePower rejects values outside [MinPower, MaxPower] before any I/O.
func ValidatePower(percent float64) error {
	if percent < MinPower || percent > MaxPower || math.IsNaN(percent) {
		return fmt.Errorf("%w: power %.1f outside [%.0f, %.0f]", ErrInvalidArgument, percent, MinPower, MaxPower)
	}
	return nil
}

// IsLinkError reports whether err means the device did not answer.
func IsLinkError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrDisconnected)
}
