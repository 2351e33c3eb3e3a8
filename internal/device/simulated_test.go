package device

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSim(clk *fakeClock) *SimulatedDevice {
	return NewSimulatedDevice(SimConfig{AmbientC: 25, MaxTempC: 325, TauSeconds: 10, Now: clk.Now})
}

func TestSimulatedDevice_FirstOrderLag(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(0, 0)}
	sim := newTestSim(clk)

	temp, err := sim.ReadTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25.0, temp, "starts at ambient")

	require.NoError(t, sim.SetPower(ctx, 50)) // setpoint 175
	clk.Advance(10 * time.Second)              // one time constant

	temp, err = sim.ReadTemperature(ctx)
	require.NoError(t, err)
	want := 25 + (175-25)*(1-math.Exp(-1))
	assert.InDelta(t, want, temp, 1e-9)

	clk.Advance(10 * time.Minute)
	temp, _ = sim.ReadTemperature(ctx)
	assert.InDelta(t, 175, temp, 1e-6, "settles on setpoint")

	require.NoError(t, sim.SetPower(ctx, 0))
	clk.Advance(10 * time.Minute)
	temp, _ = sim.ReadTemperature(ctx)
	assert.InDelta(t, 25, temp, 1e-6, "cools back to ambient")
}

func TestSimulatedDevice_Deterministic(t *testing.T) {
	ctx := context.Background()
	run := func() float64 {
		clk := &fakeClock{t: time.Unix(100, 0)}
		sim := newTestSim(clk)
		_ = sim.SetPower(ctx, 80)
		for i := 0; i < 30; i++ {
			clk.Advance(time.Second)
			_, _ = sim.ReadTemperature(ctx)
		}
		v, _ := sim.ReadTemperature(ctx)
		return v
	}
	assert.Equal(t, run(), run())
}

func TestSimulatedDevice_SetPowerRejectsOutOfRange(t *testing.T) {
	sim := newTestSim(&fakeClock{t: time.Unix(0, 0)})
	for _, p := range []float64{-1, 100.5, math.NaN()} {
		err := sim.SetPower(context.Background(), p)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
	assert.Empty(t, sim.PowerCalls(), "invalid values never reach the device")
}

func TestSimulatedDevice_FaultInjection(t *testing.T) {
	ctx := context.Background()
	sim := newTestSim(&fakeClock{t: time.Unix(0, 0)})

	sim.FailNext(2, nil)
	_, err := sim.ReadTemperature(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	err = sim.SetPower(ctx, 10)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0.0, sim.LastPower(), "failed command not applied")

	_, err = sim.ReadTemperature(ctx)
	assert.NoError(t, err)

	sim.SetConnected(false)
	assert.False(t, sim.IsConnected())
	_, err = sim.ReadTemperature(ctx)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.False(t, sim.Info().Connected)
}

func TestSimulatedDriver_DiscoverReturnsOneDevice(t *testing.T) {
	drv := NewSimulatedDriver(SimConfig{})
	found, err := drv.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	info := found[0].Info()
	assert.Equal(t, "simulator_1", info.ID)
	assert.True(t, info.IsSimulated())
	assert.Equal(t, SimulatedPort, info.Port)
}
