package service

import (
	"context"
	"testing"

	"reflow_oven/internal/device"
	"reflow_oven/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *device.Registry {
	t.Helper()
	reg := device.NewRegistry(nil,
		device.NewSimulatedDriver(device.SimConfig{ID: "sim_a", Name: "A"}),
		device.NewSimulatedDriver(device.SimConfig{ID: "sim_b", Name: "B"}),
	)
	require.NoError(t, reg.Refresh(context.Background()))
	return reg
}

func TestDeviceService_SelectPersists(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	settings := newMemSettings()
	svc := NewDeviceService(reg, settings, nil, nil)

	require.NoError(t, svc.Select(ctx, "sim_b"))
	assert.Equal(t, "sim_b", reg.SelectedID())
	assert.Equal(t, "sim_b", settings.kv[repository.SettingSelectedDevice])

	list := svc.List()
	require.Len(t, list, 2)
	assert.False(t, list[0].Selected)
	assert.True(t, list[1].Selected)

	assert.ErrorIs(t, svc.Select(ctx, "nope"), device.ErrDeviceNotFound)
}

func TestDeviceService_SelectRefusedDuringRun(t *testing.T) {
	reg := newTestRegistry(t)
	svc := NewDeviceService(reg, newMemSettings(), func() bool { return true }, nil)

	assert.ErrorIs(t, svc.Select(context.Background(), "sim_b"), ErrRunActive)
	assert.Equal(t, "sim_a", reg.SelectedID())
}

func TestDeviceService_Restore(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	settings := newMemSettings()
	settings.kv[repository.SettingSelectedDevice] = "sim_b"

	NewDeviceService(reg, settings, nil, nil).Restore(ctx)
	assert.Equal(t, "sim_b", reg.SelectedID())

	settings.kv[repository.SettingSelectedDevice] = "serial:/dev/gone"
	NewDeviceService(reg, settings, nil, nil).Restore(ctx)
	assert.Equal(t, "sim_b", reg.SelectedID(), "missing device keeps current selection")
}

func TestDeviceService_RescanThrottled(t *testing.T) {
	ctx := context.Background()
	svc := NewDeviceService(newTestRegistry(t), newMemSettings(), nil, nil)

	require.NoError(t, svc.Rescan(ctx))
	assert.ErrorIs(t, svc.Rescan(ctx), device.ErrRescanThrottled)
}
