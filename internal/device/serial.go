package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"reflow_oven/internal/models"

	"go.bug.st/serial"
)

// Line protocol of the reflow controller board (9600 8N1). Commands end with
// '\r'; the board echoes the command and answers with one or more lines.
// The board has no direct power command: output follows the per-phase power
// registers ("<phase>pwr <n>"), so all of them are written with the level.
const (
	cmdStart     = "doStart"
	cmdStop      = "doStop"
	cmdTemp      = "tempshow"
	cmdPowerFmt  = "%spwr %d"
	replyStart   = "Start"
	replyStop    = "Stop"
	replyUnknown = "not found"
	replyBadCmd  = "# Command >"

	defaultBaudRate     = 9600
	defaultReplyTimeout = 500 * time.Millisecond
	readGap             = 50 * time.Millisecond

	// readings outside this window are treated as garbage
	minValidTempC = 0
	maxValidTempC = 490
)

// ErrRejected marks a command the board refused or answered with an
// unexpected value. It is a kind of ErrTimeout: no valid reply arrived.
var ErrRejected = fmt.Errorf("%w: command rejected by device", ErrTimeout)

// phasePowerRegisters are the board's power registers in run order.
var phasePowerRegisters = []string{"pht", "soak", "reflow", "dwell"}

// Port is the subset of serial.Port the device needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Opener opens a port by path.
type Opener func(path string) (Port, error)

// OpenSerialPort opens a real serial port with the board's settings.
func OpenSerialPort(path string) (Port, error) {
	p, err := serial.Open(path, &serial.Mode{
		BaudRate: defaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", path, err)
	}
	return p, nil
}

// SerialDevice drives an oven controller board over a serial link.
type SerialDevice struct {
	mu           sync.Mutex // serialises command/reply exchanges
	path         string
	port         Port
	replyTimeout time.Duration
	connected    atomic.Bool

	powerMu sync.Mutex // guards heating and level across the multi-command SetPower
	heating bool
	level   int // value last confirmed in the power registers, -1 unknown
}

// NewSerialDevice wraps an already opened port.
func NewSerialDevice(path string, port Port, replyTimeout time.Duration) *SerialDevice {
	if replyTimeout <= 0 {
		replyTimeout = defaultReplyTimeout
	}
	d := &SerialDevice{path: path, port: port, replyTimeout: replyTimeout, level: -1}
	d.connected.Store(port != nil)
	return d
}

func (d *SerialDevice) Info() models.Device {
	return models.Device{
		ID:        "serial:" + d.path,
		Name:      "Reflow controller (" + d.path + ")",
		Port:      d.path,
		Kind:      models.DeviceKindSerial,
		Connected: d.IsConnected(),
	}
}

func (d *SerialDevice) IsConnected() bool { return d.connected.Load() }

// Handshake checks the board answers like a reflow controller. Stopping the
// heater is the only side-effect-free command it understands.
func (d *SerialDevice) Handshake(ctx context.Context) error {
	lines, err := d.exchange(ctx, cmdStop)
	if err != nil {
		return err
	}
	if !containsLine(lines, replyStop) {
		return fmt.Errorf("%w: unexpected handshake reply %q", ErrRejected, lines)
	}
	return nil
}

func (d *SerialDevice) ReadTemperature(ctx context.Context) (float64, error) {
	lines, err := d.exchange(ctx, cmdTemp)
	if err != nil {
		return 0, err
	}
	for _, l := range lines {
		if t, ok := parseTemperature(l); ok {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: no temperature in reply %q", ErrTimeout, lines)
}

func (d *SerialDevice) SetPower(ctx context.Context, percent float64) error {
	if err := ValidatePower(percent); err != nil {
		return err
	}
	level := int(percent + 0.5)

	d.powerMu.Lock()
	defer d.powerMu.Unlock()

	if level == 0 {
		// always send the stop, whatever we believe the heater is doing
		d.heating = true
		return d.setHeating(ctx, false)
	}
	if err := d.writePowerRegisters(ctx, level); err != nil {
		return err
	}
	return d.setHeating(ctx, true)
}

// writePowerRegisters sets every phase power register to level and checks
// the value the board echoes back. Unchanged levels are not rewritten.
func (d *SerialDevice) writePowerRegisters(ctx context.Context, level int) error {
	if d.level == level {
		return nil
	}
	d.level = -1
	for _, phase := range phasePowerRegisters {
		cmd := fmt.Sprintf(cmdPowerFmt, phase, level)
		lines, err := d.exchange(ctx, cmd)
		if err != nil {
			return err
		}
		got, ok := parsePowerEcho(cmd, lines)
		if !ok || got != level {
			return fmt.Errorf("%w: %s answered %q", ErrRejected, cmd, lines)
		}
	}
	d.level = level
	return nil
}

func (d *SerialDevice) setHeating(ctx context.Context, on bool) error {
	if d.heating == on {
		return nil
	}
	cmd, want := cmdStop, replyStop
	if on {
		cmd, want = cmdStart, replyStart
	}
	lines, err := d.exchange(ctx, cmd)
	if err != nil {
		return err
	}
	if !containsLine(lines, want) {
		return fmt.Errorf("%w: %s answered %q", ErrRejected, cmd, lines)
	}
	d.heating = on
	return nil
}

func (d *SerialDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected.Store(false)
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// exchange writes one command and collects reply lines until the link goes
// quiet or the reply window closes.
func (d *SerialDevice) exchange(ctx context.Context, cmd string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil || !d.connected.Load() {
		return nil, ErrDisconnected
	}

	deadline := time.Now().Add(d.replyTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	_ = d.port.ResetInputBuffer()
	if err := d.port.SetReadTimeout(readGap); err != nil {
		return nil, d.linkDown(err)
	}
	if _, err := d.port.Write([]byte(cmd + "\r")); err != nil {
		return nil, d.linkDown(err)
	}

	var buf []byte
	chunk := make([]byte, 128)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		n, err := d.port.Read(chunk)
		if err != nil {
			return nil, d.linkDown(err)
		}
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		} else if len(buf) > 0 {
			break // quiet after data: reply complete
		}
		if time.Now().After(deadline) {
			break
		}
	}

	lines := splitLines(buf)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no reply to %q within %s", ErrTimeout, cmd, d.replyTimeout)
	}
	for _, l := range lines {
		if strings.Contains(l, replyUnknown) || strings.Contains(l, replyBadCmd) {
			return nil, fmt.Errorf("%w: %q", ErrRejected, cmd)
		}
	}
	return lines, nil
}

func (d *SerialDevice) linkDown(err error) error {
	d.connected.Store(false)
	return fmt.Errorf("%w: %s: %v", ErrDisconnected, d.path, err)
}

func splitLines(buf []byte) []string {
	var out []string
	for _, raw := range bytes.FieldsFunc(buf, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if l := strings.TrimSpace(string(raw)); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if strings.Contains(l, want) {
			return true
		}
	}
	return false
}

// parseTemperature accepts "+123 C" and "+ 99 C" (space-padded below 100).
func parseTemperature(line string) (float64, bool) {
	if !strings.HasPrefix(line, "+") || !strings.HasSuffix(line, "C") {
		return 0, false
	}
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "+"), "C"))
	v, err := strconv.Atoi(s)
	if err != nil || v < minValidTempC || v > maxValidTempC {
		return 0, false
	}
	return float64(v), true
}

// parsePowerEcho reads the register value from a reply like "pht  40%",
// skipping the echoed command.
func parsePowerEcho(cmd string, lines []string) (int, bool) {
	for _, l := range lines {
		if l == cmd {
			continue
		}
		f := strings.Fields(l)
		if len(f) < 2 {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(f[1], "%"))
		if err == nil && v >= int(MinPower) && v <= int(MaxPower) {
			return v, true
		}
	}
	return 0, false
}
