package device

import (
	"context"
	"sort"
	"sync"
	"time"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"

	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
)

const (
	defaultProbeTimeout     = 2 * time.Second
	defaultProbeConcurrency = 4
)

// PortLister enumerates candidate serial ports.
type PortLister func() ([]string, error)

// SerialOptions configures serial discovery.
type SerialOptions struct {
	ProbeTimeout     time.Duration
	ReplyTimeout     time.Duration
	ProbeConcurrency int
	List             PortLister // defaults to serial.GetPortsList
	Open             Opener     // defaults to OpenSerialPort
}

// SerialDriver probes serial ports for reflow controller boards. Devices
// that answered once are kept open across rescans until their port vanishes.
type SerialDriver struct {
	opts SerialOptions
	log  *logger.Logger

	mu    sync.Mutex
	known map[string]*SerialDevice // by port path
}

func NewSerialDriver(opts SerialOptions, log *logger.Logger) *SerialDriver {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = defaultProbeConcurrency
	}
	if opts.List == nil {
		opts.List = serial.GetPortsList
	}
	if opts.Open == nil {
		opts.Open = OpenSerialPort
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SerialDriver{opts: opts, log: log, known: make(map[string]*SerialDevice)}
}

func (d *SerialDriver) Name() string { return models.DeviceKindSerial }

// Discover probes every listed port concurrently, each bounded by
// ProbeTimeout, and returns the boards that answered, sorted by port path.
func (d *SerialDriver) Discover(ctx context.Context) ([]Adapter, error) {
	ports, err := d.opts.List()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)

	d.mu.Lock()
	defer d.mu.Unlock()

	found := make([]*SerialDevice, len(ports))
	var g errgroup.Group
	g.SetLimit(d.opts.ProbeConcurrency)
	for i, path := range ports {
		if dev, ok := d.known[path]; ok {
			if dev.IsConnected() {
				found[i] = dev
				continue
			}
			// the link dropped; release the port before probing it again
			d.log.Infow("serial_device_reconnecting", "port", path)
			_ = dev.Close()
			delete(d.known, path)
		}
		i, path := i, path
		g.Go(func() error {
			found[i] = d.probe(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	present := make(map[string]bool, len(ports))
	out := make([]Adapter, 0, len(ports))
	for i, dev := range found {
		if dev == nil {
			continue
		}
		present[ports[i]] = true
		d.known[ports[i]] = dev
		out = append(out, dev)
	}
	for path, dev := range d.known {
		if !present[path] {
			d.log.Infow("serial_device_removed", "port", path)
			_ = dev.Close()
			delete(d.known, path)
		}
	}
	return out, nil
}

type probeResult struct {
	dev *SerialDevice
	err error
}

// probe opens a port and performs the handshake. It returns nil if the port
// is not a reflow controller or did not answer in time.
func (d *SerialDriver) probe(ctx context.Context, path string) *SerialDevice {
	ctx, cancel := context.WithTimeout(ctx, d.opts.ProbeTimeout)
	defer cancel()

	ch := make(chan probeResult, 1)
	go func() {
		port, err := d.opts.Open(path)
		if err != nil {
			ch <- probeResult{err: err}
			return
		}
		dev := NewSerialDevice(path, port, d.opts.ReplyTimeout)
		if err := dev.Handshake(ctx); err != nil {
			_ = dev.Close()
			ch <- probeResult{err: err}
			return
		}
		ch <- probeResult{dev: dev}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			d.log.Debugw("serial_probe_rejected", "port", path, "err", r.err)
			return nil
		}
		d.log.Infow("serial_device_found", "port", path)
		return r.dev
	case <-ctx.Done():
		d.log.Infow("serial_probe_timeout", "port", path, "timeout", d.opts.ProbeTimeout)
		go func() {
			if r := <-ch; r.dev != nil {
				_ = r.dev.Close()
			}
		}()
		return nil
	}
}
