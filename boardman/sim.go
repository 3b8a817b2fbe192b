package boardman

import (
	"fmt"
	"sync"
)

// Device is a simulated part wired to a SimHost. PinChanged is called on
// every edge the host drives; Drives reports whether the device is
// currently driving line n and at which level.
type Device interface {
	PinChanged(h *SimHost, n int, l Level)
	Drives(n int) (Level, bool)
}

// SimHost is an in-memory GPIO host. Lines not driven by any attached
// device read back their last written level.
type SimHost struct {
	mu      sync.Mutex
	opened  bool
	levels  map[int]Level
	outputs map[int]bool
	clocks  map[int]int
	devices []Device

	// MaxClock caps the generated clock frequency, zero means no cap.
	MaxClock int
}

func NewSimHost(devices ...Device) *SimHost {
	return &SimHost{
		levels:  make(map[int]Level),
		outputs: make(map[int]bool),
		clocks:  make(map[int]int),
		devices: devices,
	}
}

// Attach wires another device to the host.
func (h *SimHost) Attach(d Device) {
	h.mu.Lock()
	h.devices = append(h.devices, d)
	h.mu.Unlock()
}

func (h *SimHost) Open() error {
	h.mu.Lock()
	h.opened = true
	h.mu.Unlock()
	return nil
}

func (h *SimHost) Close() error {
	h.mu.Lock()
	h.opened = false
	h.mu.Unlock()
	return nil
}

func (h *SimHost) Pin(n int) Pin {
	return &simPin{host: h, n: n}
}

func (h *SimHost) Clock(n int, hz int) (int, error) {
	if hz <= 0 {
		return 0, fmt.Errorf("invalid clock frequency %d", hz)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.opened {
		return 0, ErrNotOpen
	}
	if h.MaxClock > 0 && hz > h.MaxClock {
		hz = h.MaxClock
	}
	h.clocks[n] = hz
	return hz, nil
}

func (h *SimHost) StopClock(n int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.opened {
		return ErrNotOpen
	}
	delete(h.clocks, n)
	return nil
}

// ClockHz is the frequency running on pin n, zero when stopped.
func (h *SimHost) ClockHz(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clocks[n]
}

// Latched is the level last written to line n by the host, ignoring
// devices.
func (h *SimHost) Latched(n int) Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.levels[n]
}

// IsOutput reports whether line n is configured as an output.
func (h *SimHost) IsOutput(n int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outputs[n]
}

func (h *SimHost) write(n int, l Level) {
	h.mu.Lock()
	prev, seen := h.levels[n]
	h.levels[n] = l
	devices := h.devices
	h.mu.Unlock()

	if seen && prev == l {
		return
	}
	if !seen && l == Low {
		return
	}
	for _, d := range devices {
		d.PinChanged(h, n, l)
	}
}

func (h *SimHost) read(n int) Level {
	h.mu.Lock()
	devices := h.devices
	l := h.levels[n]
	h.mu.Unlock()

	for _, d := range devices {
		if dl, ok := d.Drives(n); ok {
			return dl
		}
	}
	return l
}

func (h *SimHost) setOutput(n int, out bool) {
	h.mu.Lock()
	h.outputs[n] = out
	h.mu.Unlock()
}

type simPin struct {
	host *SimHost
	n    int
}

func (p *simPin) Output()     { p.host.setOutput(p.n, true) }
func (p *simPin) Input()      { p.host.setOutput(p.n, false) }
func (p *simPin) High()       { p.host.write(p.n, High) }
func (p *simPin) Low()        { p.host.write(p.n, Low) }
func (p *simPin) Read() Level { return p.host.read(p.n) }
