package boardman

import (
	"errors"
	"fmt"
	"os"

	"github.com/stianeikeland/go-rpio"
)

// rpiOscillator is the GPCLK source go-rpio programs the divider against.
const rpiOscillator = 19200000

// clockPins are the BCM lines with a general purpose clock function.
var clockPins = map[int]bool{4: true, 5: true, 6: true, 20: true, 21: true, 32: true, 34: true, 42: true, 43: true, 44: true}

// ErrClockAccess is returned by RPiHost.Clock when the process cannot
// program the clock manager.
var ErrClockAccess = errors.New("gpio clock needs root: GPCLK registers are only mapped through /dev/mem")

// canProgramClock reports whether go-rpio mapped /dev/mem. It falls back
// to /dev/gpiomem for other users, which exposes no clock registers, and
// its clock setters then write nowhere.
var canProgramClock = func() bool { return os.Geteuid() == 0 }

// RPiHost drives the Raspberry Pi GPIO block with go-rpio. Plain GPIO
// works through /dev/gpiomem; Clock needs root for /dev/mem.
type RPiHost struct {
	opened bool
}

func NewRPiHost() *RPiHost {
	return &RPiHost{}
}

func (h *RPiHost) Open() error {
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("open gpio: %w", err)
	}
	h.opened = true
	return nil
}

func (h *RPiHost) Close() error {
	if !h.opened {
		return nil
	}
	h.opened = false
	return rpio.Close()
}

func (h *RPiHost) Pin(n int) Pin {
	return rpiPin(n)
}

func (h *RPiHost) Clock(n int, hz int) (int, error) {
	if !h.opened {
		return 0, ErrNotOpen
	}
	if !clockPins[n] {
		return 0, fmt.Errorf("pin %d has no clock function", n)
	}
	if hz <= 0 {
		return 0, fmt.Errorf("invalid clock frequency %d", hz)
	}
	if !canProgramClock() {
		return 0, ErrClockAccess
	}
	actual := hz
	if actual > rpiOscillator {
		actual = rpiOscillator
	}
	pin := rpio.Pin(n)
	pin.Mode(rpio.Clock)
	pin.Freq(actual)
	return actual, nil
}

func (h *RPiHost) StopClock(n int) error {
	if !h.opened {
		return ErrNotOpen
	}
	pin := rpio.Pin(n)
	pin.Output()
	pin.Low()
	return nil
}

type rpiPin int

func (p rpiPin) Output() { rpio.Pin(p).Output() }
func (p rpiPin) Input()  { rpio.Pin(p).Input() }
func (p rpiPin) High()   { rpio.Pin(p).High() }
func (p rpiPin) Low()    { rpio.Pin(p).Low() }

func (p rpiPin) Read() Level {
	return rpio.Pin(p).Read() == rpio.High
}
