package boardman

import "errors"

// Level is the logic level of a GPIO line.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Pin is a single GPIO line.
type Pin interface {
	Output()
	Input()
	High()
	Low()
	Read() Level
}

// Host gives access to the GPIO lines and clock generators of the board
// running iceflash.
type Host interface {
	Open() error
	Close() error
	Pin(n int) Pin
	// Clock starts a square wave of roughly hz on pin n and returns the
	// frequency actually generated.
	Clock(n int, hz int) (int, error)
	StopClock(n int) error
}

var ErrNotOpen = errors.New("gpio host not open")

// Write drives p to level l.
func Write(p Pin, l Level) {
	if l {
		p.High()
	} else {
		p.Low()
	}
}
