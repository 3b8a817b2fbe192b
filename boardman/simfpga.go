package boardman

import (
	"sync"

	"github.com/AGPFMiner/iceflash/types"
)

// SimFPGA models the iCE40 configuration handshake. Releasing CRESET
// while CRAM_CS is high and the clock is running starts a boot from flash
// as SPI master. Configuration takes ConfigPolls reads of CDONE, during
// which the FPGA drives SPI_SS itself; if the host still has CRAM_CS
// configured as an output at any of them, the boot fails. CDONE falls
// when CRESET is asserted.
type SimFPGA struct {
	pins types.FPGAPins

	mu          sync.Mutex
	host        *SimHost
	configuring int
	done        bool
	boots       int
	contentions int
	configPolls int
	Broken      bool
}

func NewSimFPGA(pins types.FPGAPins) *SimFPGA {
	return &SimFPGA{pins: pins, configPolls: 1}
}

// Boots counts successful configurations.
func (f *SimFPGA) Boots() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boots
}

// Contentions counts boots aborted because the host drove CRAM_CS while
// the FPGA was reading the flash.
func (f *SimFPGA) Contentions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contentions
}

func (f *SimFPGA) SetBroken(broken bool) {
	f.mu.Lock()
	f.Broken = broken
	f.mu.Unlock()
}

// SetConfigPolls sets how many CDONE reads a configuration takes.
func (f *SimFPGA) SetConfigPolls(n int) {
	if n < 1 {
		n = 1
	}
	f.mu.Lock()
	f.configPolls = n
	f.mu.Unlock()
}

func (f *SimFPGA) Drives(n int) (Level, bool) {
	if n != f.pins.CDone {
		return Low, false
	}
	f.mu.Lock()
	h, busy := f.host, f.configuring > 0
	f.mu.Unlock()

	// The host lock is not held while devices are asked for levels.
	contended := busy && h != nil && h.IsOutput(f.pins.CramCS)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configuring == 0 {
		return Level(f.done), true
	}
	if contended {
		f.configuring = 0
		f.contentions++
		return Low, true
	}
	f.configuring--
	if f.configuring == 0 {
		f.done = true
		f.boots++
	}
	return Level(f.done), true
}

func (f *SimFPGA) PinChanged(h *SimHost, n int, l Level) {
	if n != f.pins.CReset {
		return
	}
	master := h.Latched(f.pins.CramCS) == High
	clocked := h.ClockHz(f.pins.Clock) > 0

	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = false
	f.configuring = 0
	if l == High && master && clocked && !f.Broken {
		f.host = h
		f.configuring = f.configPolls
	}
}

// NewSimBoard wires a SimFlash of flashSize bytes and a SimFPGA to a new
// SimHost.
func NewSimBoard(flashPins types.FlashPins, fpgaPins types.FPGAPins, flashSize int) (*SimHost, *SimFlash, *SimFPGA) {
	flash := NewSimFlash(flashPins, flashSize)
	fpga := NewSimFPGA(fpgaPins)
	return NewSimHost(flash, fpga), flash, fpga
}
