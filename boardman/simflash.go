package boardman

import (
	"sync"

	"github.com/AGPFMiner/iceflash/types"
)

// SPI NOR opcodes understood by SimFlash.
const (
	simCmdPageProgram  = 0x02
	simCmdRead         = 0x03
	simCmdWriteDisable = 0x04
	simCmdReadStatus   = 0x05
	simCmdWriteEnable  = 0x06
	simCmdSectorErase  = 0x20
	simCmdPowerDown    = 0xB9
	simCmdWakeUp       = 0xAB
	simCmdReadID       = 0x9F
	simCmdChipErase    = 0xC7
	simCmdBlockErase   = 0xD8
)

// EraseOp records one erase executed by SimFlash.
type EraseOp struct {
	Addr int
	Size int
}

// SimFlash models a SPI NOR flash on the bit level, SPI mode 0, MSB
// first. It powers up in deep power-down like a flash the iCE40 has just
// booted from.
type SimFlash struct {
	pins types.FlashPins

	mu        sync.Mutex
	mem       []byte
	id        [3]byte
	wel       bool
	powerDown bool

	selected bool
	inByte   byte
	bitIdx   uint
	outByte  byte
	miso     Level

	cmd    byte
	count  int
	addr   int
	cursor int

	erases     []EraseOp
	programmed int64

	busyPolls int
	busyLeft  int
	busyReads int
}

// NewSimFlash returns an erased flash of size bytes answering JEDEC ID
// EF 40 15 (Winbond W25Q16JV).
func NewSimFlash(pins types.FlashPins, size int) *SimFlash {
	f := &SimFlash{
		pins:      pins,
		mem:       make([]byte, size),
		id:        [3]byte{0xEF, 0x40, 0x15},
		powerDown: true,
	}
	for i := range f.mem {
		f.mem[i] = 0xFF
	}
	return f
}

// SetID changes the JEDEC ID the flash answers with.
func (f *SimFlash) SetID(id [3]byte) {
	f.mu.Lock()
	f.id = id
	f.mu.Unlock()
}

// Load overwrites memory at addr without going through SPI.
func (f *SimFlash) Load(addr int, data []byte) {
	f.mu.Lock()
	copy(f.mem[addr:], data)
	f.mu.Unlock()
}

// Contents returns a copy of n bytes from addr.
func (f *SimFlash) Contents(addr, n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, n)
	copy(out, f.mem[addr:addr+n])
	return out
}

func (f *SimFlash) Erases() []EraseOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EraseOp(nil), f.erases...)
}

// Programmed is the number of data bytes accepted by page program.
func (f *SimFlash) Programmed() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.programmed
}

// SetBusyPolls makes every erase and page program report BUSY for the
// next n status reads.
func (f *SimFlash) SetBusyPolls(n int) {
	f.mu.Lock()
	f.busyPolls = n
	f.mu.Unlock()
}

// BusyReads counts status reads answered with BUSY set.
func (f *SimFlash) BusyReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busyReads
}

func (f *SimFlash) PoweredDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.powerDown
}

func (f *SimFlash) Drives(n int) (Level, bool) {
	if n != f.pins.MISO {
		return Low, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.selected {
		return Low, false
	}
	return f.miso, true
}

func (f *SimFlash) PinChanged(h *SimHost, n int, l Level) {
	switch n {
	case f.pins.CS:
		f.mu.Lock()
		if l == Low {
			f.selected = true
			f.inByte, f.bitIdx, f.outByte = 0, 0, 0
			f.miso = Low
			f.count, f.addr = 0, 0
		} else if f.selected {
			f.selected = false
			f.finish()
		}
		f.mu.Unlock()
	case f.pins.SCK:
		// MOSI is driven by the host, read the latch outside our lock.
		mosi := h.Latched(f.pins.MOSI)
		f.mu.Lock()
		if f.selected {
			if l == High {
				f.inByte <<= 1
				if mosi {
					f.inByte |= 1
				}
				f.bitIdx++
			} else {
				if f.bitIdx == 8 {
					f.outByte = f.handle(f.inByte)
					f.inByte, f.bitIdx = 0, 0
				}
				f.miso = f.outByte&(0x80>>f.bitIdx) != 0
			}
		}
		f.mu.Unlock()
	}
}

func (f *SimFlash) status() byte {
	var s byte
	if f.busyLeft > 0 {
		s |= 0x01
	}
	if f.wel {
		s |= 0x02
	}
	return s
}

// handle consumes one byte clocked in and returns the byte to shift out
// during the next one.
func (f *SimFlash) handle(b byte) byte {
	f.count++
	if f.count == 1 {
		f.cmd = b
		if f.powerDown && b != simCmdWakeUp {
			return 0
		}
		switch b {
		case simCmdReadID:
			return f.id[0]
		case simCmdReadStatus:
			return f.status()
		case simCmdWakeUp:
			f.powerDown = false
		case simCmdWriteDisable:
			f.wel = false
		}
		return 0
	}
	if f.powerDown {
		return 0
	}

	switch f.cmd {
	case simCmdReadID:
		if f.count-1 < len(f.id) {
			return f.id[f.count-1]
		}
	case simCmdReadStatus:
		return f.status()
	case simCmdRead, simCmdPageProgram, simCmdSectorErase, simCmdBlockErase:
		if f.count <= 4 {
			f.addr = f.addr<<8 | int(b)
			if f.count == 4 && f.cmd == simCmdRead {
				f.cursor = f.addr
				return f.next()
			}
			return 0
		}
		switch f.cmd {
		case simCmdRead:
			return f.next()
		case simCmdPageProgram:
			if f.wel {
				page := f.addr &^ 0xFF
				off := (f.addr + f.count - 5) & 0xFF
				f.mem[(page+off)%len(f.mem)] &= b
				f.programmed++
			}
		}
	}
	return 0
}

func (f *SimFlash) next() byte {
	b := f.mem[f.cursor%len(f.mem)]
	f.cursor++
	return b
}

// finish runs the commands that take effect when CS is released.
func (f *SimFlash) finish() {
	if f.count == 0 || f.powerDown {
		if f.count > 0 && f.cmd == simCmdPowerDown {
			f.powerDown = true
		}
		return
	}
	switch f.cmd {
	case simCmdWriteEnable:
		f.wel = true
	case simCmdPowerDown:
		f.powerDown = true
	case simCmdReadStatus:
		if f.busyLeft > 0 {
			f.busyLeft--
			f.busyReads++
		}
	case simCmdPageProgram:
		if f.wel {
			f.busyLeft = f.busyPolls
		}
		f.wel = false
	case simCmdSectorErase:
		f.erase(4096)
	case simCmdBlockErase:
		f.erase(65536)
	case simCmdChipErase:
		if f.wel {
			f.erase(len(f.mem))
		}
	}
}

func (f *SimFlash) erase(size int) {
	if !f.wel {
		return
	}
	f.wel = false
	if size != len(f.mem) && f.count < 4 {
		return
	}
	start := f.addr &^ (size - 1)
	if size == len(f.mem) {
		start = 0
	}
	for i := start; i < start+size && i < len(f.mem); i++ {
		f.mem[i] = 0xFF
	}
	f.erases = append(f.erases, EraseOp{Addr: start, Size: size})
	f.busyLeft = f.busyPolls
}
