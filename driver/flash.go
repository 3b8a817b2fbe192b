package driver

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AGPFMiner/iceflash/boardman"
	"github.com/AGPFMiner/iceflash/types"

	"go.uber.org/zap"
)

// [W25Q16JV|8.1.2 Instruction Set Table 1]
const (
	flashCmdPageProgram      = 0x02
	flashCmdRead             = 0x03
	flashCmdReadStatus       = 0x05
	flashCmdWriteEnable      = 0x06
	flashCmdSectorErase      = 0x20
	flashCmdReleasePowerDown = 0xAB
	flashCmdReadID           = 0x9F
	flashCmdBlockErase       = 0xD8

	statusBusy = 0x01
	statusWEL  = 0x02
)

const (
	PageSize   = 256
	SectorSize = 4096
	BlockSize  = 65536
	// MaxAddress is the end of the 24-bit address space.
	MaxAddress = 1 << 24

	maxReadChunk = 4096
)

var (
	ErrNoFlash     = errors.New("no SPI flash responding")
	ErrBusyTimeout = errors.New("flash busy timeout")
	ErrTooLarge    = errors.New("image exceeds 24-bit flash address space")
	ErrWriteLatch  = errors.New("flash did not set write enable latch")
)

var knownFlashIDs = map[[3]byte]string{
	{0x20, 0xBA, 0x16}: "Micron N25Q032",
	{0xEF, 0x40, 0x15}: "Winbond W25Q16JV",
	{0xEF, 0x40, 0x16}: "Winbond W25Q32JV",
	{0xEF, 0x70, 0x18}: "Winbond W25Q128JVIM",
	{0xC2, 0x20, 0x15}: "Macronix MX25L1606E",
}

// FlashName returns the part name for a JEDEC ID, if known.
func FlashName(id [3]byte) (string, bool) {
	name, ok := knownFlashIDs[id]
	return name, ok
}

// ProgressFunc receives the running total of bytes programmed.
type ProgressFunc func(written int64)

// Flash is the SPI NOR flash the iCE40 boots from.
type Flash struct {
	bus    SPI
	cs     boardman.Pin
	logger *zap.Logger

	ID         [3]byte
	OnProgress ProgressFunc

	PollInterval time.Duration
	EraseTimeout time.Duration
	WriteTimeout time.Duration
}

// NewFlash claims the flash pins, wakes the flash from deep power-down
// and reads its JEDEC ID.
func NewFlash(host boardman.Host, pins types.FlashPins, logger *zap.Logger) (*Flash, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cs := host.Pin(pins.CS)
	cs.Output()
	cs.High()
	return newFlash(NewBitBang(host.Pin(pins.MISO), host.Pin(pins.MOSI), host.Pin(pins.SCK)), cs, logger)
}

func newFlash(bus SPI, cs boardman.Pin, logger *zap.Logger) (*Flash, error) {
	f := &Flash{
		bus:          bus,
		cs:           cs,
		logger:       logger,
		PollInterval: 100 * time.Microsecond,
		EraseTimeout: 2 * time.Second,
		WriteTimeout: 50 * time.Millisecond,
	}

	if err := f.command(flashCmdReleasePowerDown); err != nil {
		return nil, err
	}
	time.Sleep(30 * time.Microsecond) // tRES1

	id, err := f.readID()
	if err != nil {
		return nil, err
	}
	if id == [3]byte{0, 0, 0} || id == [3]byte{0xFF, 0xFF, 0xFF} {
		f.Close()
		return nil, ErrNoFlash
	}
	f.ID = id

	name, ok := FlashName(id)
	if !ok {
		name = "unknown"
	}
	logger.Debug("flash", zap.String("JEDEC ID", fmt.Sprintf("%02X", id[:])), zap.String("Part", name))
	return f, nil
}

func (f *Flash) tx(w, r []byte) error {
	f.cs.Low()
	err := f.bus.Tx(w, r)
	f.cs.High()
	return err
}

func (f *Flash) command(cmd byte) error {
	return f.tx([]byte{cmd}, nil)
}

func (f *Flash) readID() (id [3]byte, err error) {
	buf := []byte{flashCmdReadID, 0, 0, 0}
	if err = f.tx(buf, buf); err != nil {
		return
	}
	copy(id[:], buf[1:])
	return
}

func (f *Flash) status() (byte, error) {
	buf := []byte{flashCmdReadStatus, 0}
	if err := f.tx(buf, buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

func (f *Flash) writeEnable() error {
	if err := f.command(flashCmdWriteEnable); err != nil {
		return err
	}
	st, err := f.status()
	if err != nil {
		return err
	}
	if st&statusWEL == 0 {
		return ErrWriteLatch
	}
	return nil
}

func (f *Flash) waitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st, err := f.status()
		if err != nil {
			return err
		}
		if st&statusBusy == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrBusyTimeout
		}
		time.Sleep(f.PollInterval)
	}
}

func addrCmd(cmd byte, addr int, extra int) []byte {
	buf := make([]byte, 4+extra)
	buf[0] = cmd
	buf[1] = byte(addr >> 16)
	buf[2] = byte(addr >> 8)
	buf[3] = byte(addr)
	return buf
}

// Erase erases at least size bytes starting at address 0, using 64 KiB
// block erase where a whole block is covered and 4 KiB sectors
// otherwise.
func (f *Flash) Erase(size int) error {
	if size <= 0 || size > MaxAddress {
		return fmt.Errorf("invalid erase size %d", size)
	}
	for addr := 0; addr < size; {
		cmd, step := byte(flashCmdSectorErase), SectorSize
		if addr%BlockSize == 0 && size-addr >= BlockSize {
			cmd, step = flashCmdBlockErase, BlockSize
		}
		if err := f.writeEnable(); err != nil {
			return err
		}
		if err := f.tx(addrCmd(cmd, addr, 0), nil); err != nil {
			return err
		}
		if err := f.waitReady(f.EraseTimeout); err != nil {
			return fmt.Errorf("erase at 0x%06X: %w", addr, err)
		}
		f.logger.Debug("flash", zap.String("Erased", fmt.Sprintf("0x%06X", addr)), zap.Int("Size", step))
		addr += step
	}
	return nil
}

func (f *Flash) programPage(addr int, data []byte) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	buf := addrCmd(flashCmdPageProgram, addr, len(data))
	copy(buf[4:], data)
	if err := f.tx(buf, nil); err != nil {
		return err
	}
	return f.waitReady(f.WriteTimeout)
}

// Write programs everything read from r into flash from address 0 and
// returns the number of bytes written.
func (f *Flash) Write(r io.Reader) (int64, error) {
	var buf [PageSize]byte
	var written int64
	for {
		n, err := io.ReadFull(r, buf[:])
		if n > 0 {
			if written+int64(n) > MaxAddress {
				return written, ErrTooLarge
			}
			if perr := f.programPage(int(written), buf[:n]); perr != nil {
				return written, fmt.Errorf("program page 0x%06X: %w", written, perr)
			}
			written += int64(n)
			if f.OnProgress != nil {
				f.OnProgress(written)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// ReadAt reads len(p) bytes of flash starting at off.
func (f *Flash) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= MaxAddress {
		return 0, fmt.Errorf("offset 0x%X out of 24-bit range", off)
	}
	n := 0
	for n < len(p) {
		chunk := len(p) - n
		if chunk > maxReadChunk {
			chunk = maxReadChunk
		}
		addr := int(off) + n
		if addr+chunk > MaxAddress {
			return n, io.EOF
		}
		buf := addrCmd(flashCmdRead, addr, chunk)
		if err := f.tx(buf, buf); err != nil {
			return n, err
		}
		copy(p[n:], buf[4:])
		n += chunk
	}
	return n, nil
}

// Close releases the bus so the FPGA can drive it.
func (f *Flash) Close() error {
	f.cs.High()
	f.cs.Input()
	f.bus.Release()
	return nil
}
