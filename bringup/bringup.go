package bringup

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AGPFMiner/iceflash/driver"
	"github.com/AGPFMiner/iceflash/statistics"
	"github.com/AGPFMiner/iceflash/types"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// Config is everything one bring-up needs to know.
type Config struct {
	Bitstream     string          `mapstructure:"bitstream"`
	EraseSize     int             `mapstructure:"erase-size"`
	FrequencyMHz  int             `mapstructure:"frequency"`
	Verify        bool            `mapstructure:"verify"`
	ConfigTimeout time.Duration   `mapstructure:"config-timeout"`
	FlashPins     types.FlashPins `mapstructure:"flash"`
	FPGAPins      types.FPGAPins  `mapstructure:"fpga"`
	ReadyMessage  string          `mapstructure:"ready-message"`
}

func DefaultConfig() Config {
	return Config{
		Bitstream:     types.DefaultBitstream,
		EraseSize:     types.DefaultEraseSize,
		FrequencyMHz:  types.DefaultFrequencyMHz,
		ConfigTimeout: time.Second,
		FlashPins:     types.DefaultFlashPins,
		FPGAPins:      types.DefaultFPGAPins,
		ReadyMessage:  "VGA display should now be showing a red screen",
	}
}

// rateWindow is the number of page samples the reported throughput
// averages over.
const rateWindow = 64

// Bringup flashes a bitstream and starts the FPGA on it.
type Bringup struct {
	hw     Hardware
	logger *zap.Logger

	mu        sync.Mutex // protects following
	cfg       Config
	status    types.BringupStatus
	running   bool
	fpga      driver.Starter
	rate      statistics.Throughput
	lastTick  time.Time
	lastBytes int64
}

func New(cfg Config, hw Hardware, logger *zap.Logger) *Bringup {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bringup{hw: hw, logger: logger, cfg: cfg}
	b.status.Status = types.Idle
	b.status.State = types.Idle.String()
	b.status.Bitstream = cfg.Bitstream
	return b
}

// Reload replaces the configuration used by the next run.
func (b *Bringup) Reload(cfg Config) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	b.logger.Info("bringup", zap.String("Stat", "Config reloaded"), zap.String("Bitstream", cfg.Bitstream))
}

func (b *Bringup) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Status returns a snapshot of the current or last run.
func (b *Bringup) Status() (status types.BringupStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copier.Copy(&status, &b.status)
	return
}

func (b *Bringup) setState(s types.BringupStates) {
	b.mu.Lock()
	b.status.Status = s
	b.status.State = s.String()
	b.mu.Unlock()
}

func (b *Bringup) progress(written int64) {
	now := time.Now()
	b.mu.Lock()
	b.rate.Add(written-b.lastBytes, now.Sub(b.lastTick))
	b.lastTick, b.lastBytes = now, written
	b.status.Written = written
	b.status.Throughput = b.rate.Rate(rateWindow)
	b.mu.Unlock()
}

// Run opens the bitstream, erases and programs the flash, then starts
// the FPGA. The FPGA is only started when the image reached the flash
// completely.
func (b *Bringup) Run() (err error) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrBusy
	}
	b.running = true
	cfg := b.cfg
	b.status = types.BringupStatus{
		Bitstream: cfg.Bitstream,
		Started:   time.Now().Unix(),
		Runs:      b.status.Runs + 1,
	}
	b.rate.Reset()
	b.lastTick, b.lastBytes = time.Now(), 0
	b.mu.Unlock()
	b.setState(types.Opening)

	defer func() {
		b.mu.Lock()
		b.running = false
		b.status.Finished = time.Now().Unix()
		if err != nil {
			b.status.Status = types.Failed
			b.status.State = types.Failed.String()
			b.status.Error = err.Error()
		}
		b.mu.Unlock()
	}()

	b.logger.Info("Starting FPGA flash process...")

	file, err := os.Open(cfg.Bitstream)
	if err != nil {
		b.logger.Error(fmt.Sprintf("ERROR: Could not open %s", filepath.Base(cfg.Bitstream)), zap.Error(err))
		return &OpenError{Path: cfg.Bitstream, Err: err}
	}
	defer file.Close()

	var size int64
	if fi, serr := file.Stat(); serr == nil {
		size = fi.Size()
	}
	b.mu.Lock()
	b.status.Size = size
	b.mu.Unlock()
	b.logger.Info("Bitstream file opened successfully", zap.String("Path", cfg.Bitstream), zap.Int64("Size", size))

	// A previously started FPGA masters the flash bus.
	b.mu.Lock()
	prev := b.fpga
	b.mu.Unlock()
	if prev != nil {
		if err = prev.Stop(); err != nil {
			return fmt.Errorf("stop running fpga: %w", err)
		}
		b.mu.Lock()
		b.fpga = nil
		b.mu.Unlock()
	}

	flash, err := b.hw.OpenFlash(cfg.FlashPins, b.progress)
	if err != nil {
		return fmt.Errorf("open flash: %w", err)
	}
	defer flash.Close()
	if f, ok := flash.(*driver.Flash); ok {
		b.mu.Lock()
		b.status.FlashID = fmt.Sprintf("%02X", f.ID[:])
		b.mu.Unlock()
	}

	b.setState(types.Erasing)
	b.logger.Info("Erasing flash...", zap.Int("Size", cfg.EraseSize))
	if size > int64(cfg.EraseSize) {
		b.logger.Warn("bringup", zap.String("Stat", "Bitstream larger than erased region"),
			zap.Int64("Size", size), zap.Int("Erased", cfg.EraseSize))
	}
	if err = flash.Erase(cfg.EraseSize); err != nil {
		return fmt.Errorf("erase flash: %w", err)
	}

	b.mu.Lock()
	b.lastTick = time.Now()
	b.mu.Unlock()
	b.setState(types.Writing)
	b.logger.Info("Writing bitstream to flash...")
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return err
	}
	written, err := flash.Write(io.TeeReader(file, hasher))
	if err != nil {
		return fmt.Errorf("write flash after %d bytes: %w", written, err)
	}
	file.Close()
	digest := hasher.Sum(nil)
	b.mu.Lock()
	b.status.Written = written
	b.status.Digest = hex.EncodeToString(digest)
	b.mu.Unlock()
	b.logger.Info("Bitstream written successfully", zap.Int64("Bytes", written),
		zap.String("Digest", hex.EncodeToString(digest)))

	if cfg.Verify {
		b.setState(types.Verifying)
		b.logger.Info("Verifying bitstream...")
		if err = verify(flash, written, digest); err != nil {
			return err
		}
	}

	if err = flash.Close(); err != nil {
		return fmt.Errorf("release flash: %w", err)
	}

	b.setState(types.Starting)
	b.logger.Info(fmt.Sprintf("Starting FPGA with %d MHz clock...", cfg.FrequencyMHz),
		zap.Int("Pixel clock Hz", types.VGAPixelClockHz))
	fpga, err := b.hw.OpenFPGA(cfg.FPGAPins, cfg.FrequencyMHz*driver.MegaHertz, cfg.ConfigTimeout)
	if err != nil {
		return fmt.Errorf("open fpga: %w", err)
	}
	if err = fpga.Start(); err != nil {
		if serr := fpga.Stop(); serr != nil {
			b.logger.Warn("bringup", zap.String("Stat", "Could not stop fpga"), zap.Error(serr))
		}
		return fmt.Errorf("start fpga: %w", err)
	}

	b.mu.Lock()
	b.fpga = fpga
	if f, ok := fpga.(*driver.FPGA); ok {
		b.status.ClockHz = f.ClockHz
	}
	b.mu.Unlock()
	b.setState(types.Running)
	b.logger.Info("FPGA started successfully!")
	if cfg.ReadyMessage != "" {
		b.logger.Info(cfg.ReadyMessage)
	}
	return nil
}

// Stop holds the started FPGA in reset.
func (b *Bringup) Stop() error {
	b.mu.Lock()
	fpga := b.fpga
	running := b.running
	b.mu.Unlock()
	if running {
		return ErrBusy
	}
	if fpga == nil {
		return nil
	}
	if err := fpga.Stop(); err != nil {
		return err
	}
	b.mu.Lock()
	b.fpga = nil
	b.mu.Unlock()
	b.setState(types.Idle)
	b.logger.Info("FPGA stopped")
	return nil
}

func verify(r io.ReaderAt, n int64, want []byte) error {
	h, err := blake2b.New256(nil)
	if err != nil {
		return err
	}
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, n)); err != nil {
		return fmt.Errorf("read back flash: %w", err)
	}
	got := h.Sum(nil)
	if !bytes.Equal(got, want) {
		return &VerifyError{Want: hex.EncodeToString(want), Got: hex.EncodeToString(got)}
	}
	return nil
}
