package driver

import (
	"fmt"
	"time"

	"github.com/AGPFMiner/iceflash/boardman"
	"github.com/AGPFMiner/iceflash/types"

	"go.uber.org/zap"
)

const (
	MegaHertz = 1000 * 1000

	// [iCE40 Programming and Configuration TN1248|Table 9]
	resetPulse = 200 * time.Microsecond
)

// ConfigError is returned when CDONE does not rise after reset release.
type ConfigError struct {
	Timeout time.Duration
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("fpga: CDONE still low %v after CRESET release", e.Timeout)
}

// FPGA controls reset, clock and configuration status of an iCE40.
type FPGA struct {
	host     boardman.Host
	cdone    boardman.Pin
	creset   boardman.Pin
	cramCS   boardman.Pin
	cramMOSI boardman.Pin
	cramSCK  boardman.Pin
	clockPin int
	freq     int
	logger   *zap.Logger

	ClockHz       int
	ConfigTimeout time.Duration
	PollInterval  time.Duration
}

// NewFPGA binds the FPGA pins and holds the FPGA in reset. freq is the
// clock fed to the FPGA in Hz.
func NewFPGA(host boardman.Host, pins types.FPGAPins, freq int, logger *zap.Logger) (*FPGA, error) {
	if freq <= 0 {
		return nil, fmt.Errorf("invalid fpga clock %d Hz", freq)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &FPGA{
		host:          host,
		cdone:         host.Pin(pins.CDone),
		creset:        host.Pin(pins.CReset),
		cramCS:        host.Pin(pins.CramCS),
		cramMOSI:      host.Pin(pins.CramMOSI),
		cramSCK:       host.Pin(pins.CramSCK),
		clockPin:      pins.Clock,
		freq:          freq,
		logger:        logger,
		ConfigTimeout: time.Second,
		PollInterval:  time.Millisecond,
	}
	f.cdone.Input()
	f.creset.Output()
	f.creset.Low()
	return f, nil
}

// Start runs the clock and lets the FPGA configure itself from flash.
func (f *FPGA) Start() error {
	actual, err := f.host.Clock(f.clockPin, f.freq)
	if err != nil {
		return fmt.Errorf("fpga clock on pin %d: %w", f.clockPin, err)
	}
	f.ClockHz = actual
	if actual != f.freq {
		f.logger.Warn("fpga", zap.Int("Requested Hz", f.freq), zap.Int("Generated Hz", actual))
	}

	// SPI_SS high at reset release selects master mode: boot from flash.
	f.cramCS.Output()
	f.cramCS.High()
	f.cramMOSI.Input()
	f.cramSCK.Input()

	f.creset.Low()
	time.Sleep(resetPulse)
	f.creset.High()
	// From here the FPGA drives SPI_SS to select the flash.
	f.cramCS.Input()

	deadline := time.Now().Add(f.ConfigTimeout)
	for !f.Done() {
		if time.Now().After(deadline) {
			f.creset.Low()
			if err := f.host.StopClock(f.clockPin); err != nil {
				f.logger.Warn("fpga", zap.String("Stat", "Could not stop clock"), zap.Error(err))
			}
			return &ConfigError{Timeout: f.ConfigTimeout}
		}
		time.Sleep(f.PollInterval)
	}
	f.logger.Debug("fpga", zap.String("Stat", "CDONE high"), zap.Int("Clock Hz", actual))
	return nil
}

// Stop holds the FPGA in reset and stops its clock.
func (f *FPGA) Stop() error {
	f.creset.Low()
	return f.host.StopClock(f.clockPin)
}

// Done reports the CDONE line.
func (f *FPGA) Done() bool {
	return bool(f.cdone.Read())
}
