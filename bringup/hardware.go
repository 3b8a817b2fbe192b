package bringup

import (
	"time"

	"github.com/AGPFMiner/iceflash/boardman"
	"github.com/AGPFMiner/iceflash/driver"
	"github.com/AGPFMiner/iceflash/types"

	"go.uber.org/zap"
)

// Hardware constructs the flash and FPGA handles for one run.
type Hardware interface {
	OpenFlash(pins types.FlashPins, progress driver.ProgressFunc) (driver.Flasher, error)
	OpenFPGA(pins types.FPGAPins, freq int, timeout time.Duration) (driver.Starter, error)
}

// BoardHardware builds the handles on a GPIO host.
type BoardHardware struct {
	Host   boardman.Host
	Logger *zap.Logger
}

func (h *BoardHardware) OpenFlash(pins types.FlashPins, progress driver.ProgressFunc) (driver.Flasher, error) {
	f, err := driver.NewFlash(h.Host, pins, h.Logger)
	if err != nil {
		return nil, err
	}
	f.OnProgress = progress
	return f, nil
}

func (h *BoardHardware) OpenFPGA(pins types.FPGAPins, freq int, timeout time.Duration) (driver.Starter, error) {
	f, err := driver.NewFPGA(h.Host, pins, freq, h.Logger)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		f.ConfigTimeout = timeout
	}
	return f, nil
}
