package bringup

import (
	"errors"
	"fmt"
)

var ErrBusy = errors.New("bring-up already running")

// OpenError means the bitstream could not be opened. Nothing was sent to
// the hardware.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("could not open bitstream %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// VerifyError means the flash read back differs from what was written.
type VerifyError struct {
	Want string
	Got  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("flash verify failed: wrote digest %s, read back %s", e.Want, e.Got)
}
