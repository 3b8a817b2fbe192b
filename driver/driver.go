package driver

import "io"

// Flasher is the flash side of a bring-up: erase from address 0, stream
// an image in, read it back, then let go of the bus.
type Flasher interface {
	io.ReaderAt
	Erase(size int) error
	Write(r io.Reader) (int64, error)
	Close() error
}

// Starter is the FPGA side of a bring-up.
type Starter interface {
	Start() error
	Stop() error
	Done() bool
}

var (
	_ Flasher = (*Flash)(nil)
	_ Starter = (*FPGA)(nil)
)
