package driver

import (
	"fmt"

	"github.com/AGPFMiner/iceflash/boardman"
)

// SPI is a full duplex byte transfer. Chip select is handled by the
// caller. Release hands the lines back to other bus masters.
type SPI interface {
	Tx(w, r []byte) error
	Release()
}

var _ SPI = (*BitBang)(nil)

// BitBang is SPI mode 0, MSB first, on three GPIO lines. The bus runs as
// fast as the GPIO block toggles.
type BitBang struct {
	miso, mosi, sck boardman.Pin
}

func NewBitBang(miso, mosi, sck boardman.Pin) *BitBang {
	mosi.Output()
	sck.Output()
	sck.Low()
	miso.Input()
	return &BitBang{miso: miso, mosi: mosi, sck: sck}
}

// Tx shifts out w and, when r is not nil, stores the bytes shifted in.
func (b *BitBang) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("spi: read buffer %d bytes, write buffer %d bytes", len(r), len(w))
	}
	for i, out := range w {
		var in byte
		for bit := 7; bit >= 0; bit-- {
			boardman.Write(b.mosi, out&(1<<uint(bit)) != 0)
			b.sck.High()
			if b.miso.Read() {
				in |= 1 << uint(bit)
			}
			b.sck.Low()
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}

// Release tri-states the bus lines.
func (b *BitBang) Release() {
	b.mosi.Input()
	b.sck.Input()
	b.miso.Input()
}
