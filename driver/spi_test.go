package driver

import (
	"testing"

	"github.com/AGPFMiner/iceflash/boardman"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback ties MISO to MOSI.
type loopback struct {
	h          *boardman.SimHost
	miso, mosi int
}

func (l *loopback) PinChanged(*boardman.SimHost, int, boardman.Level) {}

func (l *loopback) Drives(n int) (boardman.Level, bool) {
	if n != l.miso {
		return boardman.Low, false
	}
	return l.h.Latched(l.mosi), true
}

func TestBitBangLoopback(t *testing.T) {
	h := boardman.NewSimHost()
	h.Attach(&loopback{h: h, miso: 4, mosi: 7})
	bus := NewBitBang(h.Pin(4), h.Pin(7), h.Pin(6))

	w := []byte{0x00, 0xFF, 0xA5, 0x5A, 0x81}
	r := make([]byte, len(w))
	require.NoError(t, bus.Tx(w, r))
	assert.Equal(t, w, r)
	assert.Equal(t, boardman.Low, h.Latched(6), "SCK idles low in mode 0")
}

func TestBitBangLengthMismatch(t *testing.T) {
	h := boardman.NewSimHost()
	bus := NewBitBang(h.Pin(4), h.Pin(7), h.Pin(6))
	assert.Error(t, bus.Tx([]byte{1, 2}, make([]byte, 1)))
	assert.NoError(t, bus.Tx([]byte{1, 2}, nil))
}

func TestBitBangRelease(t *testing.T) {
	h := boardman.NewSimHost()
	bus := NewBitBang(h.Pin(4), h.Pin(7), h.Pin(6))
	assert.True(t, h.IsOutput(7))
	bus.Release()
	assert.False(t, h.IsOutput(7))
	assert.False(t, h.IsOutput(6))
}
