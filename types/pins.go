package types

// FlashPins are the host GPIO numbers wired to the SPI flash.
type FlashPins struct {
	MISO int `json:"miso" mapstructure:"miso"`
	MOSI int `json:"mosi" mapstructure:"mosi"`
	SCK  int `json:"sck" mapstructure:"sck"`
	CS   int `json:"cs" mapstructure:"cs"`
}

// FPGAPins are the host GPIO numbers wired to the iCE40 control and
// configuration port. The CRAM pins share nets with the flash bus.
type FPGAPins struct {
	CDone    int `json:"cdone" mapstructure:"cdone"`
	Clock    int `json:"clock" mapstructure:"clock"`
	CReset   int `json:"creset" mapstructure:"creset"`
	CramCS   int `json:"cram_cs" mapstructure:"cram_cs"`
	CramMOSI int `json:"cram_mosi" mapstructure:"cram_mosi"`
	CramSCK  int `json:"cram_sck" mapstructure:"cram_sck"`
}

var (
	DefaultFlashPins = FlashPins{MISO: 4, MOSI: 7, SCK: 6, CS: 5}
	DefaultFPGAPins  = FPGAPins{CDone: 40, Clock: 21, CReset: 31, CramCS: 5, CramMOSI: 4, CramSCK: 6}
)

const (
	// VGAPixelClockHz is the 640x480@60 pixel clock the bitstream's
	// video timing is designed for.
	VGAPixelClockHz = 25175000
	// DefaultFrequencyMHz is the closest whole-MHz clock to
	// VGAPixelClockHz.
	DefaultFrequencyMHz = 25
	DefaultEraseSize    = 4096
	DefaultBitstream    = "vga.bin"
)
