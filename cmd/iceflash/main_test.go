package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AGPFMiner/iceflash/types"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
	setDefaults()
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper()
	defer resetViper()

	cfg, err := loadConfig()
	require.NoError(t, err)
	spew.Dump(cfg)

	assert.Equal(t, "vga.bin", cfg.Bitstream)
	assert.Equal(t, 4096, cfg.EraseSize)
	assert.Equal(t, 25, cfg.FrequencyMHz)
	assert.Equal(t, time.Second, cfg.ConfigTimeout)
	assert.False(t, cfg.Verify)
	assert.Equal(t, types.DefaultFlashPins, cfg.FlashPins)
	assert.Equal(t, types.DefaultFPGAPins, cfg.FPGAPins)
}

func TestReadConfigFile(t *testing.T) {
	resetViper()
	defer resetViper()

	dir, err := ioutil.TempDir("", "iceflash")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "board.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(`{
		"bitstream": "pong.bin",
		"erase-size": 131072,
		"config-timeout": "250ms",
		"verify": true,
		"flash": {"cs": 8},
		"fpga": {"cdone": 22, "cram_cs": 8}
	}`), 0644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("cfg", "iceflash.json", "")
	require.NoError(t, flags.Parse([]string{"--cfg", path}))
	require.NoError(t, readConfig(flags))

	cfg, err := loadConfig()
	require.NoError(t, err)
	spew.Dump(cfg)

	assert.Equal(t, "pong.bin", cfg.Bitstream)
	assert.Equal(t, 131072, cfg.EraseSize)
	assert.Equal(t, 250*time.Millisecond, cfg.ConfigTimeout)
	assert.True(t, cfg.Verify)
	assert.Equal(t, 8, cfg.FlashPins.CS)
	assert.Equal(t, types.DefaultFlashPins.MISO, cfg.FlashPins.MISO)
	assert.Equal(t, 22, cfg.FPGAPins.CDone)
	assert.Equal(t, 8, cfg.FPGAPins.CramCS)
	assert.Equal(t, types.DefaultFPGAPins.CReset, cfg.FPGAPins.CReset)
}

func TestReadConfigMissingExplicitFile(t *testing.T) {
	resetViper()
	defer resetViper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("cfg", "iceflash.json", "")
	require.NoError(t, flags.Parse([]string{"--cfg", filepath.Join(os.TempDir(), "nope", "board.yaml")}))
	assert.Error(t, readConfig(flags))
}

func TestFlashSimulatedMissingBitstream(t *testing.T) {
	resetViper()
	defer resetViper()
	viper.Set("simulate", true)
	viper.Set("bitstream", filepath.Join(os.TempDir(), "nope", "vga.bin"))
	viper.Set("debug", "error")

	assert.Error(t, flash())
}

func TestFlashSimulated(t *testing.T) {
	resetViper()
	defer resetViper()

	dir, err := ioutil.TempDir("", "iceflash")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "vga.bin")
	require.NoError(t, ioutil.WriteFile(path, make([]byte, 700), 0644))

	viper.Set("simulate", true)
	viper.Set("verify", true)
	viper.Set("bitstream", path)
	viper.Set("debug", "error")
	assert.NoError(t, flash())
}
