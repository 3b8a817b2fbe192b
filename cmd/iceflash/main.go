////////////////////////////////////////////////////////////////////////////
// Program: iceflash
// Purpose: Flash an iCE40 bitstream to SPI flash and boot the FPGA
////////////////////////////////////////////////////////////////////////////

////////////////////////////////////////////////////////////////////////////
// Program start

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AGPFMiner/iceflash/boardman"
	"github.com/AGPFMiner/iceflash/bringup"
	"github.com/AGPFMiner/iceflash/types"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////
// Constant and data type/structure definitions

const version = "0.2.0"

const simFlashSize = 4 * 1024 * 1024

// The main command runs the bring-up once and exits.
var mainCmd = &cobra.Command{
	Use:          "iceflash",
	Short:        "Flash an iCE40 bitstream and start the FPGA",
	Long:         `Writes the bitstream to the FPGA's SPI flash, then releases the FPGA from reset with its clock running.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return readConfig(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return flash()
	},
}

// The version command prints this tool's version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

// The serve command flashes once and then keeps the control API up.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Flash, then serve the HTTP/JSON-RPC control API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	setDefaults()

	flags := mainCmd.PersistentFlags()
	flags.String("cfg", "iceflash.json", "config file path")
	flags.String("bitstream", types.DefaultBitstream, "bitstream file to flash")
	flags.Bool("simulate", false, "run against a simulated board instead of GPIO")
	flags.Bool("verify", false, "read the flash back and compare after writing")
	flags.String("debug", "info", "log level: debug, info or error")
	serveCmd.Flags().String("listen", ":1234", "control API listen address")
	serveCmd.Flags().Bool("no-initial", false, "do not flash before serving")

	mainCmd.AddCommand(versionCmd)
	mainCmd.AddCommand(serveCmd)
}

func setDefaults() {
	viper.SetDefault("bitstream", types.DefaultBitstream)
	viper.SetDefault("erase-size", types.DefaultEraseSize)
	viper.SetDefault("frequency", types.DefaultFrequencyMHz)
	viper.SetDefault("verify", false)
	viper.SetDefault("config-timeout", "1s")
	viper.SetDefault("flash.miso", types.DefaultFlashPins.MISO)
	viper.SetDefault("flash.mosi", types.DefaultFlashPins.MOSI)
	viper.SetDefault("flash.sck", types.DefaultFlashPins.SCK)
	viper.SetDefault("flash.cs", types.DefaultFlashPins.CS)
	viper.SetDefault("fpga.cdone", types.DefaultFPGAPins.CDone)
	viper.SetDefault("fpga.clock", types.DefaultFPGAPins.Clock)
	viper.SetDefault("fpga.creset", types.DefaultFPGAPins.CReset)
	viper.SetDefault("fpga.cram_cs", types.DefaultFPGAPins.CramCS)
	viper.SetDefault("fpga.cram_mosi", types.DefaultFPGAPins.CramMOSI)
	viper.SetDefault("fpga.cram_sck", types.DefaultFPGAPins.CramSCK)
	viper.SetDefault("ready-message", bringup.DefaultConfig().ReadyMessage)
	viper.SetDefault("simulate", false)
	viper.SetDefault("debug", "info")
	viper.SetDefault("log-format", "json")
	viper.SetDefault("listen", ":1234")
	viper.SetDefault("no-initial", false)
}

////////////////////////////////////////////////////////////////////////////
// Main

func main() {
	if err := mainCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

////////////////////////////////////////////////////////////////////////////
// Function definitions

// readConfig binds flags and loads the config file. Viper supports
// reading from yaml, toml and/or json files. Paths will be searched in
// the order they are provided.
func readConfig(flags *pflag.FlagSet) error {
	if err := viper.BindPFlags(flags); err != nil {
		return err
	}
	fullcfgname := viper.GetString("cfg")
	cfgname := strings.TrimSuffix(fullcfgname, filepath.Ext(fullcfgname))
	if fullcfgname != "iceflash.json" {
		viper.SetConfigFile(fullcfgname)
	} else {
		viper.SetConfigName(cfgname)
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/iceflash")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			println("No config file found. Using built-in defaults.")
			return nil
		}
		return fmt.Errorf("read config %s: %w", fullcfgname, err)
	}
	return nil
}

func loadConfig() (bringup.Config, error) {
	var cfg bringup.Config
	err := viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	return cfg, err
}

func openHost(cfg bringup.Config, logger *zap.Logger) (boardman.Host, error) {
	if viper.GetBool("simulate") {
		logger.Warn("host", zap.String("Stat", "Using simulated board"))
		host, _, _ := boardman.NewSimBoard(cfg.FlashPins, cfg.FPGAPins, simFlashSize)
		return host, host.Open()
	}
	host := boardman.NewRPiHost()
	return host, host.Open()
}

func newBringup() (*bringup.Bringup, boardman.Host, *zap.Logger, error) {
	logger := bringup.InitLogger(viper.GetString("debug"), viper.GetString("log-format"))
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return nil, nil, logger, err
	}
	host, err := openHost(cfg, logger)
	if err != nil {
		logger.Error("host", zap.Error(err))
		return nil, nil, logger, err
	}
	hw := &bringup.BoardHardware{Host: host, Logger: logger}
	return bringup.New(cfg, hw, logger), host, logger, nil
}

func flash() error {
	b, host, logger, err := newBringup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer host.Close()

	if err := b.Run(); err != nil {
		logger.Error("bringup", zap.Error(err))
		return err
	}
	return nil
}

func serve() error {
	b, host, logger, err := newBringup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer host.Close()

	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config", zap.String("Changed", e.Name), zap.String("Op", e.Op.String()))
		bringup.SetLevel(viper.GetString("debug"))
		cfg, err := loadConfig()
		if err != nil {
			logger.Error("config", zap.Error(err))
			return
		}
		b.Reload(cfg)
	})

	if !viper.GetBool("no-initial") {
		if err := b.Run(); err != nil {
			logger.Error("bringup", zap.Error(err))
		}
	}
	return b.Serve(viper.GetString("listen"))
}
