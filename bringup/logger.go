package bringup

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var atom = zap.NewAtomicLevel()

func SelectZapLevel(loglevel string) zapcore.Level {
	var level zapcore.Level
	switch loglevel {
	case "debug":
		level = zap.DebugLevel
	case "info":
		level = zap.InfoLevel
	case "error":
		level = zap.ErrorLevel
	default:
		level = zap.InfoLevel
	}
	return level
}

// InitLogger builds the process logger on stdout. format is "json" or
// "console".
func InitLogger(loglevel, format string) *zap.Logger {
	return NewLogger(loglevel, format, zapcore.Lock(os.Stdout))
}

func NewLogger(loglevel, format string, out zapcore.WriteSyncer) *zap.Logger {
	var encoder zapcore.Encoder
	if format == "console" {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}
	logger := zap.New(zapcore.NewCore(encoder, out, atom))
	atom.SetLevel(SelectZapLevel(loglevel))
	return logger
}

// SetLevel changes the level of every logger built by NewLogger.
func SetLevel(loglevel string) {
	atom.SetLevel(SelectZapLevel(loglevel))
}
