package bringup

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSelectZapLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, SelectZapLevel("debug"))
	assert.Equal(t, zap.ErrorLevel, SelectZapLevel("error"))
	assert.Equal(t, zap.InfoLevel, SelectZapLevel("info"))
	assert.Equal(t, zap.InfoLevel, SelectZapLevel("bogus"))
}

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("error", "json", zapcore.AddSync(&buf))
	logger.Info("hidden")
	logger.Error("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	SetLevel("debug")
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")

	buf.Reset()
	console := NewLogger("info", "console", zapcore.AddSync(&buf))
	console.Info("Erasing flash...")
	assert.Contains(t, buf.String(), "Erasing flash...")
	assert.NotContains(t, buf.String(), `"msg"`)
}
