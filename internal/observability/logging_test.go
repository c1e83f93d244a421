package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/hetman/internal/config"
)

func TestNewLogger_JSON(t *testing.T) {
	cfg := config.LoggingConfig{Level: "info", Format: "json"}
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewLogger_Console(t *testing.T) {
	cfg := config.LoggingConfig{Level: "debug", Format: "console"}
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := config.LoggingConfig{Level: "trace", Format: "json"}
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	cfg := config.LoggingConfig{Level: "info", Format: "xml"}
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewLogger_AllLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := config.LoggingConfig{Level: level, Format: "json"}
		logger, err := NewLogger(cfg)
		require.NoError(t, err, "level %q should be valid", level)
		assert.NotNil(t, logger)
	}
}

func TestRoomLogger_TagsRoomCode(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	RoomLogger(zap.New(core), "ABC234").Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ABC234", entries[0].ContextMap()["room"])
}

func TestPlayerLogger_TagsRoomAndPlayer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	PlayerLogger(zap.New(core), "ABC234", "p-1").Debug("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ABC234", fields["room"])
	assert.Equal(t, "p-1", fields["player"])
}

func TestFormatConfig_ConsoleColorsLevels(t *testing.T) {
	c, err := formatConfig("console")
	require.NoError(t, err)
	assert.True(t, c.Development)
	assert.NotNil(t, c.EncoderConfig.EncodeLevel)

	c, err = formatConfig("json")
	require.NoError(t, err)
	assert.False(t, c.Development)
	assert.NotNil(t, c.Sampling)
}
