package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tourney-service/config"
	"tourney-service/utils"
)

func TestNewLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tourney.log")

	logger, err := utils.NewLogger(config.LogConfig{Level: "debug", File: path})
	require.NoError(t, err)
	logger.Debug("poll cycle", zap.String("game_id", "g1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"poll cycle"`)
	assert.Contains(t, string(data), `"game_id":"g1"`)
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := utils.NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
