package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "./models", cfg.ModelDir)
	assert.Equal(t, "./data/processed.csv", cfg.HistoryDataPath)
	assert.Equal(t, 128, cfg.CacheCapacity)
	assert.Greater(t, cfg.InferenceWorkers, 0)
	assert.True(t, cfg.AutoTrain)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PREDICTION_CACHE_SIZE", "32")
	t.Setenv("INFERENCE_WORKERS", "4")
	t.Setenv("AUTO_TRAIN", "false")

	cfg := LoadConfig()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 32, cfg.CacheCapacity)
	assert.Equal(t, 4, cfg.InferenceWorkers)
	assert.False(t, cfg.AutoTrain)
}

func TestGetEnvIntIgnoresInvalidValues(t *testing.T) {
	t.Setenv("PREDICTION_CACHE_SIZE", "not_a_number")
	assert.Equal(t, 128, LoadConfig().CacheCapacity)

	// 0以下は無効としてデフォルトに戻す
	t.Setenv("PREDICTION_CACHE_SIZE", "-5")
	assert.Equal(t, 128, LoadConfig().CacheCapacity)
}
