package config

import (
	"os"
	"runtime"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	Port             string
	Environment      string
	ModelDir         string
	HistoryDataPath  string
	CacheCapacity    int
	InferenceWorkers int
	AutoTrain        bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		ModelDir:         getEnv("MODEL_DIR", "./models"),
		HistoryDataPath:  getEnv("HISTORY_DATA_PATH", "./data/processed.csv"),
		CacheCapacity:    getEnvInt("PREDICTION_CACHE_SIZE", 128),
		InferenceWorkers: getEnvInt("INFERENCE_WORKERS", runtime.GOMAXPROCS(0)),
		AutoTrain:        getEnvBool("AUTO_TRAIN", true),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
