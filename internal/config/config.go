package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// StorageBackend selects where the session store blob lives.
type StorageBackend string

const (
	StorageFile      StorageBackend = "file"
	StorageSQLite    StorageBackend = "sqlite"
	StorageRedis     StorageBackend = "redis"
	StorageFirestore StorageBackend = "firestore"
	StorageMemory    StorageBackend = "memory"
)

// EventsBackend selects the transport for live session updates.
type EventsBackend string

const (
	EventsLocal EventsBackend = "local"
	EventsRedis EventsBackend = "redis"
)

type Config struct {
	Port string

	APIKey     string
	EnvFile    string
	UseMockLLM bool

	StorageBackend StorageBackend
	SlotKey        string
	FilePath       string // file backend
	SQLitePath     string // sqlite backend
	RedisAddr      string // redis backend and redis events
	GCPProjectID   string // firestore backend

	EventsBackend EventsBackend

	ModesFile string // optional YAML override of the mode catalog

	LogLevel  string
	LogFormat string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

// APIKeyFromEnv returns the Gemini key, honoring the legacy API_KEY name.
func APIKeyFromEnv() string {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		return v
	}
	return os.Getenv("API_KEY")
}

// Load reads an optional .env file and all env vars, and builds the config.
func Load() (*Config, error) {
	envFile := getEnv("BLUESHARK_ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	home, _ := os.UserHomeDir()
	dataDir := getEnv("BLUESHARK_DATA_DIR", filepath.Join(home, ".blueshark"))

	cfg := &Config{
		Port: getEnv("BLUESHARK_PORT", "8080"),

		APIKey:     APIKeyFromEnv(),
		EnvFile:    envFile,
		UseMockLLM: getBoolEnv("BLUESHARK_USE_MOCK_LLM", false),

		StorageBackend: StorageBackend(strings.ToLower(getEnv("BLUESHARK_STORAGE_BACKEND", string(StorageFile)))),
		SlotKey:        getEnv("BLUESHARK_SLOT_KEY", "blue_shark_ai_sessions"),
		FilePath:       getEnv("BLUESHARK_FILE_PATH", filepath.Join(dataDir, "sessions.json")),
		SQLitePath:     getEnv("BLUESHARK_SQLITE_PATH", filepath.Join(dataDir, "blueshark.db")),
		RedisAddr:      getEnv("BLUESHARK_REDIS_ADDR", "localhost:6379"),
		GCPProjectID:   getEnv("BLUESHARK_GCP_PROJECT", ""),

		EventsBackend: EventsBackend(strings.ToLower(getEnv("BLUESHARK_EVENTS_BACKEND", string(EventsLocal)))),

		ModesFile: getEnv("BLUESHARK_MODES_FILE", ""),

		LogLevel:  getEnv("BLUESHARK_LOG_LEVEL", "info"),
		LogFormat: getEnv("BLUESHARK_LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend selections and their required settings.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageFile, StorageSQLite, StorageRedis, StorageMemory:
	case StorageFirestore:
		if c.GCPProjectID == "" {
			return fmt.Errorf("BLUESHARK_GCP_PROJECT must be set for the firestore storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	switch c.EventsBackend {
	case EventsLocal, EventsRedis:
	default:
		return fmt.Errorf("unknown events backend %q", c.EventsBackend)
	}

	if c.SlotKey == "" {
		return fmt.Errorf("slot key must not be empty")
	}
	return nil
}
