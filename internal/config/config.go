package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string        `yaml:"addr"`
	DatabaseURL   string        `yaml:"databaseUrl"`
	MigrationsDir string        `yaml:"migrationsDir"`
	CORSOrigin    string        `yaml:"corsOrigin"`
	SessionSecret string        `yaml:"sessionSecret"`
	SessionTTL    time.Duration `yaml:"sessionTtl"`
	WSPingPeriod  time.Duration `yaml:"wsPingPeriod"`
	// Redis Configuration; empty disables cross-instance fan-out
	RedisURL string `yaml:"redisUrl"`
	Channel  string `yaml:"channel"`
	// Meilisearch; empty falls back to in-process search
	MeiliURL       string `yaml:"meiliUrl"`
	MeiliMasterKey string `yaml:"meiliMasterKey"`
}

func Default() Config {
	return Config{
		Addr:          ":8787",
		DatabaseURL:   "",
		MigrationsDir: "./db/migrations",
		CORSOrigin:    "*",
		SessionSecret: "noteboard-dev-secret",
		SessionTTL:    12 * time.Hour,
		WSPingPeriod:  30 * time.Second,
		RedisURL:      "",
		Channel:       "noteboard:notes",
	}
}

// Load starts from Default, applies the YAML file named by NOTEBOARD_CONFIG
// when set, then lets environment variables override both.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("NOTEBOARD_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Addr = getenv("API_ADDR", c.Addr)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.MigrationsDir = getenv("NOTEBOARD_MIGRATIONS_DIR", c.MigrationsDir)
	c.CORSOrigin = getenv("NOTEBOARD_CORS_ORIGIN", c.CORSOrigin)
	c.SessionSecret = getenv("NOTEBOARD_SESSION_SECRET", c.SessionSecret)
	c.SessionTTL = getenvSeconds("NOTEBOARD_SESSION_TTL_SECONDS", c.SessionTTL)
	c.WSPingPeriod = getenvSeconds("NOTEBOARD_WS_PING_SECONDS", c.WSPingPeriod)
	c.RedisURL = getenv("REDIS_URL", c.RedisURL)
	c.Channel = getenv("NOTEBOARD_CHANNEL", c.Channel)
	c.MeiliURL = getenv("MEILI_URL", c.MeiliURL)
	c.MeiliMasterKey = getenv("MEILI_MASTER_KEY", c.MeiliMasterKey)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvSeconds(key string, fallback time.Duration) time.Duration {
	seconds := getenvInt(key, -1)
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
