// Package config loads runtime configuration from the environment.
// A .env file in the working directory is honored when present; real
// environment variables win over it.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Every field has a default
// that works for local development; nothing is mandatory.
type Config struct {
	Port           int    // HTTP port (GYM_PORT)
	DBPath         string // SQLite path, ":memory:" allowed (GYM_DB)
	JWTSecret      string // empty disables auth - dev mode (GYM_JWT_SECRET)
	AllowedOrigins []string
}

// Load reads configuration from .env (if any) and the environment.
func Load() Config {
	_ = godotenv.Load() // missing .env is fine

	cfg := Config{
		Port:      envInt("GYM_PORT", 8080),
		DBPath:    envStr("GYM_DB", "gym.db"),
		JWTSecret: envStr("GYM_JWT_SECRET", ""),
	}
	if origin := envStr("GYM_CORS_ORIGIN", ""); origin != "" {
		cfg.AllowedOrigins = []string{origin}
	}
	return cfg
}

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
