package config

import (
	"log"
	"os"
)

const (
	defaultDBPath = "./facturador.db"
	defaultPort   = "8080"
	defaultEnv    = "dev"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	DBPath       string
	Port         string
	BusinessName string
	Env          string
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Best-effort: load local dev environment variables.
	// We don't fail if the file is missing; production should use real env injection.
	_ = loadDotEnv(".env")

	cfg := Config{
		DBPath:       os.Getenv("DB_PATH"),
		Port:         os.Getenv("PORT"),
		BusinessName: os.Getenv("BUSINESS_NAME"),
		Env:          os.Getenv("APP_ENV"),
	}

	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}

	if cfg.BusinessName == "" {
		log.Print("warning: BUSINESS_NAME is not set; the invoice From field starts empty")
	}

	return cfg
}

// IsDev reports whether the app runs in the local development environment.
func (c Config) IsDev() bool {
	return c.Env == defaultEnv
}
