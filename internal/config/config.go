package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Backend selects which store implementation the bot runs against.
type Backend string

const (
	BackendSheets   Backend = "sheets"
	BackendPostgres Backend = "postgres"
	BackendBolt     Backend = "bolt"
	BackendMemory   Backend = "memory"
)

// Config carries everything the process needs, resolved from the environment
// once at startup so main stays lean.
type Config struct {
	BotToken string
	Port     string
	BaseURL  string

	Backend             Backend
	SheetID             string
	ServiceAccountEmail string
	PrivateKeyPEM       string
	DatabaseURL         string
	BoltPath            string

	LogLevel          string
	ConsoleLog        bool
	KeepAlive         bool
	ReconcileInterval time.Duration
}

// FromEnv builds and validates the config. A missing required value for the
// selected backend is a startup error, not a runtime surprise.
func FromEnv() (Config, error) {
	cfg := Config{
		BotToken: os.Getenv("BOT_TOKEN"),
		Port:     getenv("PORT", "8080"),
		BaseURL:  strings.TrimSuffix(os.Getenv("BASE_URL"), "/"),

		Backend:             Backend(getenv("STORE_BACKEND", string(BackendSheets))),
		SheetID:             os.Getenv("GOOGLE_SHEET_ID"),
		ServiceAccountEmail: os.Getenv("GOOGLE_SERVICE_ACCOUNT_EMAIL"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		BoltPath:            getenv("BOLT_PATH", "notifybot.db"),

		LogLevel:   getenv("LOG_LEVEL", "info"),
		ConsoleLog: os.Getenv("LOG_CONSOLE") == "true",
		KeepAlive:  os.Getenv("KEEP_ALIVE") == "true",
	}

	// Keys pasted into env managers usually arrive with literal \n sequences.
	cfg.PrivateKeyPEM = strings.ReplaceAll(os.Getenv("GOOGLE_PRIVATE_KEY"), `\n`, "\n")

	interval := getenv("RECONCILE_INTERVAL", "10m")
	d, err := time.ParseDuration(interval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid RECONCILE_INTERVAL %q: %w", interval, err)
	}
	cfg.ReconcileInterval = d

	if cfg.BotToken == "" {
		return Config{}, fmt.Errorf("BOT_TOKEN not set")
	}

	switch cfg.Backend {
	case BackendSheets:
		if cfg.SheetID == "" || cfg.ServiceAccountEmail == "" || cfg.PrivateKeyPEM == "" {
			return Config{}, fmt.Errorf("sheets backend requires GOOGLE_SHEET_ID, GOOGLE_SERVICE_ACCOUNT_EMAIL and GOOGLE_PRIVATE_KEY")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
	case BackendBolt, BackendMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
