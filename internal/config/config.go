package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries settings for both the ledger server and the records
// service. Values come from the environment, with a .env file loaded
// first if present.
type Config struct {
	Port string
	Env  string

	LedgerPath  string
	LockPath    string
	LockTimeout time.Duration

	// Records service and the notifier that posts to it.
	RecordsPort     string
	RecordsPath     string
	RecordsURL      string
	RecordsPassword string
	NotifyTimeout   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	ledgerPath := getenv("LEDGER_PATH", "equacks_database.json")

	lockTimeout, err := duration("LOCK_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := duration("NOTIFY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:            getenv("SERVER_PORT", "8080"),
		Env:             getenv("ENVIRONMENT", "development"),
		LedgerPath:      ledgerPath,
		LockPath:        getenv("LEDGER_LOCK_PATH", ledgerPath+".lock"),
		LockTimeout:     lockTimeout,
		RecordsPort:     getenv("RECORDS_PORT", "8081"),
		RecordsPath:     getenv("RECORDS_PATH", "equacks_record_db.json"),
		RecordsURL:      os.Getenv("RECORDS_URL"),
		RecordsPassword: os.Getenv("RECORDS_PASSWORD"),
		NotifyTimeout:   notifyTimeout,
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
