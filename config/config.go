/*
Package config resolves server settings from flags, environment variables,
and an optional .env file.

PRECEDENCE:
  flag > environment > .env > default

ENVIRONMENT:
  EPR_PORT              HTTP port (default 8080)
  EPR_DB_DRIVER         memory | sqlite | postgres (default sqlite)
  EPR_DB_PATH           SQLite path, ":memory:" allowed (default epr.db)
  EPR_POSTGRES_DSN      Postgres connection string (postgres driver only)
  EPR_RATES_DIR         Extra rate schedule documents (optional)
  EPR_RULES_DIR         Extra rule set documents (optional)
  EPR_ARCHIVE_BUCKET    S3 bucket for trace archives (optional)
  EPR_ARCHIVE_REGION    S3 region (default us-east-1)
  EPR_ARCHIVE_ENDPOINT  S3-compatible endpoint, e.g. MinIO (optional)
  LOG_LEVEL             debug | info | warn | error (default info)
*/
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port            int
	DBDriver        string
	DBPath          string
	PostgresDSN     string
	RatesDir        string
	RulesDir        string
	ArchiveBucket   string
	ArchiveRegion   string
	ArchiveEndpoint string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load parses args (without the program name). A .env file in the working
// directory is read first, best-effort.
func Load(args []string) (Config, error) {
	_ = loadDotEnv(".env")

	port, err := envInt("EPR_PORT", 8080)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	fs := flag.NewFlagSet("epr-server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", port, "HTTP server port")
	fs.StringVar(&cfg.DBDriver, "driver", envString("EPR_DB_DRIVER", DriverSQLite), "calculation store: memory, sqlite or postgres")
	fs.StringVar(&cfg.DBPath, "db", envString("EPR_DB_PATH", "epr.db"), "SQLite database path (\":memory:\" for in-memory)")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", os.Getenv("EPR_POSTGRES_DSN"), "Postgres connection string")
	fs.StringVar(&cfg.RatesDir, "rates-dir", os.Getenv("EPR_RATES_DIR"), "directory of additional rate schedule documents")
	fs.StringVar(&cfg.RulesDir, "rules-dir", os.Getenv("EPR_RULES_DIR"), "directory of additional rule set documents")
	fs.StringVar(&cfg.ArchiveBucket, "archive-bucket", os.Getenv("EPR_ARCHIVE_BUCKET"), "S3 bucket for trace archives")
	fs.StringVar(&cfg.ArchiveRegion, "archive-region", envString("EPR_ARCHIVE_REGION", "us-east-1"), "S3 region")
	fs.StringVar(&cfg.ArchiveEndpoint, "archive-endpoint", os.Getenv("EPR_ARCHIVE_ENDPOINT"), "S3-compatible endpoint")
	fs.StringVar(&cfg.LogLevel, "log-level", envString("LOG_LEVEL", "info"), "log level")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.DBDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres driver requires EPR_POSTGRES_DSN or -postgres-dsn")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.DBDriver)
	}
	return nil
}

func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
