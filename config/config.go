/*
Package config loads server configuration.

SOURCES (later wins):
  1. Defaults below
  2. .env file (path from ATTENDANCE_ENV_FILE, default ./.env; optional)
  3. Environment variables prefixed ATTENDANCE_ (e.g. ATTENDANCE_DB_DSN)
  4. Command-line flags

KEYS:
  port             HTTP port (8080)
  db_driver        sqlite3 | postgres (sqlite3)
  db_dsn           DSN or SQLite path (attendance.db); ":memory:" for in-memory
  jwt_secret       HS256 secret for bearer tokens
  batches          comma-separated batch names
  history_limit    default cap for student history (30)
  repair_interval  index repair period, 0 disables (0)
  cors_origins     comma-separated allowed origins
  log_level        debug | info | warn | error (info)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/attendance-engine/attendance"
)

const envPrefix = "ATTENDANCE"

// DevJWTSecret is the default secret. It must be replaced outside dev.
const DevJWTSecret = "dev-secret-change-me"

type Config struct {
	Port           int
	DBDriver       string
	DBDSN          string
	JWTSecret      string
	Batches        []attendance.Batch
	HistoryLimit   int
	RepairInterval time.Duration
	CORSOrigins    []string
	LogLevel       slog.Level
}

// Load reads configuration for the server binary. args excludes the program name.
func Load(args []string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetDefault("port", 8080)
	v.SetDefault("db_driver", "sqlite3")
	v.SetDefault("db_dsn", "attendance.db")
	v.SetDefault("jwt_secret", DevJWTSecret)
	v.SetDefault("batches", joinBatches(attendance.DefaultBatches))
	v.SetDefault("history_limit", 30)
	v.SetDefault("repair_interval", time.Duration(0))
	v.SetDefault("cors_origins", "")
	v.SetDefault("log_level", "info")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	port := fs.Int("port", v.GetInt("port"), "HTTP server port")
	driver := fs.String("driver", v.GetString("db_driver"), "database driver (sqlite3|postgres)")
	dsn := fs.String("db", v.GetString("db_dsn"), "database DSN or SQLite path")
	batches := fs.String("batches", v.GetString("batches"), "comma-separated batch names")
	repair := fs.Duration("repair-interval", v.GetDuration("repair_interval"), "index repair interval (0 disables)")
	logLevel := fs.String("log-level", v.GetString("log_level"), "log level")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:           *port,
		DBDriver:       *driver,
		DBDSN:          *dsn,
		JWTSecret:      v.GetString("jwt_secret"),
		Batches:        attendance.ParseBatches(*batches),
		HistoryLimit:   v.GetInt("history_limit"),
		RepairInterval: *repair,
		CORSOrigins:    splitList(v.GetString("cors_origins")),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return Config{}, fmt.Errorf("config: log level %q: %w", *logLevel, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the loaded values.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: invalid port %d", c.Port)
	case c.DBDriver != "sqlite3" && c.DBDriver != "postgres":
		return fmt.Errorf("config: unsupported db driver %q", c.DBDriver)
	case c.DBDSN == "":
		return errors.New("config: db dsn is required")
	case c.JWTSecret == "":
		return errors.New("config: jwt secret is required")
	case len(c.Batches) == 0:
		return errors.New("config: at least one batch is required")
	case c.RepairInterval < 0:
		return errors.New("config: repair interval must not be negative")
	}
	return nil
}

func loadDotEnv() error {
	path := os.Getenv(envPrefix + "_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	return nil
}

func joinBatches(batches []attendance.Batch) string {
	parts := make([]string, len(batches))
	for i, b := range batches {
		parts[i] = string(b)
	}
	return strings.Join(parts, ",")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
