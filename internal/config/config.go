package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds the runtime configuration. Each field corresponds to an
// environment variable.
type Config struct {
	Env           string // APP_ENV (dev, test, prod)
	Port          string // APP_PORT
	StorageDriver string // STORAGE_DRIVER, mysql unless set to memory
	LogLevel      string // LOG_LEVEL (debug, info, warn, error)

	DBUser string
	DBPass string // may be empty
	DBHost string
	DBPort string
	DBName string

	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int

	AdminEmail    string // seeded administrator; skipped when empty
	AdminPassword string

	BulkConcurrency int    // parallel creations per bulk request
	RabbitMQURL     string // events are only logged when empty
	EventLogDir     string // where the consumer appends events.log
}

// Load reads the configuration. Every missing or malformed required variable
// is reported in the returned error, not just the first one. Database
// variables are only required for the mysql driver.
func Load() (Config, error) {
	l := &loader{}
	cfg := Config{
		Env:           l.must("APP_ENV"),
		Port:          l.must("APP_PORT"),
		StorageDriver: strings.ToLower(getenv("STORAGE_DRIVER", DriverMySQL)),
		LogLevel:      getenv("LOG_LEVEL", "info"),

		DBPass: os.Getenv("DB_PASS"),

		JWTSecret:      l.must("JWT_SECRET"),
		AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     l.mustInt("BCRYPT_COST"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		BulkConcurrency: envInt("BULK_CONCURRENCY", 4),
		RabbitMQURL:     os.Getenv("RABBITMQ_URL"),
		EventLogDir:     getenv("EVENT_LOG_DIR", "logs"),
	}
	switch cfg.StorageDriver {
	case DriverMySQL:
		cfg.DBUser = l.must("DB_USER")
		cfg.DBHost = l.must("DB_HOST")
		cfg.DBPort = l.must("DB_PORT")
		cfg.DBName = l.must("DB_NAME")
	case DriverMemory:
	default:
		l.fail(fmt.Errorf("invalid STORAGE_DRIVER %q: want %s or %s", cfg.StorageDriver, DriverMySQL, DriverMemory))
	}
	if cfg.AdminEmail != "" && cfg.AdminPassword == "" {
		l.fail(errors.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set"))
	}
	if cfg.BulkConcurrency < 1 {
		cfg.BulkConcurrency = 1
	}
	if err := errors.Join(l.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loader collects errors so Load can report all of them at once.
type loader struct {
	errs []error
}

func (l *loader) fail(err error) { l.errs = append(l.errs, err) }

func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.fail(fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

func (l *loader) mustInt(key string) int {
	s := l.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.fail(fmt.Errorf("invalid int for %s: %q", key, s))
	}
	return n
}
