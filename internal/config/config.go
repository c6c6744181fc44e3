package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for delivery requests.
const (
	BackendMySQL  = "mysql"
	BackendMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // application environment (dev, test, prod)
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // may be empty
	DBHost string
	DBPort string
	DBName string

	JWTSecret     string        // HS256 signing secret for credentials
	CredentialTTL time.Duration // CREDENTIAL_TTL_HOURS, default 24h
	RefreshGrace  time.Duration // REFRESH_GRACE_HOURS, how long an expired credential stays renewable, default 168h
	BcryptCost    int

	StoreBackend     string        // mysql or memory
	AuthorityURL     string        // base URL the session client talks to
	AuthorityTimeout time.Duration // per-call timeout, default 30s
	AMQPURL          string        // RabbitMQ; empty disables status events
}

// LoadDotEnv reads path (".env" when empty) into the environment without
// overriding variables that are already set.  A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from the environment.  Every missing or
// malformed required variable is reported in the returned error.
func Load() (Config, error) {
	var r reader
	cfg := Config{
		Env:              r.must("APP_ENV"),
		Port:             envStr("APP_PORT", "8080"),
		JWTSecret:        r.must("JWT_SECRET"),
		CredentialTTL:    time.Duration(r.intOr("CREDENTIAL_TTL_HOURS", 24)) * time.Hour,
		RefreshGrace:     time.Duration(r.intOr("REFRESH_GRACE_HOURS", 168)) * time.Hour,
		BcryptCost:       r.intOr("BCRYPT_COST", 10),
		StoreBackend:     strings.ToLower(envStr("STORE_BACKEND", BackendMySQL)),
		AuthorityURL:     envStr("AUTHORITY_URL", ""),
		AuthorityTimeout: envDur("AUTHORITY_TIMEOUT", 30*time.Second),
		AMQPURL:          envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
	}
	switch cfg.StoreBackend {
	case BackendMySQL:
		cfg.DBUser = r.must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = r.must("DB_HOST")
		cfg.DBPort = envStr("DB_PORT", "3306")
		cfg.DBName = r.must("DB_NAME")
	case BackendMemory:
	default:
		r.fail(fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMySQL, BackendMemory, cfg.StoreBackend))
	}
	if cfg.CredentialTTL <= 0 {
		r.fail(errors.New("CREDENTIAL_TTL_HOURS must be positive"))
	}
	if cfg.RefreshGrace < 0 {
		r.fail(errors.New("REFRESH_GRACE_HOURS must not be negative"))
	}
	if cfg.AuthorityURL == "" {
		cfg.AuthorityURL = "http://localhost:" + cfg.Port
	}
	return cfg, r.err()
}

// reader collects problems so Load can report them all at once.
type reader struct {
	errs []error
}

func (r *reader) fail(err error) { r.errs = append(r.errs, err) }

func (r *reader) err() error { return errors.Join(r.errs...) }

// must retrieves a required environment variable.
func (r *reader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		r.fail(fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

// intOr parses an optional integer, recording an error when it is set but
// malformed.
func (r *reader) intOr(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		r.fail(fmt.Errorf("invalid int for %s: %q", key, s))
		return def
	}
	return n
}
