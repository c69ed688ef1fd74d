package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/rancher/vmstatus/internal/cmdutil"
	"github.com/rancher/vmstatus/internal/database"
)

// EnvPrefix prefixes the environment variables overriding the configuration file.
const EnvPrefix = "VMSTATUS_"

type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Provider      ProviderConfig      `yaml:"provider"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Log           LogConfig           `yaml:"log"`
}

type DatabaseConfig struct {
	// Driver is either "sqlite" or "pgx".
	Driver string `yaml:"driver"`
	// Path of the SQLite database file, or ":memory:".
	Path           string `yaml:"path"`
	DSN            string `yaml:"dsn"`
	CredentialsDir string `yaml:"credentialsDir"`
	TLSMode        string `yaml:"tlsMode"`
	MaxConns       int32  `yaml:"maxConns"`
}

// ProviderConfig identifies the caller the command line operates as.
type ProviderConfig struct {
	CallerPackage string `yaml:"callerPackage"`
	Privileged    bool   `yaml:"privileged"`
}

type NotificationsConfig struct {
	QueueLength int        `yaml:"queueLength"`
	NATS        NATSConfig `yaml:"nats"`
}

type NATSConfig struct {
	// URL of a NATS server. Changes are not published to other processes when both URL and Embedded are unset.
	URL string `yaml:"url"`
	// Embedded starts a NATS server inside the process.
	Embedded bool   `yaml:"embedded"`
	StoreDir string `yaml:"storeDir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: database.DriverSQLite,
			Path:   "voicemail.db",
		},
		Notifications: NotificationsConfig{
			QueueLength: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: cmdutil.LogFormatText,
		},
	}
}

// Load reads the configuration file at path over the defaults, then applies the environment.
// envFiles are loaded into the environment first; variables already set win.
// An empty path skips the configuration file.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides the fields whose VMSTATUS_* variable is set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	stringFields := map[string]*string{
		"DATABASE_DRIVER":          &c.Database.Driver,
		"DATABASE_PATH":            &c.Database.Path,
		"DATABASE_DSN":             &c.Database.DSN,
		"DATABASE_CREDENTIALS_DIR": &c.Database.CredentialsDir,
		"DATABASE_TLS_MODE":        &c.Database.TLSMode,
		"CALLER_PACKAGE":           &c.Provider.CallerPackage,
		"NATS_URL":                 &c.Notifications.NATS.URL,
		"NATS_STORE_DIR":           &c.Notifications.NATS.StoreDir,
		"LOG_LEVEL":                &c.Log.Level,
		"LOG_FORMAT":               &c.Log.Format,
	}
	for name, field := range stringFields {
		if value, ok := lookup(EnvPrefix + name); ok {
			*field = value
		}
	}

	boolFields := map[string]*bool{
		"PRIVILEGED":    &c.Provider.Privileged,
		"NATS_EMBEDDED": &c.Notifications.NATS.Embedded,
	}
	for name, field := range boolFields {
		value, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*field = b
	}

	if value, ok := lookup(EnvPrefix + "DATABASE_MAX_CONNS"); ok {
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid %sDATABASE_MAX_CONNS: %w", EnvPrefix, err)
		}
		c.Database.MaxConns = int32(n)
	}

	return nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case database.DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required with the sqlite driver"))
		}
	case database.DriverPgx:
		if c.Database.DSN == "" && c.Database.CredentialsDir == "" {
			errs = append(errs, errors.New("database.dsn or database.credentialsDir is required with the pgx driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	if c.Database.MaxConns < 0 {
		errs = append(errs, errors.New("database.maxConns must not be negative"))
	}

	if c.Notifications.NATS.Embedded && c.Notifications.NATS.URL != "" {
		errs = append(errs, errors.New("notifications.nats.url and notifications.nats.embedded are mutually exclusive"))
	}

	if _, err := cmdutil.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != cmdutil.LogFormatText && c.Log.Format != cmdutil.LogFormatJSON {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// PostgresOptions returns the options opening the configured Postgres database.
func (c *Config) PostgresOptions() database.PostgresOptions {
	return database.PostgresOptions{
		DSN:            c.Database.DSN,
		CredentialsDir: c.Database.CredentialsDir,
		TLSMode:        c.Database.TLSMode,
		MaxConns:       c.Database.MaxConns,
	}
}
