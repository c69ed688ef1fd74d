package app

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/rancher/vmstatus/internal/cmdutil"
	"github.com/rancher/vmstatus/internal/config"
	"github.com/rancher/vmstatus/internal/content"
	"github.com/rancher/vmstatus/internal/database"
)

// Options contains the flags shared by every command.
type Options struct {
	ConfigFile string
	EnvFiles   []string
	LogLevel   string
	LogFormat  string
	Database   string
	Caller     string
	Privileged bool

	flags *pflag.FlagSet
}

func NewOptions() *Options {
	return &Options{}
}

func (o *Options) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.ConfigFile, "config", "", "Path of the YAML configuration file")
	flags.StringSliceVar(&o.EnvFiles, "env-file", nil, "Environment files loaded before reading VMSTATUS_* variables")
	flags.StringVar(&o.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&o.LogFormat, "log-format", "", "Log format (text, json)")
	flags.StringVar(&o.Database, "database", "", "Path of the SQLite database, rejected with the pgx driver")
	flags.StringVar(&o.Caller, "caller", "", "Package name of the calling application")
	flags.BoolVar(&o.Privileged, "privileged", false, "Act as the privileged system caller")
	o.flags = flags
}

// Complete loads the configuration and applies the flags set on the command line over it.
func (o *Options) Complete() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigFile, o.EnvFiles...)
	if err != nil {
		return nil, err
	}

	if o.changed("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if o.changed("log-format") {
		cfg.Log.Format = o.LogFormat
	}
	if o.changed("database") {
		if cfg.Database.Driver != database.DriverSQLite {
			return nil, fmt.Errorf("--database only applies to the %s driver, database.driver is %q",
				database.DriverSQLite, cfg.Database.Driver)
		}
		cfg.Database.Path = o.Database
	}
	if o.changed("caller") {
		cfg.Provider.CallerPackage = o.Caller
	}
	if o.changed("privileged") {
		cfg.Provider.Privileged = o.Privileged
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Logger returns the logger configured by cfg, writing to w.
func (o *Options) Logger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := cmdutil.NewLogger(w, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	return logger.With("component", "vmstatus"), nil
}

func (o *Options) changed(name string) bool {
	return o.flags != nil && o.flags.Changed(name)
}

// ParseAssignments turns col=value pairs into content values.
func ParseAssignments(assignments []string) (*content.ContentValues, error) {
	values := content.NewContentValues()
	for _, assignment := range assignments {
		column, value, found := strings.Cut(assignment, "=")
		if !found || column == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected column=value", assignment)
		}
		values.Put(column, ParseValue(value))
	}

	return values, nil
}

// ParseValue converts a command line value to an integer when it is one, and "null" to nil.
func ParseValue(value string) any {
	if value == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}

	return value
}

func parseArgs(args []string) []any {
	if len(args) == 0 {
		return nil
	}

	parsed := make([]any, 0, len(args))
	for _, arg := range args {
		parsed = append(parsed, ParseValue(arg))
	}

	return parsed
}
