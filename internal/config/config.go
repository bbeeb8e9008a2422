// Package config loads the xdb YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
	"github.com/koustreak/xdb/internal/filestore"
	"github.com/koustreak/xdb/internal/logger"
	"go.yaml.in/yaml/v3"
)

// Environment overrides, applied after the file is read.
const (
	EnvDSN    = "XDB_DSN"
	EnvDriver = "XDB_DRIVER"
)

// Config is the top-level configuration.
type Config struct {
	Database *database.Config `yaml:"database" validate:"required"`
	Log      *logger.Config   `yaml:"log" validate:"required"`
	Server   ServerConfig     `yaml:"server"`
	QueryLog QueryLogConfig   `yaml:"query_log"`
	Fetch    FetchConfig      `yaml:"fetch"`

	// Archive is optional. When set, the query log is uploaded on shutdown.
	Archive *filestore.Config `yaml:"archive"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// QueryLogConfig configures the in-memory query log.
type QueryLogConfig struct {
	Active bool `yaml:"active"`
	Limit  int  `yaml:"limit" validate:"gte=0"` // 0 keeps everything
}

// FetchConfig configures the fetch pipeline.
type FetchConfig struct {
	// RejectDuplicateKeys makes keyed fetches fail on a repeated first column
	// instead of keeping the last row.
	RejectDuplicateKeys bool `yaml:"reject_duplicate_keys"`
}

// Default returns a configuration with every section at its defaults.
// Database.DSN is left empty and must come from the file or XDB_DSN.
func Default() *Config {
	lg := logger.DefaultConfig()
	lg.Output = nil

	return &Config{
		Database: database.DefaultConfig(""),
		Log:      lg,
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		QueryLog: QueryLogConfig{Limit: 10000},
	}
}

// Load reads the file at path over the defaults, applies the environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindNotFound, fmt.Sprintf("read config %s", path), err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates it. Environment
// overrides are not applied.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section against its validate tags.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid config", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return errs.Wrap(errs.ErrKindInvalidInput, "invalid config: "+strings.Join(fields, ", "), err)
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.ErrKindInvalidInput, "parse config", err)
	}

	if cfg.Archive != nil {
		def := filestore.DefaultConfig("", "", "")
		if cfg.Archive.Provider == "" {
			cfg.Archive.Provider = def.Provider
		}
		if cfg.Archive.Bucket == "" {
			cfg.Archive.Bucket = def.Bucket
		}
		if cfg.Archive.Prefix == "" {
			cfg.Archive.Prefix = def.Prefix
		}
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if dsn := getenv(EnvDSN); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if drv := getenv(EnvDriver); drv != "" {
		cfg.Database.Driver = database.DriverName(drv)
	}
}

// fieldPath turns "Config.Database.DSN" into "database.dsn".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}
