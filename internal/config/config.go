// Package config provides unified configuration loading for celldyn.
// It supports loading from YAML files, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/celldyn/internal/constants"
	"github.com/nvandessel/celldyn/internal/pathutil"
)

// DirName is the per-user configuration directory under $HOME.
const DirName = ".celldyn"

// CelldynConfig contains all celldyn configuration settings.
type CelldynConfig struct {
	// Logging contains settings for operational logging and run tracing.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Registry selects where cell-line parameters come from.
	Registry RegistryConfig `json:"registry" yaml:"registry"`

	// Engine tunes the simulation engine.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Limits bound the work a single request may ask for.
	Limits LimitsConfig `json:"limits" yaml:"limits"`

	// Server configures the HTTP transport.
	Server ServerConfig `json:"server" yaml:"server"`
}

// LoggingConfig configures celldyn's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables run tracing to ~/.celldyn/runs.jsonl.
	// "trace" additionally logs one line per simulation step.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

// RegistryConfig configures the cell-line registry backend.
type RegistryConfig struct {
	// Backend is one of "builtin", "file", "sqlite", "postgres", "s3".
	Backend string `json:"backend" yaml:"backend"`

	// Path is the catalog YAML for "file" or the database file for "sqlite".
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// DSN is the Postgres connection string. Supports ${VAR} syntax.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config locates a catalog object in S3 or an S3-compatible store.
type S3Config struct {
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Key       string `json:"key,omitempty" yaml:"key,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PathStyle bool   `json:"path_style,omitempty" yaml:"path_style,omitempty"`
}

// RedactedDSN returns the DSN with any password masked.
func (c RegistryConfig) RedactedDSN() string {
	if c.DSN == "" {
		return ""
	}
	u, err := url.Parse(c.DSN)
	if err != nil || u.User == nil {
		return c.DSN
	}
	if _, ok := u.User.Password(); !ok {
		return c.DSN
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}

// String implements fmt.Stringer to prevent accidental DSN logging.
func (c RegistryConfig) String() string {
	return fmt.Sprintf("RegistryConfig{Backend:%s, Path:%s, DSN:%s, S3:%s/%s}",
		c.Backend, c.Path, c.RedactedDSN(), c.S3.Bucket, c.S3.Key)
}

// EngineConfig tunes the simulation engine.
type EngineConfig struct {
	// Seed is used when a request does not carry one.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Workers is the number of goroutines for per-cell updates. 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	// ParallelThreshold is the population above which updates run in parallel.
	ParallelThreshold int `json:"parallel_threshold" yaml:"parallel_threshold"`
}

// LimitsConfig bounds per-request work.
type LimitsConfig struct {
	MaxSteps        int `json:"max_steps" yaml:"max_steps"`
	MaxCultureSize  int `json:"max_culture_size" yaml:"max_culture_size"`
	MaxInitialCells int `json:"max_initial_cells" yaml:"max_initial_cells"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr        string        `json:"addr" yaml:"addr"`
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`
}

// Default returns a CelldynConfig with sensible defaults.
func Default() *CelldynConfig {
	return &CelldynConfig{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Registry: RegistryConfig{
			Backend: "builtin",
		},
		Engine: EngineConfig{
			Seed:              constants.DefaultSeed,
			Workers:           0,
			ParallelThreshold: constants.DefaultParallelThreshold,
		},
		Limits: LimitsConfig{
			MaxSteps:        constants.DefaultMaxSteps,
			MaxCultureSize:  constants.DefaultMaxCultureSize,
			MaxInitialCells: constants.DefaultMaxCultureSize,
		},
		Server: ServerConfig{
			Addr:        ":5000",
			ReadTimeout: 30 * time.Second,
		},
	}
}

// Dir returns ~/.celldyn.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.celldyn/config.yaml -> ./.env -> environment variables
func Load() (*CelldynConfig, error) {
	configPath := ""
	if dir, err := Dir(); err == nil {
		configPath = filepath.Join(dir, "config.yaml")
	}
	return load(configPath, ".env")
}

func load(configPath, envPath string) (*CelldynConfig, error) {
	config := Default()

	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// .env never overrides variables already set in the process environment.
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*CelldynConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", pathutil.RedactPath(path), err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", pathutil.RedactPath(path), err)
	}

	config.Registry.DSN = expandEnvVars(config.Registry.DSN)

	return config, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *CelldynConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validBackends = map[string]bool{"builtin": true, "file": true, "sqlite": true, "postgres": true, "s3": true}

// Validate checks that the configuration is valid.
func (c *CelldynConfig) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	if f := c.Logging.Format; f != "" && f != "text" && f != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", f)
	}

	backend := strings.ToLower(c.Registry.Backend)
	if backend != "" && !validBackends[backend] {
		return fmt.Errorf("invalid registry backend: %s (valid: builtin, file, sqlite, postgres, s3)", c.Registry.Backend)
	}
	if (backend == "file" || backend == "sqlite") && c.Registry.Path == "" {
		return fmt.Errorf("registry.path is required for the %s backend", backend)
	}
	if backend == "s3" && c.Registry.S3.Bucket == "" {
		return fmt.Errorf("registry.s3.bucket is required for the s3 backend")
	}

	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must be non-negative, got %d", c.Engine.Workers)
	}
	if c.Engine.ParallelThreshold < 0 {
		return fmt.Errorf("engine.parallel_threshold must be non-negative, got %d", c.Engine.ParallelThreshold)
	}

	if c.Limits.MaxSteps <= 0 {
		return fmt.Errorf("limits.max_steps must be positive, got %d", c.Limits.MaxSteps)
	}
	if c.Limits.MaxCultureSize <= 0 {
		return fmt.Errorf("limits.max_culture_size must be positive, got %d", c.Limits.MaxCultureSize)
	}
	if c.Limits.MaxInitialCells <= 0 {
		return fmt.Errorf("limits.max_initial_cells must be positive, got %d", c.Limits.MaxInitialCells)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must be non-negative, got %v", c.Server.ReadTimeout)
	}

	return nil
}

// Workers resolves Engine.Workers, mapping 0 to GOMAXPROCS.
func (c *CelldynConfig) Workers() int {
	if c.Engine.Workers > 0 {
		return c.Engine.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Keys lists every key accepted by Get and Set, in display order.
func Keys() []string {
	return []string{
		"logging.level",
		"logging.format",
		"registry.backend",
		"registry.path",
		"registry.dsn",
		"registry.s3.bucket",
		"registry.s3.key",
		"registry.s3.region",
		"registry.s3.endpoint",
		"registry.s3.path_style",
		"engine.seed",
		"engine.workers",
		"engine.parallel_threshold",
		"limits.max_steps",
		"limits.max_culture_size",
		"limits.max_initial_cells",
		"server.addr",
		"server.read_timeout",
	}
}

// Get retrieves a configuration value by dot-notation key.
// The DSN is returned redacted.
func (c *CelldynConfig) Get(key string) (any, bool) {
	switch key {
	case "logging.level":
		return c.Logging.Level, true
	case "logging.format":
		return c.Logging.Format, true
	case "registry.backend":
		return c.Registry.Backend, true
	case "registry.path":
		return c.Registry.Path, true
	case "registry.dsn":
		return c.Registry.RedactedDSN(), true
	case "registry.s3.bucket":
		return c.Registry.S3.Bucket, true
	case "registry.s3.key":
		return c.Registry.S3.Key, true
	case "registry.s3.region":
		return c.Registry.S3.Region, true
	case "registry.s3.endpoint":
		return c.Registry.S3.Endpoint, true
	case "registry.s3.path_style":
		return c.Registry.S3.PathStyle, true
	case "engine.seed":
		return c.Engine.Seed, true
	case "engine.workers":
		return c.Engine.Workers, true
	case "engine.parallel_threshold":
		return c.Engine.ParallelThreshold, true
	case "limits.max_steps":
		return c.Limits.MaxSteps, true
	case "limits.max_culture_size":
		return c.Limits.MaxCultureSize, true
	case "limits.max_initial_cells":
		return c.Limits.MaxInitialCells, true
	case "server.addr":
		return c.Server.Addr, true
	case "server.read_timeout":
		return c.Server.ReadTimeout.String(), true
	default:
		return nil, false
	}
}

// Set sets a configuration value by dot-notation key. The resulting
// configuration is validated; on error c is left unchanged.
func (c *CelldynConfig) Set(key, value string) error {
	next := *c
	if err := next.set(key, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *CelldynConfig) set(key, value string) error {
	var err error
	switch key {
	case "logging.level":
		c.Logging.Level = value
	case "logging.format":
		c.Logging.Format = value
	case "registry.backend":
		c.Registry.Backend = value
	case "registry.path":
		c.Registry.Path = value
	case "registry.dsn":
		c.Registry.DSN = value
	case "registry.s3.bucket":
		c.Registry.S3.Bucket = value
	case "registry.s3.key":
		c.Registry.S3.Key = value
	case "registry.s3.region":
		c.Registry.S3.Region = value
	case "registry.s3.endpoint":
		c.Registry.S3.Endpoint = value
	case "registry.s3.path_style":
		c.Registry.S3.PathStyle, err = strconv.ParseBool(value)
	case "engine.seed":
		c.Engine.Seed, err = strconv.ParseUint(value, 10, 64)
	case "engine.workers":
		c.Engine.Workers, err = strconv.Atoi(value)
	case "engine.parallel_threshold":
		c.Engine.ParallelThreshold, err = strconv.Atoi(value)
	case "limits.max_steps":
		c.Limits.MaxSteps, err = strconv.Atoi(value)
	case "limits.max_culture_size":
		c.Limits.MaxCultureSize, err = strconv.Atoi(value)
	case "limits.max_initial_cells":
		c.Limits.MaxInitialCells, err = strconv.Atoi(value)
	case "server.addr":
		c.Server.Addr = value
	case "server.read_timeout":
		c.Server.ReadTimeout, err = time.ParseDuration(value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return nil
}

// applyEnvOverrides applies CELLDYN_* environment variable overrides.
// A malformed numeric value is an error rather than silently ignored.
func applyEnvOverrides(config *CelldynConfig) error {
	for _, key := range Keys() {
		env := "CELLDYN_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		if err := config.set(key, v); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}

	// Shorter aliases kept for the common cases.
	if v := os.Getenv("CELLDYN_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("CELLDYN_DATABASE_URL"); v != "" && config.Registry.DSN == "" {
		config.Registry.DSN = v
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
