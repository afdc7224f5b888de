// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	rlerrors "github.com/routelens/routelens/pkg/errors"
)

// Config holds all routelens configuration.
type Config struct {
	Version int `yaml:"version"`

	Source    SourceConfig    `yaml:"source"`
	Parser    ParserConfig    `yaml:"parser"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
	Export    ExportConfig    `yaml:"export"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Source kinds.
const (
	SourceLocal = "local"
	SourceS3    = "s3"
)

// SourceConfig selects where log folders are read from.
type SourceConfig struct {
	Kind string `yaml:"kind"` // local | s3
	Dir  string `yaml:"dir"`

	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// ParserConfig controls base-log reading.
type ParserConfig struct {
	// Timezone the log timestamps are written in; empty means the local zone.
	Timezone   string `yaml:"timezone"`
	BufferSize int    `yaml:"buffer_size"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// WatchConfig controls live reload.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// ExportConfig configures the stock table exporters.
type ExportConfig struct {
	DuckDBPath string      `yaml:"duckdb_path"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig configures snapshot publishing.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Version: 1,
		Source: SourceConfig{
			Kind: SourceLocal,
			Dir:  ".",
		},
		Parser: ParserConfig{
			BufferSize: 64 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Port:        8080,
			Host:        "localhost",
			CORSOrigins: []string{"*"},
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Export: ExportConfig{
			DuckDBPath: filepath.Join(homeDir, ".routelens", "stock.duckdb"),
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "routelens:",
				TTL:    24 * time.Hour,
			},
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "routelens",
			Insecure:    true,
			SampleRate:  1.0,
		},
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceLocal:
		if c.Source.Dir == "" {
			return rlerrors.New(rlerrors.CodeConfig, "source.dir is required for a local source")
		}
	case SourceS3:
		if c.Source.Bucket == "" {
			return rlerrors.New(rlerrors.CodeConfig, "source.bucket is required for an s3 source")
		}
	default:
		return rlerrors.New(rlerrors.CodeConfig, "unknown source kind").WithContext("kind", c.Source.Kind)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return rlerrors.New(rlerrors.CodeConfig, "server.port out of range").WithContext("port", c.Server.Port)
	}
	if _, err := c.Location(); err != nil {
		return rlerrors.Wrap(err, rlerrors.CodeConfig, "invalid parser.timezone")
	}
	return nil
}

// Location resolves Parser.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Parser.Timezone == "" || c.Parser.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Parser.Timezone)
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from the standard paths, then an optional
// explicit file, then the environment.
func (m *Manager) Load(explicit string) error {
	paths := configPaths()
	if explicit != "" {
		paths = append(paths, explicit)
	}
	return m.LoadFrom(paths...)
}

// LoadFrom starts from defaults and merges each existing file in order.
// Missing files are skipped; an explicit but broken file is an error.
func (m *Manager) LoadFrom(paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return rlerrors.Wrap(err, rlerrors.CodeConfig, "load config").WithContext("path", path)
		}
		m.paths = append(m.paths, path)
	}

	m.loadEnv()
	return nil
}

// configPaths returns config file paths in priority order.
func configPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/routelens/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".routelens", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".routelens.yaml"))
	}
	return paths
}

func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// merge copies the non-zero values of src into the config. Booleans can
// only be switched on by a file.
func (m *Manager) merge(src *Config) {
	c := m.config

	setString(&c.Source.Kind, src.Source.Kind)
	setString(&c.Source.Dir, src.Source.Dir)
	setString(&c.Source.Bucket, src.Source.Bucket)
	setString(&c.Source.Prefix, src.Source.Prefix)
	setString(&c.Source.Region, src.Source.Region)
	setString(&c.Source.Endpoint, src.Source.Endpoint)
	setString(&c.Source.AccessKeyID, src.Source.AccessKeyID)
	setString(&c.Source.SecretAccessKey, src.Source.SecretAccessKey)
	c.Source.UsePathStyle = c.Source.UsePathStyle || src.Source.UsePathStyle

	setString(&c.Parser.Timezone, src.Parser.Timezone)
	if src.Parser.BufferSize != 0 {
		c.Parser.BufferSize = src.Parser.BufferSize
	}

	setString(&c.Log.Level, src.Log.Level)
	setString(&c.Log.Format, src.Log.Format)

	if src.Server.Port != 0 {
		c.Server.Port = src.Server.Port
	}
	setString(&c.Server.Host, src.Server.Host)
	if len(src.Server.CORSOrigins) > 0 {
		c.Server.CORSOrigins = src.Server.CORSOrigins
	}

	c.Watch.Enabled = c.Watch.Enabled || src.Watch.Enabled
	if src.Watch.Debounce != 0 {
		c.Watch.Debounce = src.Watch.Debounce
	}

	setString(&c.Export.DuckDBPath, src.Export.DuckDBPath)
	setString(&c.Export.Redis.Addr, src.Export.Redis.Addr)
	setString(&c.Export.Redis.Password, src.Export.Redis.Password)
	setString(&c.Export.Redis.Prefix, src.Export.Redis.Prefix)
	if src.Export.Redis.DB != 0 {
		c.Export.Redis.DB = src.Export.Redis.DB
	}
	if src.Export.Redis.TTL != 0 {
		c.Export.Redis.TTL = src.Export.Redis.TTL
	}

	c.Telemetry.Enabled = c.Telemetry.Enabled || src.Telemetry.Enabled
	setString(&c.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setString(&c.Telemetry.ServiceName, src.Telemetry.ServiceName)
	if src.Telemetry.SampleRate != 0 {
		c.Telemetry.SampleRate = src.Telemetry.SampleRate
	}
}

// loadEnv applies ROUTELENS_* environment overrides.
func (m *Manager) loadEnv() {
	c := m.config

	if v := os.Getenv("ROUTELENS_DIR"); v != "" {
		c.Source.Kind = SourceLocal
		c.Source.Dir = v
	}
	if v := os.Getenv("ROUTELENS_S3_BUCKET"); v != "" {
		c.Source.Kind = SourceS3
		c.Source.Bucket = v
	}
	setString(&c.Log.Level, os.Getenv("ROUTELENS_LOG_LEVEL"))
	if v := os.Getenv("ROUTELENS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	setString(&c.Export.Redis.Addr, os.Getenv("ROUTELENS_REDIS_ADDR"))
	setString(&c.Parser.Timezone, os.Getenv("ROUTELENS_TZ"))
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to path, creating its directory.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// UserConfigPath is where Save writes by default.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".routelens", "config.yaml"), nil
}
