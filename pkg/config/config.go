package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/filebox/internal/bytesize"
	"github.com/marmos91/filebox/pkg/controlplane/store"
)

// Config represents the filebox server configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FILEBOX_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Server contains the listener and the shared directory
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Transfer bounds file transfers
	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`

	// Auth selects where credentials are checked
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Index configures the file index used by search and showfiles
	Index IndexConfig `mapstructure:"index" yaml:"index"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Banner is printed by 'fileboxd start' once the server is listening.
	Banner string `mapstructure:"banner" yaml:"banner,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the filebox listener.
type ServerConfig struct {
	// Root is the shared directory. Every path a client names is confined
	// to it.
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// BindAddress is the IP address to listen on. Empty listens on all
	// interfaces.
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address"`

	// Port is the TCP port
	// Default: 12345
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// MaxConnections bounds concurrent sessions (0 = unlimited)
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// ShutdownTimeout is the maximum time to wait for sessions on shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// MetricsLogInterval logs the active session count periodically (0 = off)
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"gte=0" yaml:"metrics_log_interval"`

	// AuthTimeout bounds how long a client may take to send credentials
	// Default: 30s
	AuthTimeout time.Duration `mapstructure:"auth_timeout" validate:"gte=0" yaml:"auth_timeout"`

	// IdleTimeout closes sessions idle between commands (0 = never)
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0" yaml:"idle_timeout"`
}

// TransferConfig bounds uploads and downloads.
type TransferConfig struct {
	// BufferSize is the copy buffer used for payloads
	// Supports human-readable formats: "64Ki", "1MiB"
	// Default: 64Ki
	BufferSize bytesize.ByteSize `mapstructure:"buffer_size" yaml:"buffer_size"`

	// MaxTransferSize is the largest upload length accepted (0 = unlimited).
	// Larger payloads are discarded and the command fails.
	MaxTransferSize bytesize.ByteSize `mapstructure:"max_transfer_size" yaml:"max_transfer_size"`
}

// Auth backends.
const (
	AuthBackendStatic   = "static"
	AuthBackendDatabase = "database"
	AuthBackendChain    = "chain"
)

// AuthConfig selects the credential backend.
type AuthConfig struct {
	// Backend is static, database, or chain (static first, then database)
	Backend string `mapstructure:"backend" validate:"required,oneof=static database chain" yaml:"backend"`

	// Users maps usernames to bcrypt hashes for the static backend.
	// Generate hashes with 'fileboxd passwd-hash'. Keys are lowercased when
	// the file is loaded, so static usernames are effectively lowercase.
	Users map[string]StaticUser `mapstructure:"users" yaml:"users,omitempty"`

	// Database configures the user database (SQLite or PostgreSQL)
	Database store.Config `mapstructure:"database" yaml:"database"`
}

// StaticUser is one account of the static backend.
type StaticUser struct {
	PasswordHash string `mapstructure:"password_hash" validate:"required" yaml:"password_hash"`
}

// Index backends.
const (
	IndexBackendMemory = "memory"
	IndexBackendBadger = "badger"
)

// IndexConfig configures the file index.
type IndexConfig struct {
	// Backend persists the index: memory or badger
	Backend string `mapstructure:"backend" validate:"required,oneof=memory badger" yaml:"backend"`

	// Path is the badger directory. Empty keeps badger in memory.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// Refresh decides when the index is rebuilt:
	// on_connect, watch, interval, manual
	Refresh string `mapstructure:"refresh" validate:"required,oneof=on_connect watch interval manual" yaml:"refresh"`

	// Interval is the rebuild period for the interval policy
	Interval time.Duration `mapstructure:"interval" validate:"gte=0" yaml:"interval,omitempty"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the IP address of the metrics listener
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address,omitempty"`

	// Port is the HTTP port for /metrics and /health
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FILEBOX_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	bindEnv(v)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  fileboxd init --root /path/to/share\n\n"+
				"Or specify a custom config file:\n"+
				"  fileboxd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  fileboxd init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold password hashes and database credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// FILEBOX_SERVER_ROOT=/srv/share overrides server.root
	v.SetEnvPrefix("FILEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnv registers every leaf key so AutomaticEnv overrides apply even
// when the key is absent from the file. Unmarshal only sees keys viper knows.
func bindEnv(v *viper.Viper) {
	for _, key := range leafKeys(reflect.TypeOf(Config{}), "") {
		_ = v.BindEnv(key)
	}
}

func leafKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("mapstructure"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, leafKeys(f.Type, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize, so
// config files can say "64Ki", "10MB" or 1048576.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/filebox, ~/.config/filebox, or "."
// when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "filebox")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "filebox")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
