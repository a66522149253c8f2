// Package config loads docfeat's settings with Viper from a YAML file,
// DOCFEAT_ environment variables and command-line flags.
//
// Settings cover the HTTP server, the provider manifest and its reloading,
// the extension-host transport and logging. Missing values fall back to
// defaults and the result is validated before use.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/logging"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Manifest  ManifestConfig  `mapstructure:"manifest" yaml:"manifest" json:"manifest"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport" json:"transport"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ManifestConfig struct {
	// Path to the provider manifest. Empty disables static providers.
	Path     string        `mapstructure:"path" yaml:"path" json:"path"`
	Watch    bool          `mapstructure:"watch" yaml:"watch" json:"watch"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

type TransportConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
	OriginPatterns []string      `mapstructure:"origin_patterns" yaml:"origin_patterns" json:"origin_patterns"`
	ReadLimit      int64         `mapstructure:"read_limit" yaml:"read_limit" json:"read_limit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Defaults.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 7777
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultManifestPath    = "docfeat.yml"
	DefaultDebounce        = 200 * time.Millisecond
	DefaultRequestTimeout  = 5 * time.Second
	DefaultReadLimit       = 1 << 20
)

// Load reads the configuration from viper, applies defaults and validates it.
func Load() (*Config, error) {
	config, err := LoadUnvalidated()
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, docerrors.NewConfigError(docerrors.ErrCodeConfigInvalid, "invalid configuration").WithCause(err)
	}

	return config, nil
}

// LoadUnvalidated is Load without validation, for reporting on a broken
// configuration.
func LoadUnvalidated() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, docerrors.NewConfigError(docerrors.ErrCodeConfigInvalid, "decoding configuration").WithCause(err)
	}

	applyDefaults(&config)

	// viper cannot tell an unset bool from false after Unmarshal
	if viper.IsSet("manifest.watch") {
		config.Manifest.Watch = viper.GetBool("manifest.watch")
	} else {
		config.Manifest.Watch = true
	}
	if viper.IsSet("transport.origin_patterns") && len(config.Transport.OriginPatterns) == 0 {
		config.Transport.OriginPatterns = viper.GetStringSlice("transport.origin_patterns")
	}

	return &config, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	config := &Config{Manifest: ManifestConfig{Watch: true}}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Server.Port == 0 && !viper.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = DefaultReadTimeout
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = DefaultWriteTimeout
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if config.Manifest.Path == "" && !viper.IsSet("manifest.path") {
		config.Manifest.Path = DefaultManifestPath
	}
	if config.Manifest.Debounce == 0 {
		config.Manifest.Debounce = DefaultDebounce
	}

	if config.Transport.RequestTimeout == 0 {
		config.Transport.RequestTimeout = DefaultRequestTimeout
	}
	if config.Transport.ReadLimit == 0 {
		config.Transport.ReadLimit = DefaultReadLimit
	}

	if config.Log.Level == "" {
		config.Log.Level = logging.LevelInfo.String()
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// LoggerConfig converts the log settings for logging.NewLogger.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		lc.Level = level
	}
	lc.Format = c.Log.Format
	return lc
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateManifestConfig(&config.Manifest); err != nil {
		return fmt.Errorf("manifest config: %w", err)
	}

	if err := validateTransportConfig(&config.Transport); err != nil {
		return fmt.Errorf("transport config: %w", err)
	}

	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// 0 lets the system pick a port
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			return fmt.Errorf("host %q: %w", config.Host, err)
		}
	}

	if config.ReadTimeout < 0 || config.WriteTimeout < 0 || config.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	return nil
}

func validateManifestConfig(config *ManifestConfig) error {
	if config.Path != "" {
		if err := validatePath(config.Path); err != nil {
			return fmt.Errorf("invalid manifest path '%s': %w", config.Path, err)
		}
	}

	if config.Debounce < 0 {
		return fmt.Errorf("debounce %s must not be negative", config.Debounce)
	}

	return nil
}

func validateTransportConfig(config *TransportConfig) error {
	if config.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout %s must not be negative", config.RequestTimeout)
	}
	if config.ReadLimit < 0 {
		return fmt.Errorf("read_limit %d must not be negative", config.ReadLimit)
	}
	for _, pattern := range config.OriginPatterns {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("empty origin pattern")
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("origin pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return err
	}
	switch config.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", config.Format)
	}
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
