package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/logging"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name:  "defaults",
			setup: func() {},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, DefaultHost, c.Server.Host)
				assert.Equal(t, DefaultPort, c.Server.Port)
				assert.Equal(t, DefaultManifestPath, c.Manifest.Path)
				assert.True(t, c.Manifest.Watch)
				assert.Equal(t, DefaultDebounce, c.Manifest.Debounce)
				assert.Equal(t, DefaultRequestTimeout, c.Transport.RequestTimeout)
				assert.Equal(t, int64(DefaultReadLimit), c.Transport.ReadLimit)
				assert.Equal(t, "info", c.Log.Level)
				assert.Equal(t, "text", c.Log.Format)
			},
		},
		{
			name: "explicit values",
			setup: func() {
				viper.Set("server.port", 3000)
				viper.Set("server.host", "0.0.0.0")
				viper.Set("manifest.path", "providers.yml")
				viper.Set("manifest.watch", false)
				viper.Set("transport.request_timeout", "250ms")
				viper.Set("transport.origin_patterns", []string{"localhost:*"})
				viper.Set("log.level", "debug")
				viper.Set("log.format", "json")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 3000, c.Server.Port)
				assert.Equal(t, "0.0.0.0", c.Server.Host)
				assert.Equal(t, "providers.yml", c.Manifest.Path)
				assert.False(t, c.Manifest.Watch)
				assert.Equal(t, 250*time.Millisecond, c.Transport.RequestTimeout)
				assert.Equal(t, []string{"localhost:*"}, c.Transport.OriginPatterns)
				assert.Equal(t, "json", c.Log.Format)
			},
		},
		{
			name: "port zero is kept",
			setup: func() {
				viper.Set("server.port", 0)
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 0, c.Server.Port)
			},
		},
		{
			name: "explicitly empty manifest path disables it",
			setup: func() {
				viper.Set("manifest.path", "")
			},
			check: func(t *testing.T, c *Config) {
				assert.Empty(t, c.Manifest.Path)
			},
		},
		{
			name: "invalid port type",
			setup: func() {
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "port out of range",
			setup: func() {
				viper.Set("server.port", 70000)
			},
			expectError: true,
		},
		{
			name: "dangerous host",
			setup: func() {
				viper.Set("server.host", "localhost; rm -rf /")
			},
			expectError: true,
		},
		{
			name: "unknown log level",
			setup: func() {
				viper.Set("log.level", "verbose")
			},
			expectError: true,
		},
		{
			name: "unknown log format",
			setup: func() {
				viper.Set("log.format", "xml")
			},
			expectError: true,
		},
		{
			name: "negative request timeout",
			setup: func() {
				viper.Set("transport.request_timeout", "-1s")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			tt.setup()

			config, err := Load()

			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, config)
				assert.True(t, docerrors.HasCode(err, docerrors.ErrCodeConfigInvalid))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, config)
			tt.check(t, config)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), ".docfeat.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
manifest:
  path: ./providers.yml
  debounce: 1s
transport:
  read_limit: 4096
`), 0o644))

	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, DefaultHost, config.Server.Host)
	assert.Equal(t, "./providers.yml", config.Manifest.Path)
	assert.Equal(t, time.Second, config.Manifest.Debounce)
	assert.Equal(t, int64(4096), config.Transport.ReadLimit)
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("DOCFEAT_SERVER_PORT", "9999")
	t.Setenv("DOCFEAT_LOG_LEVEL", "warn")

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetEnvPrefix("DOCFEAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// AutomaticEnv only applies to keys viper knows about
	require.NoError(t, viper.BindEnv("server.port"))
	require.NoError(t, viper.BindEnv("log.level"))

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "warn", config.Log.Level)
}

func TestDefault(t *testing.T) {
	viper.Reset()

	config := Default()
	require.NoError(t, validateConfig(config))
	assert.Equal(t, "localhost:7777", config.Server.Addr())
	assert.True(t, config.Manifest.Watch)
}

func TestLoggerConfig(t *testing.T) {
	config := Default()
	config.Log.Level = "error"
	config.Log.Format = "json"

	lc := config.LoggerConfig()
	assert.Equal(t, logging.LevelError, lc.Level)
	assert.Equal(t, "json", lc.Format)
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"docfeat.yml", false},
		{"./config/providers.yml", false},
		{"/etc/docfeat/providers.yml", false},
		{"", true},
		{"providers.yml; rm -rf /", true},
		{"$(whoami).yml", true},
		{"`id`.yml", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfigWithDetails(t *testing.T) {
	t.Run("default config has no errors", func(t *testing.T) {
		config := Default()
		config.Manifest.Path = filepath.Join(t.TempDir(), "missing.yml")

		result := ValidateConfigWithDetails(config)
		assert.True(t, result.Valid)
		assert.False(t, result.HasErrors())
		require.True(t, result.HasWarnings())
		assert.Equal(t, "manifest.path", result.Warnings[0].Field)
	})

	t.Run("errors and warnings are collected", func(t *testing.T) {
		config := Default()
		config.Manifest.Path = ""
		config.Server.Port = 80
		config.Server.Host = "0.0.0.0"
		config.Transport.OriginPatterns = []string{"*", " "}
		config.Transport.RequestTimeout = 0
		config.Log.Level = "loud"

		result := ValidateConfigWithDetails(config)
		assert.False(t, result.Valid)

		var errorFields, warningFields []string
		for _, e := range result.Errors {
			errorFields = append(errorFields, e.Field)
		}
		for _, w := range result.Warnings {
			warningFields = append(warningFields, w.Field)
		}
		assert.ElementsMatch(t, []string{"transport.origin_patterns", "log.level"}, errorFields)
		assert.ElementsMatch(t, []string{
			"server.port", "server.host", "manifest.watch",
			"transport.request_timeout", "transport.origin_patterns",
		}, warningFields)

		out := result.String()
		assert.Contains(t, out, "Validation Errors:")
		assert.Contains(t, out, "Validation Warnings:")
		assert.Contains(t, out, "hint:")
	})
}

func TestValidateHostname(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1", "::1", "docs.example.com"} {
		assert.NoError(t, validateHostname(host), host)
	}
	for _, host := range []string{"-bad-", "host name", "<script>", "a|b"} {
		assert.Error(t, validateHostname(host), host)
	}
}
