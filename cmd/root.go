// Package cmd provides the docfeat command-line interface.
//
// Configuration is read from, in order of precedence:
//
//  1. command-line flags (--port, --manifest, ...)
//  2. DOCFEAT_<SECTION>_<OPTION> environment variables, e.g. DOCFEAT_SERVER_PORT
//  3. the config file: --config, else DOCFEAT_CONFIG_FILE, else .docfeat.yml
//     in the current directory
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/docfeat/internal/config"
	"github.com/conneroisu/docfeat/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "docfeat",
	Short: "Serve editor features from pluggable document providers",
	Long: `docfeat keeps registries of hover, definition and diagnostics providers
and answers editor queries by merging the results of every provider whose
document selector matches.

Providers come from a YAML manifest, reloaded whenever it changes, and from
extension hosts connected over WebSocket.

Quick Start:
  docfeat init          Write a starter config and manifest
  docfeat validate      Check the config and manifest
  docfeat list          Show the providers a manifest declares
  docfeat serve         Start the server`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .docfeat.yml, can also use DOCFEAT_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the config file and the environment. A missing
// config file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("DOCFEAT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".docfeat")
	}

	viper.SetEnvPrefix("DOCFEAT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindEnv makes every config key visible to Unmarshal even when only the
// environment sets it.
func bindEnv() {
	for _, key := range []string{
		"server.host", "server.port", "server.read_timeout", "server.write_timeout", "server.shutdown_timeout",
		"manifest.path", "manifest.watch", "manifest.debounce",
		"transport.request_timeout", "transport.origin_patterns", "transport.read_limit",
		"log.level", "log.format",
	} {
		_ = viper.BindEnv(key)
	}
}

// loadConfig loads the configuration and builds the logger it describes.
func loadConfig(stderr io.Writer) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	lc := cfg.LoggerConfig()
	lc.Output = stderr
	return cfg, logging.NewLogger(lc), nil
}
