package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/conneroisu/docfeat/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			fmt.Fprintf(&builder, "  • %s: %s\n", issue.Field, issue.Message)
			for _, suggestion := range issue.Suggestions {
				fmt.Fprintf(&builder, "    hint: %s\n", suggestion)
			}
		}
	}

	write("Validation Errors", vr.Errors)
	if vr.HasErrors() && vr.HasWarnings() {
		builder.WriteString("\n")
	}
	write("Validation Warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// ValidateConfigWithDetails reports every problem in config, plus warnings
// for settings that work but are probably not intended.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServerConfigDetails(&config.Server, result)
	validateManifestConfigDetails(&config.Manifest, result)
	validateTransportConfigDetails(&config.Transport, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows system to assign an available port",
		)
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port,
			"port below 1024 requires elevated privileges",
			"Consider using a port above 1024",
		)
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use 'localhost' to accept local editors only",
				"Use '0.0.0.0' to bind to all interfaces",
			)
		} else if config.Host == "0.0.0.0" || config.Host == "::" {
			result.addWarning("server.host", config.Host,
				"server accepts extension hosts from every interface",
				"Restrict transport.origin_patterns when exposing the server",
			)
		}
	}

	if config.ShutdownTimeout < 0 {
		result.addError("server.shutdown_timeout", config.ShutdownTimeout, "must not be negative")
	}
	if config.ReadTimeout < 0 {
		result.addError("server.read_timeout", config.ReadTimeout, "must not be negative")
	}
	if config.WriteTimeout < 0 {
		result.addError("server.write_timeout", config.WriteTimeout, "must not be negative")
	}
}

func validateManifestConfigDetails(config *ManifestConfig, result *ValidationResult) {
	if config.Path == "" {
		if config.Watch {
			result.addWarning("manifest.watch", config.Watch,
				"watching is enabled but no manifest path is set",
				"Set manifest.path or disable manifest.watch",
			)
		}
	} else if err := validatePath(config.Path); err != nil {
		result.addError("manifest.path", config.Path, err.Error())
	} else if !pathExists(config.Path) {
		result.addWarning("manifest.path", config.Path,
			"manifest does not exist yet",
			"Create it with 'docfeat init' or point manifest.path elsewhere",
		)
	}

	if config.Debounce < 0 {
		result.addError("manifest.debounce", config.Debounce, "must not be negative")
	}
}

func validateTransportConfigDetails(config *TransportConfig, result *ValidationResult) {
	if config.RequestTimeout < 0 {
		result.addError("transport.request_timeout", config.RequestTimeout, "must not be negative")
	} else if config.RequestTimeout == 0 {
		result.addWarning("transport.request_timeout", config.RequestTimeout,
			"requests to extension hosts never time out",
			"A stuck extension host will stall every request it serves",
		)
	}

	if config.ReadLimit < 0 {
		result.addError("transport.read_limit", config.ReadLimit, "must not be negative")
	}

	for _, pattern := range config.OriginPatterns {
		if strings.TrimSpace(pattern) == "" {
			result.addError("transport.origin_patterns", pattern, "empty origin pattern")
		} else if pattern == "*" {
			result.addWarning("transport.origin_patterns", pattern,
				"any website may open an extension-host connection",
				"List the editor origins explicitly",
			)
		}
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error())
	}
	if !slices.Contains([]string{"text", "json"}, config.Format) {
		result.addError("log.format", config.Format, "unknown log format",
			"Use 'text' for terminals or 'json' for log collectors",
		)
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
