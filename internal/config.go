package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/avlog/internal/decoder"
	"github.com/starford/avlog/internal/output"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Decode DecodeConfig      `yaml:"decode"`
	Output OutputConfig      `yaml:"output"`
	Index  IndexConfig       `yaml:"index"`
	HTTP   HTTPConfig        `yaml:"http"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Decode.Validate(); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.Required, validation.In(LogFormatAuto, LogFormatJSON, LogFormatText)),
	)
}

// DecodeConfig selects how encoded lines are decoded.
type DecodeConfig struct {
	Mode    string `yaml:"mode"`
	Workers int    `yaml:"workers"`
}

// Validate validates the decode configuration.
func (c *DecodeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(string(decoder.ModeWire), string(decoder.ModeSerialized))),
		validation.Field(&c.Workers, validation.Min(1), validation.Max(256)),
	)
}

// DecodeMode returns the configured decoder.Mode.
func (c *DecodeConfig) DecodeMode() decoder.Mode {
	return decoder.Mode(c.Mode)
}

// OutputConfig describes where and how the output tree is written.
//
// An empty Root means a directory named after the current local time.
// Timezone is "UTC", "Local" or an IANA name and controls the hour bucket
// and file name of each record.
type OutputConfig struct {
	Root          string `yaml:"root"`
	AggregateName string `yaml:"aggregate_name"`
	Timezone      string `yaml:"timezone"`
}

// Validate validates the output configuration.
func (c *OutputConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.AggregateName, validation.Required, validation.By(plainJSONName)),
		validation.Field(&c.Timezone, validation.Required),
	); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *OutputConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func plainJSONName(value any) error {
	s, _ := value.(string)
	for _, r := range s {
		if r == '/' || r == '\\' {
			return fmt.Errorf("must be a file name, not a path")
		}
	}
	if len(s) < len(".json") || s[len(s)-len(".json"):] != ".json" {
		return fmt.Errorf("must end with .json")
	}
	return nil
}

// IndexConfig holds the optional SQLite record catalog. An empty Path
// disables the catalog.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether the catalog is configured.
func (c *IndexConfig) Enabled() bool { return c.Path != "" }

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration for the browse API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatAuto,
		},
		Decode: DecodeConfig{
			Mode:    string(decoder.ModeWire),
			Workers: 1,
		},
		Output: OutputConfig{
			AggregateName: output.DefaultAggregateName,
			Timezone:      "UTC",
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
