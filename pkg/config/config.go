//go:build linux || darwin

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/ardnew/usbhelper/host/broker"
	"github.com/ardnew/usbhelper/pkg"
)

// Format is a configuration file format.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Configuration errors.
var (
	// ErrUnsupportedFormat indicates a file extension or format name that
	// has no parser.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrLoadFailed indicates the configuration could not be read or parsed.
	ErrLoadFailed = errors.New("config load failed")

	// ErrInvalid indicates a value outside its allowed range.
	ErrInvalid = errors.New("invalid config")
)

// Config is the complete usbhelper configuration.
type Config struct {
	Broker  BrokerConfig  `koanf:"broker"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// BrokerConfig locates the broker and bounds what is accepted from it.
type BrokerConfig struct {
	Endpoint      string `koanf:"endpoint"`
	MaxNameLength int    `koanf:"max_name_length"`
}

// LogConfig configures the process-wide logger.
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"` // empty logs to stderr
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			Endpoint:      broker.DefaultEndpoint,
			MaxNameLength: broker.MaxNameLength,
		},
		Log: LogConfig{
			Level:     "warn",
			Format:    "text",
			MaxSizeMB: 10,
		},
	}
}

// Load reads the file at path, choosing the parser by its extension.
func Load(path string) (Config, error) {
	format, err := detectFormat(path)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	pkg.LogDebug(pkg.ComponentConfig, "configuration loaded", "path", path, "format", format)
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte, format Format) (Config, error) {
	parser, err := parserFor(format)
	if err != nil {
		return Config{}, err
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first value outside its allowed range.
func (c Config) Validate() error {
	if c.Broker.Endpoint == "" {
		return fmt.Errorf("%w: broker.endpoint is empty", ErrInvalid)
	}
	// The longest frame plus one, since a name must be shorter than capacity.
	if c.Broker.MaxNameLength < 2 || c.Broker.MaxNameLength > broker.MaxFrameLength+1 {
		return fmt.Errorf("%w: broker.max_name_length %d out of range", ErrInvalid, c.Broker.MaxNameLength)
	}
	if _, err := pkg.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	if _, err := pkg.ParseLogFormat(c.Log.Format); err != nil {
		return fmt.Errorf("%w: log.format: %w", ErrInvalid, err)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("%w: log rotation bounds must not be negative", ErrInvalid)
	}
	return nil
}

// BrokerOptions returns client options for the broker section.
func (c Config) BrokerOptions() []broker.Option {
	return []broker.Option{
		broker.WithEndpoint(c.Broker.Endpoint),
		broker.WithMaxNameLength(c.Broker.MaxNameLength),
	}
}

// Apply configures pkg logging. The returned closer releases the log file
// and must be closed when logging ends; it is a no-op for stderr.
func (l LogConfig) Apply() (io.Closer, error) {
	level, err := pkg.ParseLogLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := pkg.ParseLogFormat(l.Format)
	if err != nil {
		return nil, err
	}

	pkg.SetLogLevel(level)
	if l.File == "" {
		pkg.SetLogOutput(os.Stderr, format)
		return nopCloser{}, nil
	}

	w, err := pkg.OpenLogFile(l.File, pkg.RotateOptions{
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	})
	if err != nil {
		return nil, err
	}
	pkg.SetLogOutput(w, format)
	return w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

func parserFor(format Format) (koanf.Parser, error) {
	switch format {
	case FormatYAML:
		return yaml.Parser(), nil
	case FormatJSON:
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
