//go:build linux || darwin

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbhelper/host/broker"
	"github.com/ardnew/usbhelper/pkg"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, broker.DefaultEndpoint, cfg.Broker.Endpoint)
	assert.Equal(t, broker.MaxNameLength, cfg.Broker.MaxNameLength)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Empty(t, cfg.Log.File)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{
			name:   "yaml",
			format: FormatYAML,
			data: `
broker:
  endpoint: /run/usbhelper.sock
log:
  level: debug
metrics:
  addr: 127.0.0.1:9464
`,
		},
		{
			name:   "json",
			format: FormatJSON,
			data:   `{"broker":{"endpoint":"/run/usbhelper.sock"},"log":{"level":"debug"},"metrics":{"addr":"127.0.0.1:9464"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)

			assert.Equal(t, "/run/usbhelper.sock", cfg.Broker.Endpoint)
			assert.Equal(t, "debug", cfg.Log.Level)
			assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)

			// Untouched keys keep their defaults.
			def := Default()
			assert.Equal(t, def.Broker.MaxNameLength, cfg.Broker.MaxNameLength)
			assert.Equal(t, def.Log.Format, cfg.Log.Format)
			assert.Equal(t, def.Log.MaxSizeMB, cfg.Log.MaxSizeMB)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  Format
		wantErr error
	}{
		{"unknown format", "a: 1", Format("toml"), ErrUnsupportedFormat},
		{"bad yaml", "broker: [", FormatYAML, ErrLoadFailed},
		{"bad json", "{", FormatJSON, ErrLoadFailed},
		{"empty endpoint", `broker: {endpoint: ""}`, FormatYAML, ErrInvalid},
		{"name length too small", `broker: {max_name_length: 1}`, FormatYAML, ErrInvalid},
		{"name length too large", `broker: {max_name_length: 65537}`, FormatYAML, ErrInvalid},
		{"bad level", `log: {level: loud}`, FormatYAML, ErrInvalid},
		{"bad format", `log: {format: xml}`, FormatYAML, ErrInvalid},
		{"negative backups", `log: {max_backups: -1}`, FormatYAML, ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParse_NameLengthBounds(t *testing.T) {
	cfg, err := Parse([]byte(`broker: {max_name_length: 65536}`), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, broker.MaxFrameLength+1, cfg.Broker.MaxNameLength)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "usbhelper.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("log:\n  format: json\n"), 0o600))
	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)

	jsonPath := filepath.Join(dir, "usbhelper.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"log":{"compress":true}}`), 0o600))
	cfg, err = Load(jsonPath)
	require.NoError(t, err)
	assert.True(t, cfg.Log.Compress)

	_, err = Load(filepath.Join(dir, "usbhelper.toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBrokerOptions(t *testing.T) {
	cfg := Default()
	cfg.Broker.Endpoint = "/tmp/broker.sock"

	c := broker.NewClient(cfg.BrokerOptions()...)
	assert.Equal(t, "/tmp/broker.sock", c.Endpoint())
}

func TestLogConfig_Apply(t *testing.T) {
	originalLevel := pkg.GetLogLevel()
	originalLogger := pkg.DefaultLogger
	defer func() {
		pkg.SetLogOutput(os.Stderr, pkg.LogFormatText)
		pkg.SetLogLevel(originalLevel)
		pkg.SetLogger(originalLogger)
	}()

	path := filepath.Join(t.TempDir(), "usbhelper.log")
	cfg := Default().Log
	cfg.Level = "info"
	cfg.Format = "json"
	cfg.File = path

	closer, err := cfg.Apply()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, pkg.GetLogLevel())

	pkg.LogInfo(pkg.ComponentConfig, "applied")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"applied"`), "log file: %s", data)
	assert.Contains(t, string(data), `"component":"config"`)
}

func TestLogConfig_ApplyStderr(t *testing.T) {
	originalLevel := pkg.GetLogLevel()
	defer pkg.SetLogLevel(originalLevel)

	closer, err := Default().Log.Apply()
	require.NoError(t, err)
	assert.NoError(t, closer.Close())

	bad := Default().Log
	bad.Level = "loud"
	_, err = bad.Apply()
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}
