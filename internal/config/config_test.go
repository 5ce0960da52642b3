package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/shopfleet/service_layer/internal/errors"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, k := range []string{
		"SERVICE_TYPE", "SERVICE_NAME", "SERVICE_VERSION", "ENVIRONMENT", "HOST", "PORT",
		"DOCS_ENABLED", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "SHUTDOWN_TIMEOUT",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "SERVICES_CONFIG",
	} {
		t.Setenv(k, kv[k])
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"SERVICE_TYPE": " Order "})

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "order", cfg.ServiceType)
	assert.Equal(t, "v1", cfg.ServiceVersion)
	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.DocsEnabled)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "config/services.yaml", cfg.ServicesConfig)
	assert.Equal(t, ":8081", cfg.Addr(8081))
}

func TestFromEnv_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"SERVICE_TYPE":     "user",
		"ENVIRONMENT":      "staging",
		"HOST":             "127.0.0.1",
		"PORT":             "9000",
		"DOCS_ENABLED":     "false",
		"RATE_LIMIT_RPS":   "50",
		"SHUTDOWN_TIMEOUT": "5s",
		"LOG_FORMAT":       "text",
	})

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.DocsEnabled)
	assert.Equal(t, 50, cfg.RateLimitRPS)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr(8083))
	assert.Equal(t, "text", cfg.Logging().Format)
}

func TestFromEnv_DocsDefaultFollowsEnvironment(t *testing.T) {
	setEnv(t, map[string]string{"ENVIRONMENT": "Production"})
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.DocsEnabled)

	setEnv(t, map[string]string{"ENVIRONMENT": "staging"})
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.DocsEnabled)
}

func TestFromEnv_DocsInProduction(t *testing.T) {
	setEnv(t, map[string]string{"ENVIRONMENT": "production", "DOCS_ENABLED": "true"})
	_, err := FromEnv()
	require.Error(t, err)
	assert.True(t, svcerrors.IsConfiguration(err))

	setEnv(t, map[string]string{"ENVIRONMENT": "production", "DOCS_ENABLED": "false"})
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.DocsEnabled)
}

func TestFromEnv_DocsNotBoolean(t *testing.T) {
	setEnv(t, map[string]string{"DOCS_ENABLED": "sometimes"})
	_, err := FromEnv()
	require.Error(t, err)
	assert.True(t, svcerrors.IsConfiguration(err))
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{Port: 70000}
	assert.True(t, svcerrors.IsConfiguration(cfg.Validate()))

	cfg = &Config{RateLimitRPS: -1}
	assert.True(t, svcerrors.IsConfiguration(cfg.Validate()))
}

func TestParseServicesConfig(t *testing.T) {
	cfg, err := ParseServicesConfig([]byte(`
convention:
  status_path: /api/health
services:
  order:
    enabled: true
    port: 8081
    description: orders
  user:
    enabled: false
    port: 8083
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"order", "user"}, cfg.IDs())
	assert.True(t, cfg.IsEnabled("order"))
	assert.False(t, cfg.IsEnabled("user"))
	assert.False(t, cfg.IsEnabled("product"))

	conv := cfg.FleetConvention()
	assert.Equal(t, "/api/{service}/describe", conv.DescriptorPathTemplate)
}

func TestParseServicesConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing port", "services:\n  order:\n    enabled: true\n"},
		{"duplicate port", "services:\n  order:\n    port: 8081\n  user:\n    port: 8081\n"},
		{"bad convention", "convention:\n  status_path: health\nservices: {}\n"},
		{"not yaml", "services: [1, 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseServicesConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, svcerrors.IsConfiguration(err))
		})
	}
}

func TestLoadServicesConfigOrDefault(t *testing.T) {
	cfg, err := LoadServicesConfigOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"order", "product", "user"}, cfg.IDs())
	assert.Equal(t, "/api/health", cfg.FleetConvention().StatusPath)

	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  product:\n    enabled: true\n    port: 9090\n"), 0o600))
	cfg, err = LoadServicesConfigOrDefault(path)
	require.NoError(t, err)
	s, ok := cfg.GetSettings("product")
	require.True(t, ok)
	assert.Equal(t, 9090, s.Port)
}
