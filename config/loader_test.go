// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.Server.AllowQueryAPIKey)

	// Schema 默认指向会话预订契约
	assert.Equal(t, "NetworkSliceBooking.yaml", cfg.Schema.Source)
	assert.Equal(t, "/sessions", cfg.Schema.Path)
	assert.Equal(t, "post", cfg.Schema.Method)
	assert.Equal(t, "memory", cfg.Schema.CacheMode)
	assert.Equal(t, int64(16<<20), cfg.Schema.MaxDocumentBytes)
	assert.Equal(t, 1_000_000, cfg.Schema.MaxDocumentNodes)
	assert.False(t, cfg.Schema.AllowClientSource)
	assert.Empty(t, cfg.Schema.AllowedSources)

	assert.Equal(t, "http://localhost:9000", cfg.Downstream.BaseURL)
	assert.Equal(t, 2, cfg.Downstream.MaxRetries)

	assert.Equal(t, "build_slice_request", cfg.MCP.ToolName)
	assert.Equal(t, "intentflow:schema:", cfg.Redis.KeyPrefix)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.History.Enabled)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)

	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "intentflow", cfg.Telemetry.ServiceName)
	assert.InDelta(t, 0.1, cfg.Telemetry.SampleRate, 0.001)

	assert.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithEnvLookup(emptyEnv).Load()
	require.NoError(t, err)
	assert.Equal(t, *DefaultConfig(), *cfg)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

schema:
  source: "https://contracts.example.com/booking.yaml"
  path: "/sessions/{sessionId}"
  method: "PATCH"
  cache_mode: "redis"
  cache_ttl: 1m

downstream:
  base_url: "https://slices.example.com"
  max_retries: 4

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`)

	cfg, err := NewLoader().WithConfigPath(configPath).WithEnvLookup(emptyEnv).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	assert.Equal(t, "https://contracts.example.com/booking.yaml", cfg.Schema.Source)
	assert.Equal(t, "/sessions/{sessionId}", cfg.Schema.Path)
	assert.Equal(t, "PATCH", cfg.Schema.Method)
	assert.Equal(t, "redis", cfg.Schema.CacheMode)
	assert.Equal(t, time.Minute, cfg.Schema.CacheTTL)

	assert.Equal(t, "https://slices.example.com", cfg.Downstream.BaseURL)
	assert.Equal(t, 4, cfg.Downstream.MaxRetries)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// 未出现在文件中的字段保留默认值
	assert.Equal(t, "build_slice_request", cfg.MCP.ToolName)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	env := map[string]string{
		"INTENTFLOW_SERVER_HTTP_PORT":            "7777",
		"INTENTFLOW_SERVER_RATE_LIMIT_RPS":       "2.5",
		"INTENTFLOW_SERVER_CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example,",
		"INTENTFLOW_SERVER_JWT_SECRET":           "s3cret",
		"INTENTFLOW_SCHEMA_SOURCE":               "/etc/intentflow/booking.yaml",
		"INTENTFLOW_SCHEMA_CACHE_TTL":            "90s",
		"INTENTFLOW_SCHEMA_MAX_DOCUMENT_BYTES":   "1024",
		"INTENTFLOW_HISTORY_ENABLED":             "true",
		"INTENTFLOW_LOG_LEVEL":                   "warn",
	}

	cfg, err := NewLoader().WithEnvLookup(mapEnv(env)).Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.InDelta(t, 2.5, cfg.Server.RateLimitRPS, 0.0001)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Server.JWT.Secret)
	assert.Equal(t, "/etc/intentflow/booking.yaml", cfg.Schema.Source)
	assert.Equal(t, 90*time.Second, cfg.Schema.CacheTTL)
	assert.Equal(t, int64(1024), cfg.Schema.MaxDocumentBytes)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_port: 8888
schema:
  source: "yaml.yaml"
  path: "/yaml"
`)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		WithEnvLookup(mapEnv(map[string]string{
			"INTENTFLOW_SERVER_HTTP_PORT": "9999",
			"INTENTFLOW_SCHEMA_SOURCE":    "env.yaml",
		})).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env.yaml", cfg.Schema.Source)
	// 未被环境变量覆盖的 YAML 值保留
	assert.Equal(t, "/yaml", cfg.Schema.Path)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	t.Setenv("MYAPP_MCP_TOOL_NAME", "custom_tool")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "custom_tool", cfg.MCP.ToolName)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	_, err := NewLoader().
		WithEnvLookup(mapEnv(map[string]string{"INTENTFLOW_SCHEMA_CACHE_TTL": "soon"})).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INTENTFLOW_SCHEMA_CACHE_TTL")
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	_, err := NewLoader().
		WithEnvLookup(mapEnv(map[string]string{"INTENTFLOW_SERVER_HTTP_PORT": "80"})).
		WithValidator(validator).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		WithEnvLookup(emptyEnv).
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_port: [invalid
  this is not valid yaml
`)

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "negative HTTP port", modify: func(c *Config) { c.Server.HTTPPort = -1 }, wantErr: "invalid HTTP port"},
		{name: "HTTP port too large", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: "invalid HTTP port"},
		{name: "metrics port clash", modify: func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, wantErr: "metrics port"},
		{name: "metrics disabled", modify: func(c *Config) { c.Server.MetricsPort = 0 }},
		{name: "empty schema source", modify: func(c *Config) { c.Schema.Source = " " }, wantErr: "schema source"},
		{name: "relative path", modify: func(c *Config) { c.Schema.Path = "sessions" }, wantErr: "schema path"},
		{name: "upper-case method", modify: func(c *Config) { c.Schema.Method = "PUT" }},
		{name: "unknown method", modify: func(c *Config) { c.Schema.Method = "fetch" }, wantErr: "unsupported schema method"},
		{name: "unknown cache mode", modify: func(c *Config) { c.Schema.CacheMode = "disk" }, wantErr: "cache_mode"},
		{name: "negative node limit", modify: func(c *Config) { c.Schema.MaxDocumentNodes = -1 }, wantErr: "max_document_nodes"},
		{name: "non-http base url", modify: func(c *Config) { c.Downstream.BaseURL = "ftp://x" }, wantErr: "base_url"},
		{name: "empty base url", modify: func(c *Config) { c.Downstream.BaseURL = "" }},
		{name: "negative retries", modify: func(c *Config) { c.Downstream.MaxRetries = -1 }, wantErr: "max_retries"},
		{name: "zero timeout", modify: func(c *Config) { c.Downstream.Timeout = 0 }, wantErr: "timeout"},
		{name: "empty tool name", modify: func(c *Config) { c.MCP.ToolName = "" }, wantErr: "tool_name"},
		{name: "history with bad driver", modify: func(c *Config) {
			c.History.Enabled = true
			c.Database.Driver = "oracle"
		}, wantErr: "database driver"},
		{name: "bad driver without history", modify: func(c *Config) { c.Database.Driver = "oracle" }},
		{name: "bad log level", modify: func(c *Config) { c.Log.Level = "trace" }, wantErr: "log level"},
		{name: "bad sample rate", modify: func(c *Config) { c.Telemetry.SampleRate = 1.5 }, wantErr: "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	configPath := writeConfig(t, "server:\n  http_port: 8081\n")

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8081, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml")

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestMustLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, "schema:\n  cache_mode: disk\n")

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("INTENTFLOW_MCP_SERVER_NAME", "env-only")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.MCP.ServerName)
}

func TestLoader_ExampleConfig(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("../config.example.yaml").WithEnvLookup(emptyEnv).Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "schema/testdata/NetworkSliceBooking.yaml", cfg.Schema.Source)
	assert.Equal(t, 5*time.Minute, cfg.Schema.CacheTTL)
	assert.Equal(t, 200*time.Millisecond, cfg.Downstream.InitialBackoff)
	assert.Equal(t, "intentflow:schema:", cfg.Redis.KeyPrefix)
	assert.Empty(t, cfg.Server.JWT.Secret)
}

// --- helpers ---

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func emptyEnv(string) (string, bool) { return "", false }

func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}
