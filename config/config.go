package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 intentflow 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Schema 契约文档配置
	Schema SchemaConfig `yaml:"schema" env:"SCHEMA"`

	// Downstream 下游服务配置
	Downstream DownstreamConfig `yaml:"downstream" env:"DOWNSTREAM"`

	// MCP 工具服务配置
	MCP MCPConfig `yaml:"mcp" env:"MCP"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// History 分析历史配置
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口（0 表示不单独暴露）
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每 IP 限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// API Key 列表，为空时不校验
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许 ?api_key= 查询参数
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// JWT 认证
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 认证配置；Secret 为空时关闭
type JWTConfig struct {
	Secret   string `yaml:"secret" env:"SECRET"`
	Issuer   string `yaml:"issuer" env:"ISSUER"`
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// SchemaConfig 契约文档配置
type SchemaConfig struct {
	// 文档位置：文件路径或 http(s) URL
	Source string `yaml:"source" env:"SOURCE"`
	// 默认操作路径
	Path string `yaml:"path" env:"PATH"`
	// 默认 HTTP 方法
	Method string `yaml:"method" env:"METHOD"`
	// 缓存模式: none, memory, redis
	CacheMode string `yaml:"cache_mode" env:"CACHE_MODE"`
	// 缓存过期时间
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// 本地文件变更时失效缓存
	WatchSource bool `yaml:"watch_source" env:"WATCH_SOURCE"`
	// URL 文档拉取超时
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	// 单个文档大小上限
	MaxDocumentBytes int64 `yaml:"max_document_bytes" env:"MAX_DOCUMENT_BYTES"`
	// 解析后节点数上限（含锚点与 $ref 展开）
	MaxDocumentNodes int `yaml:"max_document_nodes" env:"MAX_DOCUMENT_NODES"`
	// 允许 API/MCP 调用方指定任意契约来源（文件或 URL）
	AllowClientSource bool `yaml:"allow_client_source" env:"ALLOW_CLIENT_SOURCE"`
	// 除默认契约外允许调用方指定的来源
	AllowedSources []string `yaml:"allowed_sources" env:"ALLOWED_SOURCES"`
}

// DownstreamConfig 下游服务配置
type DownstreamConfig struct {
	// 基础 URL，与操作路径拼接
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 初始退避
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	// 最大退避
	MaxBackoff time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	// 客户端限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// Bearer Token（可选）
	AuthToken string `yaml:"auth_token" env:"AUTH_TOKEN"`
}

// MCPConfig MCP 服务配置
type MCPConfig struct {
	// 服务名称
	ServerName string `yaml:"server_name" env:"SERVER_NAME"`
	// 服务版本
	ServerVersion string `yaml:"server_version" env:"SERVER_VERSION"`
	// 合成工具名称
	ToolName string `yaml:"tool_name" env:"TOOL_NAME"`
	// 工具调用超时
	ToolTimeout time.Duration `yaml:"tool_timeout" env:"TOOL_TIMEOUT"`
	// 为默认契约中的每个操作额外注册一个合成工具
	OperationTools bool `yaml:"operation_tools" env:"OPERATION_TOOLS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// HistoryConfig 分析历史配置
type HistoryConfig struct {
	// 是否记录分析历史（需要数据库）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	// 列表接口默认条数
	ListLimit int `yaml:"list_limit" env:"LIST_LIMIT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// ✅ 验证
// =============================================================================

var (
	validMethods    = map[string]bool{"get": true, "put": true, "post": true, "delete": true, "options": true, "head": true, "patch": true, "trace": true}
	validCacheModes = map[string]bool{"none": true, "memory": true, "redis": true}
	validDrivers    = map[string]bool{"postgres": true, "mysql": true, "sqlite": true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "server rate_limit_rps must not be negative")
	}

	if strings.TrimSpace(c.Schema.Source) == "" {
		errs = append(errs, "schema source is required")
	}
	if !strings.HasPrefix(c.Schema.Path, "/") {
		errs = append(errs, "schema path must start with '/'")
	}
	if !validMethods[strings.ToLower(c.Schema.Method)] {
		errs = append(errs, fmt.Sprintf("unsupported schema method %q", c.Schema.Method))
	}
	if !validCacheModes[c.Schema.CacheMode] {
		errs = append(errs, fmt.Sprintf("cache_mode must be none, memory or redis, got %q", c.Schema.CacheMode))
	}
	if c.Schema.MaxDocumentNodes < 0 {
		errs = append(errs, "schema max_document_nodes must not be negative")
	}

	if c.Downstream.BaseURL != "" {
		u, err := url.Parse(c.Downstream.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "downstream base_url must be an absolute http(s) URL")
		}
	}
	if c.Downstream.MaxRetries < 0 {
		errs = append(errs, "downstream max_retries must not be negative")
	}
	if c.Downstream.Timeout <= 0 {
		errs = append(errs, "downstream timeout must be positive")
	}

	if strings.TrimSpace(c.MCP.ToolName) == "" {
		errs = append(errs, "mcp tool_name is required")
	}

	if c.History.Enabled && !validDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if !validLogFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
