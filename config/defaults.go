// =============================================================================
// 📦 intentflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Schema:     DefaultSchemaConfig(),
		Downstream: DefaultDownstreamConfig(),
		MCP:        DefaultMCPConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		History:    DefaultHistoryConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultSchemaConfig 返回默认契约文档配置
func DefaultSchemaConfig() SchemaConfig {
	return SchemaConfig{
		Source:           "NetworkSliceBooking.yaml",
		Path:             "/sessions",
		Method:           "post",
		CacheMode:        "memory",
		CacheTTL:         5 * time.Minute,
		WatchSource:      true,
		FetchTimeout:     30 * time.Second,
		MaxDocumentBytes: 16 << 20,
		MaxDocumentNodes: 1_000_000,
	}
}

// DefaultDownstreamConfig 返回默认下游配置
func DefaultDownstreamConfig() DownstreamConfig {
	return DownstreamConfig{
		BaseURL:        "http://localhost:9000",
		Timeout:        10 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		RateLimitRPS:   20,
		RateLimitBurst: 40,
	}
}

// DefaultMCPConfig 返回默认 MCP 配置
func DefaultMCPConfig() MCPConfig {
	return MCPConfig{
		ServerName:    "intentflow",
		ServerVersion: "0.1.0",
		ToolName:      "build_slice_request",
		ToolTimeout:   30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "intentflow:schema:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "intentflow",
		Password:        "",
		Name:            "intentflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultHistoryConfig 返回默认历史配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled:     false,
		AutoMigrate: true,
		ListLimit:   50,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "intentflow",
		SampleRate:   0.1,
	}
}
