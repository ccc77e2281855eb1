/*
Package main 提供 IntentFlow 服务端程序入口。

# 概述

cmd/intentflow 把 OpenAPI 契约驱动的请求合成流水线暴露为 HTTP API、
MCP 服务器（stdio / SSE / WebSocket）和一次性命令行工具。配置来自
YAML 文件与 INTENTFLOW_* 环境变量，日志使用 zap，指标使用 Prometheus，
追踪使用 OpenTelemetry。

# 核心类型

  - App: 按配置装配契约加载链、历史库、分析器、下游执行器和 MCP 服务器
  - Server: 主服务器，管理 api 与 metrics 两个 server.Manager 及优雅关闭
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler

# 子命令

  - serve    启动 HTTP 服务
  - mcp      以 stdio 运行 MCP 服务器（日志强制写 stderr）
  - analyze  分析一条请求并输出 JSON，--execute 时转发到下游
  - lint     校验契约，存在问题时退出码为 1
  - migrate  数据库迁移（up/down/steps/goto/force/version/status/info）
  - health、version、help

# 中间件链

Recovery → RequestID → OTelTracing → MetricsMiddleware → SecurityHeaders →
RequestLogger → CORS → APIKeyAuth → JWTAuth → RateLimiter（按租户或 IP）。
健康检查、版本与 /metrics 路径跳过认证。
*/
package main
