// Package api 定义 intentflow HTTP API 的请求与响应类型。
//
// # API Overview
//
//   - POST /api/v1/analyze     分析自由文本，返回已找到参数、缺失必填字段与建议载荷；
//     execute=true 且就绪时转发给下游服务
//   - POST /api/v1/execute     将载荷直接转发给下游服务
//   - GET  /api/v1/operations  列出契约中带 JSON 请求体的操作
//   - GET  /api/v1/analyses    分析历史（需启用 history）
//   - GET  /health, /healthz, /ready, /version
//   - /mcp/sse, /mcp/message, /mcp/ws  MCP 工具服务
//
// # Authentication
//
// 配置 server.api_keys 后需要 X-API-Key 头；配置 server.jwt.secret 后需要
// Authorization: Bearer <token>。健康检查端点不需要认证。
//
// 所有 JSON 响应使用统一信封：
//
//	{"success": true, "data": {...}, "timestamp": "...", "request_id": "..."}
package api
