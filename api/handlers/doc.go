/*
Package handlers 提供 intentflow HTTP API 的请求处理器实现。

# 核心类型

  - AnalyzeHandler: /api/v1/analyze、/api/v1/execute、/api/v1/operations
  - HistoryHandler: /api/v1/analyses 分页查询与单条读取
  - HealthHandler: /health、/healthz、/ready、/version
  - Response: 统一 JSON 响应结构（success + data + error + timestamp + request_id）
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码

# 错误映射

契约加载与 $ref 解析失败映射为 422，操作不存在映射为 404，分析超时映射为 504。
缺失必填字段不是错误：分析结果以 ready=false 正常返回。下游调用失败同样以
200 返回，错误写在 data.error 中，与 MCP execute_request 工具的语义一致。
*/
package handlers
