/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、分析流水线、下游调用、MCP 工具、缓存与数据库六个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 分析指标：分析次数（ready/incomplete/error）、耗时、
    各抽取规则命中数、未解析必填字段数、Schema 加载结果。
  - 下游指标：按 method/status 统计请求数与耗时（含重试）。
  - MCP 指标：按工具名统计调用成功/失败次数。
  - 缓存指标：命中与未命中计数，按 cache_type 分组；
    Collector 同时实现 schema.CacheObserver。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram。
*/
package metrics
