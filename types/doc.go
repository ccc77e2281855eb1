/*
Package types 提供 intentflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 schema、analyzer、
downstream、api 等上层模块提供统一的错误契约与 Context 传播工具。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - SCHEMA_LOAD / SCHEMA_RESOLUTION / OPERATION_NOT_FOUND: 解析阶段错误码
  - UPSTREAM_ERROR / UPSTREAM_TIMEOUT: 下游调用错误码

# 主要能力

  - Context 传播：WithRequestID / WithTenantID / WithUserID / WithRoles
  - 错误工具链：AsError / GetErrorCode / IsErrorCode / IsRetryable
*/
package types
