package api

import (
	"github.com/BaSui01/intentflow/downstream"
	"github.com/BaSui01/intentflow/history"
	"github.com/BaSui01/intentflow/schema"
	"github.com/BaSui01/intentflow/synth"
)

// =============================================================================
// 分析类型
// =============================================================================

// AnalyzeRequest 分析请求
// @Description 自由文本分析请求；source/path/method 为空时使用服务默认契约与操作
type AnalyzeRequest struct {
	// 自由文本请求
	Request string `json:"request" example:"Book sliceName \"gold\" in Berlin from 2025-06-01T10:00:00Z to 2025-06-01T12:00:00Z" binding:"required"`
	// 契约文件或 URL
	Source string `json:"source,omitempty" example:"NetworkSliceBooking.yaml"`
	// 操作路径
	Path string `json:"path,omitempty" example:"/sessions"`
	// HTTP 方法
	Method string `json:"method,omitempty" example:"post"`
	// 就绪时立即转发给下游服务
	Execute bool `json:"execute,omitempty"`
}

// AnalyzeResponse 分析响应
type AnalyzeResponse struct {
	Analysis *synth.Result `json:"analysis"`
	// 仅在 execute=true 时出现；未就绪时为 nil
	Execution *downstream.Result `json:"execution,omitempty"`
	// execute=true 但未转发的原因
	Skipped string `json:"skipped,omitempty"`
}

// =============================================================================
// 执行类型
// =============================================================================

// ExecuteRequest 直接转发请求
type ExecuteRequest struct {
	Payload map[string]any `json:"payload" binding:"required"`
	Path    string         `json:"path,omitempty" example:"/sessions"`
	Method  string         `json:"method,omitempty" example:"post"`
}

// =============================================================================
// 契约与历史
// =============================================================================

// OperationsResponse 契约中的操作列表
type OperationsResponse struct {
	Source     string             `json:"source"`
	Operations []schema.Operation `json:"operations"`
}

// AnalysisListResponse 分析历史分页
type AnalysisListResponse struct {
	Items  []history.Record `json:"items"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}
