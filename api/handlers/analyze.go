package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/analyzer"
	"github.com/BaSui01/intentflow/api"
	"github.com/BaSui01/intentflow/downstream"
	"github.com/BaSui01/intentflow/schema"
	"github.com/BaSui01/intentflow/synth"
	"github.com/BaSui01/intentflow/types"
)

// =============================================================================
// 🔍 Analyze Handler
// =============================================================================

// Analyzer 由 *analyzer.Analyzer 实现
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (*synth.Result, error)
	Operations(ctx context.Context, source string) ([]schema.Operation, error)
	Defaults() analyzer.Defaults
}

// Executor 由 *downstream.Executor 实现
type Executor interface {
	Execute(ctx context.Context, req downstream.Request) *downstream.Result
}

// AnalyzeHandler 分析与转发处理器
type AnalyzeHandler struct {
	analyzer Analyzer
	executor Executor
	logger   *zap.Logger
}

// NewAnalyzeHandler 创建分析处理器。executor 为空时 /execute 返回 503
func NewAnalyzeHandler(a Analyzer, exec Executor, logger *zap.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyzeHandler{
		analyzer: a,
		executor: exec,
		logger:   logger.With(zap.String("component", "analyze_handler")),
	}
}

// HandleAnalyze 分析自由文本
// @Summary Analyze request text
// @Description 提取参数、检查必填字段并合成建议载荷；缺失必填字段时 ready=false，不视为错误
// @Tags analyze
// @Accept json
// @Produce json
// @Param request body api.AnalyzeRequest true "Analyze request"
// @Success 200 {object} Response{data=api.AnalyzeResponse}
// @Failure 400 {object} Response "Invalid request"
// @Failure 404 {object} Response "Operation not found"
// @Failure 422 {object} Response "Contract cannot be loaded or resolved"
// @Security ApiKeyAuth
// @Router /api/v1/analyze [post]
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.AnalyzeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "request is required", h.logger)
		return
	}
	if err := h.analyzer.Defaults().CheckSource(req.Source); err != nil {
		WriteAnalysisError(w, r, err, h.logger)
		return
	}

	res, err := h.analyzer.Analyze(r.Context(), analyzer.Request{
		Text:   req.Request,
		Source: req.Source,
		Path:   req.Path,
		Method: req.Method,
	})
	if err != nil {
		WriteAnalysisError(w, r, err, h.logger)
		return
	}

	out := api.AnalyzeResponse{Analysis: res}
	if req.Execute {
		switch {
		case h.executor == nil:
			out.Skipped = "downstream execution is disabled"
		case !res.Ready:
			out.Skipped = "missing required fields: " + strings.Join(res.MissingRequired, ", ")
		default:
			out.Execution = h.executor.Execute(r.Context(), downstream.Request{
				Path:    res.Operation.Path,
				Method:  res.Operation.Method,
				Payload: res.SuggestedPayload,
			})
		}
	}

	WriteSuccess(w, r, out)
}

// HandleExecute 将载荷直接转发给下游服务
// @Summary Execute payload
// @Description 下游失败时仍返回 200，错误写在 data.error 中
// @Tags analyze
// @Accept json
// @Produce json
// @Param request body api.ExecuteRequest true "Execute request"
// @Success 200 {object} Response{data=downstream.Result}
// @Failure 400 {object} Response "Invalid request"
// @Failure 503 {object} Response "Execution disabled"
// @Security ApiKeyAuth
// @Router /api/v1/execute [post]
func (h *AnalyzeHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if h.executor == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "downstream execution is disabled", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.ExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Payload == nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "payload must be an object", h.logger)
		return
	}

	defaults := h.analyzer.Defaults()
	if strings.TrimSpace(req.Path) == "" {
		req.Path = defaults.Path
	}
	if strings.TrimSpace(req.Method) == "" {
		req.Method = defaults.Method
	}

	res := h.executor.Execute(r.Context(), downstream.Request{
		Path:    req.Path,
		Method:  req.Method,
		Payload: req.Payload,
	})
	if !res.OK() {
		h.logger.Warn("downstream execution failed",
			zap.String("request_id", requestID(r)),
			zap.String("url", res.URL),
			zap.String("code", string(res.Code)),
			zap.String("error", res.Error),
		)
	}
	WriteSuccess(w, r, res)
}

// HandleOperations 列出契约中带 JSON 请求体的操作
// @Summary List operations
// @Tags analyze
// @Produce json
// @Param source query string false "Contract file or URL"
// @Success 200 {object} Response{data=api.OperationsResponse}
// @Failure 422 {object} Response "Contract cannot be loaded"
// @Security ApiKeyAuth
// @Router /api/v1/operations [get]
func (h *AnalyzeHandler) HandleOperations(w http.ResponseWriter, r *http.Request) {
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if err := h.analyzer.Defaults().CheckSource(source); err != nil {
		WriteAnalysisError(w, r, err, h.logger)
		return
	}
	ops, err := h.analyzer.Operations(r.Context(), source)
	if err != nil {
		WriteAnalysisError(w, r, err, h.logger)
		return
	}
	if source == "" {
		source = h.analyzer.Defaults().Source
	}
	if ops == nil {
		ops = []schema.Operation{}
	}
	WriteSuccess(w, r, api.OperationsResponse{Source: source, Operations: ops})
}
