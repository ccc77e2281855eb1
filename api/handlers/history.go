package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/api"
	"github.com/BaSui01/intentflow/history"
	"github.com/BaSui01/intentflow/types"
)

// =============================================================================
// 🗂️ History Handler
// =============================================================================

// HistoryHandler 分析历史查询处理器
type HistoryHandler struct {
	store        history.Store
	defaultLimit int
	logger       *zap.Logger
}

// NewHistoryHandler 创建历史处理器。defaultLimit<=0 时使用 50
func NewHistoryHandler(store history.Store, defaultLimit int, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &HistoryHandler{
		store:        store,
		defaultLimit: defaultLimit,
		logger:       logger.With(zap.String("component", "history_handler")),
	}
}

// HandleList 分页列出分析记录
// @Summary List analyses
// @Tags history
// @Produce json
// @Param status query string false "ready | incomplete | error"
// @Param path query string false "Operation path"
// @Param method query string false "HTTP method"
// @Param since query string false "RFC3339 timestamp"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} Response{data=api.AnalysisListResponse}
// @Failure 400 {object} Response "Invalid filter"
// @Security ApiKeyAuth
// @Router /api/v1/analyses [get]
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()).WithHTTPStatus(http.StatusBadRequest), h.logger)
		return
	}

	items, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to list analyses").WithCause(err), h.logger)
		return
	}
	if items == nil {
		items = []history.Record{}
	}

	WriteSuccess(w, r, api.AnalysisListResponse{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// HandleGet 获取单条分析记录
// @Summary Get analysis
// @Tags history
// @Produce json
// @Param id path string true "Analysis ID"
// @Success 200 {object} Response{data=history.Record}
// @Failure 404 {object} Response "Not found"
// @Security ApiKeyAuth
// @Router /api/v1/analyses/{id} [get]
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "analysis id is required", h.logger)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "analysis not found", h.logger)
		return
	}
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to load analysis").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, r, rec)
}

func (h *HistoryHandler) parseFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()
	f := history.Filter{
		Path:   q.Get("path"),
		Method: strings.ToLower(q.Get("method")),
		Limit:  h.defaultLimit,
	}

	switch s := history.Status(q.Get("status")); s {
	case "", history.StatusReady, history.StatusIncomplete, history.StatusError:
		f.Status = s
	default:
		return f, errors.New("status must be one of ready, incomplete, error")
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC3339 timestamp")
		}
		f.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = min(n, history.MaxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}
