// sessions-mock 是本地联调用的下游服务：POST /sessions 原样回显载荷。
//
// 使用方法:
//
//	sessions-mock                          # 监听 localhost:9000
//	sessions-mock --addr :9100 --delay 200ms
//	sessions-mock --fail-every 3 --fail-status 503   # 每 3 次请求失败一次，用于验证重试
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/api/handlers"
	"github.com/BaSui01/intentflow/internal/server"
	"github.com/BaSui01/intentflow/types"
)

// SessionResponse 回显响应
type SessionResponse struct {
	Status  string         `json:"status"`
	Payload map[string]any `json:"payload"`
}

// MockOptions 故障注入选项
type MockOptions struct {
	// 每次响应前等待
	Delay time.Duration
	// 每 FailEvery 个请求返回一次 FailStatus；0 表示不注入
	FailEvery  int
	FailStatus int
}

// SessionsHandler 处理 POST /sessions
type SessionsHandler struct {
	opts   MockOptions
	count  atomic.Int64
	logger *zap.Logger
}

// NewSessionsHandler 创建处理器
func NewSessionsHandler(opts MockOptions, logger *zap.Logger) *SessionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FailStatus == 0 {
		opts.FailStatus = http.StatusServiceUnavailable
	}
	return &SessionsHandler{opts: opts, logger: logger.With(zap.String("component", "sessions_mock"))}
}

func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := h.count.Add(1)
	h.logger.Info("request received", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int64("seq", n))

	if r.Method != http.MethodPost {
		handlers.WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	if h.opts.Delay > 0 {
		select {
		case <-time.After(h.opts.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if h.opts.FailEvery > 0 && n%int64(h.opts.FailEvery) == 0 {
		h.logger.Warn("injecting failure", zap.Int("status", h.opts.FailStatus))
		handlers.WriteErrorMessage(w, r, h.opts.FailStatus, types.ErrServiceUnavailable, "injected failure", nil)
		return
	}

	var payload map[string]any
	if err := handlers.DecodeJSONBody(w, r, &payload, h.logger); err != nil {
		return
	}

	h.logger.Info("payload received", zap.Any("payload", payload))
	handlers.WriteJSON(w, http.StatusOK, SessionResponse{Status: "success", Payload: payload})
}

// Count 已处理请求数
func (h *SessionsHandler) Count() int64 { return h.count.Load() }

func main() {
	addr := flag.String("addr", "localhost:9000", "Listen address")
	delay := flag.Duration("delay", 0, "Delay before each response")
	failEvery := flag.Int("fail-every", 0, "Fail every Nth request (0 disables)")
	failStatus := flag.Int("fail-status", http.StatusServiceUnavailable, "Status code for injected failures")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	mux := http.NewServeMux()
	mux.Handle("/sessions", NewSessionsHandler(MockOptions{
		Delay:      *delay,
		FailEvery:  *failEvery,
		FailStatus: *failStatus,
	}, logger))

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	m := server.NewManager("sessions-mock", mux, cfg, logger)
	if err := m.Start(); err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	logger.Info("sessions mock listening", zap.String("url", "http://"+m.Addr()+"/sessions"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := m.Wait(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}
