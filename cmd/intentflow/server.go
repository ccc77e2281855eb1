package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/api/handlers"
	"github.com/BaSui01/intentflow/config"
	"github.com/BaSui01/intentflow/internal/server"
	"github.com/BaSui01/intentflow/internal/telemetry"
	"github.com/BaSui01/intentflow/protocol/mcp"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 IntentFlow 的主服务器
type Server struct {
	cfg    *config.Config
	app    *App
	otel   *telemetry.Providers
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler  *handlers.HealthHandler
	analyzeHandler *handlers.AnalyzeHandler
	historyHandler *handlers.HistoryHandler
	mcpHandler     *mcp.MCPHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, app *App, otel *telemetry.Providers, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		app:    app,
		otel:   otel,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start(ctx context.Context) error {
	s.initHandlers()

	if err := s.startHTTPServer(ctx); err != nil {
		return err
	}
	if err := s.startMetricsServer(); err != nil {
		return err
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("schema_source", s.cfg.Schema.Source),
		zap.Bool("history_enabled", s.app.HistoryEnabled()),
		zap.Bool("downstream_enabled", s.app.executor != nil),
	)
	return nil
}

// Wait 阻塞到 ctx 结束或任一服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	var metricsErrs <-chan error
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
		return nil
	case err := <-s.httpManager.Errors():
		return err
	case err := <-metricsErrs:
		return err
	}
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	// 契约可加载即视为就绪
	s.healthHandler.RegisterCheck(handlers.NewContractHealthCheck(func(ctx context.Context) error {
		_, err := s.app.analyzer.Operations(ctx, "")
		return err
	}))
	if s.app.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck(s.app.pool.Ping))
	}
	if s.app.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck(s.app.cache.Ping))
	}

	var exec handlers.Executor
	if s.app.executor != nil {
		exec = s.app.executor
	}
	s.analyzeHandler = handlers.NewAnalyzeHandler(s.app.analyzer, exec, s.logger)

	if s.app.HistoryEnabled() {
		s.historyHandler = handlers.NewHistoryHandler(s.app.history, s.cfg.History.ListLimit, s.logger)
	}

	s.mcpHandler = mcp.NewMCPHandler(s.app.mcp, s.logger, s.cfg.Server.CORSAllowedOrigins...)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 分析与转发
	mux.HandleFunc("POST /api/v1/analyze", s.analyzeHandler.HandleAnalyze)
	mux.HandleFunc("POST /api/v1/execute", s.analyzeHandler.HandleExecute)
	mux.HandleFunc("GET /api/v1/operations", s.analyzeHandler.HandleOperations)

	if s.historyHandler != nil {
		mux.HandleFunc("GET /api/v1/analyses", s.historyHandler.HandleList)
		mux.HandleFunc("GET /api/v1/analyses/{id}", s.historyHandler.HandleGet)
		s.logger.Info("History API routes registered")
	}

	// MCP over SSE / WebSocket
	mux.Handle("/mcp/", s.mcpHandler)

	if s.cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return mux
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(ctx)
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(s.app.metrics),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger),
		JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.logger),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	s.httpManager = server.NewManager("api", handler, server.ConfigFrom(s.cfg.Server.HTTPPort, s.cfg.Server), s.logger)
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager("metrics", mux, server.ConfigFrom(s.cfg.Server.MetricsPort, s.cfg.Server), s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.app.Close()

	if s.otel != nil {
		otelCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.otel.Shutdown(otelCtx); err != nil {
			s.logger.Warn("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
