package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/analyzer"
	"github.com/BaSui01/intentflow/config"
	"github.com/BaSui01/intentflow/downstream"
	"github.com/BaSui01/intentflow/history"
	"github.com/BaSui01/intentflow/internal/cache"
	"github.com/BaSui01/intentflow/internal/database"
	"github.com/BaSui01/intentflow/internal/metrics"
	"github.com/BaSui01/intentflow/internal/migration"
	"github.com/BaSui01/intentflow/internal/telemetry"
	"github.com/BaSui01/intentflow/internal/tlsutil"
	"github.com/BaSui01/intentflow/protocol/mcp"
	"github.com/BaSui01/intentflow/schema"
	"github.com/BaSui01/intentflow/tools"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// App serve / mcp / analyze 共用的组件集合
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	baseLoader *schema.Loader
	loader     schema.DocumentLoader
	cached     *schema.CachedLoader
	cache      *cache.Manager
	watcher    *schema.Watcher

	pool    *database.PoolManager
	history history.Store

	analyzer *analyzer.Analyzer
	executor *downstream.Executor
	mcp      *mcp.DefaultMCPServer
}

// NewApp 按配置装配组件。可选依赖（Redis、数据库、下游）不可用时降级并记录警告
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector("intentflow", logger),
		history: history.NopStore{},
	}

	a.initLoader(ctx)

	if err := a.initHistory(ctx); err != nil {
		a.Close()
		return nil, err
	}

	instruments, err := telemetry.NewInstruments(nil)
	if err != nil {
		logger.Warn("failed to create otel instruments", zap.Error(err))
	}
	a.analyzer = analyzer.New(a.loader, analyzer.DefaultsFrom(cfg.Schema), logger,
		analyzer.WithHistory(a.history),
		analyzer.WithMetrics(a.metrics),
		analyzer.WithInstruments(instruments),
		analyzer.WithTracer(telemetry.Tracer()),
	)

	if cfg.Downstream.BaseURL != "" {
		a.executor, err = downstream.New(cfg.Downstream, logger, downstream.WithMetrics(a.metrics))
		if err != nil {
			a.Close()
			return nil, err
		}
	} else {
		logger.Info("downstream base_url not configured, execution disabled")
	}

	a.mcp = mcp.NewMCPServer(cfg.MCP.ServerName, cfg.MCP.ServerVersion, logger,
		mcp.WithToolTimeout(cfg.MCP.ToolTimeout),
		mcp.WithToolMetrics(a.metrics),
		mcp.WithLogLevel(level),
	)
	var exec tools.Executor
	if a.executor != nil {
		exec = a.executor
	}
	if err := tools.Register(ctx, a.mcp, a.analyzer, exec, tools.OptionsFrom(cfg.MCP), logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("register MCP tools: %w", err)
	}

	return a, nil
}

// initLoader 构建契约加载链：Loader → (可选) CachedLoader → (可选) Watcher
func (a *App) initLoader(ctx context.Context) {
	sc := a.cfg.Schema
	a.baseLoader = schema.NewLoader(
		schema.WithHTTPClient(tlsutil.SecureHTTPClient(sc.FetchTimeout)),
		schema.WithMaxDocumentBytes(sc.MaxDocumentBytes),
		schema.WithMaxNodes(sc.MaxDocumentNodes),
		schema.WithLogger(a.logger),
	)
	a.loader = a.baseLoader

	var store schema.Store
	switch sc.CacheMode {
	case "memory":
		store = schema.NewMemoryStore()
	case "redis":
		m, err := cache.NewManager(cache.FromRedisConfig(a.cfg.Redis, sc.CacheTTL), a.logger)
		if err != nil {
			a.logger.Warn("redis unavailable, falling back to in-memory schema cache", zap.Error(err))
			store = schema.NewMemoryStore()
			break
		}
		a.cache = m
		store = schema.NewRedisStore(m, a.cfg.Redis.KeyPrefix)
	default:
		return
	}

	a.cached = schema.NewCachedLoader(a.baseLoader, store, sc.CacheTTL, a.metrics, a.logger)
	a.loader = a.cached

	if !sc.WatchSource || isRemote(sc.Source) {
		return
	}
	w, err := schema.NewWatcher([]string{sc.Source}, schema.WithWatcherLogger(a.logger))
	if err != nil {
		a.logger.Warn("schema watcher disabled", zap.String("source", sc.Source), zap.Error(err))
		return
	}
	w.InvalidateOnChange(a.cached, sc.Source)
	if err := w.Start(ctx); err != nil {
		a.logger.Warn("failed to start schema watcher", zap.Error(err))
		return
	}
	a.watcher = w
}

// initHistory 打开历史库。数据库不可用时降级为 NopStore；迁移失败视为启动失败
func (a *App) initHistory(ctx context.Context) error {
	if !a.cfg.History.Enabled {
		return nil
	}

	db, err := database.Open(a.cfg.Database, a.logger)
	if err != nil {
		a.logger.Warn("database not available, analysis history disabled", zap.Error(err))
		return nil
	}
	pool, err := database.NewPoolManager(db, "history", database.PoolConfigFrom(a.cfg.Database), a.metrics, a.logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		a.logger.Warn("database pool unavailable, analysis history disabled", zap.Error(err))
		return nil
	}
	a.pool = pool

	if a.cfg.History.AutoMigrate {
		if err := runMigrations(ctx, a.cfg.Database, a.logger); err != nil {
			return fmt.Errorf("history migrations: %w", err)
		}
	}

	a.history = history.NewGormStore(pool.DB(), a.cfg.History.ListLimit, a.logger)
	a.logger.Info("analysis history enabled", zap.String("driver", a.cfg.Database.Driver))
	return nil
}

func runMigrations(ctx context.Context, dbCfg config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg, logger)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}

// HistoryEnabled 历史库是否可用
func (a *App) HistoryEnabled() bool { return a.pool != nil }

// Close 释放所有资源，可重复调用
func (a *App) Close() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Debug("schema watcher stop", zap.Error(err))
		}
		a.watcher = nil
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil && !errors.Is(err, database.ErrPoolClosed) {
			a.logger.Warn("failed to close database pool", zap.Error(err))
		}
		a.pool = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close cache", zap.Error(err))
		}
		a.cache = nil
	}
}

func isRemote(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
