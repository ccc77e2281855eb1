// =============================================================================
// IntentFlow 主入口
// =============================================================================
// 自然语言 → 结构化请求合成服务，包含 HTTP API、MCP 端点、健康检查与 Prometheus 指标
//
// 使用方法:
//
//	intentflow serve                          # 启动服务
//	intentflow serve --config config.yaml     # 指定配置文件
//	intentflow mcp                            # 以 stdio 方式运行 MCP 服务器
//	intentflow analyze "book a slice ..."     # 单次分析并输出 JSON
//	intentflow lint --source openapi.yaml     # 校验契约
//	intentflow migrate up                     # 运行数据库迁移
//	intentflow health                         # 健康检查
//	intentflow version                        # 显示版本信息
// =============================================================================

// @title IntentFlow API
// @version 1.0.0
// @description IntentFlow turns free-form requests into JSON payloads for operations described by an OpenAPI contract.

// @contact.name IntentFlow Team
// @contact.url https://github.com/BaSui01/intentflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/intentflow/analyzer"
	"github.com/BaSui01/intentflow/api"
	"github.com/BaSui01/intentflow/config"
	"github.com/BaSui01/intentflow/downstream"
	"github.com/BaSui01/intentflow/internal/telemetry"
	"github.com/BaSui01/intentflow/protocol/mcp"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "analyze":
		err = runAnalyze(os.Args[2:])
	case "lint":
		err = runLint(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "health":
		err = runHealthCheck(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting IntentFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signalContext()
	defer stop()

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	app, err := NewApp(ctx, cfg, logger, level)
	if err != nil {
		return err
	}

	server := NewServer(cfg, app, otelProviders, logger)
	if err := server.Start(ctx); err != nil {
		server.Shutdown()
		return err
	}

	err = server.Wait(ctx)
	server.Shutdown()
	logger.Info("IntentFlow stopped")
	return err
}

// =============================================================================
// 🔌 mcp 命令（stdio）
// =============================================================================

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// stdout 承载协议帧，日志只能写 stderr
	cfg.Log.OutputPaths = []string{"stderr"}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext()
	defer stop()

	app, err := NewApp(ctx, cfg, logger, level)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("MCP server listening on stdio",
		zap.String("name", cfg.MCP.ServerName),
		zap.String("version", cfg.MCP.ServerVersion),
	)
	err = app.mcp.Serve(ctx, mcp.NewStdioTransport(os.Stdin, os.Stdout, logger))
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// =============================================================================
// 🔍 analyze / lint 命令
// =============================================================================

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	source := fs.String("source", "", "OpenAPI contract (file path or URL)")
	path := fs.String("path", "", "Operation path")
	method := fs.String("method", "", "Operation method")
	execute := fs.Bool("execute", false, "Send the payload downstream when ready")
	_ = fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
		if err != nil {
			return fmt.Errorf("read request from stdin: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("request text is required (argument or stdin)")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.Log.OutputPaths = []string{"stderr"}
	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext()
	defer stop()

	app, err := NewApp(ctx, cfg, logger, level)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.analyzer.Analyze(ctx, analyzer.Request{
		Text:   text,
		Source: *source,
		Path:   *path,
		Method: *method,
	})
	if err != nil {
		return err
	}

	out := api.AnalyzeResponse{Analysis: res}
	if *execute {
		switch {
		case app.executor == nil:
			out.Skipped = "downstream execution is disabled"
		case !res.Ready:
			out.Skipped = "missing required fields: " + strings.Join(res.MissingRequired, ", ")
		default:
			out.Execution = app.executor.Execute(ctx, downstream.Request{
				Path:    res.Operation.Path,
				Method:  res.Operation.Method,
				Payload: res.SuggestedPayload,
			})
		}
	}
	return printJSON(os.Stdout, out)
}

func runLint(args []string) error {
	fs := flag.NewFlagSet("lint", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	source := fs.String("source", "", "OpenAPI contract (file path or URL); defaults to schema.source")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.Log.OutputPaths = []string{"stderr"}
	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	src := *source
	if src == "" && fs.NArg() > 0 {
		src = fs.Arg(0)
	}
	if src == "" {
		src = cfg.Schema.Source
	}
	cfg.Schema.Source = src
	cfg.Schema.CacheMode = "none"
	cfg.History.Enabled = false

	ctx, stop := signalContext()
	defer stop()

	app, err := NewApp(ctx, cfg, logger, level)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.baseLoader.Lint(ctx, src)
	if err != nil {
		return err
	}
	if err := printJSON(os.Stdout, report); err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("%s: %d problem(s)", src, len(report.Problems))
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(*addr, "/") + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Println("OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("IntentFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`IntentFlow - Schema-driven request synthesizer

Usage:
  intentflow <command> [options]

Commands:
  serve     Start the HTTP server (REST API, MCP over SSE/WebSocket, metrics)
  mcp       Run the MCP server on stdio
  analyze   Analyze one request and print the result as JSON
  lint      Validate an OpenAPI contract
  migrate   Database migration commands
  health    Check server health
  version   Show version information
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Options for 'analyze':
  --source <src>    Contract file or URL (default: schema.source)
  --path <path>     Operation path (default: schema.path)
  --method <m>      Operation method (default: schema.method)
  --execute         Forward the payload downstream when ready

Examples:
  intentflow serve --config /etc/intentflow/config.yaml
  intentflow analyze "Book a slice named demo in Berlin from 2025-01-01T10:00 to 2025-01-01T12:00"
  echo "create a session for lab-1" | intentflow analyze --execute
  intentflow lint --source ./openapi.yaml
  intentflow migrate up
  intentflow health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zapcore.InfoLevel)
		}
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger, level
}
