package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultToolTimeout 单次工具调用超时
const DefaultToolTimeout = 30 * time.Second

// ToolHandler 工具处理函数
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// ToolMetrics 工具调用指标
type ToolMetrics interface {
	RecordToolCall(tool string, err error)
}

// ErrToolNotFound 调用了未注册的工具
var ErrToolNotFound = errors.New("tool not found")

// ServerOption 服务器选项
type ServerOption func(*DefaultMCPServer)

// WithToolTimeout 设置工具调用超时（<=0 表示使用默认值）
func WithToolTimeout(d time.Duration) ServerOption {
	return func(s *DefaultMCPServer) {
		if d > 0 {
			s.toolTimeout = d
		}
	}
}

// WithToolMetrics 设置工具调用指标
func WithToolMetrics(m ToolMetrics) ServerOption {
	return func(s *DefaultMCPServer) { s.metrics = m }
}

// WithLogLevel 允许 logging/setLevel 修改日志级别
func WithLogLevel(level zap.AtomicLevel) ServerOption {
	return func(s *DefaultMCPServer) { s.level = &level }
}

// DefaultMCPServer 默认 MCP 服务器实现
type DefaultMCPServer struct {
	info ServerInfo

	// 工具注册（保持注册顺序）
	tools        map[string]*ToolDefinition
	toolHandlers map[string]ToolHandler
	toolOrder    []string
	toolsMu      sync.RWMutex

	toolTimeout time.Duration
	metrics     ToolMetrics
	level       *zap.AtomicLevel

	logger *zap.Logger
}

// NewMCPServer 创建 MCP 服务器
func NewMCPServer(name, version string, logger *zap.Logger, opts ...ServerOption) *DefaultMCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &DefaultMCPServer{
		info: ServerInfo{
			Name:            name,
			Version:         version,
			ProtocolVersion: MCPVersion,
			Capabilities: ServerCapabilities{
				Tools:   true,
				Logging: true,
			},
		},
		tools:        make(map[string]*ToolDefinition),
		toolHandlers: make(map[string]ToolHandler),
		toolTimeout:  DefaultToolTimeout,
		logger:       logger.With(zap.String("component", "mcp_server")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetServerInfo 获取服务器信息
func (s *DefaultMCPServer) GetServerInfo() ServerInfo {
	return s.info
}

// RegisterTool 注册工具；同名工具会被替换
func (s *DefaultMCPServer) RegisterTool(tool *ToolDefinition, handler ToolHandler) error {
	if tool == nil {
		return fmt.Errorf("invalid tool: nil definition")
	}
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}
	if handler == nil {
		return fmt.Errorf("tool handler is required")
	}

	s.toolsMu.Lock()
	defer s.toolsMu.Unlock()

	if _, exists := s.tools[tool.Name]; !exists {
		s.toolOrder = append(s.toolOrder, tool.Name)
	}
	s.tools[tool.Name] = tool
	s.toolHandlers[tool.Name] = handler

	s.logger.Info("tool registered", zap.String("name", tool.Name))

	return nil
}

// UnregisterTool 注销工具
func (s *DefaultMCPServer) UnregisterTool(name string) error {
	s.toolsMu.Lock()
	defer s.toolsMu.Unlock()

	if _, ok := s.tools[name]; !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	delete(s.tools, name)
	delete(s.toolHandlers, name)
	for i, n := range s.toolOrder {
		if n == name {
			s.toolOrder = append(s.toolOrder[:i], s.toolOrder[i+1:]...)
			break
		}
	}

	s.logger.Info("tool unregistered", zap.String("name", name))

	return nil
}

// ListTools 按注册顺序列出所有工具
func (s *DefaultMCPServer) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	s.toolsMu.RLock()
	defer s.toolsMu.RUnlock()

	result := make([]ToolDefinition, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		result = append(result, *s.tools[name])
	}

	return result, nil
}

// CallTool 调用工具（带超时控制），返回值编码为文本内容
func (s *DefaultMCPServer) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	s.toolsMu.RLock()
	handler, ok := s.toolHandlers[name]
	s.toolsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	s.logger.Debug("calling tool", zap.String("name", name))

	callCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()

	start := time.Now()
	value, err := handler(callCtx, args)
	var result *ToolResult
	if err == nil {
		result, err = TextResult(value)
	}
	if s.metrics != nil {
		s.metrics.RecordToolCall(name, err)
	}
	if err != nil {
		s.logger.Warn("tool call failed",
			zap.String("name", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Debug("tool call succeeded",
		zap.String("name", name),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// SetLogLevel 设置日志级别
func (s *DefaultMCPServer) SetLogLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return InvalidParams("invalid log level: %s", level)
	}
	if s.level != nil {
		s.level.SetLevel(lvl)
	}
	s.logger.Info("log level changed", zap.String("level", lvl.String()))
	return nil
}

// =============================================================================
// Message Dispatcher (JSON-RPC 2.0)
// =============================================================================

// HandleMessage dispatches an incoming JSON-RPC 2.0 request and returns the
// response. Notifications return a nil response.
func (s *DefaultMCPServer) HandleMessage(ctx context.Context, msg *MCPMessage) *MCPMessage {
	if msg == nil {
		return NewMCPError(nil, ErrorCodeInvalidRequest, "empty message", nil)
	}
	if msg.JSONRPC != "" && msg.JSONRPC != "2.0" {
		return NewMCPError(msg.ID, ErrorCodeInvalidRequest, "unsupported JSON-RPC version", nil)
	}

	if msg.IsNotification() {
		s.handleNotification(msg)
		return nil
	}
	if msg.Method == "" {
		// 客户端发来的响应（例如 ping 的回复），忽略
		if msg.IsResponse() {
			return nil
		}
		return NewMCPError(msg.ID, ErrorCodeInvalidRequest, "missing method", nil)
	}

	s.logger.Debug("handling message",
		zap.String("method", msg.Method),
		zap.Any("id", msg.ID),
	)

	result, mcpErr := s.dispatch(ctx, msg.Method, msg.Params)
	if mcpErr != nil {
		return &MCPMessage{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error:   mcpErr,
		}
	}

	return NewMCPResponse(msg.ID, result)
}

func (s *DefaultMCPServer) handleNotification(msg *MCPMessage) {
	switch msg.Method {
	case "notifications/initialized":
		s.logger.Info("client initialized notification received")
	case "notifications/cancelled":
		s.logger.Debug("client cancelled request", zap.Any("params", msg.Params))
	default:
		s.logger.Debug("unhandled notification", zap.String("method", msg.Method))
	}
}

func (s *DefaultMCPServer) dispatch(ctx context.Context, method string, params map[string]any) (any, *MCPError) {
	switch method {
	case "initialize":
		return s.handleInitialize()
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return s.handleToolsList(ctx)
	case "tools/call":
		return s.handleToolsCall(ctx, params)
	case "logging/setLevel":
		level, _ := params["level"].(string)
		if err := s.SetLogLevel(level); err != nil {
			return nil, toMCPError(err)
		}
		return map[string]any{}, nil
	default:
		return nil, &MCPError{
			Code:    ErrorCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", method),
		}
	}
}

func (s *DefaultMCPServer) handleInitialize() (any, *MCPError) {
	caps := map[string]any{}
	if s.info.Capabilities.Tools {
		caps["tools"] = map[string]any{"listChanged": false}
	}
	if s.info.Capabilities.Logging {
		caps["logging"] = map[string]any{}
	}
	return map[string]any{
		"protocolVersion": MCPVersion,
		"capabilities":    caps,
		"serverInfo": map[string]any{
			"name":    s.info.Name,
			"version": s.info.Version,
		},
	}, nil
}

func (s *DefaultMCPServer) handleToolsList(ctx context.Context) (any, *MCPError) {
	tools, err := s.ListTools(ctx)
	if err != nil {
		return nil, &MCPError{Code: ErrorCodeInternalError, Message: err.Error()}
	}
	return map[string]any{"tools": tools}, nil
}

func (s *DefaultMCPServer) handleToolsCall(ctx context.Context, params map[string]any) (any, *MCPError) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, &MCPError{Code: ErrorCodeInvalidParams, Message: "missing required parameter: name"}
	}

	var args map[string]any
	if raw, ok := params["arguments"]; ok && raw != nil {
		args, ok = raw.(map[string]any)
		if !ok {
			return nil, &MCPError{Code: ErrorCodeInvalidParams, Message: "arguments must be an object"}
		}
	}

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			return nil, &MCPError{Code: ErrorCodeMethodNotFound, Message: err.Error()}
		}
		return nil, toMCPError(err)
	}
	return result, nil
}

// =============================================================================
// Serve: Transport Message Loop
// =============================================================================

// Serve runs the message loop over the given transport until the context is
// cancelled or the transport is closed.
func (s *DefaultMCPServer) Serve(ctx context.Context, transport Transport) error {
	if transport == nil {
		return fmt.Errorf("transport cannot be nil")
	}

	s.logger.Info("MCP server starting",
		zap.String("name", s.info.Name),
		zap.String("version", s.info.Version),
	)

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("MCP server stopping: context cancelled")
			return err
		}

		msg, err := transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("MCP server stopping: context cancelled")
				return ctx.Err()
			}
			var perr *ParseError
			if errors.As(err, &perr) {
				s.logger.Warn("malformed message", zap.Error(err))
				if sendErr := transport.Send(ctx, NewMCPError(nil, ErrorCodeParseError, "parse error", nil)); sendErr != nil {
					s.logger.Error("failed to send error response", zap.Error(sendErr))
				}
				continue
			}
			if errors.Is(err, ErrTransportClosed) {
				s.logger.Info("MCP server stopping: transport closed")
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		resp := s.HandleMessage(ctx, msg)
		if resp == nil {
			continue
		}

		if sendErr := transport.Send(ctx, resp); sendErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("send: %w", sendErr)
		}
	}
}
