package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultMCPClient MCP 客户端，基于任意 Transport 做请求/响应关联
type DefaultMCPClient struct {
	transport Transport
	logger    *zap.Logger

	nextID    atomic.Int64
	pending   map[int64]chan *MCPMessage
	pendingMu sync.Mutex

	serverInfo map[string]any

	readErr error // 读循环退出原因，受 pendingMu 保护

	stop    context.CancelFunc
	done    chan struct{}
	startMu sync.Mutex
	started bool
}

// NewMCPClient 创建 MCP 客户端
func NewMCPClient(transport Transport, logger *zap.Logger) *DefaultMCPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultMCPClient{
		transport: transport,
		logger:    logger.With(zap.String("component", "mcp_client")),
		pending:   make(map[int64]chan *MCPMessage),
		done:      make(chan struct{}),
	}
}

// Initialize 启动读循环并完成 initialize 握手
func (c *DefaultMCPClient) Initialize(ctx context.Context, clientName string) (map[string]any, error) {
	c.start()

	raw, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": MCPVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": clientName, "version": "1"},
	})
	if err != nil {
		return nil, err
	}

	var info map[string]any
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to parse initialize result: %w", err)
	}
	c.serverInfo = info

	if err := c.transport.Send(ctx, &MCPMessage{JSONRPC: "2.0", Method: "notifications/initialized"}); err != nil {
		return nil, fmt.Errorf("send initialized notification: %w", err)
	}
	return info, nil
}

// ServerInfo 返回 initialize 握手得到的服务端信息
func (c *DefaultMCPClient) ServerInfo() map[string]any {
	return c.serverInfo
}

// ListTools 列出工具
func (c *DefaultMCPClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []ToolDefinition `json:"tools"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to parse tools: %w", err)
	}
	return out.Tools, nil
}

// CallTool 调用工具；工具失败时返回 *MCPError
func (c *DefaultMCPClient) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	raw, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var result ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tool result: %w", err)
	}
	return &result, nil
}

// Ping 发送 ping
func (c *DefaultMCPClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

// Done 读循环退出后关闭
func (c *DefaultMCPClient) Done() <-chan struct{} {
	return c.done
}

// Close 停止读循环并关闭传输
func (c *DefaultMCPClient) Close() error {
	c.startMu.Lock()
	started := c.started
	c.startMu.Unlock()

	err := c.transport.Close()
	if started {
		c.stop()
	}
	return err
}

func (c *DefaultMCPClient) start() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return
	}
	c.started = true

	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	go c.readLoop(ctx)
}

// readLoop 接收响应并分发给等待中的请求
func (c *DefaultMCPClient) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		msg, err := c.transport.Receive(ctx)
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				c.logger.Warn("dropping malformed message", zap.Error(err))
				continue
			}
			c.failPending(err)
			return
		}
		if !msg.IsResponse() {
			c.logger.Debug("ignoring server message", zap.String("method", msg.Method))
			continue
		}

		id, ok := toInt64(msg.ID)
		if !ok {
			continue
		}
		c.pendingMu.Lock()
		ch, exists := c.pending[id]
		delete(c.pending, id)
		c.pendingMu.Unlock()
		if exists {
			ch <- msg
		}
	}
}

func (c *DefaultMCPClient) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.readErr = err
	for id, ch := range c.pending {
		ch <- &MCPMessage{ID: id, Error: &MCPError{Code: ErrorCodeInternalError, Message: err.Error()}}
		delete(c.pending, id)
	}
}

// call 发送请求并等待对应 ID 的响应
func (c *DefaultMCPClient) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	c.start()

	id := c.nextID.Add(1)
	ch := make(chan *MCPMessage, 1)

	c.pendingMu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("mcp client: %w", err)
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	cleanup := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	if err := c.transport.Send(ctx, NewMCPRequest(id, method, params)); err != nil {
		cleanup()
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return json.Marshal(resp.Result)
	}
}

// JSON 数字解码为 float64
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
