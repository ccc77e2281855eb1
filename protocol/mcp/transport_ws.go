package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/internal/retry"
)

// WSState represents the connection state of a WebSocket transport.
type WSState string

const (
	WSStateDisconnected WSState = "disconnected"
	WSStateConnecting   WSState = "connecting"
	WSStateConnected    WSState = "connected"
	WSStateReconnecting WSState = "reconnecting"
	WSStateFailed       WSState = "failed"
	WSStateClosed       WSState = "closed"
)

// Subprotocol MCP WebSocket 子协议
const Subprotocol = "mcp"

// WSTransportConfig configures the WebSocket client transport.
type WSTransportConfig struct {
	HeartbeatInterval time.Duration // ping 间隔，0 关闭心跳
	HeartbeatTimeout  time.Duration // 单次 ping 超时
	MaxReconnects     int           // 0 = 不重连
	ReconnectDelay    time.Duration
	MaxBackoff        time.Duration
	ReadLimit         int64
	Subprotocols      []string
}

// DefaultWSTransportConfig returns a WSTransportConfig with sensible defaults.
func DefaultWSTransportConfig() WSTransportConfig {
	return WSTransportConfig{
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		MaxReconnects:     5,
		ReconnectDelay:    time.Second,
		MaxBackoff:        30 * time.Second,
		ReadLimit:         maxFrameBytes,
		Subprotocols:      []string{Subprotocol},
	}
}

// WebSocketTransport implements Transport over a client WebSocket with
// heartbeat pings and exponential-backoff reconnection.
type WebSocketTransport struct {
	url     string
	config  WSTransportConfig
	retryer *retry.Retryer
	logger  *zap.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	state         WSState
	closed        bool
	onStateChange func(WSState)
	done          chan struct{}

	reconnectMu sync.Mutex
}

// NewWebSocketTransport creates a WebSocket transport with default configuration.
func NewWebSocketTransport(url string, logger *zap.Logger) *WebSocketTransport {
	return NewWebSocketTransportWithConfig(url, DefaultWSTransportConfig(), logger)
}

// NewWebSocketTransportWithConfig creates a WebSocket transport with custom configuration.
func NewWebSocketTransportWithConfig(url string, config WSTransportConfig, logger *zap.Logger) *WebSocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultWSTransportConfig()
	if config.ReadLimit <= 0 {
		config.ReadLimit = def.ReadLimit
	}
	if len(config.Subprotocols) == 0 {
		config.Subprotocols = def.Subprotocols
	}
	if config.HeartbeatTimeout <= 0 {
		config.HeartbeatTimeout = def.HeartbeatTimeout
	}

	t := &WebSocketTransport{
		url:    url,
		config: config,
		logger: logger.With(zap.String("component", "mcp_ws_transport")),
		state:  WSStateDisconnected,
		done:   make(chan struct{}),
	}
	t.retryer = retry.New(retry.Policy{
		MaxRetries:   config.MaxReconnects,
		InitialDelay: config.ReconnectDelay,
		MaxDelay:     config.MaxBackoff,
		Multiplier:   2.0,
		ShouldRetry:  func(err error) bool { return !errors.Is(err, ErrTransportClosed) },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			t.logger.Info("attempting reconnect",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	}, logger)
	return t
}

// OnStateChange registers a callback invoked whenever the connection state changes.
func (t *WebSocketTransport) OnStateChange(fn func(WSState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChange = fn
}

func (t *WebSocketTransport) setState(s WSState) {
	t.mu.Lock()
	t.state = s
	fn := t.onStateChange
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// State returns the current connection state.
func (t *WebSocketTransport) State() WSState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsConnected returns true when the transport has an active connection.
func (t *WebSocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == WSStateConnected && !t.closed
}

// Connect establishes the connection and starts the heartbeat goroutine.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.setState(WSStateConnecting)
	if err := t.dial(ctx); err != nil {
		t.setState(WSStateDisconnected)
		return err
	}
	t.setState(WSStateConnected)

	if t.config.HeartbeatInterval > 0 {
		go t.heartbeat()
	}
	return nil
}

func (t *WebSocketTransport) dial(ctx context.Context) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		Subprotocols: t.config.Subprotocols,
	})
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	conn.SetReadLimit(t.config.ReadLimit)

	t.mu.Lock()
	old := t.conn
	t.conn = conn
	t.mu.Unlock()
	if old != nil {
		_ = old.Close(websocket.StatusNormalClosure, "reconnecting")
	}
	return nil
}

// reconnect 重新建立连接；并发调用方共享同一次重连
func (t *WebSocketTransport) reconnect(ctx context.Context, failed *websocket.Conn) error {
	t.reconnectMu.Lock()
	defer t.reconnectMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.conn != failed {
		// 已被其他调用方重连
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if t.config.MaxReconnects <= 0 {
		t.setState(WSStateFailed)
		return fmt.Errorf("websocket: connection lost")
	}

	t.setState(WSStateReconnecting)
	if err := t.retryer.Do(ctx, t.dial); err != nil {
		t.setState(WSStateFailed)
		return fmt.Errorf("websocket reconnect: %w", err)
	}
	t.setState(WSStateConnected)
	t.logger.Info("reconnected")
	return nil
}

func (t *WebSocketTransport) current() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.conn == nil {
		return nil, fmt.Errorf("websocket: not connected")
	}
	return t.conn, nil
}

// Send writes a JSON-RPC message; on failure it reconnects and retries once.
func (t *WebSocketTransport) Send(ctx context.Context, msg *MCPMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	conn, err := t.current()
	if err != nil {
		return err
	}
	writeErr := conn.Write(ctx, websocket.MessageText, body)
	if writeErr == nil || ctx.Err() != nil {
		return writeErr
	}

	t.logger.Warn("send failed, attempting reconnect", zap.Error(writeErr))
	if err := t.reconnect(ctx, conn); err != nil {
		return fmt.Errorf("send failed: %w", writeErr)
	}
	if conn, err = t.current(); err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, body)
}

// Receive reads the next JSON-RPC message, reconnecting on read errors.
func (t *WebSocketTransport) Receive(ctx context.Context) (*MCPMessage, error) {
	for {
		conn, err := t.current()
		if err != nil {
			return nil, err
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.done:
				return nil, ErrTransportClosed
			default:
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && t.config.MaxReconnects <= 0 {
				return nil, ErrTransportClosed
			}

			t.logger.Warn("receive failed, attempting reconnect", zap.Error(err))
			if rerr := t.reconnect(ctx, conn); rerr != nil {
				return nil, fmt.Errorf("receive failed: %w", err)
			}
			continue
		}

		return decodeMessage(data)
	}
}

// heartbeat 周期性发送 WebSocket ping；ping 需要并发的 Receive 读取 pong
func (t *WebSocketTransport) heartbeat() {
	ticker := time.NewTicker(t.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			conn, err := t.current()
			if err != nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), t.config.HeartbeatTimeout)
			err = conn.Ping(ctx)
			cancel()
			if err != nil {
				t.logger.Warn("heartbeat ping failed", zap.Error(err))
				rctx, rcancel := context.WithCancel(context.Background())
				go func() {
					select {
					case <-t.done:
						rcancel()
					case <-rctx.Done():
					}
				}()
				_ = t.reconnect(rctx, conn)
				rcancel()
			}
		}
	}
}

// Close shuts down the transport and the heartbeat goroutine.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	t.setState(WSStateClosed)

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "closing")
	}
	return nil
}

// ---------------------------------------------------------------------------
// 服务端连接
// ---------------------------------------------------------------------------

// connTransport 将已 Accept 的 WebSocket 连接适配为 Transport
type connTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newConnTransport(conn *websocket.Conn) *connTransport {
	conn.SetReadLimit(maxFrameBytes)
	return &connTransport{conn: conn}
}

func (c *connTransport) Send(ctx context.Context, msg *MCPMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, body)
}

func (c *connTransport) Receive(ctx context.Context) (*MCPMessage, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			return nil, ErrTransportClosed
		}
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, &ParseError{Err: fmt.Errorf("unexpected binary frame")}
	}
	return decodeMessage(data)
}

func (c *connTransport) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closing")
}
