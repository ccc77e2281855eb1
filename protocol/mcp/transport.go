package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/internal/tlsutil"
)

// Transport MCP 传输层接口
type Transport interface {
	// Send 发送消息
	Send(ctx context.Context, msg *MCPMessage) error
	// Receive 接收消息（阻塞）
	Receive(ctx context.Context) (*MCPMessage, error)
	// Close 关闭传输
	Close() error
}

// ErrTransportClosed 对端关闭或传输已关闭
var ErrTransportClosed = errors.New("mcp: transport closed")

// ParseError 收到的消息无法解析为 JSON-RPC；连接仍可继续使用
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "mcp: parse message: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

func decodeMessage(data []byte) (*MCPMessage, error) {
	var msg MCPMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &msg, nil
}

// maxFrameBytes 单条 stdio 消息上限
const maxFrameBytes = 16 << 20

// ---------------------------------------------------------------------------
// StdioTransport 标准输入输出传输
// ---------------------------------------------------------------------------

// StdioTransport 基于 bufio.Reader/io.Writer 的 stdio 传输。
// 接收时同时支持按行分隔的 JSON 和 Content-Length 头协议；
// 发送时沿用对端最近一次使用的帧格式（默认按行）。
type StdioTransport struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	logger  *zap.Logger

	mu           sync.Mutex
	headerFramed bool
	closed       bool
}

// NewStdioTransport 创建 stdio 传输
func NewStdioTransport(reader io.Reader, writer io.Writer, logger *zap.Logger) *StdioTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioTransport{
		reader: bufio.NewReaderSize(reader, 64*1024),
		writer: writer,
		logger: logger.With(zap.String("component", "mcp_stdio")),
	}
}

// Send 发送消息
func (t *StdioTransport) Send(ctx context.Context, msg *MCPMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.mu.Lock()
	headerFramed, closed := t.headerFramed, t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if headerFramed {
		header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
		if _, err := io.WriteString(t.writer, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if _, err := t.writer.Write(body); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
		return nil
	}

	body = append(body, '\n')
	if _, err := t.writer.Write(body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive 接收下一条消息；EOF 返回 ErrTransportClosed
func (t *StdioTransport) Receive(ctx context.Context) (*MCPMessage, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := t.reader.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			if errors.Is(err, io.EOF) {
				return nil, ErrTransportClosed
			}
			return nil, err
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if err != nil {
				return nil, ErrTransportClosed
			}
			continue
		}

		if strings.HasPrefix(strings.ToLower(trimmed), "content-length:") {
			return t.readFramed(trimmed)
		}
		return decodeMessage([]byte(trimmed))
	}
}

// readFramed 读取 Content-Length 头之后的剩余头部与消息体
func (t *StdioTransport) readFramed(first string) (*MCPMessage, error) {
	length, err := strconv.Atoi(strings.TrimSpace(first[len("content-length:"):]))
	if err != nil || length < 0 || length > maxFrameBytes {
		return nil, &ParseError{Err: fmt.Errorf("invalid content length %q", first)}
	}

	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrTransportClosed
			}
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTransportClosed
		}
		return nil, err
	}

	t.mu.Lock()
	t.headerFramed = true
	t.mu.Unlock()

	return decodeMessage(body)
}

// Close 关闭 stdio 传输
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// ---------------------------------------------------------------------------
// SSETransport Server-Sent Events 传输（HTTP SSE 客户端）
// ---------------------------------------------------------------------------

// SSETransport SSE 传输：GET <base>/sse 接收事件，POST 到服务端告知的 endpoint 发送
type SSETransport struct {
	endpoint   string
	httpClient *http.Client
	eventChan  chan *MCPMessage
	logger     *zap.Logger

	mu      sync.Mutex
	sendURL string
	ready   chan struct{}
	cancel  context.CancelFunc
}

// NewSSETransport 创建 SSE 传输，endpoint 为 MCP 挂载前缀（例如 http://host/mcp）
func NewSSETransport(endpoint string, logger *zap.Logger) *SSETransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSETransport{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: tlsutil.SecureHTTPClient(0), // SSE 长连接不设超时
		eventChan:  make(chan *MCPMessage, 100),
		logger:     logger.With(zap.String("component", "mcp_sse_transport")),
		ready:      make(chan struct{}),
	}
}

// Connect 建立 SSE 连接，并等待服务端告知消息 endpoint
func (t *SSETransport) Connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.endpoint+"/sse", nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("SSE connect failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("SSE connect: unexpected status %d", resp.StatusCode)
	}

	go t.readSSEEvents(streamCtx, resp.Body)

	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// readSSEEvents 后台读取 SSE 事件
func (t *SSETransport) readSSEEvents(ctx context.Context, body io.ReadCloser) {
	defer body.Close()
	defer close(t.eventChan)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)

	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			t.dispatchEvent(ctx, event, data.String())
			event = ""
			data.Reset()
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(line[len("data:"):], " "))
		}
	}
}

func (t *SSETransport) dispatchEvent(ctx context.Context, event, data string) {
	if data == "" {
		return
	}
	if event == "endpoint" {
		t.setEndpoint(data)
		return
	}

	msg, err := decodeMessage([]byte(data))
	if err != nil {
		t.logger.Warn("SSE parse error", zap.Error(err))
		return
	}
	select {
	case t.eventChan <- msg:
	case <-ctx.Done():
	}
}

func (t *SSETransport) setEndpoint(ref string) {
	base, err := url.Parse(t.endpoint + "/sse")
	if err != nil {
		t.logger.Warn("invalid SSE base", zap.Error(err))
		return
	}
	target, err := base.Parse(ref)
	if err != nil {
		t.logger.Warn("invalid SSE endpoint event", zap.String("data", ref), zap.Error(err))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendURL == "" {
		t.sendURL = target.String()
		close(t.ready)
	}
}

// Send 通过 POST 发送消息；响应经 SSE 流返回
func (t *SSETransport) Send(ctx context.Context, msg *MCPMessage) error {
	t.mu.Lock()
	sendURL := t.sendURL
	t.mu.Unlock()
	if sendURL == "" {
		return fmt.Errorf("SSE send: not connected")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("SSE send: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Receive 从 SSE 事件通道接收消息
func (t *SSETransport) Receive(ctx context.Context) (*MCPMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-t.eventChan:
		if !ok {
			return nil, ErrTransportClosed
		}
		return msg, nil
	}
}

// Close 关闭 SSE 传输
func (t *SSETransport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
