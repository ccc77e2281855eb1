package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxMessageBytes 单个 POST 消息上限
const maxMessageBytes = 4 << 20

// sseKeepAlive SSE 注释心跳间隔
const sseKeepAlive = 25 * time.Second

// MCPHandler HTTP 处理器，将 MCP 服务器暴露为 HTTP 端点：
//
//	GET  <prefix>/sse      SSE 事件流，首个事件告知消息 endpoint
//	POST <prefix>/message  JSON-RPC 消息；带 clientId 时响应经 SSE 推送
//	GET  <prefix>/ws       WebSocket 传输
type MCPHandler struct {
	server *DefaultMCPServer
	logger *zap.Logger

	// Origin 校验；为空时只接受同源 WebSocket 连接
	originPatterns []string

	// SSE 客户端管理
	sseClients   map[string]chan []byte
	sseClientsMu sync.RWMutex
}

// NewMCPHandler 创建 MCP HTTP 处理器
func NewMCPHandler(server *DefaultMCPServer, logger *zap.Logger, originPatterns ...string) *MCPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCPHandler{
		server:         server,
		logger:         logger.With(zap.String("component", "mcp_http")),
		originPatterns: originPatterns,
		sseClients:     make(map[string]chan []byte),
	}
}

// ServeHTTP 实现 http.Handler；按路径后缀路由，可挂载在任意前缀下
func (h *MCPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/sse"):
		h.handleSSE(w, r)
	case strings.HasSuffix(r.URL.Path, "/message"):
		h.handleMessage(w, r)
	case strings.HasSuffix(r.URL.Path, "/ws"):
		h.handleWebSocket(w, r)
	default:
		http.NotFound(w, r)
	}
}

// ClientCount 当前 SSE 客户端数
func (h *MCPHandler) ClientCount() int {
	h.sseClientsMu.RLock()
	defer h.sseClientsMu.RUnlock()
	return len(h.sseClients)
}

// handleSSE 处理 SSE 连接
func (h *MCPHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	// 长连接不受服务器 WriteTimeout 限制
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientID := uuid.NewString()
	ch := make(chan []byte, 100)

	h.sseClientsMu.Lock()
	h.sseClients[clientID] = ch
	h.sseClientsMu.Unlock()

	defer func() {
		h.sseClientsMu.Lock()
		delete(h.sseClients, clientID)
		h.sseClientsMu.Unlock()
	}()

	h.logger.Debug("SSE client connected", zap.String("client_id", clientID))

	// 发送 endpoint 事件（告知客户端 POST 地址）
	endpoint := strings.TrimSuffix(r.URL.Path, "/sse") + "/message?clientId=" + clientID
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("SSE client disconnected", zap.String("client_id", clientID))
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case data := <-ch:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleMessage 处理 JSON-RPC 消息
func (h *MCPHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID != "" && !h.hasClient(clientID) {
		http.Error(w, "unknown client", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes+1))
	if err != nil || len(body) > maxMessageBytes {
		writeJSON(w, http.StatusBadRequest, NewMCPError(nil, ErrorCodeParseError, "parse error", nil))
		return
	}

	msg, err := decodeMessage(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, NewMCPError(nil, ErrorCodeParseError, "parse error", nil))
		return
	}

	response := h.server.HandleMessage(r.Context(), msg)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// SSE 客户端：响应经事件流推送
	if clientID != "" {
		if err := h.pushToSSEClient(clientID, response); err != nil {
			h.logger.Warn("SSE push failed", zap.String("client_id", clientID), zap.Error(err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// handleWebSocket 处理 WebSocket 连接，每个连接运行一个消息循环
func (h *MCPHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}

	transport := newConnTransport(conn)
	defer transport.Close()

	err = h.server.Serve(r.Context(), transport)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("websocket session ended", zap.Error(err))
	}
}

func (h *MCPHandler) hasClient(clientID string) bool {
	h.sseClientsMu.RLock()
	defer h.sseClientsMu.RUnlock()
	_, ok := h.sseClients[clientID]
	return ok
}

// pushToSSEClient 推送消息到 SSE 客户端
func (h *MCPHandler) pushToSSEClient(clientID string, msg *MCPMessage) error {
	h.sseClientsMu.RLock()
	ch, exists := h.sseClients[clientID]
	h.sseClientsMu.RUnlock()

	if !exists {
		return fmt.Errorf("client %s disconnected", clientID)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case ch <- data:
		return nil
	default:
		return fmt.Errorf("client %s channel full", clientID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
