package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHTTPServer(t *testing.T) (*httptest.Server, *MCPHandler) {
	t.Helper()
	handler := NewMCPHandler(newTestServer(t), zap.NewNop())
	mux := http.NewServeMux()
	mux.Handle("/mcp/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, handler
}

func postMessage(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMCPHandler_Message(t *testing.T) {
	h := NewMCPHandler(newTestServer(t), nil)

	t.Run("request gets inline response", func(t *testing.T) {
		rec := postMessage(t, h, "/mcp/message", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp struct {
			ID     float64 `json:"id"`
			Result struct {
				Tools []ToolDefinition `json:"tools"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(1), resp.ID)
		require.Len(t, resp.Result.Tools, 1)
		assert.Equal(t, "echo", resp.Result.Tools[0].Name)
	})

	t.Run("notification is accepted", func(t *testing.T) {
		rec := postMessage(t, h, "/mcp/message", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := postMessage(t, h, "/mcp/message", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":-32700`)
	})

	t.Run("unknown sse client", func(t *testing.T) {
		rec := postMessage(t, h, "/mcp/message?clientId=nope", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp/message", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("unknown path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp/other", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMCPHandler_SSERoundTrip(t *testing.T) {
	srv, handler := newTestHTTPServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport := NewSSETransport(srv.URL+"/mcp", nil)
	require.NoError(t, transport.Connect(ctx))
	client := NewMCPClient(transport, nil)
	defer client.Close()

	assert.Eventually(t, func() bool { return handler.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	_, err := client.Initialize(ctx, "sse-test")
	require.NoError(t, err)

	result, err := client.CallTool(ctx, "echo", map[string]any{"request": "via sse"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"request":"via sse"}`, result.Text())
}

func TestSSETransport_SendBeforeConnect(t *testing.T) {
	tr := NewSSETransport("http://127.0.0.1:1/mcp", nil)
	assert.Error(t, tr.Send(context.Background(), NewMCPRequest(1, "ping", nil)))
}

func TestMCPHandler_WebSocketRoundTrip(t *testing.T) {
	srv, _ := newTestHTTPServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := DefaultWSTransportConfig()
	cfg.HeartbeatInterval = 0
	cfg.MaxReconnects = 0

	var states []WSState
	transport := NewWebSocketTransportWithConfig("ws"+strings.TrimPrefix(srv.URL, "http")+"/mcp/ws", cfg, nil)
	transport.OnStateChange(func(s WSState) { states = append(states, s) })

	require.NoError(t, transport.Connect(ctx))
	assert.True(t, transport.IsConnected())

	client := NewMCPClient(transport, nil)
	_, err := client.Initialize(ctx, "ws-test")
	require.NoError(t, err)

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)

	result, err := client.CallTool(ctx, "echo", map[string]any{"request": "via ws"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"request":"via ws"}`, result.Text())

	_ = client.Close()
	assert.Equal(t, WSStateClosed, transport.State())
	assert.Equal(t, []WSState{WSStateConnecting, WSStateConnected, WSStateClosed}, states)

	assert.ErrorIs(t, transport.Send(ctx, NewMCPRequest(9, "ping", nil)), ErrTransportClosed)
}

func TestWebSocketTransport_ConnectFailure(t *testing.T) {
	tr := NewWebSocketTransport("ws://127.0.0.1:1/mcp/ws", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := tr.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, WSStateDisconnected, tr.State())
	assert.False(t, tr.IsConnected())
}

func TestDefaultWSTransportConfig(t *testing.T) {
	cfg := DefaultWSTransportConfig()
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5, cfg.MaxReconnects)
	assert.Equal(t, []string{Subprotocol}, cfg.Subprotocols)
}
