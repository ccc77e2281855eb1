package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MCP (Model Context Protocol) 消息与工具定义
// 仅实现工具相关能力：initialize / ping / tools/* / logging/setLevel

// MCPVersion MCP 协议版本
const MCPVersion = "2024-11-05"

// ToolDefinition MCP 工具定义
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"` // JSON Schema
}

// Validate 验证工具定义
func (t *ToolDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	if t.InputSchema == nil {
		return fmt.Errorf("tool input schema is required")
	}
	return nil
}

// ServerInfo 服务器信息
type ServerInfo struct {
	Name            string             `json:"name"`
	Version         string             `json:"version"`
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

// ServerCapabilities 服务器能力
type ServerCapabilities struct {
	Tools   bool `json:"tools"`
	Logging bool `json:"logging"`
}

// Content tools/call 结果中的内容块
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult tools/call 的结果
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text 返回所有文本块拼接后的内容
func (r *ToolResult) Text() string {
	var s string
	for _, c := range r.Content {
		if c.Type == "text" {
			s += c.Text
		}
	}
	return s
}

// TextResult 将工具返回值编码为单个文本块；字符串原样返回，其它值编码为 JSON
func TextResult(v any) (*ToolResult, error) {
	switch t := v.(type) {
	case *ToolResult:
		return t, nil
	case string:
		return &ToolResult{Content: []Content{{Type: "text", Text: t}}}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &ToolResult{Content: []Content{{Type: "text", Text: string(data)}}}, nil
}

// MCPMessage MCP 消息（JSON-RPC 2.0）
type MCPMessage struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Result  any            `json:"result,omitempty"`
	Error   *MCPError      `json:"error,omitempty"`
}

// IsNotification 没有 ID 的请求是通知，不需要响应
func (m *MCPMessage) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// IsResponse 带 result 或 error 的消息是响应
func (m *MCPMessage) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// MarshalJSON 始终写出 jsonrpc 版本
func (m *MCPMessage) MarshalJSON() ([]byte, error) {
	type alias MCPMessage
	out := (*alias)(m)
	if out.JSONRPC == "" {
		cp := *out
		cp.JSONRPC = "2.0"
		out = &cp
	}
	return json.Marshal(out)
}

// MCPError MCP 错误
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// 标准错误码
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603

	// ErrorCodeToolFailed 工具执行失败（服务端自定义区间）
	ErrorCodeToolFailed = -32000
)

// CodedError 可以自带 JSON-RPC 错误码与附加数据的错误
type CodedError interface {
	error
	RPCCode() int
}

// InvalidParamsError 工具参数错误
type InvalidParamsError struct {
	Message string
}

func (e *InvalidParamsError) Error() string { return e.Message }

// RPCCode 实现 CodedError
func (e *InvalidParamsError) RPCCode() int { return ErrorCodeInvalidParams }

// InvalidParams 构造参数错误
func InvalidParams(format string, args ...any) error {
	return &InvalidParamsError{Message: fmt.Sprintf(format, args...)}
}

// toMCPError 将工具错误映射为 JSON-RPC 错误
func toMCPError(err error) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	code := ErrorCodeToolFailed
	var coded CodedError
	if errors.As(err, &coded) {
		code = coded.RPCCode()
	}
	out := &MCPError{Code: code, Message: err.Error()}
	var withData interface{ RPCData() any }
	if errors.As(err, &withData) {
		out.Data = withData.RPCData()
	}
	return out
}

// NewMCPRequest 创建 MCP 请求
func NewMCPRequest(id any, method string, params map[string]any) *MCPMessage {
	return &MCPMessage{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewMCPResponse 创建 MCP 响应
func NewMCPResponse(id any, result any) *MCPMessage {
	return &MCPMessage{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// NewMCPError 创建 MCP 错误响应
func NewMCPError(id any, code int, message string, data any) *MCPMessage {
	return &MCPMessage{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
