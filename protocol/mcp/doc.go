// Package mcp 实现 Model Context Protocol (MCP) 的工具子集。
//
// DefaultMCPServer 通过 JSON-RPC 2.0 暴露已注册的工具
// （initialize、ping、tools/list、tools/call、logging/setLevel），
// 工具失败映射为带可归因消息的 JSON-RPC 错误。
// 传输层包括 stdio（按行 JSON 或 Content-Length 帧）、
// HTTP+SSE 以及基于 github.com/coder/websocket 的 WebSocket，
// 后者的客户端支持心跳与指数退避重连。
package mcp
