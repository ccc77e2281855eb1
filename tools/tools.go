// Package tools 将分析器与下游执行器注册为 MCP 工具。
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/intentflow/analyzer"
	"github.com/BaSui01/intentflow/config"
	"github.com/BaSui01/intentflow/downstream"
	"github.com/BaSui01/intentflow/protocol/mcp"
	"github.com/BaSui01/intentflow/schema"
	"github.com/BaSui01/intentflow/synth"
	"github.com/BaSui01/intentflow/types"
)

// 固定工具名
const (
	DefaultBuildToolName = "build_slice_request"
	ExecuteToolName      = "execute_request"
	ListOperationsName   = "list_operations"
)

// Analyzer 由 *analyzer.Analyzer 实现
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (*synth.Result, error)
	Operations(ctx context.Context, source string) ([]schema.Operation, error)
	Defaults() analyzer.Defaults
}

// Executor 由 *downstream.Executor 实现
type Executor interface {
	Execute(ctx context.Context, req downstream.Request) *downstream.Result
}

// Registrar 由 *mcp.DefaultMCPServer 实现
type Registrar interface {
	RegisterTool(tool *mcp.ToolDefinition, handler mcp.ToolHandler) error
}

// Options 工具注册选项
type Options struct {
	// BuildToolName 合成工具名称，为空时使用 build_slice_request
	BuildToolName string
	// OperationTools 为默认契约的每个操作额外注册 build_<operation> 工具
	OperationTools bool
}

// OptionsFrom 从 MCP 配置读取选项
func OptionsFrom(cfg config.MCPConfig) Options {
	return Options{BuildToolName: cfg.ToolName, OperationTools: cfg.OperationTools}
}

// Register 注册全部工具。executor 为空时不注册 execute_request
func Register(ctx context.Context, reg Registrar, a Analyzer, exec Executor, opts Options, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mcp_tools"))

	name := strings.TrimSpace(opts.BuildToolName)
	if name == "" {
		name = DefaultBuildToolName
	}

	defaults := a.Defaults()
	if err := reg.RegisterTool(buildToolDefinition(name, defaults), buildHandler(a, "", "")); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	if err := reg.RegisterTool(listOperationsDefinition(), listOperationsHandler(a)); err != nil {
		return fmt.Errorf("register %s: %w", ListOperationsName, err)
	}
	if exec != nil {
		if err := reg.RegisterTool(executeToolDefinition(defaults), executeHandler(exec, defaults)); err != nil {
			return fmt.Errorf("register %s: %w", ExecuteToolName, err)
		}
	}

	if opts.OperationTools {
		ops, err := a.Operations(ctx, "")
		if err != nil {
			return fmt.Errorf("list operations for tool generation: %w", attribute(err))
		}
		for _, gen := range GenerateOperationTools(ops, name) {
			if err := reg.RegisterTool(gen.Definition, buildHandler(a, gen.Operation.Path, gen.Operation.Method)); err != nil {
				return fmt.Errorf("register %s: %w", gen.Definition.Name, err)
			}
		}
		logger.Info("operation tools registered", zap.Int("count", len(ops)))
	}

	return nil
}

// =============================================================================
// 🧰 工具定义
// =============================================================================

func buildToolDefinition(name string, d analyzer.Defaults) *mcp.ToolDefinition {
	return &mcp.ToolDefinition{
		Name: name,
		Description: fmt.Sprintf(
			"Analyze a natural-language request against the %s request body of %s and return "+
				"found parameters, missing required fields and a suggested payload.",
			schema.NewOperationRef(d.Path, d.Method), d.Source),
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"request": map[string]any{"type": "string", "description": "Free-form request text"},
				"path":    map[string]any{"type": "string", "description": "Operation path, default " + d.Path},
				"method":  map[string]any{"type": "string", "description": "HTTP method, default " + d.Method},
			},
			"required": []string{"request"},
		},
	}
}

func executeToolDefinition(d analyzer.Defaults) *mcp.ToolDefinition {
	return &mcp.ToolDefinition{
		Name:        ExecuteToolName,
		Description: "Send a JSON payload to the downstream service and return its decoded response.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"payload": map[string]any{"type": "object", "description": "Request body to send"},
				"path":    map[string]any{"type": "string", "description": "Operation path, default " + d.Path},
				"method":  map[string]any{"type": "string", "description": "HTTP method, default " + d.Method},
			},
			"required": []string{"payload"},
		},
	}
}

func listOperationsDefinition() *mcp.ToolDefinition {
	return &mcp.ToolDefinition{
		Name:        ListOperationsName,
		Description: "List the operations with a JSON request body declared by the contract.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source": map[string]any{"type": "string", "description": "Contract file or URL, default the configured contract"},
			},
		},
	}
}

// =============================================================================
// 🔧 处理函数
// =============================================================================

// buildHandler path/method 非空时固定操作，忽略参数中的 path/method
func buildHandler(a Analyzer, path, method string) mcp.ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		text, err := requiredString(args, "request")
		if err != nil {
			return nil, err
		}
		req := analyzer.Request{Text: text, Path: path, Method: method}
		if path == "" {
			if req.Path, err = optionalString(args, "path"); err != nil {
				return nil, err
			}
			if req.Method, err = optionalString(args, "method"); err != nil {
				return nil, err
			}
		}

		res, err := a.Analyze(ctx, req)
		if err != nil {
			return nil, attribute(err)
		}
		return res, nil
	}
}

func executeHandler(exec Executor, d analyzer.Defaults) mcp.ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		payload, ok := args["payload"]
		if !ok || payload == nil {
			return nil, mcp.InvalidParams("missing required argument: payload")
		}
		if _, isObject := payload.(map[string]any); !isObject {
			return nil, mcp.InvalidParams("payload must be an object")
		}
		path, err := optionalString(args, "path")
		if err != nil {
			return nil, err
		}
		method, err := optionalString(args, "method")
		if err != nil {
			return nil, err
		}
		if path == "" {
			path = d.Path
		}
		if method == "" {
			method = d.Method
		}

		res := exec.Execute(ctx, downstream.Request{Path: path, Method: method, Payload: payload})
		out, err := mcp.TextResult(res.Value())
		if err != nil {
			return nil, err
		}
		out.IsError = !res.OK()
		return out, nil
	}
}

func listOperationsHandler(a Analyzer) mcp.ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		source, err := optionalString(args, "source")
		if err != nil {
			return nil, err
		}
		if err := a.Defaults().CheckSource(source); err != nil {
			return nil, attribute(err)
		}
		ops, err := a.Operations(ctx, source)
		if err != nil {
			return nil, attribute(err)
		}
		return map[string]any{"operations": ops}, nil
	}
}

// =============================================================================
// 🔍 参数与错误
// =============================================================================

func requiredString(args map[string]any, key string) (string, error) {
	s, err := optionalString(args, key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", mcp.InvalidParams("missing required argument: %s", key)
	}
	return s, nil
}

func optionalString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", mcp.InvalidParams("argument %s must be a string", key)
	}
	return s, nil
}

// ToolError 带错误码的工具失败，消息标明失败阶段
type ToolError struct {
	Code    types.ErrorCode
	Message string
	Cause   error
}

func (e *ToolError) Error() string { return e.Message }

func (e *ToolError) Unwrap() error { return e.Cause }

// RPCData 作为 JSON-RPC error.data 返回
func (e *ToolError) RPCData() any { return map[string]any{"code": e.Code} }

// attribute 将分析错误包装为可归因的工具错误
func attribute(err error) error {
	var (
		loadErr *schema.SchemaLoadError
		resErr  *schema.SchemaResolutionError
		opErr   *schema.OperationNotFoundError
	)
	switch {
	case errors.As(err, &resErr):
		return &ToolError{Code: resErr.Code(), Message: "schema resolution failed: " + err.Error(), Cause: err}
	case errors.As(err, &opErr):
		return &ToolError{Code: opErr.Code(), Message: "operation not found: " + err.Error(), Cause: err}
	case errors.As(err, &loadErr):
		return &ToolError{Code: loadErr.Code(), Message: "schema load failed: " + err.Error(), Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ToolError{Code: types.ErrUpstreamTimeout, Message: "analysis timed out: " + err.Error(), Cause: err}
	case types.IsErrorCode(err, types.ErrInvalidRequest):
		return &ToolError{Code: types.ErrInvalidRequest, Message: "invalid request: " + err.Error(), Cause: err}
	}
	return &ToolError{Code: types.ErrInternalError, Message: "analysis failed: " + err.Error(), Cause: err}
}
