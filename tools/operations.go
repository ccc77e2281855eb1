package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/intentflow/protocol/mcp"
	"github.com/BaSui01/intentflow/schema"
)

// GeneratedTool 由契约操作生成的合成工具
type GeneratedTool struct {
	Definition *mcp.ToolDefinition
	Operation  schema.OperationRef
}

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateOperationTools 为每个操作生成 build_<operation> 工具。
// 名称取 operationId，缺省时为 <method>_<path>；与 reserved 或彼此冲突时追加序号。
func GenerateOperationTools(ops []schema.Operation, reserved ...string) []GeneratedTool {
	used := map[string]bool{ExecuteToolName: true, ListOperationsName: true}
	for _, r := range reserved {
		used[r] = true
	}

	tools := make([]GeneratedTool, 0, len(ops))
	for _, op := range ops {
		name := "build_" + operationToolName(op)
		for i := 2; used[name]; i++ {
			name = fmt.Sprintf("build_%s_%d", operationToolName(op), i)
		}
		used[name] = true

		tools = append(tools, GeneratedTool{
			Definition: operationToolDefinition(name, op),
			Operation:  op.OperationRef,
		})
	}
	return tools
}

func operationToolName(op schema.Operation) string {
	base := op.OperationID
	if base == "" {
		base = op.Method + "_" + sanitizePath(op.Path)
	}
	base = nonIdent.ReplaceAllString(strings.ToLower(camelToSnake(base)), "_")
	return strings.Trim(base, "_")
}

func operationToolDefinition(name string, op schema.Operation) *mcp.ToolDefinition {
	description := op.Summary
	if description == "" {
		description = op.OperationRef.String()
	}
	description = fmt.Sprintf("%s. Builds the %s request body from free-form text", description, op.OperationRef)
	if len(op.Required) > 0 {
		description += "; required fields: " + strings.Join(op.Required, ", ")
	}

	return &mcp.ToolDefinition{
		Name:        name,
		Description: description + ".",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"request": map[string]any{"type": "string", "description": "Free-form request text"},
			},
			"required": []string{"request"},
		},
	}
}

func sanitizePath(path string) string {
	path = strings.ReplaceAll(path, "/", "_")
	path = strings.ReplaceAll(path, "{", "")
	path = strings.ReplaceAll(path, "}", "")
	return strings.Trim(path, "_")
}

// camelToSnake createSession -> create_Session
func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := s[i-1]
			if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
