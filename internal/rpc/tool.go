package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolHandler serves one tools/call invocation. Returning a *jsonrpc.Error
// surfaces its code to the caller; any other error becomes CodeInternalError.
type ToolHandler func(ctx context.Context, req *CallRequest) (*mcp.CallToolResult, error)

// Tool couples an advertised tool descriptor with its handler.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     ToolHandler

	resolved   *jsonschema.Resolved
	descriptor *mcp.Tool
}

// CallRequest is a decoded tools/call request.
type CallRequest struct {
	ID        jsonrpc.ID
	Name      string
	Arguments json.RawMessage
	// Params is the complete params object, for handlers that accept
	// input outside of arguments.
	Params json.RawMessage

	tool *Tool
}

// Bind validates the call arguments against the tool's input schema and
// decodes them into v. Failures are reported as CodeInvalidParams.
func (r *CallRequest) Bind(v any) error {
	args := r.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	if r.tool != nil && r.tool.resolved != nil {
		var instance any
		if err := json.Unmarshal(args, &instance); err != nil {
			return NewError(CodeInvalidParams, "invalid arguments: %v", err)
		}
		if err := r.tool.resolved.Validate(instance); err != nil {
			return NewError(CodeInvalidParams, "invalid arguments: %v", err)
		}
	}

	if err := json.Unmarshal(args, v); err != nil {
		return NewError(CodeInvalidParams, "invalid arguments: %v", err)
	}
	return nil
}

// TextResult wraps text as a successful tool result.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (t *Tool) prepare() error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}

	schema := t.InputSchema
	if schema == nil {
		schema = &jsonschema.Schema{Type: "object"}
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("tool %q: schema.Resolve failed: %w", t.Name, err)
	}

	t.resolved = resolved
	t.descriptor = &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
	return nil
}
