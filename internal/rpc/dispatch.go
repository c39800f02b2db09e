package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var gatedMethods = map[string]bool{
	methodListTools:     true,
	methodCallTool:      true,
	methodListPrompts:   true,
	methodListResources: true,
}

func (s *Server) dispatch(ctx context.Context, req *jsonrpc.Request) (any, error) {
	if req.Method == methodPing {
		return struct{}{}, nil
	}

	switch s.currentState() {
	case stateShuttingDown:
		return nil, NewError(CodeInternalError, "server is shutting down")
	case stateUninitialized:
		if req.Method == methodInitialize {
			return s.initialize(req.Params)
		}
		if gatedMethods[req.Method] {
			return nil, NewError(CodeNotInitialized, "server not initialized")
		}
		return nil, NewError(CodeMethodNotFound, "method not found: %s", req.Method)
	}

	switch req.Method {
	case methodInitialize:
		return s.initialize(req.Params)
	case methodListTools:
		return &mcp.ListToolsResult{Tools: s.tools}, nil
	case methodCallTool:
		return s.callTool(ctx, req)
	case methodListPrompts:
		return &mcp.ListPromptsResult{Prompts: []*mcp.Prompt{}}, nil
	case methodListResources:
		return &mcp.ListResourcesResult{Resources: []*mcp.Resource{}}, nil
	default:
		return nil, NewError(CodeMethodNotFound, "method not found: %s", req.Method)
	}
}

// initialize answers with the same identity on every call.
func (s *Server) initialize(params json.RawMessage) (*mcp.InitializeResult, error) {
	var p mcp.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, NewError(CodeInvalidParams, "invalid initialize params: %v", err)
		}
	}

	s.mu.Lock()
	first := s.state == stateUninitialized
	if first {
		s.state = stateReady
	}
	s.mu.Unlock()

	if first {
		client := "unknown"
		if p.ClientInfo != nil {
			client = p.ClientInfo.Name
		}
		s.logger.Info("session initialized", "client", client, "clientProtocol", p.ProtocolVersion)
	}

	return &mcp.InitializeResult{
		Capabilities:    &mcp.ServerCapabilities{Tools: &mcp.ToolCapabilities{}},
		Instructions:    s.instructions,
		ProtocolVersion: s.protocolVersion,
		ServerInfo:      s.impl,
	}, nil
}

func (s *Server) callTool(ctx context.Context, req *jsonrpc.Request) (*mcp.CallToolResult, error) {
	var p mcp.CallToolParamsRaw
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, NewError(CodeInvalidParams, "invalid tools/call params: %v", err)
	}

	tool, ok := s.toolsByName[p.Name]
	if !ok {
		return nil, NewError(CodeInvalidParams, "unknown tool: %q", p.Name)
	}

	res, err := tool.Handler(ctx, &CallRequest{
		ID:        req.ID,
		Name:      p.Name,
		Arguments: p.Arguments,
		Params:    req.Params,
		tool:      tool,
	})
	if err != nil {
		s.logger.Warn("tool call failed", "tool", p.Name, "code", ErrorCode(err), "error", err)
		var wireErr *jsonrpc.Error
		if !errors.As(err, &wireErr) {
			return nil, NewError(CodeInternalError, "%s failed: %v", p.Name, err)
		}
		return nil, err
	}
	if res == nil {
		res = &mcp.CallToolResult{Content: []mcp.Content{}}
	}
	return res, nil
}
