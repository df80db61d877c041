package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// ToolRegistry is the subset of toolsurface.Registry this server needs.
// Defined here rather than imported to keep protocol/mcp free of a
// dependency on the orchestrator-wired tool implementations.
type ToolRegistry interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error)
}

// Server drives the line-delimited stdio JSON-RPC loop (spec.md §6),
// dispatching initialize/initialized/tools/list/tools/call/ping exactly
// as the original source's AgentMcpServer.handle_message does.
type Server struct {
	registry    ToolRegistry
	serverInfo  ServerInfo
	initialized bool
	logger      *zap.Logger
}

// NewServer builds a Server. A nil logger falls back to zap.NewNop().
func NewServer(registry ToolRegistry, name, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry:   registry,
		serverInfo: ServerInfo{Name: name, Version: version},
		logger:     logger,
	}
}

// RunStdio reads one JSON-RPC frame per line from r and writes one
// response per line to w, until r is exhausted or ctx is canceled.
// Output is newline-delimited JSON, matching spec.md §6's framing.
func (s *Server) RunStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("starting mcp server on stdio")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		resp := s.handleMessage(ctx, line)
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("marshal response failed", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) handleMessage(ctx context.Context, message string) *Response {
	var req Request
	if err := json.Unmarshal([]byte(message), &req); err != nil {
		return ErrorResponse(nil, CodeParseError, err.Error())
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return ErrorResponse(req.ID, CodeInvalidRequest, "unsupported jsonrpc version")
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(&req)
	case "initialized":
		return s.handleInitialized(&req)
	case "tools/list":
		return s.handleToolsList(&req)
	case "tools/call":
		return s.handleToolsCall(ctx, &req)
	case "ping":
		return Success(req.ID, map[string]any{})
	default:
		return ErrorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	s.logger.Info("initializing mcp server")
	return Success(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolCapabilities{ListChanged: false}},
		ServerInfo:      s.serverInfo,
	})
}

func (s *Server) handleInitialized(req *Request) *Response {
	s.initialized = true
	s.logger.Info("mcp server initialized")
	return Success(req.ID, map[string]any{})
}

func (s *Server) handleToolsList(req *Request) *Response {
	return Success(req.ID, map[string]any{"tools": s.registry.Definitions()})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params toolsCallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return ErrorResponse(req.ID, CodeInvalidParams, err.Error())
		}
	}
	if params.Name == "" {
		return ErrorResponse(req.ID, CodeInvalidParams, "missing tool name")
	}
	if params.Arguments == nil {
		params.Arguments = json.RawMessage("{}")
	}

	s.logger.Info("calling tool", zap.String("name", params.Name))
	result, err := s.registry.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Error("tool execution failed", zap.String("name", params.Name), zap.Error(err))
		return ErrorResponse(req.ID, CodeInternalError, err.Error())
	}
	return Success(req.ID, result)
}
