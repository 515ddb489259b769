// Package mcp exposes the query engine as an MCP server speaking JSON-RPC
// 2.0 over stdio. Logs go to stderr; stdout carries protocol messages only.
package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	devminderrors "devmind/internal/errors"
	"devmind/internal/logging"
	"devmind/internal/query"
)

// protocolVersion is the MCP revision this server implements.
const protocolVersion = "2024-11-05"

// ToolHandler handles one tool call and returns a JSON-serializable result.
type ToolHandler func(params map[string]interface{}) (interface{}, error)

// Server serves MCP requests over stdio against one query engine.
type Server struct {
	stdin   io.Reader
	stdout  io.Writer
	scanner *bufio.Scanner
	logger  *logging.Logger
	version string
	engine  *query.Engine
	tools   map[string]ToolHandler
}

// NewServer creates an MCP server for the given engine.
func NewServer(version string, engine *query.Engine, logger *logging.Logger) *Server {
	s := &Server{
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		logger:  logger,
		version: version,
		engine:  engine,
		tools:   make(map[string]ToolHandler),
	}
	s.registerTools()
	return s
}

// SetStdin sets the input stream (for testing)
func (s *Server) SetStdin(r io.Reader) {
	s.stdin = r
	s.scanner = nil
}

// SetStdout sets the output stream (for testing)
func (s *Server) SetStdout(w io.Writer) {
	s.stdout = w
}

// Start runs the message loop until stdin closes.
func (s *Server) Start() error {
	s.logger.Info("MCP server starting", map[string]interface{}{
		"version": s.version,
	})

	for {
		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("MCP server shutting down (EOF)", nil)
				return nil
			}
			s.logger.Error("Error reading message", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		response := s.handleMessage(msg)
		if response == nil {
			continue // notifications don't generate responses
		}
		if err := s.writeMessage(response); err != nil {
			s.logger.Error("Error writing response", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// handleMessage processes one incoming message and returns a response, or
// nil when none is required.
func (s *Server) handleMessage(msg *MCPMessage) *MCPMessage {
	if msg.IsRequest() {
		return s.handleRequest(msg)
	}
	if msg.IsNotification() {
		s.handleNotification(msg)
		return nil
	}
	return NewErrorMessage(msg.Id, InvalidRequest, "Invalid message: not a request or notification", nil)
}

func (s *Server) handleRequest(msg *MCPMessage) *MCPMessage {
	s.logger.Debug("Handling request", map[string]interface{}{
		"method": msg.Method,
		"id":     msg.Id,
	})

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "tools/list":
		return NewResultMessage(msg.Id, map[string]interface{}{
			"tools": s.toolDefinitions(),
		})
	case "tools/call":
		return s.handleCallTool(msg)
	default:
		return NewErrorMessage(msg.Id, MethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method), nil)
	}
}

func (s *Server) handleNotification(msg *MCPMessage) {
	switch msg.Method {
	case "notifications/initialized":
		s.logger.Info("Client initialized", nil)
	default:
		s.logger.Debug("Unknown notification", map[string]interface{}{
			"method": msg.Method,
		})
	}
}

func (s *Server) handleInitialize(msg *MCPMessage) *MCPMessage {
	return NewResultMessage(msg.Id, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "devmind",
			"version": s.version,
		},
	})
}

// callToolParams is the expected shape of tools/call parameters.
type callToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (s *Server) handleCallTool(msg *MCPMessage) *MCPMessage {
	raw, err := json.Marshal(msg.Params)
	if err != nil {
		return NewErrorMessage(msg.Id, InvalidParams, "Invalid tool call parameters", nil)
	}
	var params callToolParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return NewErrorMessage(msg.Id, InvalidParams, "Invalid tool call parameters", nil)
	}

	handler, ok := s.tools[params.Name]
	if !ok {
		return NewErrorMessage(msg.Id, MethodNotFound, fmt.Sprintf("Unknown tool: %s", params.Name), nil)
	}

	result, err := handler(params.Arguments)
	if err != nil {
		code := InternalError
		if devminderrors.HasCode(err, devminderrors.InvalidArgument) {
			code = InvalidParams
		}
		s.logger.Warn("Tool call failed", map[string]interface{}{
			"tool":  params.Name,
			"error": err.Error(),
		})
		return NewErrorMessage(msg.Id, code, err.Error(), map[string]interface{}{
			"errorCode": string(devminderrors.CodeOf(err)),
		})
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return NewErrorMessage(msg.Id, InternalError, "Failed to serialize tool result", nil)
	}

	return NewResultMessage(msg.Id, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(text)},
		},
	})
}
