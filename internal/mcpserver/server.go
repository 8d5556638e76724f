// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tasksync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tasksync/internal/apperr"
	"github.com/starford/tasksync/internal/index"
	"github.com/starford/tasksync/internal/syncservice"
)

const contractURI = "tasksync://task-format"

// Server wraps the MCP server with tasksync tools.
type Server struct {
	mcp *server.MCPServer
	svc *syncservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *syncservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"tasksync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List task notes known to the daemon with their sync state."),
		mcp.WithString("status", mcp.Enum("open", "closed"), mcp.Description("Optional task state filter")),
		mcp.WithString("query", mcp.Description("Optional title or path substring")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tasks (default 50)")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Read a task note, including its tags, page link and last sync outcome."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. tasks/report.md)")),
	), s.getTask)

	s.mcp.AddTool(mcp.NewTool("sync_task",
		mcp.WithDescription("Reconcile one task note with its Notion page. "+
			"Creates the page if the note is not linked yet. The note must follow the "+
			"task format described by get_task_contract."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.syncTask)

	s.mcp.AddTool(mcp.NewTool("sync_all",
		mcp.WithDescription("Reconcile every task note in the vault. Fails if a scan is already running."),
	), s.syncAll)

	s.mcp.AddTool(mcp.NewTool("get_task_contract",
		mcp.WithDescription("Returns the task note format the sync daemon understands. "+
			"Call this before writing or editing task notes."),
	), s.getTaskContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Task Note Format",
			mcp.WithResourceDescription("Front-matter conventions for notes synchronised with Notion."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.ListTasks(ctx, index.TaskFilter{
		Status: req.GetString("status", ""),
		Query:  req.GetString("query", ""),
		Limit:  req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"tasks": items, "total": total})
}

func (s *Server) getTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := s.svc.GetTask(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not a task note: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(task)
}

func (s *Server) syncTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.SyncNote(ctx, path)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		case errors.Is(err, apperr.ErrMalformedLink):
			return mcp.NewToolResultError(fmt.Sprintf("link in %s is not a Notion page URL; fix or remove it", path)), nil
		default:
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return jsonResult(res)
}

func (s *Server) syncAll(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.svc.SyncAll(context.WithoutCancel(ctx))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sum)
}

func (s *Server) getTaskContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TaskFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     TaskFormatContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
