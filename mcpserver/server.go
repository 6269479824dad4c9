package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/cellbox/config"
	"github.com/isdmx/cellbox/figure"
	"github.com/isdmx/cellbox/notebook"
	"github.com/isdmx/cellbox/store"
)

// Server identity reported to MCP clients
const (
	ServerName    = "cellbox"
	ServerVersion = "1.0.0"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	service   *notebook.Service
	validate  *validator.Validate
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, service *notebook.Service) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger.Named("mcp"),
		service:  service,
		validate: newValidator(),
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("server.mcp_path", cfg.Server.MCPPath),
		zap.Int("engine.timeout_sec", cfg.Engine.TimeoutSec),
		zap.Uint64("engine.max_steps", cfg.Engine.MaxSteps),
		zap.String("session.strategy", cfg.Session.Strategy),
		zap.String("store.backend", cfg.Store.Backend),
	)

	s.mcpServer = server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false))
	s.registerTools()

	return s, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report argument names as clients send them
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func userIDOption() mcp.ToolOption {
	return mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the notebooks"))
}

func notebookIDOption() mcp.ToolOption {
	return mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook identifier"))
}

// registerTools registers one tool per notebook operation
func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List a user's notebooks in creation order"),
		userIDOption(),
	), s.handleListNotebooks)

	s.mcpServer.AddTool(mcp.NewTool("create_notebook",
		mcp.WithDescription("Create an empty notebook with its own namespace"),
		userIDOption(),
		mcp.WithString("name", mcp.Description("Notebook name, unique per user; generated when omitted")),
	), s.handleCreateNotebook)

	s.mcpServer.AddTool(mcp.NewTool("get_notebook",
		mcp.WithDescription("Return the notebook's cells with their recorded outputs"),
		userIDOption(),
		notebookIDOption(),
	), s.handleGetNotebook)

	s.mcpServer.AddTool(mcp.NewTool("execute_cell",
		mcp.WithDescription("Execute Starlark code against the notebook's namespace and record it as a code cell. "+
			"Bindings persist across cells; print output, errors and plt figures are returned."),
		userIDOption(),
		notebookIDOption(),
		mcp.WithString("code", mcp.Required(), mcp.Description("Starlark source code")),
	), s.handleExecuteCell)

	s.mcpServer.AddTool(mcp.NewTool("save_markdown",
		mcp.WithDescription("Append a markdown cell; it is never executed"),
		userIDOption(),
		notebookIDOption(),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown text")),
	), s.handleSaveMarkdown)

	s.mcpServer.AddTool(mcp.NewTool("delete_cell",
		mcp.WithDescription("Delete a cell. Bindings it created stay in the namespace."),
		userIDOption(),
		notebookIDOption(),
		mcp.WithString("cell_id", mcp.Required(), mcp.Description("Cell identifier")),
	), s.handleDeleteCell)

	s.mcpServer.AddTool(mcp.NewTool("delete_notebook",
		mcp.WithDescription("Delete a notebook together with its namespace"),
		userIDOption(),
		notebookIDOption(),
	), s.handleDeleteNotebook)

	s.mcpServer.AddTool(mcp.NewTool("export_notebook",
		mcp.WithDescription("Export the notebook as an nbformat 4.5 (.ipynb) document"),
		userIDOption(),
		notebookIDOption(),
	), s.handleExportNotebook)
}

type userArgs struct {
	UserID string `json:"user_id" validate:"required"`
}

type notebookArgs struct {
	UserID     string `json:"user_id" validate:"required"`
	NotebookID string `json:"notebook_id" validate:"required"`
}

type createArgs struct {
	UserID string `json:"user_id" validate:"required"`
	Name   string `json:"name" validate:"omitempty,max=256"`
}

type executeArgs struct {
	notebookArgs
	Code string `json:"code" validate:"required"`
}

type markdownArgs struct {
	notebookArgs
	Content string `json:"content" validate:"required"`
}

type deleteCellArgs struct {
	notebookArgs
	CellID string `json:"cell_id" validate:"required"`
}

// handleListNotebooks handles the list_notebooks tool
func (s *MCPServer) handleListNotebooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	if res := s.check(userArgs{UserID: userID}); res != nil {
		return res, nil
	}

	summaries, err := s.service.ListNotebooks(ctx, userID)
	if err != nil {
		return s.toolError("list_notebooks", err), nil
	}
	return s.jsonResult(map[string]any{"notebooks": summaries})
}

// handleCreateNotebook handles the create_notebook tool
func (s *MCPServer) handleCreateNotebook(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := createArgs{
		UserID: request.GetString("user_id", ""),
		Name:   request.GetString("name", ""),
	}
	if res := s.check(args); res != nil {
		return res, nil
	}

	nb, err := s.service.CreateNotebook(ctx, args.UserID, args.Name)
	if err != nil {
		return s.toolError("create_notebook", err), nil
	}
	return s.jsonResult(map[string]string{"notebookId": nb.NotebookID, "name": nb.Name})
}

// handleGetNotebook handles the get_notebook tool
func (s *MCPServer) handleGetNotebook(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := notebookArgsFrom(request)
	if res := s.check(args); res != nil {
		return res, nil
	}

	nb, err := s.service.GetNotebook(ctx, args.UserID, args.NotebookID)
	if err != nil {
		return s.toolError("get_notebook", err), nil
	}
	return s.jsonResult(map[string]any{"cells": nb.Cells})
}

// handleExecuteCell handles the execute_cell tool. Figures are attached as
// image content after the JSON result.
func (s *MCPServer) handleExecuteCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := executeArgs{
		notebookArgs: notebookArgsFrom(request),
		Code:         request.GetString("code", ""),
	}
	if res := s.check(args); res != nil {
		return res, nil
	}

	s.logger.Info("cell execution requested",
		zap.String("user_id", args.UserID),
		zap.String("notebook_id", args.NotebookID),
		zap.Int("code_len", len(args.Code)))

	result, err := s.service.Execute(ctx, args.UserID, args.NotebookID, args.Code)
	if err != nil {
		return s.toolError("execute_cell", err), nil
	}

	res, err := s.jsonResult(result)
	if err != nil {
		return nil, err
	}
	for _, uri := range result.Images {
		res.Content = append(res.Content, mcp.NewImageContent(strings.TrimPrefix(uri, figure.DataURIPrefix), "image/png"))
	}
	return res, nil
}

// handleSaveMarkdown handles the save_markdown tool
func (s *MCPServer) handleSaveMarkdown(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := markdownArgs{
		notebookArgs: notebookArgsFrom(request),
		Content:      request.GetString("content", ""),
	}
	if res := s.check(args); res != nil {
		return res, nil
	}

	cell, err := s.service.SaveMarkdown(ctx, args.UserID, args.NotebookID, args.Content)
	if err != nil {
		return s.toolError("save_markdown", err), nil
	}
	return s.jsonResult(map[string]string{"message": "Markdown cell saved successfully.", "cell_id": cell.CellID})
}

// handleDeleteCell handles the delete_cell tool
func (s *MCPServer) handleDeleteCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := deleteCellArgs{
		notebookArgs: notebookArgsFrom(request),
		CellID:       request.GetString("cell_id", ""),
	}
	if res := s.check(args); res != nil {
		return res, nil
	}

	if err := s.service.DeleteCell(ctx, args.UserID, args.NotebookID, args.CellID); err != nil {
		return s.toolError("delete_cell", err), nil
	}
	return s.jsonResult(map[string]string{"message": "Cell deleted successfully."})
}

// handleDeleteNotebook handles the delete_notebook tool
func (s *MCPServer) handleDeleteNotebook(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := notebookArgsFrom(request)
	if res := s.check(args); res != nil {
		return res, nil
	}

	if err := s.service.DeleteNotebook(ctx, args.UserID, args.NotebookID); err != nil {
		return s.toolError("delete_notebook", err), nil
	}
	return s.jsonResult(map[string]string{"message": "Notebook deleted successfully."})
}

// handleExportNotebook handles the export_notebook tool
func (s *MCPServer) handleExportNotebook(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := notebookArgsFrom(request)
	if res := s.check(args); res != nil {
		return res, nil
	}

	_, data, err := s.service.Export(ctx, args.UserID, args.NotebookID)
	if err != nil {
		return s.toolError("export_notebook", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func notebookArgsFrom(request mcp.CallToolRequest) notebookArgs {
	return notebookArgs{
		UserID:     request.GetString("user_id", ""),
		NotebookID: request.GetString("notebook_id", ""),
	}
}

// check validates tool arguments and returns an error result when they are
// invalid
func (s *MCPServer) check(args any) *mcp.CallToolResult {
	err := s.validate.Struct(args)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err))
	}

	problems := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		case "max":
			problems = append(problems, fe.Field()+" must be at most "+fe.Param()+" characters")
		default:
			problems = append(problems, fe.Field()+" is invalid")
		}
	}
	return mcp.NewToolResultError("invalid arguments: " + strings.Join(problems, "; "))
}

// toolError reports a service failure to the client. Unexpected errors are
// logged and replaced by a generic message.
func (s *MCPServer) toolError(tool string, err error) *mcp.CallToolResult {
	if notebook.IsValidation(err) || errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		return mcp.NewToolResultError(err.Error())
	}
	s.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
	return mcp.NewToolResultError("internal error")
}

func (s *MCPServer) jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// HTTPHandler returns the streamable HTTP transport for mounting at
// server.mcp_path
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer, server.WithEndpointPath(s.config.Server.MCPPath))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
