package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/cellbox/config"
	"github.com/isdmx/cellbox/namespace"
	"github.com/isdmx/cellbox/notebook"
	"github.com/isdmx/cellbox/sandbox"
	"github.com/isdmx/cellbox/store/memory"
)

func newTestServer(t *testing.T) *MCPServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := &config.Config{
		Server: config.ServerConfig{
			Transport: "stdio",
			HTTPPort:  8080,
			MCPPath:   "/mcp",
		},
		Engine: config.EngineConfig{TimeoutSec: 5},
		Session: config.SessionConfig{
			Strategy: config.StrategyDurable,
		},
		Store: config.StoreConfig{Backend: config.BackendMemory},
		Logging: config.LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
	}

	st := memory.New()
	executor := sandbox.NewFromConfig(logger, cfg)
	service := notebook.NewFromExecutor(logger, st, namespace.NewDurable(logger, st), executor)

	server, err := New(cfg, logger, service)
	require.NoError(t, err)
	return server
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args
	return request
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "first content is %T", result.Content[0])
	return text.Text
}

func TestNewMCPServer(t *testing.T) {
	server := newTestServer(t)

	assert.NotNil(t, server.service)
	assert.NotNil(t, server.GetMCPServer())
	assert.NotNil(t, server.HTTPHandler())
}

func TestNotebookTools(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)

	result, err := server.handleCreateNotebook(ctx, callTool("create_notebook", map[string]any{
		"user_id": "alice",
		"name":    "scratch",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	var created struct {
		NotebookID string `json:"notebookId"`
		Name       string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &created))
	assert.Equal(t, "scratch", created.Name)

	ids := map[string]any{"user_id": "alice", "notebook_id": created.NotebookID}
	with := func(extra map[string]any) map[string]any {
		out := map[string]any{}
		for k, v := range ids {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	for _, code := range []string{"x = 10", "y = x * 2"} {
		result, err = server.handleExecuteCell(ctx, callTool("execute_cell", with(map[string]any{"code": code})))
		require.NoError(t, err)
		require.False(t, result.IsError)
	}

	result, err = server.handleExecuteCell(ctx, callTool("execute_cell", with(map[string]any{"code": "print(y)"})))
	require.NoError(t, err)
	var executed sandbox.ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &executed))
	assert.Equal(t, "20\n", executed.Text)
	assert.Nil(t, executed.Error)
	assert.Len(t, result.Content, 1)

	result, err = server.handleExecuteCell(ctx, callTool("execute_cell", with(map[string]any{"code": "plt.plot([1, 2, 3])"})))
	require.NoError(t, err)
	require.Len(t, result.Content, 2)
	image, ok := result.Content[1].(mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", image.MIMEType)
	assert.NotContains(t, image.Data, "data:")

	result, err = server.handleSaveMarkdown(ctx, callTool("save_markdown", with(map[string]any{"content": "# notes"})))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = server.handleGetNotebook(ctx, callTool("get_notebook", ids))
	require.NoError(t, err)
	var cells struct {
		Cells []struct {
			CellID   string `json:"cell_id"`
			CellType string `json:"cell_type"`
		} `json:"cells"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &cells))
	require.Len(t, cells.Cells, 5)
	assert.Equal(t, "markdown", cells.Cells[4].CellType)

	result, err = server.handleDeleteCell(ctx, callTool("delete_cell", with(map[string]any{"cell_id": cells.Cells[4].CellID})))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, err = server.handleExportNotebook(ctx, callTool("export_notebook", ids))
	require.NoError(t, err)
	assert.Contains(t, textOf(t, result), `"nbformat": 4`)

	result, err = server.handleListNotebooks(ctx, callTool("list_notebooks", map[string]any{"user_id": "alice"}))
	require.NoError(t, err)
	assert.Contains(t, textOf(t, result), created.NotebookID)

	result, err = server.handleDeleteNotebook(ctx, callTool("delete_notebook", ids))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, err = server.handleGetNotebook(ctx, callTool("get_notebook", ids))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "not found")
}

func TestToolArgumentValidation(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)

	result, err := server.handleExecuteCell(ctx, callTool("execute_cell", map[string]any{"user_id": "alice"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "notebook_id is required")
	assert.Contains(t, textOf(t, result), "code is required")

	result, err = server.handleListNotebooks(ctx, callTool("list_notebooks", nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "user_id is required")

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	result, err = server.handleCreateNotebook(ctx, callTool("create_notebook", map[string]any{
		"user_id": "alice",
		"name":    string(long),
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "name must be at most 256 characters")
}

func TestToolConflict(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	args := map[string]any{"user_id": "alice", "name": "dup"}

	result, err := server.handleCreateNotebook(ctx, callTool("create_notebook", args))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = server.handleCreateNotebook(ctx, callTool("create_notebook", args))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "already exists")
}

func TestExecuteTimeout(t *testing.T) {
	server := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := server.handleCreateNotebook(ctx, callTool("create_notebook", map[string]any{"user_id": "alice"}))
	require.NoError(t, err)
	var created struct {
		NotebookID string `json:"notebookId"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &created))

	result, err = server.handleExecuteCell(ctx, callTool("execute_cell", map[string]any{
		"user_id":     "alice",
		"notebook_id": created.NotebookID,
		"code":        "n = 0\nwhile True:\n    n += 1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var executed sandbox.ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &executed))
	assert.Contains(t, executed.ErrorMessage(), "timed out")
}
