package api

import "github.com/isdmx/cellbox/model"

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges an operation without a result
type MessageResponse struct {
	Message string `json:"message"`
}

// ListNotebooksResponse is returned by GET /:user_id
type ListNotebooksResponse struct {
	Notebooks []model.Summary `json:"notebooks"`
}

// CreateNotebookRequest is the body of POST /:user_id/create_notebook
type CreateNotebookRequest struct {
	Name string `json:"name"`
}

// CreateNotebookResponse is returned by POST /:user_id/create_notebook
type CreateNotebookResponse struct {
	NotebookID string `json:"notebookId"`
	Name       string `json:"name"`
}

// DeleteNotebookRequest is the body of DELETE /:user_id/delete_notebook
type DeleteNotebookRequest struct {
	NotebookID string `json:"notebookId"`
}

// GetNotebookResponse is returned by GET /:user_id/:notebook_id
type GetNotebookResponse struct {
	Cells []model.Cell `json:"cells"`
}

// ExecuteRequest is the body of POST /:user_id/:notebook_id/execute
type ExecuteRequest struct {
	Code string `json:"code"`
}

// SaveMarkdownRequest is the body of POST /:user_id/:notebook_id/save_markdown
type SaveMarkdownRequest struct {
	Content string `json:"content"`
}

// DeleteCellRequest is the body of DELETE /:user_id/:notebook_id/delete_cell
type DeleteCellRequest struct {
	CellID string `json:"cell_id"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Response messages
const (
	MessageMarkdownSaved   = "Markdown cell saved successfully."
	MessageCellDeleted     = "Cell deleted successfully."
	MessageNotebookDeleted = "Notebook deleted successfully."
)
