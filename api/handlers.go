package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/isdmx/cellbox/notebook"
)

// HealthChecker is implemented by stores that can report connectivity
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handlers serves the notebook REST API
type Handlers struct {
	service *notebook.Service
	logger  *zap.Logger
	health  HealthChecker
}

// NewHandlers creates the REST handlers
func NewHandlers(service *notebook.Service, logger *zap.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// WithHealthChecker makes /health report the checker's status
func (h *Handlers) WithHealthChecker(checker HealthChecker) *Handlers {
	h.health = checker
	return h
}

// HandleListNotebooks handles GET /:user_id
func (h *Handlers) HandleListNotebooks(c *gin.Context) {
	summaries, err := h.service.ListNotebooks(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ListNotebooksResponse{Notebooks: summaries})
}

// HandleCreateNotebook handles POST /:user_id/create_notebook. The body is
// optional.
func (h *Handlers) HandleCreateNotebook(c *gin.Context) {
	var req CreateNotebookRequest
	if !h.bind(c, &req) {
		return
	}

	nb, err := h.service.CreateNotebook(c.Request.Context(), c.Param("user_id"), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, CreateNotebookResponse{NotebookID: nb.NotebookID, Name: nb.Name})
}

// HandleGetNotebook handles GET /:user_id/:notebook_id
func (h *Handlers) HandleGetNotebook(c *gin.Context) {
	nb, err := h.service.GetNotebook(c.Request.Context(), c.Param("user_id"), c.Param("notebook_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GetNotebookResponse{Cells: nb.Cells})
}

// HandleExecute handles POST /:user_id/:notebook_id/execute. A failing
// snippet still answers 200 with the error inside the result; images is null
// when nothing was plotted.
func (h *Handlers) HandleExecute(c *gin.Context) {
	var req ExecuteRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.service.Execute(c.Request.Context(), c.Param("user_id"), c.Param("notebook_id"), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleSaveMarkdown handles POST /:user_id/:notebook_id/save_markdown
func (h *Handlers) HandleSaveMarkdown(c *gin.Context) {
	var req SaveMarkdownRequest
	if !h.bind(c, &req) {
		return
	}

	if _, err := h.service.SaveMarkdown(c.Request.Context(), c.Param("user_id"), c.Param("notebook_id"), req.Content); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: MessageMarkdownSaved})
}

// HandleDeleteCell handles DELETE /:user_id/:notebook_id/delete_cell
func (h *Handlers) HandleDeleteCell(c *gin.Context) {
	var req DeleteCellRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.service.DeleteCell(c.Request.Context(), c.Param("user_id"), c.Param("notebook_id"), req.CellID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: MessageCellDeleted})
}

// HandleDeleteNotebook handles DELETE /:user_id/delete_notebook
func (h *Handlers) HandleDeleteNotebook(c *gin.Context) {
	var req DeleteNotebookRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.service.DeleteNotebook(c.Request.Context(), c.Param("user_id"), req.NotebookID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: MessageNotebookDeleted})
}

// HandleExport handles GET /:user_id/:notebook_id/export
func (h *Handlers) HandleExport(c *gin.Context) {
	name, data, err := h.service.Export(c.Request.Context(), c.Param("user_id"), c.Param("notebook_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, notebook.ContentType, data)
}

// HandleHealth handles GET /health
func (h *Handlers) HandleHealth(c *gin.Context) {
	if h.health != nil {
		if err := h.health.HealthCheck(c.Request.Context()); err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: MessageServiceUnavailable})
			return
		}
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// bind decodes the JSON body into req. An empty body leaves req zeroed so
// the service reports the missing field.
func (h *Handlers) bind(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.logger.Debug("Invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: MessageInvalidBody})
	return false
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status, message, known := statusFor(err)
	if !known {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, ErrorResponse{Error: message})
}
