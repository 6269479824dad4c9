package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isdmx/cellbox/observability"
)

// RegisterRoutes registers the notebook routes, /health and /metrics
func RegisterRoutes(router gin.IRouter, h *Handlers) {
	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	router.GET("/:user_id", h.HandleListNotebooks)
	router.POST("/:user_id/create_notebook", h.HandleCreateNotebook)
	router.DELETE("/:user_id/delete_notebook", h.HandleDeleteNotebook)

	router.GET("/:user_id/:notebook_id", h.HandleGetNotebook)
	router.POST("/:user_id/:notebook_id/execute", h.HandleExecute)
	router.POST("/:user_id/:notebook_id/save_markdown", h.HandleSaveMarkdown)
	router.DELETE("/:user_id/:notebook_id/delete_cell", h.HandleDeleteCell)
	router.GET("/:user_id/:notebook_id/export", h.HandleExport)
}

// NewRouter builds the gin engine with recovery and request metrics. Extra
// handlers, such as the MCP endpoint, are mounted under their own paths.
func NewRouter(h *Handlers, mounts map[string]http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), observability.Middleware())

	for path, handler := range mounts {
		router.Any(path, gin.WrapH(handler))
	}
	RegisterRoutes(router, h)
	return router
}
