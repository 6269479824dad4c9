package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/cellbox/namespace"
	"github.com/isdmx/cellbox/notebook"
	"github.com/isdmx/cellbox/sandbox"
	"github.com/isdmx/cellbox/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(t *testing.T) (*gin.Engine, *Handlers) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := memory.New()
	lifecycle := namespace.NewMemory(logger, time.Hour, time.Hour)
	executor := sandbox.NewExecutor(logger, &sandbox.Config{TimeoutSec: 5, FigureWidthIn: 2, FigureHeightIn: 2})
	service := notebook.NewFromExecutor(logger, st, lifecycle, executor)

	handlers := NewHandlers(service, logger)
	return NewRouter(handlers, nil), handlers
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createNotebook(t *testing.T, router http.Handler, userID, name string) string {
	t.Helper()
	w := doRequest(t, router, http.MethodPost, "/"+userID+"/create_notebook", CreateNotebookRequest{Name: name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[CreateNotebookResponse](t, w).NotebookID
}

func TestHandleHealth(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, w).Status)
}

type failingChecker struct{}

func (failingChecker) HealthCheck(context.Context) error { return errors.New("connection refused") }

func TestHandleHealthUnavailable(t *testing.T) {
	router, handlers := setupTestRouter(t)
	handlers.WithHealthChecker(failingChecker{})

	w := doRequest(t, router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestHandleMetrics(t *testing.T) {
	router, _ := setupTestRouter(t)
	doRequest(t, router, http.MethodGet, "/alice", nil)

	w := doRequest(t, router, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cellbox_requests_total")
}

func TestNotebookLifecycle(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notebooks":[]}`, w.Body.String())

	first := createNotebook(t, router, "alice", "first")
	second := createNotebook(t, router, "alice", "second")

	w = doRequest(t, router, http.MethodPost, "/alice/create_notebook", CreateNotebookRequest{Name: "first"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MessageNotebookConflict, decode[ErrorResponse](t, w).Error)

	w = doRequest(t, router, http.MethodGet, "/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ListNotebooksResponse](t, w)
	require.Len(t, list.Notebooks, 2)
	assert.Equal(t, first, list.Notebooks[0].NotebookID)
	assert.Equal(t, "second", list.Notebooks[1].Name)

	w = doRequest(t, router, http.MethodDelete, "/alice/delete_notebook", DeleteNotebookRequest{NotebookID: first})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MessageNotebookDeleted, decode[MessageResponse](t, w).Message)

	w = doRequest(t, router, http.MethodDelete, "/alice/delete_notebook", DeleteNotebookRequest{NotebookID: first})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MessageNotebookNotFound, decode[ErrorResponse](t, w).Error)

	w = doRequest(t, router, http.MethodDelete, "/alice/delete_notebook", DeleteNotebookRequest{NotebookID: second})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/alice/delete_notebook", DeleteNotebookRequest{NotebookID: second})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MessageUserNotFound, decode[ErrorResponse](t, w).Error)

	w = doRequest(t, router, http.MethodDelete, "/alice/delete_notebook", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MessageNotebookRequired, decode[ErrorResponse](t, w).Error)
}

func TestCreateNotebookWithoutBody(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/alice/create_notebook", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CreateNotebookResponse](t, w)
	assert.Equal(t, "Notebook "+resp.NotebookID, resp.Name)
}

func TestHandleExecute(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createNotebook(t, router, "alice", "n")
	base := "/alice/" + id

	for _, code := range []string{"x = 10", "y = x * 2"} {
		w := doRequest(t, router, http.MethodPost, base+"/execute", ExecuteRequest{Code: code})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doRequest(t, router, http.MethodPost, base+"/execute", ExecuteRequest{Code: "print(y)"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"text":"20\n","error":null,"images":null}`, w.Body.String())

	w = doRequest(t, router, http.MethodPost, base+"/execute", ExecuteRequest{Code: "fail('boom')"})
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[sandbox.ExecutionResult](t, w)
	assert.Contains(t, result.ErrorMessage(), "boom")

	w = doRequest(t, router, http.MethodPost, base+"/execute", ExecuteRequest{Code: "input()"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sandbox.InputDisabledMessage, decode[sandbox.ExecutionResult](t, w).ErrorMessage())

	w = doRequest(t, router, http.MethodPost, base+"/execute", ExecuteRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MessageCodeRequired, decode[ErrorResponse](t, w).Error)

	w = doRequest(t, router, http.MethodPost, "/alice/notebook_missing/execute", ExecuteRequest{Code: "x = 1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodPost, "/bob/"+id+"/execute", ExecuteRequest{Code: "x = 1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MessageUserNotFound, decode[ErrorResponse](t, w).Error)
}

func TestHandleExecuteInvalidBody(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createNotebook(t, router, "alice", "n")

	req := httptest.NewRequest(http.MethodPost, "/alice/"+id+"/execute", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MessageInvalidBody, decode[ErrorResponse](t, w).Error)
}

func TestHandleCells(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createNotebook(t, router, "alice", "n")
	base := "/alice/" + id

	w := doRequest(t, router, http.MethodPost, base+"/save_markdown", SaveMarkdownRequest{Content: "# Title"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MessageMarkdownSaved, decode[MessageResponse](t, w).Message)

	w = doRequest(t, router, http.MethodPost, base+"/save_markdown", SaveMarkdownRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MessageContentRequired, decode[ErrorResponse](t, w).Error)

	w = doRequest(t, router, http.MethodPost, base+"/execute", ExecuteRequest{Code: "print('hi')"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cells := decode[GetNotebookResponse](t, w).Cells
	require.Len(t, cells, 2)
	assert.Equal(t, "# Title", cells[0].Source)
	assert.Equal(t, "hi\n", cells[1].Output.Text)

	var raw map[string][]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "print('hi')", raw["cells"][1]["code"])

	w = doRequest(t, router, http.MethodDelete, base+"/delete_cell", DeleteCellRequest{CellID: cells[0].CellID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MessageCellDeleted, decode[MessageResponse](t, w).Message)

	w = doRequest(t, router, http.MethodDelete, base+"/delete_cell", DeleteCellRequest{CellID: cells[0].CellID})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MessageCellNotFound, decode[ErrorResponse](t, w).Error)

	w = doRequest(t, router, http.MethodDelete, base+"/delete_cell", DeleteCellRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MessageCellIDRequired, decode[ErrorResponse](t, w).Error)

	w = doRequest(t, router, http.MethodGet, "/alice/notebook_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleExport(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createNotebook(t, router, "alice", "report")

	w := doRequest(t, router, http.MethodPost, "/alice/"+id+"/execute", ExecuteRequest{Code: "print(1)"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/alice/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, notebook.ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=report.ipynb", w.Header().Get("Content-Disposition"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.InDelta(t, 4, doc["nbformat"], 0)

	w = doRequest(t, router, http.MethodGet, "/alice/notebook_missing/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleExportQuotedName(t *testing.T) {
	router, _ := setupTestRouter(t)
	name := `say "hi"; now`
	id := createNotebook(t, router, "alice", name)

	w := doRequest(t, router, http.MethodGet, "/alice/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)

	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, name+".ipynb", params["filename"])
}

func TestMountedHandler(t *testing.T) {
	logger := zaptest.NewLogger(t)
	service := notebook.NewService(logger, memory.New(), namespace.NewMemory(logger, time.Hour, time.Hour), sandbox.NewExecutor(logger, &sandbox.Config{TimeoutSec: 1}))
	mounted := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	router := NewRouter(NewHandlers(service, logger), map[string]http.Handler{"/mcp": mounted})

	w := doRequest(t, router, http.MethodPost, "/mcp", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestStatusFor(t *testing.T) {
	status, message, known := statusFor(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, MessageInternalError, message)
	assert.False(t, known)
}
