package api

import (
	"errors"
	"net/http"

	"github.com/isdmx/cellbox/notebook"
	"github.com/isdmx/cellbox/store"
)

// Error messages returned to clients
const (
	MessageInvalidBody        = "Invalid request body."
	MessageCodeRequired       = "Code is required."
	MessageContentRequired    = "Markdown content is required."
	MessageUserIDRequired     = "User ID is required."
	MessageNotebookRequired   = "Notebook ID is required."
	MessageCellIDRequired     = "Cell ID is required."
	MessageUserNotFound       = "User not found."
	MessageNotebookNotFound   = "Notebook not found."
	MessageCellNotFound       = "Cell not found."
	MessageNotebookConflict   = "Notebook name already exists."
	MessageInternalError      = "Internal server error."
	MessageServiceUnavailable = "Store unavailable."
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// Checked in order; the specific not-found errors precede store.ErrNotFound.
var errorMappings = []errorMapping{
	{notebook.ErrCodeRequired, http.StatusBadRequest, MessageCodeRequired},
	{notebook.ErrContentRequired, http.StatusBadRequest, MessageContentRequired},
	{notebook.ErrUserIDRequired, http.StatusBadRequest, MessageUserIDRequired},
	{notebook.ErrNotebookIDRequired, http.StatusBadRequest, MessageNotebookRequired},
	{notebook.ErrCellIDRequired, http.StatusBadRequest, MessageCellIDRequired},
	{store.ErrConflict, http.StatusBadRequest, MessageNotebookConflict},
	{store.ErrUserNotFound, http.StatusNotFound, MessageUserNotFound},
	{store.ErrNotebookNotFound, http.StatusNotFound, MessageNotebookNotFound},
	{store.ErrCellNotFound, http.StatusNotFound, MessageCellNotFound},
	{store.ErrNotFound, http.StatusNotFound, MessageNotebookNotFound},
}

// statusFor maps a service error to its HTTP status and client message. The
// boolean is false for unexpected errors, whose cause must not leak.
func statusFor(err error) (int, string, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.message, true
		}
	}
	return http.StatusInternalServerError, MessageInternalError, false
}
