// Package model defines the notebook records shared by the store, the
// notebook service and the transports.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/isdmx/cellbox/sandbox"
)

// CellType distinguishes executable cells from prose
type CellType string

// Cell types
const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
)

// ID prefixes
const (
	NotebookIDPrefix = "notebook_"
	CellIDPrefix     = "cell_"
)

// Cell is one entry of a notebook. Markdown cells carry an empty output.
type Cell struct {
	CellID    string                  `json:"cell_id"`
	CellType  CellType                `json:"cell_type"`
	Source    string                  `json:"code"`
	Output    sandbox.ExecutionResult `json:"output"`
	CreatedAt time.Time               `json:"created_at"`
}

// Notebook is a named, ordered sequence of cells owned by one user
type Notebook struct {
	UserID     string    `json:"user_id"`
	NotebookID string    `json:"notebook_id"`
	Name       string    `json:"notebook_name"`
	CreatedAt  time.Time `json:"created_at"`
	Cells      []Cell    `json:"cells"`
}

// Summary identifies a notebook in a listing
type Summary struct {
	NotebookID string `json:"notebook_id"`
	Name       string `json:"notebook_name"`
}

// Summary returns the listing entry of the notebook
func (n *Notebook) Summary() Summary {
	return Summary{NotebookID: n.NotebookID, Name: n.Name}
}

// CellIndex returns the position of the cell or -1
func (n *Notebook) CellIndex(cellID string) int {
	for i, c := range n.Cells {
		if c.CellID == cellID {
			return i
		}
	}
	return -1
}

// NewNotebookID returns a fresh, time ordered notebook identifier
func NewNotebookID() string {
	return NotebookIDPrefix + newID()
}

// NewCellID returns a fresh, time ordered cell identifier
func NewCellID() string {
	return CellIDPrefix + newID()
}

// DefaultName is the name given to a notebook created without one
func DefaultName(notebookID string) string {
	return "Notebook " + notebookID
}

// NewCodeCell creates a code cell holding the source and its result
func NewCodeCell(source string, result sandbox.ExecutionResult, now time.Time) Cell {
	return Cell{
		CellID:    NewCellID(),
		CellType:  CellCode,
		Source:    source,
		Output:    result,
		CreatedAt: now,
	}
}

// NewMarkdownCell creates a markdown cell
func NewMarkdownCell(content string, now time.Time) Cell {
	return Cell{
		CellID:    NewCellID(),
		CellType:  CellMarkdown,
		Source:    content,
		CreatedAt: now,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
