package notebook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/isdmx/cellbox/model"
)

// nbformat version written by Export
const (
	NBFormat      = 4
	NBFormatMinor = 5
)

// ContentType is the media type of an exported notebook
const ContentType = "application/x-ipynb+json"

type ipynb struct {
	Cells         []any         `json:"cells"`
	Metadata      ipynbMetadata `json:"metadata"`
	NBFormat      int           `json:"nbformat"`
	NBFormatMinor int           `json:"nbformat_minor"`
}

type ipynbMetadata struct {
	KernelSpec   kernelSpec   `json:"kernelspec"`
	LanguageInfo languageInfo `json:"language_info"`
}

type kernelSpec struct {
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	Name        string `json:"name"`
}

type languageInfo struct {
	Name          string `json:"name"`
	FileExtension string `json:"file_extension"`
	MimeType      string `json:"mimetype"`
}

type markdownCell struct {
	ID       string         `json:"id"`
	CellType model.CellType `json:"cell_type"`
	Metadata map[string]any `json:"metadata"`
	Source   []string       `json:"source"`
}

// codeCell is never executed by a kernel, so its execution count stays null
type codeCell struct {
	markdownCell
	ExecutionCount *int          `json:"execution_count"`
	Outputs        []ipynbOutput `json:"outputs"`
}

type ipynbOutput struct {
	OutputType string   `json:"output_type"`
	Name       string   `json:"name"`
	Text       []string `json:"text"`
}

var defaultMetadata = ipynbMetadata{
	KernelSpec: kernelSpec{
		DisplayName: "Starlark",
		Language:    "starlark",
		Name:        "starlark",
	},
	LanguageInfo: languageInfo{
		Name:          "starlark",
		FileExtension: ".star",
		MimeType:      "text/x-starlark",
	},
}

// Export renders nb as an nbformat 4.5 JSON document. Code cells carry their
// captured text as a stdout stream; images are not exported.
func Export(nb *model.Notebook) ([]byte, error) {
	doc := ipynb{
		Cells:         make([]any, 0, len(nb.Cells)),
		Metadata:      defaultMetadata,
		NBFormat:      NBFormat,
		NBFormatMinor: NBFormatMinor,
	}

	for _, cell := range nb.Cells {
		base := markdownCell{
			ID:       cellID(cell.CellID),
			CellType: cell.CellType,
			Metadata: map[string]any{},
			Source:   SplitLines(cell.Source),
		}

		if cell.CellType != model.CellCode {
			doc.Cells = append(doc.Cells, base)
			continue
		}

		code := codeCell{markdownCell: base, Outputs: []ipynbOutput{}}
		if cell.Output.Text != "" {
			code.Outputs = append(code.Outputs, ipynbOutput{
				OutputType: "stream",
				Name:       "stdout",
				Text:       SplitLines(cell.Output.Text),
			})
		}
		doc.Cells = append(doc.Cells, code)
	}

	data, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode notebook: %w", err)
	}
	return data, nil
}

// FileName is the download name of an exported notebook
func FileName(nb *model.Notebook) string {
	return nb.Name + ".ipynb"
}

// SplitLines splits s after every newline, keeping the newlines. A trailing
// newline does not produce an empty last line.
func SplitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// cellID strips the cell prefix; nbformat limits IDs to 64 characters
func cellID(id string) string {
	id = strings.TrimPrefix(id, model.CellIDPrefix)
	if len(id) > 64 {
		id = id[:64]
	}
	return id
}
