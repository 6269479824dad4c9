package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/cellbox/config"
	"github.com/isdmx/cellbox/logger"
	"github.com/isdmx/cellbox/model"
	"github.com/isdmx/cellbox/notebook"
	"github.com/isdmx/cellbox/sandbox"
)

// Output formats of the run command
const (
	formatText = "text"
	formatYAML = "yaml"
)

// script is a YAML list of cells. Each entry sets exactly one of code or
// markdown.
type script struct {
	Cells []scriptCell `yaml:"cells"`
}

type scriptCell struct {
	Code     string `yaml:"code,omitempty"`
	Markdown string `yaml:"markdown,omitempty"`
}

// cellReport is one entry of the YAML output
type cellReport struct {
	Index  int                      `yaml:"index"`
	Type   model.CellType           `yaml:"type"`
	Source string                   `yaml:"source"`
	Result *sandbox.ExecutionResult `yaml:"result,omitempty"`
}

// errCellsFailed is returned by run --fail-fast
var errCellsFailed = errors.New("cell execution failed")

func newRunCmd() *cobra.Command {
	var (
		format   string
		failFast bool
	)

	cmd := &cobra.Command{
		Use:   "run <file.star|file.yaml>",
		Short: "Execute a script or a YAML list of cells against one fresh namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatText && format != formatYAML {
				return fmt.Errorf("invalid --output %q, must be %q or %q", format, formatText, formatYAML)
			}

			cells, err := loadCells(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.New()
			if err != nil {
				return err
			}
			log, err := logger.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			log.Debug("Running cells", zap.String("file", args[0]), zap.Int("cells", len(cells)))
			executor := sandbox.NewFromConfig(log, cfg)
			reports, err := runCells(cmd.Context(), executor, cells, failFast)
			if writeErr := writeReports(cmd.OutOrStdout(), format, reports); writeErr != nil {
				return writeErr
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text or yaml")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first failing cell and exit non-zero")
	return cmd
}

// loadCells reads a YAML cell list, or any other file as a single code cell
func loadCells(path string) ([]scriptCell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var s script
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for i, c := range s.Cells {
			if (c.Code == "") == (c.Markdown == "") {
				return nil, fmt.Errorf("cell %d: exactly one of code or markdown must be set", i)
			}
		}
		return s.Cells, nil
	default:
		return []scriptCell{{Code: string(data)}}, nil
	}
}

// runCells executes the code cells in order against one namespace. Markdown
// cells are reported but never executed.
func runCells(ctx context.Context, runner notebook.Runner, cells []scriptCell, failFast bool) ([]cellReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ns := sandbox.Namespace{}
	reports := make([]cellReport, 0, len(cells))
	for i, c := range cells {
		if c.Code == "" {
			reports = append(reports, cellReport{Index: i, Type: model.CellMarkdown, Source: c.Markdown})
			continue
		}

		result := runner.Execute(ctx, c.Code, ns)
		reports = append(reports, cellReport{Index: i, Type: model.CellCode, Source: c.Code, Result: &result})
		if failFast && result.Failed() {
			return reports, fmt.Errorf("%w: cell %d: %s", errCellsFailed, i, result.ErrorMessage())
		}
	}
	return reports, nil
}

func writeReports(w io.Writer, format string, reports []cellReport) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		return enc.Close()
	}

	for _, r := range reports {
		if r.Result == nil {
			continue
		}
		fmt.Fprintf(w, "[%d] ", r.Index)
		if r.Result.Failed() {
			fmt.Fprintf(w, "error: %s\n", r.Result.ErrorMessage())
		} else {
			fmt.Fprintln(w, "ok")
		}
		if r.Result.Text != "" {
			fmt.Fprint(w, r.Result.Text)
			if !strings.HasSuffix(r.Result.Text, "\n") {
				fmt.Fprintln(w)
			}
		}
		if n := len(r.Result.Images); n > 0 {
			fmt.Fprintf(w, "(%d image)\n", n)
		}
	}
	return nil
}
