package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/isdmx/cellbox/config"
	"github.com/isdmx/cellbox/logger"
	"github.com/isdmx/cellbox/notebook"
)

const exportFilePermission = 0o644

func newExportCmd() *cobra.Command {
	var userID, notebookID, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a stored notebook as .ipynb",
		Long: `Reads the notebook from the configured store and writes it in nbformat 4.5.
Without --out the document is written to <notebook name>.ipynb; use --out - for
standard output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" || notebookID == "" {
				return errors.New("--user and --notebook are required")
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

			st, err := openStore(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			nb, err := st.GetNotebook(cmd.Context(), userID, notebookID)
			if err != nil {
				return fmt.Errorf("failed to load notebook: %w", err)
			}
			data, err := notebook.Export(nb)
			if err != nil {
				return err
			}

			if out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if out == "" {
				out = notebook.FileName(nb)
			}
			if err := os.WriteFile(out, data, exportFilePermission); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			log.Info("Notebook exported",
				zap.String("user_id", userID),
				zap.String("notebook_id", notebookID),
				zap.String("file", out),
				zap.Int("cells", len(nb.Cells)))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner of the notebook")
	cmd.Flags().StringVar(&notebookID, "notebook", "", "notebook ID")
	cmd.Flags().StringVar(&out, "out", "", "output file, - for stdout")
	return cmd
}
