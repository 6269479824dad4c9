package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cellbox",
		Short: "Notebook-style Starlark execution service",
		Long: `cellbox keeps named notebooks per user. Each notebook owns a namespace
that persists across its code cells, so later cells see the bindings of
earlier ones. Notebooks are served over REST and MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd(), newRunCmd(), newExportCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve notebooks over REST and MCP",
		Long: `Starts the server with the transport selected by server.transport:
"http" serves the REST API, /health, /metrics and the MCP endpoint on one port;
"stdio" serves MCP on standard input and output.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			app := newApp()
			app.Run()
			return app.Err()
		},
	}
}
