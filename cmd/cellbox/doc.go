// Package main is the entry point for cellbox.
//
// cellbox is a notebook-style execution service: users own named notebooks
// whose code cells run Starlark against a namespace that persists from cell
// to cell. The serve command exposes the notebooks over REST and the Model
// Context Protocol (MCP), on HTTP or stdio. The run command executes a
// script or a YAML list of cells locally, and the export command writes a
// stored notebook as .ipynb.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging, viper for configuration and
// cobra for the command line.
package main
