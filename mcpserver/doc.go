// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the notebook operations as MCP tools using
// the mark3labs/mcp-go library: list_notebooks, create_notebook,
// get_notebook, execute_cell, save_markdown, delete_cell, delete_notebook and
// export_notebook. Tool arguments are validated before they reach the
// notebook service.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration. Over HTTP the streamable handler is mounted next
// to the REST API.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, service)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or mount server.HTTPHandler()
package mcpserver
