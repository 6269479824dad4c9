// Package notebook implements the notebook operations shared by the REST API,
// the MCP tools and the command line: listing, creating and deleting
// notebooks, executing code cells against the notebook's namespace, saving
// markdown cells and exporting notebooks to the .ipynb format.
//
// Execution holds the notebook's namespace lock from the moment the namespace
// is materialized until the resulting cell is appended, so cells of one
// notebook are recorded in the order their code ran.
package notebook
