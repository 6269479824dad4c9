// Package api exposes the notebook service over REST using gin.
//
// Routes are scoped by user ID in the first path segment:
//
//	GET    /:user_id                           list notebooks
//	POST   /:user_id/create_notebook           create a notebook
//	DELETE /:user_id/delete_notebook           delete a notebook
//	GET    /:user_id/:notebook_id              get a notebook's cells
//	POST   /:user_id/:notebook_id/execute      execute a code cell
//	POST   /:user_id/:notebook_id/save_markdown save a markdown cell
//	DELETE /:user_id/:notebook_id/delete_cell  delete a cell
//	GET    /:user_id/:notebook_id/export       download the notebook as .ipynb
//
// The static routes /health and /metrics take precedence over user IDs of the
// same name.
package api
