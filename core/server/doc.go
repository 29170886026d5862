// Package server holds the HTTP server configuration used by the serve
// command: listen port, API key, report cache lifetime and shutdown bound.
package server
