// Package middleware contains HTTP middleware for the serve command.
//
// # Components
//
//   - auth: API key validation. Health and metrics paths can be skipped.
//   - rayid: tags every request with a ray id, stored in the Fiber locals
//     and echoed in the response headers for tracing.
package middleware
