// Package handlers exposes the photo library over HTTP.
//
// It includes handlers for:
//   - Scan scheduling and scanner settings
//   - Root paths, albums and the timeline
//   - Face groups and face assignment
//   - Share tokens and anonymous share access
//   - Server-Sent Events for scanner notifications
//   - Health checks, version and Prometheus metrics
//
// Routes identify the acting user in the path. Errors are JSON objects
// whose status code follows the error kind.
package handlers
