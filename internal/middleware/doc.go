// Package middleware wraps the router with a structured access log and
// Prometheus request metrics labelled by route template.
//
// Both wrappers pass Flush and Unwrap through, so notification streams
// keep working behind them.
package middleware
