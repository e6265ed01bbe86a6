// Package logging wraps zerolog behind printf-style helpers.
//
// Levels run DEBUG, INFO, WARN, ERROR and FATAL. LOG_LEVEL (or DEBUG=true)
// picks the starting level and the configuration file may override it.
// Records go to the console and, when a log file is configured, to a
// lumberjack-rotated file as JSON. Event exposes the underlying zerolog
// event for callers that want structured fields.
package logging
