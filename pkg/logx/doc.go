// Package logx configures weekcron's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable (short timestamp and caller) while the optional file sink stays
// JSON-structured. Loggers derived from a Service follow Service.Apply, so
// a config reload changes level and sinks without re-plumbing callers.
package logx
