// Package logger builds the application slog.Logger: JSON output in
// production, text elsewhere, with the environment attached to every record.
package logger
