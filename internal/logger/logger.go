package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON logger writing to stdout at the given level
// (debug, info, warn, error; anything else means info). The returned
// logger is passed into components rather than shared as a global.
func New(level string) *slog.Logger {
	lv := new(slog.LevelVar)
	switch strings.ToLower(level) {
	case "debug":
		lv.Set(slog.LevelDebug)
	case "warn":
		lv.Set(slog.LevelWarn)
	case "error":
		lv.Set(slog.LevelError)
	default:
		lv.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}
