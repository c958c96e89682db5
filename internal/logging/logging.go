package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// New creates a console slog.Logger with provided level string. Format "json"
// selects the JSON handler, anything else the text handler. String attributes
// longer than maxStringLength are truncated; zero disables truncation.
func New(level, format string, maxStringLength int) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format, maxStringLength)
}

// NewWithWriter is New writing to w.
func NewWithWriter(w io.Writer, level, format string, maxStringLength int) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: levelFromString(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(Truncate(a.Value.String(), maxStringLength))
			}
			return a
		},
	}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Truncate shortens value to limit characters, the tail replaced with a
// "... (N more chars)" marker that counts toward the limit.
func Truncate(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	n := utf8.RuneCountInString(value)
	if n <= limit {
		return value
	}
	suffix := fmt.Sprintf("... (%d more chars)", n-limit)
	keep := limit - len(suffix)
	if keep < 0 {
		keep = 0
	}
	return string([]rune(value)[:keep]) + suffix
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
