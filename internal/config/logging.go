package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and carries wire payloads:
// the full JSON bodies of generateContent requests and responses. The
// value -8 keeps the spacing slog uses between its built-in levels.
//
// Trace output includes entire transcripts and therefore user content.
// Enable it for endpoint debugging, not for retention.
const LevelTrace = slog.Level(-8)

// levelNames maps log_level strings to levels. The empty string means
// the field was omitted and falls back to info.
var levelNames = map[string]slog.Level{
	"":        slog.LevelInfo,
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel converts the config file's log_level string to an
// [slog.Level]. Matching is case-insensitive and ignores surrounding
// whitespace.
func ParseLogLevel(s string) (slog.Level, error) {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
	return level, nil
}

// ReplaceLogLevelNames is a ReplaceAttr function for slog handlers.
// It renders [LevelTrace] as "TRACE" instead of the synthetic "DEBUG-4"
// slog invents for levels it does not know.
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
