// Package logging configures the process-wide zerolog logger and redacts
// sensitive fields before an inbound signal is logged.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up the global zerolog logger. format is "console" or "json";
// anything else falls back to json. level follows zerolog's string parser
// ("debug", "info", "warn", "error"); an unparseable level defaults to info.
func Init(format, level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var w = os.Stdout
	if format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// sensitiveKeys are field names (case-insensitive substring match) that must
// never reach a log line in cleartext.
var sensitiveKeys = []string{"secret", "api_key", "apikey", "relaysecret", "password"}

// Redact returns a shallow copy of m with any sensitive-looking key replaced
// by a fixed placeholder. Nested maps are redacted recursively.
func Redact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = "***redacted***"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
