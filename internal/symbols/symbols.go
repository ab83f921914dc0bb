// Package symbols normalizes external ticker notation (as sent by a charting
// or strategy source) into the canonical venue symbol form.
package symbols

import (
	"regexp"
	"strings"
)

var canonicalShape = regexp.MustCompile(`^([A-Z]+)(USDT|USD)$`)

// Normalize maps raw into a canonical symbol. For derivatives venues (the
// default) the result is "BASE/QUOTE:SETTLE" (e.g. "ETH/USDT:USDT"); for
// spot-style venues (spot=true) it is "BASE/USDT" with no settlement suffix.
// When raw cannot be parsed into the expected shape, ok is false and
// fallback is returned as the symbol.
func Normalize(raw string, spot bool, fallback string) (canonical string, ok bool) {
	if raw == "" {
		return fallback, false
	}

	s := strings.ToUpper(strings.TrimSpace(raw))

	// A venue-prefixed ticker ("BINANCE:BTCUSDT") has no "/" before its
	// colon; an already-canonical symbol's colon is its BASE/QUOTE:SETTLE
	// separator and must not be stripped, or re-normalizing it would lose
	// everything up to SETTLE.
	if !strings.Contains(s, "/") {
		if idx := strings.Index(s, ":"); idx >= 0 {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(s, ".P")

	if already, ok := parseCanonical(s); ok {
		if spot {
			return already.base + "/" + already.quote, true
		}
		return already.base + "/" + already.quote + ":" + already.quote, true
	}

	m := canonicalShape.FindStringSubmatch(s)
	if m == nil {
		return fallback, false
	}
	base, quote := m[1], m[2]

	if spot {
		return base + "/USDT", true
	}
	return base + "/" + quote + ":" + quote, true
}

type parsed struct{ base, quote string }

// parseCanonical recognizes an already-canonical "BASE/QUOTE" or
// "BASE/QUOTE:SETTLE" string so re-normalizing canonical input is a no-op.
func parseCanonical(s string) (parsed, bool) {
	slash := strings.Index(s, "/")
	if slash < 0 {
		return parsed{}, false
	}
	base := s[:slash]
	rest := s[slash+1:]
	quote := rest
	if colon := strings.Index(rest, ":"); colon >= 0 {
		quote = rest[:colon]
		settle := rest[colon+1:]
		if settle != quote {
			return parsed{}, false
		}
	}
	if quote != "USDT" && quote != "USD" {
		return parsed{}, false
	}
	if base == "" {
		return parsed{}, false
	}
	return parsed{base: base, quote: quote}, true
}
