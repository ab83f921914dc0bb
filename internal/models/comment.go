package models

import (
	"encoding/json"
	"regexp"
	"strings"
)

// bareKeyPattern matches an unquoted allow-listed key immediately following
// an object-opening brace or comma, so it can be quoted in place without
// touching keys that are already quoted.
var bareKeyPattern = regexp.MustCompile(`([{,])\s*(entry|sl|tp|atr|kind|strategy)\s*:`)

// Comment is the parsed form of a signal's free-form comment blob.
type Comment struct {
	Entry    *float64
	SL       *float64
	TP       *float64
	ATR      *float64
	Kind     string
	Strategy string
}

// ParseComment accepts a comment blob that is either a JSON object or a
// JSON-encoded string (optionally using single quotes and bare keys from the
// allow-list {entry,sl,tp,atr,kind,strategy}) and returns the parsed fields.
// An unparseable blob yields a zero-value Comment rather than an error.
func ParseComment(raw json.RawMessage) Comment {
	m := parseCommentMap(raw)
	return commentFromMap(m)
}

func parseCommentMap(raw json.RawMessage) map[string]any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}

	// Not a JSON object — maybe it's a JSON-encoded string carrying an
	// object-shaped payload.
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}

	if err := json.Unmarshal([]byte(s), &m); err == nil {
		return m
	}

	normalized := normalizeLooseObject(s)
	if err := json.Unmarshal([]byte(normalized), &m); err == nil {
		return m
	}

	return nil
}

// normalizeLooseObject converts single-quoted strings and bare allow-listed
// keys into strict JSON so a forgiving comment blob has one more chance to
// parse before the caller gives up with an empty map.
func normalizeLooseObject(s string) string {
	s = strings.ReplaceAll(s, "'", "\"")
	return bareKeyPattern.ReplaceAllString(s, `${1}"${2}":`)
}

func commentFromMap(m map[string]any) Comment {
	var c Comment
	if m == nil {
		return c
	}
	c.Entry = floatField(m, "entry")
	c.SL = floatField(m, "sl")
	c.TP = floatField(m, "tp")
	c.ATR = floatField(m, "atr")
	if v, ok := m["kind"].(string); ok {
		c.Kind = v
	}
	if v, ok := m["strategy"].(string); ok {
		c.Strategy = v
	}
	return c
}

func floatField(m map[string]any, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
