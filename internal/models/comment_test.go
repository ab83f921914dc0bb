package models

import (
	"encoding/json"
	"testing"
)

func TestParseComment_StructuredObject(t *testing.T) {
	raw := json.RawMessage(`{"entry":1,"sl":2,"tp":3}`)
	c := ParseComment(raw)
	if c.Entry == nil || *c.Entry != 1 {
		t.Errorf("entry = %v", c.Entry)
	}
	if c.SL == nil || *c.SL != 2 {
		t.Errorf("sl = %v", c.SL)
	}
	if c.TP == nil || *c.TP != 3 {
		t.Errorf("tp = %v", c.TP)
	}
}

func TestParseComment_JSONEncodedString(t *testing.T) {
	raw := json.RawMessage(`"{\"entry\":1,\"sl\":2,\"tp\":3}"`)
	c := ParseComment(raw)
	if c.Entry == nil || *c.Entry != 1 || c.SL == nil || *c.SL != 2 || c.TP == nil || *c.TP != 3 {
		t.Errorf("unexpected parse result: %+v", c)
	}
}

func TestParseComment_BareKeysAndSingleQuotes(t *testing.T) {
	raw := json.RawMessage(`"{entry:1,'sl':2}"`)
	c := ParseComment(raw)
	if c.Entry == nil || *c.Entry != 1 {
		t.Errorf("entry = %v", c.Entry)
	}
	if c.SL == nil || *c.SL != 2 {
		t.Errorf("sl = %v", c.SL)
	}
}

func TestParseComment_Unparseable(t *testing.T) {
	raw := json.RawMessage(`"not json at all {{{"`)
	c := ParseComment(raw)
	if c.Entry != nil || c.SL != nil || c.TP != nil {
		t.Errorf("expected empty comment, got %+v", c)
	}
}

func TestParseComment_Empty(t *testing.T) {
	c := ParseComment(nil)
	if c.Entry != nil {
		t.Errorf("expected empty comment for nil input")
	}
}

func TestSignal_ResolvedQtyFallbackOrder(t *testing.T) {
	amount := 1.5
	s := Signal{Amount: &amount}
	qty, ok := s.ResolvedQty()
	if !ok || qty != 1.5 {
		t.Errorf("got %v, %v", qty, ok)
	}
}

func TestSignal_ResolvedStrategyFallback(t *testing.T) {
	s := Signal{Side: "buy"}
	if got := s.ResolvedStrategy(); got != "bull" {
		t.Errorf("got %q", got)
	}
	s = Signal{Side: "sell"}
	if got := s.ResolvedStrategy(); got != "bear" {
		t.Errorf("got %q", got)
	}
	s = Signal{}
	if got := s.ResolvedStrategy(); got != "unknown" {
		t.Errorf("got %q", got)
	}
}
