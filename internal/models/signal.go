// Package models defines the inbound webhook payload and the permissive
// comment-blob parser used by the risk gate and sizer.
package models

import (
	"encoding/json"
)

// Signal is the inbound TradingView-style webhook payload. Unknown fields
// are accepted without rejection — callers decode into this struct with the
// default (non-strict) json decoder.
type Signal struct {
	ID                 string          `json:"id"`
	Symbol             string          `json:"symbol"`
	Ticker             string          `json:"ticker"`
	Side               string          `json:"side"`
	Qty                *float64        `json:"qty"`
	Amount             *float64        `json:"amount"`
	Contracts          *float64        `json:"contracts"`
	Price              *float64        `json:"price"`
	MarketPosition     string          `json:"marketPosition"`
	MarketPositionSize *float64        `json:"marketPositionSize"`
	PrevMarketPosition string          `json:"prevMarketPosition"`
	Leverage           *float64        `json:"leverage"`
	ReduceOnly         *bool           `json:"reduceOnly"`
	Strategy           string          `json:"strategy"`
	RelaySecret        string          `json:"relaySecret"`
	Sizing             string          `json:"sizing"`
	RiskPct            *float64        `json:"riskPct"`
	AllocPct           *float64        `json:"allocPct"`
	QtyPct             *float64        `json:"qtyPct"`
	Comment            json.RawMessage `json:"comment"`
}

// ResolvedQty returns the first explicit quantity field present, in the
// order qty, amount, contracts.
func (s *Signal) ResolvedQty() (float64, bool) {
	for _, p := range []*float64{s.Qty, s.Amount, s.Contracts} {
		if p != nil {
			return *p, true
		}
	}
	return 0, false
}

// HasTarget reports whether the signal carries a target-position instruction.
func (s *Signal) HasTarget() bool {
	return s.MarketPosition != "" && s.MarketPositionSize != nil
}

// HasDelta reports whether the signal carries an explicit side+qty delta.
func (s *Signal) HasDelta() bool {
	_, ok := s.ResolvedQty()
	return s.Side != "" && ok
}

// ResolvedStrategy falls back to bull/bear/unknown per §4.8 step 4 when the
// signal doesn't carry an explicit strategy tag.
func (s *Signal) ResolvedStrategy() string {
	if s.Strategy != "" {
		return s.Strategy
	}
	switch s.Side {
	case "buy", "long":
		return "bull"
	case "sell", "short":
		return "bear"
	default:
		return "unknown"
	}
}

// ToLogFields renders the signal as a generic map suitable for structured
// logging (and redaction) without leaking the comment blob verbatim.
func (s *Signal) ToLogFields() map[string]any {
	return map[string]any{
		"id":             s.ID,
		"symbol":         s.Symbol,
		"ticker":         s.Ticker,
		"side":           s.Side,
		"marketPosition": s.MarketPosition,
		"strategy":       s.Strategy,
		"relaySecret":    s.RelaySecret,
	}
}
