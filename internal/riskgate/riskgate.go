// Package riskgate implements the slippage guard, regime-to-allocation
// lookup, and expected-edge filter applied to every signal before sizing.
package riskgate

import (
	"math"

	"signalrelay/internal/cfg"
)

// SlippageResult is the outcome of the slippage guard.
type SlippageResult struct {
	Slip       float64
	Exceeded   bool
	LimitPrice float64 // only set when Exceeded
}

// CheckSlippage compares the live price against the signal's reference
// price. When the deviation exceeds maxSlippage, it doesn't reject the
// order — it returns a limit-IOC price biased in the order's favor so the
// caller can convert a market order into a limit order instead.
func CheckSlippage(priceLive, priceRef, maxSlippage float64, side string) SlippageResult {
	if priceRef <= 0 {
		return SlippageResult{}
	}
	slip := math.Abs(priceLive-priceRef) / priceRef
	if slip <= maxSlippage {
		return SlippageResult{Slip: slip}
	}

	band := 1 + maxSlippage
	if isSellSide(side) {
		band = 1 - maxSlippage
	}
	return SlippageResult{
		Slip:       slip,
		Exceeded:   true,
		LimitPrice: priceLive * band,
	}
}

func isSellSide(side string) bool {
	switch side {
	case "sell", "short":
		return true
	default:
		return false
	}
}

// ErrBlockedAlloc signals the resolved allocation/leverage table entry has
// allocPct == 0, blocking the signal outright.
type ErrBlockedAlloc struct{}

func (ErrBlockedAlloc) Error() string { return "blocked_by_allocation" }

// ResolveAllocation looks up (allocPct, leverage) for a strategy/regime
// pair and rejects if the resolved allocation is zero.
func ResolveAllocation(settings *cfg.Settings, strategy, regime string) (cfg.AllocLev, error) {
	al := settings.AllocFor(strategy, regime)
	if al.AllocPct == 0 {
		return al, ErrBlockedAlloc{}
	}
	return al, nil
}

// EdgeInput carries the fields needed to compute expected trade edge.
type EdgeInput struct {
	Entry           float64
	Amount          float64
	SideSign        float64 // +1 for buy/long, -1 for sell/short
	TakerFee        float64
	FundingRate     float64
	AssumeHoldHours float64
	TP              *float64
	ATR             *float64
	AllowDeriveTP   bool
	ATRTPMultiple   float64
}

// EdgeResult is the computed expected profit/cost breakdown.
type EdgeResult struct {
	Notional   float64
	FeeCost    float64
	FundCost   float64
	ExpProfit  float64
	Edge       float64
	DerivedTP  bool
	ResolvedTP float64
	HasTP      bool
}

// ErrEdgeTPRequired signals the strict edge-filter policy rejecting a
// signal that carries no take-profit (and none could be derived from ATR).
type ErrEdgeTPRequired struct{}

func (ErrEdgeTPRequired) Error() string { return "blocked_by_edge_missing_tp" }

// ErrEdgeInsufficient signals the computed edge did not clear the
// configured minimum.
type ErrEdgeInsufficient struct{ Edge float64 }

func (e ErrEdgeInsufficient) Error() string { return "blocked_by_edge" }

// ComputeEdge computes the expected-edge breakdown per §4.5. When tp is
// absent and allowDeriveTP is set with an ATR value available, tp is
// derived as entry ± atr*atrTPMultiple (sign following SideSign).
func ComputeEdge(in EdgeInput) EdgeResult {
	var r EdgeResult
	r.Notional = in.Entry * in.Amount
	r.FeeCost = r.Notional * in.TakerFee * 2
	r.FundCost = r.Notional * in.FundingRate * (in.AssumeHoldHours / 8)

	tp, hasTP := resolveTP(in)
	r.HasTP = hasTP
	r.ResolvedTP = tp
	r.DerivedTP = hasTP && in.TP == nil

	if hasTP {
		profit := in.SideSign * (tp - in.Entry) * in.Amount
		if profit > 0 {
			r.ExpProfit = profit
		}
	}

	r.Edge = r.ExpProfit - (r.FeeCost + math.Abs(r.FundCost))
	return r
}

func resolveTP(in EdgeInput) (float64, bool) {
	if in.TP != nil {
		return *in.TP, true
	}
	if in.AllowDeriveTP && in.ATR != nil {
		return in.Entry + in.SideSign*(*in.ATR)*in.ATRTPMultiple, true
	}
	return 0, false
}

// CheckEdge applies the filter policy toggles and returns an error when
// the signal should be blocked. requireTP enforces the strict policy
// (reject when no tp and none can be derived); otherwise the filter is
// skipped (permissive) when no tp is available.
func CheckEdge(in EdgeInput, enabled, requireTP bool, minEdgeUSDT float64) (EdgeResult, error) {
	if !enabled {
		return EdgeResult{}, nil
	}

	result := ComputeEdge(in)
	if !result.HasTP {
		if requireTP {
			return result, ErrEdgeTPRequired{}
		}
		return result, nil // permissive: skip the filter entirely
	}

	if result.Edge <= minEdgeUSDT {
		return result, ErrEdgeInsufficient{Edge: result.Edge}
	}
	return result, nil
}
