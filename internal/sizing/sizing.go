// Package sizing resolves order quantity from a signal and the account's
// equity, then applies the venue's notional/step/quantity constraints.
package sizing

import (
	"errors"

	"signalrelay/internal/venue"
)

// Mode selects which sizing formula resolves the raw (pre-constraint) amount.
type Mode string

const (
	ModeRisk     Mode = "risk"
	ModeNotional Mode = "notional"
	ModeFixed    Mode = "fixed"
)

// ErrMissingStopLoss is returned by risk-mode sizing when no stop-loss was
// supplied in the signal.
var ErrMissingStopLoss = errors.New("risk sizing requires a stop-loss")

// ErrZeroRiskPerUnit is returned by risk-mode sizing when price and
// stop-loss coincide, making the per-unit risk zero.
var ErrZeroRiskPerUnit = errors.New("risk sizing: price equals stop-loss")

// ErrFixedAmountRequired is returned by fixed-mode sizing when the caller
// didn't supply an explicit amount; fixed mode never synthesizes one.
var ErrFixedAmountRequired = errors.New("fixed sizing requires an explicit amount")

// ErrNonPositiveEquity rejects sizing against a non-positive account equity.
var ErrNonPositiveEquity = errors.New("equity must be positive")

// ErrBelowMinNotional rejects an order whose notional falls under the
// venue's minimum order value.
var ErrBelowMinNotional = errors.New("order notional below venue minimum")

// ErrBelowMinQty rejects an order whose final (post-rounding) quantity
// falls under the venue's minimum order quantity, or at/below zero.
var ErrBelowMinQty = errors.New("order quantity below venue minimum")

// Input carries every parameter the sizer needs to resolve a final quantity.
type Input struct {
	Mode   Mode
	Equity float64
	Price  float64

	// risk mode
	RiskPct float64
	SL      *float64

	// notional mode
	AllocPct float64
	Leverage int

	// fixed mode
	FixedAmount *float64

	MarginBuffer float64 // fraction of equity*leverage usable as margin budget
	FeeBuffer    float64 // haircut applied to the resolved amount

	Market venue.MarketInfo
}

// Result is the resolved order quantity plus the intermediate notional, for
// diagnostics and audit logging.
type Result struct {
	Amount   float64
	Notional float64
}

// Resolve computes the final order quantity for the given mode, applying
// the margin-budget cap, minimum-notional/quantity rejections, fee-buffer
// haircut, and step rounding described for the order sizer.
func Resolve(in Input) (Result, error) {
	if in.Equity <= 0 {
		return Result{}, ErrNonPositiveEquity
	}
	if in.Price <= 0 {
		return Result{}, errors.New("price must be positive")
	}

	raw, err := rawAmount(in)
	if err != nil {
		return Result{}, err
	}

	amt := capByMarginBudget(raw, in)
	amt *= 1 - in.FeeBuffer
	amt = venue.RoundStep(amt, in.Market.AmountStep)

	notional := amt * in.Price
	if in.Market.MinNotional > 0 && notional < in.Market.MinNotional {
		return Result{Amount: amt, Notional: notional}, ErrBelowMinNotional
	}
	if amt <= 0 || (in.Market.MinQty > 0 && amt < in.Market.MinQty) {
		return Result{Amount: amt, Notional: notional}, ErrBelowMinQty
	}

	return Result{Amount: amt, Notional: notional}, nil
}

func rawAmount(in Input) (float64, error) {
	switch in.Mode {
	case ModeRisk:
		if in.SL == nil {
			return 0, ErrMissingStopLoss
		}
		riskPerUnit := in.Price - *in.SL
		if riskPerUnit < 0 {
			riskPerUnit = -riskPerUnit
		}
		if riskPerUnit == 0 {
			return 0, ErrZeroRiskPerUnit
		}
		riskUSD := in.Equity * in.RiskPct
		return riskUSD / riskPerUnit, nil

	case ModeNotional:
		return (in.Equity * in.AllocPct * float64(in.Leverage)) / in.Price, nil

	case ModeFixed:
		if in.FixedAmount == nil {
			return 0, ErrFixedAmountRequired
		}
		return *in.FixedAmount, nil

	default:
		return 0, errors.New("unknown sizing mode: " + string(in.Mode))
	}
}

func capByMarginBudget(amt float64, in Input) float64 {
	budget := in.Equity * float64(in.Leverage) * in.MarginBuffer
	if budget <= 0 {
		return amt
	}
	maxAmt := budget / in.Price
	if amt > maxAmt {
		return maxAmt
	}
	return amt
}
