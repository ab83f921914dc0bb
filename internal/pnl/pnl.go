// Package pnl computes realized PnL on exit fills and drives the
// consequent streak/cooldown/daily-drawdown bookkeeping in the state store.
package pnl

import (
	"context"

	"signalrelay/internal/state"
)

// Store is the subset of *state.Store the accountant needs.
type Store interface {
	StreakGet(ctx context.Context, strategy string) (int, error)
	StreakSet(ctx context.Context, strategy string, value int) error
	CooldownStart(ctx context.Context, strategy string, minutes int) error
	UpdateDailyPnL(ctx context.Context, deltaUSDT float64) (state.DailyPnL, error)
}

// Realized computes the realized PnL for a closed position in quote
// currency, net of taker fees on both legs.
func Realized(side string, entry, exit, amount, takerFee float64) float64 {
	var gross float64
	switch side {
	case "sell", "short":
		gross = (entry - exit) * amount
	default: // "buy", "long"
		gross = (exit - entry) * amount
	}
	fees := (entry*amount + exit*amount) * takerFee
	return gross - fees
}

// StreakLimits carries the strategy-specific loss-streak trigger and
// cooldown duration applied after a losing close.
type StreakLimits struct {
	LossStreakLimit int
	CooldownMinutes int
}

// Settle applies the realized PnL to the daily ledger and the per-strategy
// loss streak, starting a cooldown when the strategy-specific streak limit is
// reached. It is meant to be called exactly once per closed position.
func Settle(ctx context.Context, store Store, strategy string, limits StreakLimits, realized float64) (state.DailyPnL, error) {
	daily, err := store.UpdateDailyPnL(ctx, realized)
	if err != nil {
		return state.DailyPnL{}, err
	}

	if realized >= 0 {
		if err := store.StreakSet(ctx, strategy, 0); err != nil {
			return daily, err
		}
		return daily, nil
	}

	streak, err := store.StreakGet(ctx, strategy)
	if err != nil {
		return daily, err
	}
	streak++
	if err := store.StreakSet(ctx, strategy, streak); err != nil {
		return daily, err
	}

	if limits.LossStreakLimit > 0 && streak >= limits.LossStreakLimit {
		if err := store.CooldownStart(ctx, strategy, limits.CooldownMinutes); err != nil {
			return daily, err
		}
	}

	return daily, nil
}
