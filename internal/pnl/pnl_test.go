package pnl

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"signalrelay/internal/state"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := state.New(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to connect state store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRealized_BuySideProfit(t *testing.T) {
	got := Realized("buy", 100, 110, 2, 0.0006)
	// gross = (110-100)*2 = 20; fees = (200+220)*0.0006 = 0.252
	want := 20 - 0.252
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRealized_SellSideProfit(t *testing.T) {
	got := Realized("sell", 100, 90, 2, 0.0006)
	// gross = (100-90)*2 = 20
	want := 20 - (200+180)*0.0006
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSettle_ProfitResetsStreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.StreakSet(ctx, "trend", 3)

	_, err := Settle(ctx, s, "trend", StreakLimits{LossStreakLimit: 4, CooldownMinutes: 90}, 15.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	streak, err := s.StreakGet(ctx, "trend")
	if err != nil {
		t.Fatalf("streak get: %v", err)
	}
	if streak != 0 {
		t.Errorf("expected streak reset to 0, got %d", streak)
	}
}

func TestSettle_LossIncrementsStreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := Settle(ctx, s, "trend", StreakLimits{LossStreakLimit: 4, CooldownMinutes: 90}, -5.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	streak, _ := s.StreakGet(ctx, "trend")
	if streak != 1 {
		t.Errorf("expected streak 1, got %d", streak)
	}

	active, _, err := s.CooldownActive(ctx, "trend")
	if err != nil {
		t.Fatalf("cooldown active: %v", err)
	}
	if active {
		t.Errorf("expected no cooldown before limit reached")
	}
}

func TestSettle_StreakLimitTriggersCooldown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.StreakSet(ctx, "trend", 3)

	_, err := Settle(ctx, s, "trend", StreakLimits{LossStreakLimit: 4, CooldownMinutes: 90}, -5.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active, _, err := s.CooldownActive(ctx, "trend")
	if err != nil {
		t.Fatalf("cooldown active: %v", err)
	}
	if !active {
		t.Errorf("expected cooldown to start once streak limit reached")
	}
}

func TestSettle_UpdatesDailyPnL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	daily, err := Settle(ctx, s, "trend", StreakLimits{LossStreakLimit: 4, CooldownMinutes: 90}, 10.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if daily.Total != 10 {
		t.Errorf("got daily total %v, want 10", daily.Total)
	}
}
