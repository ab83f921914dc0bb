package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Store{rdb: rdb}
}

func TestClaimIdempotency_FirstClaimWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.ClaimIdempotency(ctx, "sig-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first claim to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = s.ClaimIdempotency(ctx, "sig-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected duplicate claim to fail")
	}
}

func TestClaimIdempotency_MissingID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ClaimIdempotency(context.Background(), "", time.Minute); err != ErrMissingID {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestReleaseIdempotency_AllowsReclaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ClaimIdempotency(ctx, "sig-2", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.ReleaseIdempotency(ctx, "sig-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := s.ClaimIdempotency(ctx, "sig-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected reclaim to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestStreak_GetSetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.StreakGet(ctx, "bull")
	if err != nil || got != 0 {
		t.Fatalf("expected default streak 0, got %d err=%v", got, err)
	}

	if err := s.StreakSet(ctx, "bull", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err = s.StreakGet(ctx, "bull")
	if err != nil || got != 3 {
		t.Fatalf("expected streak 3, got %d err=%v", got, err)
	}
}

func TestCooldown_StartAndActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active, _, err := s.CooldownActive(ctx, "bear")
	if err != nil || active {
		t.Fatalf("expected no cooldown initially, active=%v err=%v", active, err)
	}

	if err := s.CooldownStart(ctx, "bear", 90); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, until, err := s.CooldownActive(ctx, "bear")
	if err != nil || !active {
		t.Fatalf("expected active cooldown, active=%v err=%v", active, err)
	}
	if until.Before(time.Now()) {
		t.Errorf("expected cooldown to expire in the future, got %v", until)
	}
}

func TestUpdateDailyPnL_PeakAndDrawdown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap, err := s.UpdateDailyPnL(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Total != 10 || snap.Peak != 10 || snap.DD != 0 {
		t.Errorf("unexpected snapshot after first update: %+v", snap)
	}

	snap, err = s.UpdateDailyPnL(ctx, -4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Total != 6 {
		t.Errorf("expected total 6, got %v", snap.Total)
	}
	if snap.Peak != 10 {
		t.Errorf("expected peak to remain 10 (non-decreasing), got %v", snap.Peak)
	}
	if snap.DD != -4 {
		t.Errorf("expected dd -4, got %v", snap.DD)
	}
	if snap.DD > 0 {
		t.Errorf("drawdown invariant violated: dd must be <= 0, got %v", snap.DD)
	}
}

func TestDailyDrawdownBlocked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpdateDailyPnL(ctx, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.UpdateDailyPnL(ctx, -8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blocked, _, err := s.DailyDrawdownBlocked(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !blocked {
		t.Errorf("expected drawdown of -8 to breach a 5 USDT limit")
	}

	blocked, _, err = s.DailyDrawdownBlocked(ctx, 0)
	if err != nil || blocked {
		t.Errorf("expected disabled check (limit<=0) to never block, got blocked=%v err=%v", blocked, err)
	}
}

func TestOpenEntry_SaveAndPop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.OpenEntryPop(ctx, "bull")
	if err != nil || ok {
		t.Fatalf("expected no entry initially, ok=%v err=%v", ok, err)
	}

	entry := OpenEntry{Strategy: "bull", Side: "buy", Entry: 100.5, Amount: 2}
	if err := s.OpenEntrySave(ctx, "bull", entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := s.OpenEntryPop(ctx, "bull")
	if err != nil || !ok {
		t.Fatalf("expected entry to be found, ok=%v err=%v", ok, err)
	}
	if got != entry {
		t.Errorf("got %+v, want %+v", got, entry)
	}

	_, ok, err = s.OpenEntryPop(ctx, "bull")
	if err != nil || ok {
		t.Fatalf("expected entry to be consumed after pop, ok=%v err=%v", ok, err)
	}
}
