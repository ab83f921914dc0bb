// Package state implements the relay's shared state store: idempotency
// claims, loss-streak counters, cooldown windows, and daily PnL/drawdown
// bookkeeping, all backed by Redis.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"signalrelay/internal/common"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Store wraps a Redis client with the relay's state operations.
type Store struct {
	rdb *redis.Client
}

// DailyPnL is a snapshot of the current UTC day's running total, peak, and
// drawdown.
type DailyPnL struct {
	Total float64
	Peak  float64
	DD    float64
}

// OpenEntry is the minimal position snapshot needed to compute realized PnL
// when the position is later closed.
type OpenEntry struct {
	Strategy string  `json:"strategy"`
	Side     string  `json:"side"`
	Entry    float64 `json:"entry"`
	Amount   float64 `json:"amount"`
}

// New connects to Redis and blocks until the server answers PING, retrying
// common.StoreConnectAttempts times at common.StoreConnectInterval apart.
func New(addr, password string, db int) (*Store, error) {
	interval, err := time.ParseDuration(common.StoreConnectInterval)
	if err != nil {
		interval = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	var lastErr error
	for attempt := 1; attempt <= common.StoreConnectAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = rdb.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &Store{rdb: rdb}, nil
		}
		log.Warn().Err(lastErr).Int("attempt", attempt).Msg("redis ping failed, retrying")
		time.Sleep(interval)
	}
	return nil, fmt.Errorf("failed to connect to redis at %s after %d attempts: %w", addr, common.StoreConnectAttempts, lastErr)
}

// Ping reports whether the store is currently reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// ErrMissingID is returned when ClaimIdempotency is called with an empty id.
var ErrMissingID = errors.New("idempotency id is required")

// ClaimIdempotency atomically claims the given signal id for ttl. It
// returns true if this call won the claim, false if the id was already
// claimed (a duplicate delivery).
func (s *Store) ClaimIdempotency(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if id == "" {
		return false, ErrMissingID
	}
	key := common.KeyPrefixIdempotency + id
	ok, err := s.rdb.SetNX(ctx, key, nowMillis(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency claim failed: %w", err)
	}
	return ok, nil
}

// ReleaseIdempotency releases a previously claimed id so a later retry of
// the same signal can be reprocessed; used on every rejection path so a
// webhook's legitimate resubmission isn't locked out.
func (s *Store) ReleaseIdempotency(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.rdb.Del(ctx, common.KeyPrefixIdempotency+id).Err()
}

// StreakGet returns the current consecutive-loss count for a strategy.
func (s *Store) StreakGet(ctx context.Context, strategy string) (int, error) {
	v, err := s.rdb.Get(ctx, common.KeyPrefixStreak+strategy).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("streak lookup failed: %w", err)
	}
	return v, nil
}

// StreakSet stores the consecutive-loss count for a strategy.
func (s *Store) StreakSet(ctx context.Context, strategy string, value int) error {
	return s.rdb.Set(ctx, common.KeyPrefixStreak+strategy, value, common.TTLStreak*time.Second).Err()
}

// CooldownActive reports whether a strategy is currently in its post-losing-streak
// cooldown window, and until when.
func (s *Store) CooldownActive(ctx context.Context, strategy string) (bool, time.Time, error) {
	v, err := s.rdb.Get(ctx, common.KeyPrefixCooldownUntil+strategy).Int64()
	if errors.Is(err, redis.Nil) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("cooldown lookup failed: %w", err)
	}
	until := time.UnixMilli(v)
	return time.Now().Before(until), until, nil
}

// CooldownStart begins a cooldown window of the given duration for a strategy.
func (s *Store) CooldownStart(ctx context.Context, strategy string, minutes int) error {
	until := nowMillis() + int64(minutes)*60*1000
	return s.rdb.Set(ctx, common.KeyPrefixCooldownUntil+strategy, until, common.TTLCooldown*time.Second).Err()
}

// UpdateDailyPnL adds deltaUSDT to the current UTC day's running total,
// updates the non-decreasing peak, and recomputes the drawdown (always
// <= 0, since it's measured against the day's own peak).
func (s *Store) UpdateDailyPnL(ctx context.Context, deltaUSDT float64) (DailyPnL, error) {
	dk := dayKey()
	totalKey := common.KeyPrefixDayPnLTotal + dk
	peakKey := common.KeyPrefixDayPeak + dk
	ddKey := common.KeyPrefixDayDD + dk
	ttl := time.Duration(common.TTLDayBucket) * time.Second

	cur, err := s.getFloatOrZero(ctx, totalKey)
	if err != nil {
		return DailyPnL{}, err
	}
	cur += deltaUSDT
	if err := s.rdb.Set(ctx, totalKey, cur, ttl).Err(); err != nil {
		return DailyPnL{}, fmt.Errorf("failed to persist daily pnl: %w", err)
	}

	peak, err := s.getFloatOrZero(ctx, peakKey)
	if err != nil {
		return DailyPnL{}, err
	}
	if cur > peak {
		peak = cur
	}
	if err := s.rdb.Set(ctx, peakKey, peak, ttl).Err(); err != nil {
		return DailyPnL{}, fmt.Errorf("failed to persist daily peak: %w", err)
	}

	dd := cur - peak
	if err := s.rdb.Set(ctx, ddKey, dd, ttl).Err(); err != nil {
		return DailyPnL{}, fmt.Errorf("failed to persist daily drawdown: %w", err)
	}

	return DailyPnL{Total: cur, Peak: peak, DD: dd}, nil
}

// DailyDrawdownBlocked reports whether the current day's drawdown has
// breached limitUSDT. A non-positive limit disables the check.
func (s *Store) DailyDrawdownBlocked(ctx context.Context, limitUSDT float64) (bool, DailyPnL, error) {
	if limitUSDT <= 0 {
		return false, DailyPnL{}, nil
	}
	dk := dayKey()
	cur, err := s.getFloatOrZero(ctx, common.KeyPrefixDayPnLTotal+dk)
	if err != nil {
		return false, DailyPnL{}, err
	}
	peak, err := s.getFloatOrZero(ctx, common.KeyPrefixDayPeak+dk)
	if err != nil {
		return false, DailyPnL{}, err
	}
	dd := cur - peak
	blocked := dd <= -absFloat(limitUSDT)
	return blocked, DailyPnL{Total: cur, Peak: peak, DD: dd}, nil
}

// OpenEntrySave records a position snapshot for a strategy so its realized
// PnL can be computed when it's later closed.
func (s *Store) OpenEntrySave(ctx context.Context, strategy string, entry OpenEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal open entry: %w", err)
	}
	return s.rdb.Set(ctx, common.KeyPrefixOpenEntry+strategy, data, common.TTLOpenEntry*time.Second).Err()
}

// OpenEntryPop retrieves and deletes a strategy's open-entry snapshot. It
// returns ok=false if no snapshot was recorded.
func (s *Store) OpenEntryPop(ctx context.Context, strategy string) (OpenEntry, bool, error) {
	key := common.KeyPrefixOpenEntry + strategy
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return OpenEntry{}, false, nil
	}
	if err != nil {
		return OpenEntry{}, false, fmt.Errorf("open entry lookup failed: %w", err)
	}

	var entry OpenEntry
	if err := json.Unmarshal([]byte(v), &entry); err != nil {
		log.Warn().Err(err).Str("strategy", strategy).Msg("open entry snapshot was corrupt, discarding")
		_ = s.rdb.Del(ctx, key).Err()
		return OpenEntry{}, false, nil
	}

	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return OpenEntry{}, false, fmt.Errorf("failed to delete open entry: %w", err)
	}
	return entry, true, nil
}

func (s *Store) getFloatOrZero(ctx context.Context, key string) (float64, error) {
	v, err := s.rdb.Get(ctx, key).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func dayKey() string {
	return time.Now().UTC().Format("20060102")
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
