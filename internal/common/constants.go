// Package common holds environment variable names and default values shared
// across the relay's configuration and validation code.
package common

// Environment variable keys
const (
	EnvPhemexAPIKey   = "PHEMEX_API_KEY"
	EnvPhemexAPISecret = "PHEMEX_API_SECRET"
	EnvPhemexTestnet  = "PHEMEX_TESTNET"
	EnvBaseURL        = "BASE_URL"
	EnvRESTTimeout    = "REST_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvListenAddr   = "LISTEN_ADDR"
	EnvMetricsPort  = "METRICS_PORT"
	EnvRelaySecret  = "RELAY_SHARED_SECRET"

	EnvDefaultSymbol = "DEFAULT_SYMBOL"
	EnvSpotVenue     = "SPOT_VENUE"

	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxSlippage    = "MAX_SLIPPAGE"
	EnvFeeBuffer      = "FEE_BUFFER"
	EnvTakerFee       = "TAKER_FEE"
	EnvMinNotionalUSDT = "MIN_NOTIONAL_USDT"
	EnvMarginBuffer   = "MARGIN_BUFFER"

	EnvSizingMode = "SIZING_MODE"
	EnvRiskPct    = "RISK_PCT"
	EnvAllocPct   = "ALLOC_PCT"
	EnvLeverageDefault = "LEVERAGE_DEFAULT"

	EnvAllocBullBull = "ALLOC_BULL_BULL"
	EnvLevBullBull   = "LEV_BULL_BULL"
	EnvAllocBullNeutral = "ALLOC_BULL_NEUTRAL"
	EnvLevBullNeutral   = "LEV_BULL_NEUTRAL"
	EnvAllocBullBear = "ALLOC_BULL_BEAR"
	EnvLevBullBear   = "LEV_BULL_BEAR"

	EnvAllocBearBull = "ALLOC_BEAR_BULL"
	EnvLevBearBull   = "LEV_BEAR_BULL"
	EnvAllocBearNeutral = "ALLOC_BEAR_NEUTRAL"
	EnvLevBearNeutral   = "LEV_BEAR_NEUTRAL"
	EnvAllocBearBear = "ALLOC_BEAR_BEAR"
	EnvLevBearBear   = "LEV_BEAR_BEAR"

	EnvLossStreakLimitBull = "LOSS_STREAK_LIMIT_BULL"
	EnvLossStreakLimitBear = "LOSS_STREAK_LIMIT_BEAR"
	EnvCooldownMinBull     = "COOLDOWN_MIN_BULL"
	EnvCooldownMinBear     = "COOLDOWN_MIN_BEAR"
	EnvDailyMaxDDUSDT      = "DAILY_MAX_DD_USDT"

	EnvFundingAbsMax = "FUNDING_ABS_MAX"
	EnvVixURL        = "VIX_URL"
	EnvVixMax        = "VIX_MAX"
	EnvAssumeHoldHours = "ASSUME_HOLD_HOURS"
	EnvHoldingHoursEst = "HOLDING_HOURS_EST"

	EnvEquityCode   = "EQUITY_CODE"
	EnvEquitySource = "EQUITY_SOURCE"

	EnvEdgeFilterEnabled  = "EDGE_FILTER_ENABLED"
	EnvMinEdgeUSDT        = "MIN_EDGE_USDT"
	EnvEdgeRequireTP      = "EDGE_REQUIRE_TP"
	EnvEdgeAllowDeriveTP  = "EDGE_ALLOW_DERIVE_TP"
	EnvEdgeATRTPMultiple  = "EDGE_ATR_TP_X"

	EnvReconcileRetries  = "RECONCILE_RETRIES"
	EnvReconcileInterval = "RECONCILE_INTERVAL"
	EnvUseMarkPrice      = "USE_MARK_PRICE"
	EnvPositionMode      = "PHEMEX_POSITION_MODE"

	EnvDataPath     = "DATA_PATH"
	EnvConfigFile   = "CONFIG_FILE"
	EnvForceLive    = "FORCE_LIVE_TRADING"
	EnvLogFormat    = "LOG_FORMAT"
	EnvLogLevel     = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultBaseURL        = "https://testnet-api.phemex.com"
	DefaultRESTTimeout    = "5s"
	DefaultListenAddr     = ":8090"
	DefaultMetricsPort    = 9090
	DefaultDefaultSymbol  = "BTC/USDT:USDT"

	DefaultIdempotencyTTLSeconds = 900
	DefaultMaxSlippage           = 0.004
	DefaultFeeBuffer             = 0.003
	DefaultTakerFee              = 0.0006
	DefaultMinNotionalUSDT       = 5.0
	DefaultMarginBuffer          = 0.98

	DefaultSizingMode      = "notional"
	DefaultRiskPct         = 0.004
	DefaultAllocPct        = 0.50
	DefaultLeverage        = 20

	DefaultAllocBullBull    = 0.50
	DefaultLevBullBull      = 20
	DefaultAllocBullNeutral = 0.25
	DefaultLevBullNeutral   = 10
	DefaultAllocBullBear    = 0.10
	DefaultLevBullBear      = 5

	DefaultAllocBearBull    = 0.10
	DefaultLevBearBull      = 5
	DefaultAllocBearNeutral = 0.25
	DefaultLevBearNeutral   = 10
	DefaultAllocBearBear    = 0.50
	DefaultLevBearBear      = 20

	DefaultLossStreakLimitBull = 5
	DefaultLossStreakLimitBear = 4
	DefaultCooldownMinBull     = 90
	DefaultCooldownMinBear     = 120
	DefaultDailyMaxDDUSDT      = 0.0

	DefaultFundingAbsMax    = 0.0003
	DefaultVixMax           = 30.0
	DefaultAssumeHoldHours  = 2.0

	DefaultEquityCode   = "USDT"
	DefaultEquitySource = "free"

	DefaultEdgeFilterEnabled = true
	DefaultMinEdgeUSDT       = 0.0
	DefaultEdgeRequireTP     = false
	DefaultEdgeAllowDeriveTP = true
	DefaultEdgeATRTPMultiple = 3.0

	DefaultReconcileRetries  = 8
	DefaultReconcileInterval = 1.5
	DefaultUseMarkPrice      = true
	DefaultPositionMode      = "oneway"

	DefaultSpotVenue = false
)

// State store key prefixes and TTLs
const (
	KeyPrefixIdempotency   = "idemp:"
	KeyPrefixStreak        = "streak:"
	KeyPrefixCooldownUntil = "cooldown_until:"
	KeyPrefixDayPnLTotal   = "day:pnltotal:"
	KeyPrefixDayPeak       = "day:peak:"
	KeyPrefixDayDD         = "day:dd:"
	KeyPrefixOpenEntry     = "pos:"

	TTLStreak    = 7 * 24 * 3600    // seconds
	TTLCooldown  = 48 * 3600        // seconds
	TTLDayBucket = 3 * 24 * 3600    // seconds
	TTLOpenEntry = 7 * 24 * 3600    // seconds

	StoreConnectAttempts = 10
	StoreConnectInterval = "2s"
)

// Common error messages
const (
	ErrMsgCredentialsRequired = "PHEMEX_API_KEY and PHEMEX_API_SECRET are required"
	ErrMsgBaseURLRequired     = "baseURL is required"
	ErrMsgForceLiveRequired   = "live trading requires FORCE_LIVE_TRADING=true environment variable"
	ErrMsgRedisAddrRequired   = "REDIS_ADDR is required"
)
