// Package cfg provides configuration management for the signal relay.
// It supports loading configuration from both a YAML file and environment
// variables, with environment variables taking precedence over YAML
// settings. Validation runs once, at load time, so a misconfigured process
// fails fast at startup rather than mid-request.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"signalrelay/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AllocLev is a single regime-to-allocation map entry: the fraction of
// equity to allocate and the leverage to request.
type AllocLev struct {
	AllocPct float64
	Leverage int
}

// Settings contains all configuration parameters for the relay.
type Settings struct {
	// Venue credentials
	Key     string
	Secret  string
	Testnet bool
	BaseURL string
	RESTTimeout time.Duration
	SpotVenue   bool

	// HTTP surface
	ListenAddr    string
	MetricsPort   int
	RelaySecret   string

	// State store
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DefaultSymbol string

	// Idempotency / fees / slippage
	IdempotencyTTL time.Duration
	MaxSlippage    float64
	FeeBuffer      float64
	TakerFee       float64
	MinNotionalUSDT float64
	MarginBuffer   float64

	// Sizing
	SizingMode      string
	RiskPct         float64
	AllocPct        float64
	LeverageDefault int

	// Regime x strategy allocation/leverage table
	AllocTable map[string]map[string]AllocLev // [strategy][regime]

	// Loss streak / cooldown / drawdown
	LossStreakLimitBull int
	LossStreakLimitBear int
	CooldownMinBull     int
	CooldownMinBear     int
	DailyMaxDDUSDT      float64

	// Macro gate
	FundingAbsMax   float64
	VixURL          string
	VixMax          float64
	AssumeHoldHours float64

	// Equity discovery
	EquityCode   string
	EquitySource string

	// Edge filter
	EdgeFilterEnabled bool
	MinEdgeUSDT       float64
	EdgeRequireTP     bool
	EdgeAllowDeriveTP bool
	EdgeATRTPMultiple float64

	// Order reconciliation
	ReconcileRetries  int
	ReconcileInterval time.Duration
	UseMarkPrice      bool
	PositionMode      string // "oneway" | "hedge"

	// Ambient
	DataPath  string
	LogFormat string
	LogLevel  string
	DryRun    bool
}

// ConfigFile mirrors Settings for YAML loading.
type ConfigFile struct {
	Venue struct {
		Key         string `yaml:"key"`
		Secret      string `yaml:"secret"`
		Testnet     bool   `yaml:"testnet"`
		BaseURL     string `yaml:"baseURL"`
		RESTTimeout string `yaml:"restTimeout"`
		SpotVenue   bool   `yaml:"spotVenue"`
	} `yaml:"venue"`

	HTTP struct {
		ListenAddr  string `yaml:"listenAddr"`
		MetricsPort int    `yaml:"metricsPort"`
		RelaySecret string `yaml:"relaySecret"`
	} `yaml:"http"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Trading struct {
		DefaultSymbol   string  `yaml:"defaultSymbol"`
		IdempotencyTTL  string  `yaml:"idempotencyTTL"`
		MaxSlippage     float64 `yaml:"maxSlippage"`
		FeeBuffer       float64 `yaml:"feeBuffer"`
		TakerFee        float64 `yaml:"takerFee"`
		MinNotionalUSDT float64 `yaml:"minNotionalUSDT"`
		MarginBuffer    float64 `yaml:"marginBuffer"`
		SizingMode      string  `yaml:"sizingMode"`
		RiskPct         float64 `yaml:"riskPct"`
		AllocPct        float64 `yaml:"allocPct"`
		LeverageDefault int     `yaml:"leverageDefault"`
		DryRun          bool    `yaml:"dryRun"`
	} `yaml:"trading"`

	Risk struct {
		LossStreakLimitBull int     `yaml:"lossStreakLimitBull"`
		LossStreakLimitBear int     `yaml:"lossStreakLimitBear"`
		CooldownMinBull     int     `yaml:"cooldownMinBull"`
		CooldownMinBear     int     `yaml:"cooldownMinBear"`
		DailyMaxDDUSDT      float64 `yaml:"dailyMaxDDUSDT"`
	} `yaml:"risk"`

	Macro struct {
		FundingAbsMax   float64 `yaml:"fundingAbsMax"`
		VixURL          string  `yaml:"vixURL"`
		VixMax          float64 `yaml:"vixMax"`
		AssumeHoldHours float64 `yaml:"assumeHoldHours"`
	} `yaml:"macro"`

	Edge struct {
		FilterEnabled bool    `yaml:"filterEnabled"`
		MinEdgeUSDT   float64 `yaml:"minEdgeUSDT"`
		RequireTP     bool    `yaml:"requireTP"`
		AllowDeriveTP bool    `yaml:"allowDeriveTP"`
		ATRTPX        float64 `yaml:"atrTPX"`
	} `yaml:"edge"`

	Order struct {
		ReconcileRetries  int     `yaml:"reconcileRetries"`
		ReconcileInterval float64 `yaml:"reconcileInterval"`
		UseMarkPrice      bool    `yaml:"useMarkPrice"`
		PositionMode      string  `yaml:"positionMode"`
	} `yaml:"order"`

	System struct {
		DataPath  string `yaml:"dataPath"`
		LogFormat string `yaml:"logFormat"`
		LogLevel  string `yaml:"logLevel"`
	} `yaml:"system"`
}

// Load loads configuration from either a YAML file or environment variables.
// It first checks CONFIG_FILE, otherwise falls back to pure-env loading.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cf ConfigFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	key := getEnvOrDefault(common.EnvPhemexAPIKey, cf.Venue.Key)
	secret := getEnvOrDefault(common.EnvPhemexAPISecret, cf.Venue.Secret)
	if key == "" || secret == "" {
		return Settings{}, fmt.Errorf(common.ErrMsgCredentialsRequired)
	}

	s := Settings{
		Key:             key,
		Secret:          secret,
		Testnet:         getBoolFromEnvOrConfig(common.EnvPhemexTestnet, cf.Venue.Testnet),
		BaseURL:         getEnvOrDefault(common.EnvBaseURL, orDefault(cf.Venue.BaseURL, common.DefaultBaseURL)),
		RESTTimeout:     durationFromEnvOrConfig(common.EnvRESTTimeout, cf.Venue.RESTTimeout, 5*time.Second),
		SpotVenue:       getBoolFromEnvOrConfig(common.EnvSpotVenue, cf.Venue.SpotVenue),
		ListenAddr:      getEnvOrDefault(common.EnvListenAddr, orDefault(cf.HTTP.ListenAddr, common.DefaultListenAddr)),
		MetricsPort:     getIntFromEnvOrConfig(common.EnvMetricsPort, cf.HTTP.MetricsPort, common.DefaultMetricsPort),
		RelaySecret:     getEnvOrDefault(common.EnvRelaySecret, cf.HTTP.RelaySecret),
		RedisAddr:       getEnvOrDefault(common.EnvRedisAddr, cf.Redis.Addr),
		RedisPassword:   getEnvOrDefault(common.EnvRedisPassword, cf.Redis.Password),
		RedisDB:         getIntFromEnvOrConfig(common.EnvRedisDB, cf.Redis.DB, 0),
		DefaultSymbol:   getEnvOrDefault(common.EnvDefaultSymbol, orDefault(cf.Trading.DefaultSymbol, common.DefaultDefaultSymbol)),
		IdempotencyTTL:  durationFromEnvSeconds(common.EnvIdempotencyTTL, cf.Trading.IdempotencyTTL, common.DefaultIdempotencyTTLSeconds),
		MaxSlippage:     getFloatFromEnvOrConfigWithDefault(common.EnvMaxSlippage, cf.Trading.MaxSlippage, common.DefaultMaxSlippage),
		FeeBuffer:       getFloatFromEnvOrConfigWithDefault(common.EnvFeeBuffer, cf.Trading.FeeBuffer, common.DefaultFeeBuffer),
		TakerFee:        getFloatFromEnvOrConfigWithDefault(common.EnvTakerFee, cf.Trading.TakerFee, common.DefaultTakerFee),
		MinNotionalUSDT: getFloatFromEnvOrConfigWithDefault(common.EnvMinNotionalUSDT, cf.Trading.MinNotionalUSDT, common.DefaultMinNotionalUSDT),
		MarginBuffer:    getFloatFromEnvOrConfigWithDefault(common.EnvMarginBuffer, cf.Trading.MarginBuffer, common.DefaultMarginBuffer),
		SizingMode:      getEnvOrDefault(common.EnvSizingMode, orDefault(cf.Trading.SizingMode, common.DefaultSizingMode)),
		RiskPct:         getFloatFromEnvOrConfigWithDefault(common.EnvRiskPct, cf.Trading.RiskPct, common.DefaultRiskPct),
		AllocPct:        getFloatFromEnvOrConfigWithDefault(common.EnvAllocPct, cf.Trading.AllocPct, common.DefaultAllocPct),
		LeverageDefault: getIntFromEnvOrConfig(common.EnvLeverageDefault, cf.Trading.LeverageDefault, common.DefaultLeverage),
		DryRun:          resolveDryRun(cf.Trading.DryRun),

		LossStreakLimitBull: getIntFromEnvOrConfig(common.EnvLossStreakLimitBull, cf.Risk.LossStreakLimitBull, common.DefaultLossStreakLimitBull),
		LossStreakLimitBear: getIntFromEnvOrConfig(common.EnvLossStreakLimitBear, cf.Risk.LossStreakLimitBear, common.DefaultLossStreakLimitBear),
		CooldownMinBull:     getIntFromEnvOrConfig(common.EnvCooldownMinBull, cf.Risk.CooldownMinBull, common.DefaultCooldownMinBull),
		CooldownMinBear:     getIntFromEnvOrConfig(common.EnvCooldownMinBear, cf.Risk.CooldownMinBear, common.DefaultCooldownMinBear),
		DailyMaxDDUSDT:      getFloatFromEnvOrConfigWithDefault(common.EnvDailyMaxDDUSDT, cf.Risk.DailyMaxDDUSDT, common.DefaultDailyMaxDDUSDT),

		FundingAbsMax:   getFloatFromEnvOrConfigWithDefault(common.EnvFundingAbsMax, cf.Macro.FundingAbsMax, common.DefaultFundingAbsMax),
		VixURL:          getEnvOrDefault(common.EnvVixURL, cf.Macro.VixURL),
		VixMax:          getFloatFromEnvOrConfigWithDefault(common.EnvVixMax, cf.Macro.VixMax, common.DefaultVixMax),
		AssumeHoldHours: resolveHoldingHours(cf.Macro.AssumeHoldHours),

		EquityCode:   getEnvOrDefault(common.EnvEquityCode, common.DefaultEquityCode),
		EquitySource: getEnvOrDefault(common.EnvEquitySource, common.DefaultEquitySource),

		EdgeFilterEnabled: getBoolFromEnvOrConfig(common.EnvEdgeFilterEnabled, orDefaultBool(cf.Edge.FilterEnabled, common.DefaultEdgeFilterEnabled)),
		MinEdgeUSDT:       getFloatFromEnvOrConfigWithDefault(common.EnvMinEdgeUSDT, cf.Edge.MinEdgeUSDT, common.DefaultMinEdgeUSDT),
		EdgeRequireTP:     getBoolFromEnvOrConfig(common.EnvEdgeRequireTP, cf.Edge.RequireTP),
		EdgeAllowDeriveTP: getBoolFromEnvOrConfig(common.EnvEdgeAllowDeriveTP, orDefaultBool(cf.Edge.AllowDeriveTP, common.DefaultEdgeAllowDeriveTP)),
		EdgeATRTPMultiple: getFloatFromEnvOrConfigWithDefault(common.EnvEdgeATRTPMultiple, cf.Edge.ATRTPX, common.DefaultEdgeATRTPMultiple),

		ReconcileRetries:  getIntFromEnvOrConfig(common.EnvReconcileRetries, cf.Order.ReconcileRetries, common.DefaultReconcileRetries),
		ReconcileInterval: durationFromEnvSecondsFloat(common.EnvReconcileInterval, cf.Order.ReconcileInterval, common.DefaultReconcileInterval),
		UseMarkPrice:      getBoolFromEnvOrConfig(common.EnvUseMarkPrice, orDefaultBool(cf.Order.UseMarkPrice, common.DefaultUseMarkPrice)),
		PositionMode:      getEnvOrDefault(common.EnvPositionMode, orDefault(cf.Order.PositionMode, common.DefaultPositionMode)),

		DataPath:  getEnvOrDefault(common.EnvDataPath, cf.System.DataPath),
		LogFormat: getEnvOrDefault(common.EnvLogFormat, orDefault(cf.System.LogFormat, "json")),
		LogLevel:  getEnvOrDefault(common.EnvLogLevel, orDefault(cf.System.LogLevel, "info")),
	}
	s.AllocTable = loadAllocTable()

	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func loadFromEnv() (Settings, error) {
	key, err := getEnvRequired(common.EnvPhemexAPIKey)
	if err != nil {
		return Settings{}, err
	}
	secret, err := getEnvRequired(common.EnvPhemexAPISecret)
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Key:             key,
		Secret:          secret,
		Testnet:         getBoolOrDefault(common.EnvPhemexTestnet, true),
		BaseURL:         getEnvOrDefault(common.EnvBaseURL, common.DefaultBaseURL),
		RESTTimeout:     getDurationOrDefault(common.EnvRESTTimeout, 5*time.Second),
		SpotVenue:       getBoolOrDefault(common.EnvSpotVenue, common.DefaultSpotVenue),
		ListenAddr:      getEnvOrDefault(common.EnvListenAddr, common.DefaultListenAddr),
		MetricsPort:     getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		RelaySecret:     os.Getenv(common.EnvRelaySecret),
		RedisAddr:       os.Getenv(common.EnvRedisAddr),
		RedisPassword:   os.Getenv(common.EnvRedisPassword),
		RedisDB:         getIntOrDefault(common.EnvRedisDB, 0),
		DefaultSymbol:   getEnvOrDefault(common.EnvDefaultSymbol, common.DefaultDefaultSymbol),
		IdempotencyTTL:  time.Duration(getIntOrDefault(common.EnvIdempotencyTTL, common.DefaultIdempotencyTTLSeconds)) * time.Second,
		MaxSlippage:     getFloatOrDefault(common.EnvMaxSlippage, common.DefaultMaxSlippage),
		FeeBuffer:       getFloatOrDefault(common.EnvFeeBuffer, common.DefaultFeeBuffer),
		TakerFee:        getFloatOrDefault(common.EnvTakerFee, common.DefaultTakerFee),
		MinNotionalUSDT: getFloatOrDefault(common.EnvMinNotionalUSDT, common.DefaultMinNotionalUSDT),
		MarginBuffer:    getFloatOrDefault(common.EnvMarginBuffer, common.DefaultMarginBuffer),
		SizingMode:      getEnvOrDefault(common.EnvSizingMode, common.DefaultSizingMode),
		RiskPct:         getFloatOrDefault(common.EnvRiskPct, common.DefaultRiskPct),
		AllocPct:        getFloatOrDefault(common.EnvAllocPct, common.DefaultAllocPct),
		LeverageDefault: getIntOrDefault(common.EnvLeverageDefault, common.DefaultLeverage),
		DryRun:          resolveDryRun(true),

		LossStreakLimitBull: getIntOrDefault(common.EnvLossStreakLimitBull, common.DefaultLossStreakLimitBull),
		LossStreakLimitBear: getIntOrDefault(common.EnvLossStreakLimitBear, common.DefaultLossStreakLimitBear),
		CooldownMinBull:     getIntOrDefault(common.EnvCooldownMinBull, common.DefaultCooldownMinBull),
		CooldownMinBear:     getIntOrDefault(common.EnvCooldownMinBear, common.DefaultCooldownMinBear),
		DailyMaxDDUSDT:      getFloatOrDefault(common.EnvDailyMaxDDUSDT, common.DefaultDailyMaxDDUSDT),

		FundingAbsMax:   getFloatOrDefault(common.EnvFundingAbsMax, common.DefaultFundingAbsMax),
		VixURL:          os.Getenv(common.EnvVixURL),
		VixMax:          getFloatOrDefault(common.EnvVixMax, common.DefaultVixMax),
		AssumeHoldHours: resolveHoldingHours(0),

		EquityCode:   getEnvOrDefault(common.EnvEquityCode, common.DefaultEquityCode),
		EquitySource: getEnvOrDefault(common.EnvEquitySource, common.DefaultEquitySource),

		EdgeFilterEnabled: getBoolOrDefault(common.EnvEdgeFilterEnabled, common.DefaultEdgeFilterEnabled),
		MinEdgeUSDT:       getFloatOrDefault(common.EnvMinEdgeUSDT, common.DefaultMinEdgeUSDT),
		EdgeRequireTP:     getBoolOrDefault(common.EnvEdgeRequireTP, common.DefaultEdgeRequireTP),
		EdgeAllowDeriveTP: getBoolOrDefault(common.EnvEdgeAllowDeriveTP, common.DefaultEdgeAllowDeriveTP),
		EdgeATRTPMultiple: getFloatOrDefault(common.EnvEdgeATRTPMultiple, common.DefaultEdgeATRTPMultiple),

		ReconcileRetries:  getIntOrDefault(common.EnvReconcileRetries, common.DefaultReconcileRetries),
		ReconcileInterval: durationFromSecondsFloat(getFloatOrDefault(common.EnvReconcileInterval, common.DefaultReconcileInterval)),
		UseMarkPrice:      getBoolOrDefault(common.EnvUseMarkPrice, common.DefaultUseMarkPrice),
		PositionMode:      getEnvOrDefault(common.EnvPositionMode, common.DefaultPositionMode),

		DataPath:  os.Getenv(common.EnvDataPath),
		LogFormat: getEnvOrDefault(common.EnvLogFormat, "json"),
		LogLevel:  getEnvOrDefault(common.EnvLogLevel, "info"),
	}
	s.AllocTable = loadAllocTable()

	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

// loadAllocTable builds the §4.5 regime-to-allocation map from environment
// overrides layered over the spec's documented defaults.
func loadAllocTable() map[string]map[string]AllocLev {
	return map[string]map[string]AllocLev{
		"bull": {
			"bull":    {getFloatOrDefault(common.EnvAllocBullBull, common.DefaultAllocBullBull), getIntOrDefault(common.EnvLevBullBull, common.DefaultLevBullBull)},
			"neutral": {getFloatOrDefault(common.EnvAllocBullNeutral, common.DefaultAllocBullNeutral), getIntOrDefault(common.EnvLevBullNeutral, common.DefaultLevBullNeutral)},
			"bear":    {getFloatOrDefault(common.EnvAllocBullBear, common.DefaultAllocBullBear), getIntOrDefault(common.EnvLevBullBear, common.DefaultLevBullBear)},
		},
		"bear": {
			"bull":    {getFloatOrDefault(common.EnvAllocBearBull, common.DefaultAllocBearBull), getIntOrDefault(common.EnvLevBearBull, common.DefaultLevBearBull)},
			"neutral": {getFloatOrDefault(common.EnvAllocBearNeutral, common.DefaultAllocBearNeutral), getIntOrDefault(common.EnvLevBearNeutral, common.DefaultLevBearNeutral)},
			"bear":    {getFloatOrDefault(common.EnvAllocBearBear, common.DefaultAllocBearBear), getIntOrDefault(common.EnvLevBearBear, common.DefaultLevBearBear)},
		},
	}
}

// AllocFor resolves the (allocPct, leverage) pair for a strategy/regime pair,
// falling back to the configured defaults for an unrecognized strategy.
func (s *Settings) AllocFor(strategy, regime string) AllocLev {
	if table, ok := s.AllocTable[strategy]; ok {
		if al, ok := table[regime]; ok {
			return al
		}
	}
	return AllocLev{AllocPct: s.AllocPct, Leverage: s.LeverageDefault}
}

// resolveDryRun honors an explicit FORCE_LIVE_TRADING=true override; absent
// that, it falls back to the configured/default dry-run posture.
func resolveDryRun(configuredDryRun bool) bool {
	if os.Getenv(common.EnvForceLive) == "true" {
		return false
	}
	return configuredDryRun
}

// resolveHoldingHours prefers HOLDING_HOURS_EST over ASSUME_HOLD_HOURS per
// the spec's §9 synonym resolution, falling back to a yaml-supplied value.
func resolveHoldingHours(yamlValue float64) float64 {
	if v := os.Getenv(common.EnvHoldingHoursEst); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	if v := os.Getenv(common.EnvAssumeHoldHours); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	if yamlValue != 0 {
		return yamlValue
	}
	return common.DefaultAssumeHoldHours
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultBool(v, def bool) bool {
	if v {
		return v
	}
	return def
}

func getDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func durationFromEnvOrConfig(key, yamlValue string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if yamlValue != "" {
		if d, err := time.ParseDuration(yamlValue); err == nil {
			return d
		}
	}
	return def
}

func durationFromEnvSeconds(key string, yamlSeconds string, defSeconds int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	if yamlSeconds != "" {
		if i, err := strconv.Atoi(yamlSeconds); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return time.Duration(defSeconds) * time.Second
}

func durationFromEnvSecondsFloat(key string, yamlSeconds float64, defSeconds float64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return durationFromSecondsFloat(f)
		}
	}
	if yamlSeconds != 0 {
		return durationFromSecondsFloat(yamlSeconds)
	}
	return durationFromSecondsFloat(defSeconds)
}

func durationFromSecondsFloat(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func getIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getIntFromEnvOrConfig(key string, configValue, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}

func getFloatFromEnvOrConfigWithDefault(key string, configValue, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values.
func validateSettings(s *Settings) error {
	if err := validateCredentials(s); err != nil {
		return err
	}
	if err := validateURLs(s); err != nil {
		return err
	}
	if err := validateStateStore(s); err != nil {
		return err
	}
	if err := validateTradingParameters(s); err != nil {
		return err
	}
	if err := validateLiveTradingRestrictions(s); err != nil {
		return err
	}
	return nil
}

func validateCredentials(s *Settings) error {
	if s.Key == "" || s.Secret == "" {
		return fmt.Errorf(common.ErrMsgCredentialsRequired)
	}
	return nil
}

func validateURLs(s *Settings) error {
	if s.BaseURL == "" {
		return fmt.Errorf(common.ErrMsgBaseURLRequired)
	}
	return nil
}

func validateStateStore(s *Settings) error {
	if s.RedisAddr == "" {
		return fmt.Errorf(common.ErrMsgRedisAddrRequired)
	}
	return nil
}

func validateTradingParameters(s *Settings) error {
	if s.MaxSlippage <= 0 {
		return fmt.Errorf("maxSlippage must be positive")
	}
	if s.FeeBuffer < 0 || s.FeeBuffer >= 1 {
		return fmt.Errorf("feeBuffer must be in [0,1)")
	}
	if s.TakerFee < 0 {
		return fmt.Errorf("takerFee must be non-negative")
	}
	if s.MinNotionalUSDT < 0 {
		return fmt.Errorf("minNotionalUSDT must be non-negative")
	}
	if s.MarginBuffer <= 0 || s.MarginBuffer > 1 {
		return fmt.Errorf("marginBuffer must be in (0,1]")
	}
	switch s.SizingMode {
	case "risk", "notional", "fixed":
	default:
		return fmt.Errorf("sizingMode must be one of risk, notional, fixed")
	}
	if s.LeverageDefault <= 0 {
		return fmt.Errorf("leverageDefault must be positive")
	}
	if s.ReconcileRetries <= 0 {
		return fmt.Errorf("reconcileRetries must be positive")
	}
	if s.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcileInterval must be positive")
	}
	switch s.PositionMode {
	case "oneway", "hedge":
	default:
		return fmt.Errorf("positionMode must be oneway or hedge")
	}
	return nil
}

func validateLiveTradingRestrictions(s *Settings) error {
	if !s.DryRun {
		if os.Getenv(common.EnvForceLive) != "true" {
			return fmt.Errorf(common.ErrMsgForceLiveRequired)
		}
	}
	return nil
}
