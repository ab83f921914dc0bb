package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"signalrelay/internal/common"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name: "valid config with required fields",
			envVars: map[string]string{
				common.EnvPhemexAPIKey:    "test_key",
				common.EnvPhemexAPISecret: "test_secret",
				common.EnvRedisAddr:       "localhost:6379",
				common.EnvForceLive:       "true",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "test_key" {
					t.Errorf("expected Key to be 'test_key', got %s", settings.Key)
				}
				if settings.Secret != "test_secret" {
					t.Errorf("expected Secret to be 'test_secret', got %s", settings.Secret)
				}
				if settings.BaseURL != common.DefaultBaseURL {
					t.Errorf("expected default BaseURL, got %s", settings.BaseURL)
				}
				if settings.SizingMode != common.DefaultSizingMode {
					t.Errorf("expected default SizingMode, got %s", settings.SizingMode)
				}
				if settings.RESTTimeout != 5*time.Second {
					t.Errorf("expected default RESTTimeout 5s, got %v", settings.RESTTimeout)
				}
			},
		},
		{
			name: "custom sizing and reconcile settings",
			envVars: map[string]string{
				common.EnvPhemexAPIKey:        "test_key",
				common.EnvPhemexAPISecret:     "test_secret",
				common.EnvRedisAddr:           "localhost:6379",
				common.EnvSizingMode:          "risk",
				common.EnvRiskPct:             "0.01",
				common.EnvMetricsPort:         "9191",
				common.EnvMaxSlippage:         "0.01",
				common.EnvReconcileRetries:    "4",
				common.EnvReconcileInterval:   "2.0",
				common.EnvForceLive:           "true",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.SizingMode != "risk" {
					t.Errorf("expected SizingMode 'risk', got %s", settings.SizingMode)
				}
				if settings.RiskPct != 0.01 {
					t.Errorf("expected RiskPct 0.01, got %f", settings.RiskPct)
				}
				if settings.MetricsPort != 9191 {
					t.Errorf("expected MetricsPort 9191, got %d", settings.MetricsPort)
				}
				if settings.MaxSlippage != 0.01 {
					t.Errorf("expected MaxSlippage 0.01, got %f", settings.MaxSlippage)
				}
				if settings.ReconcileRetries != 4 {
					t.Errorf("expected ReconcileRetries 4, got %d", settings.ReconcileRetries)
				}
				if settings.ReconcileInterval != 2*time.Second {
					t.Errorf("expected ReconcileInterval 2s, got %v", settings.ReconcileInterval)
				}
			},
		},
		{
			name: "missing API key",
			envVars: map[string]string{
				common.EnvPhemexAPISecret: "test_secret",
				common.EnvRedisAddr:       "localhost:6379",
			},
			wantErr: true,
		},
		{
			name: "missing secret key",
			envVars: map[string]string{
				common.EnvPhemexAPIKey: "test_key",
				common.EnvRedisAddr:    "localhost:6379",
			},
			wantErr: true,
		},
		{
			name:    "missing everything",
			envVars: map[string]string{},
			wantErr: true,
		},
		{
			name: "missing redis addr",
			envVars: map[string]string{
				common.EnvPhemexAPIKey:    "test_key",
				common.EnvPhemexAPISecret: "test_secret",
			},
			wantErr: true,
		},
		{
			name: "live trading requires FORCE_LIVE_TRADING",
			envVars: map[string]string{
				common.EnvPhemexAPIKey:    "test_key",
				common.EnvPhemexAPISecret: "test_secret",
				common.EnvRedisAddr:       "localhost:6379",
			},
			wantErr: false, // defaults to DryRun=true, so this should NOT error
			validate: func(t *testing.T, settings Settings) {
				if !settings.DryRun {
					t.Errorf("expected DryRun=true without FORCE_LIVE_TRADING")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name        string
		yamlContent string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
venue:
  key: "yaml_key"
  secret: "yaml_secret"
  baseURL: "https://testnet-api.phemex.com"
  restTimeout: "10s"

redis:
  addr: "localhost:6379"

trading:
  defaultSymbol: "ETH/USDT:USDT"
  sizingMode: "notional"
  allocPct: 0.4
  leverageDefault: 10

order:
  reconcileRetries: 6
  reconcileInterval: 2.5
  positionMode: "hedge"

system:
  logFormat: "console"
  logLevel: "debug"
`,
			envOverrides: map[string]string{common.EnvForceLive: "true"},
			wantErr:      false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "yaml_key" {
					t.Errorf("expected Key 'yaml_key', got %s", settings.Key)
				}
				if settings.RESTTimeout != 10*time.Second {
					t.Errorf("expected RESTTimeout 10s, got %v", settings.RESTTimeout)
				}
				if settings.DefaultSymbol != "ETH/USDT:USDT" {
					t.Errorf("expected DefaultSymbol override, got %s", settings.DefaultSymbol)
				}
				if settings.AllocPct != 0.4 {
					t.Errorf("expected AllocPct 0.4, got %f", settings.AllocPct)
				}
				if settings.PositionMode != "hedge" {
					t.Errorf("expected PositionMode hedge, got %s", settings.PositionMode)
				}
			},
		},
		{
			name: "YAML with env overrides",
			yamlContent: `
venue:
  key: "yaml_key"
  secret: "yaml_secret"
redis:
  addr: "localhost:6379"
trading:
  sizingMode: "notional"
`,
			envOverrides: map[string]string{
				common.EnvPhemexAPIKey: "env_key",
				common.EnvSizingMode:   "fixed",
				common.EnvForceLive:    "true",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "env_key" {
					t.Errorf("expected env override Key 'env_key', got %s", settings.Key)
				}
				if settings.Secret != "yaml_secret" {
					t.Errorf("expected YAML Secret 'yaml_secret', got %s", settings.Secret)
				}
				if settings.SizingMode != "fixed" {
					t.Errorf("expected env override SizingMode 'fixed', got %s", settings.SizingMode)
				}
			},
		},
		{
			name: "YAML missing required keys",
			yamlContent: `
trading:
  sizingMode: "notional"
`,
			wantErr: true,
		},
		{
			name:        "invalid YAML",
			yamlContent: `invalid: yaml: content: [`,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
				t.Fatalf("failed to write test config file: %v", err)
			}

			settings, err := loadFromYAML(configPath)

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		yamlContent string
		envVars     map[string]string
		wantErr     bool
		validate    func(t *testing.T, settings Settings)
	}{
		{
			name: "load from env when no config file",
			envVars: map[string]string{
				common.EnvPhemexAPIKey:    "env_key",
				common.EnvPhemexAPISecret: "env_secret",
				common.EnvRedisAddr:       "localhost:6379",
				common.EnvForceLive:       "true",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "env_key" {
					t.Errorf("expected Key 'env_key', got %s", settings.Key)
				}
			},
		},
		{
			name: "load from YAML when config file specified",
			yamlContent: `
venue:
  key: "yaml_key"
  secret: "yaml_secret"
redis:
  addr: "localhost:6379"
trading:
  sizingMode: "notional"
`,
			envVars: map[string]string{common.EnvForceLive: "true"},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "yaml_key" {
					t.Errorf("expected Key 'yaml_key', got %s", settings.Key)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			if tt.yamlContent != "" {
				tmpDir := t.TempDir()
				configPath := filepath.Join(tmpDir, "config.yaml")
				if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
					t.Fatalf("failed to write test config file: %v", err)
				}
				t.Setenv(common.EnvConfigFile, configPath)
			}

			settings, err := Load()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestAllocFor(t *testing.T) {
	clearTestEnv(t)
	t.Setenv(common.EnvPhemexAPIKey, "k")
	t.Setenv(common.EnvPhemexAPISecret, "s")
	t.Setenv(common.EnvRedisAddr, "localhost:6379")
	t.Setenv(common.EnvForceLive, "true")

	settings, err := loadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("known strategy and regime", func(t *testing.T) {
		al := settings.AllocFor("bull", "bull")
		if al.AllocPct != common.DefaultAllocBullBull {
			t.Errorf("expected AllocPct %f, got %f", common.DefaultAllocBullBull, al.AllocPct)
		}
		if al.Leverage != common.DefaultLevBullBull {
			t.Errorf("expected Leverage %d, got %d", common.DefaultLevBullBull, al.Leverage)
		}
	})

	t.Run("unknown strategy falls back to defaults", func(t *testing.T) {
		al := settings.AllocFor("unknown", "neutral")
		if al.AllocPct != settings.AllocPct || al.Leverage != settings.LeverageDefault {
			t.Errorf("expected fallback to configured defaults, got %+v", al)
		}
	})
}

// clearTestEnv clears potentially conflicting environment variables between
// subtests, since Settings is assembled from a large, shared env-var surface.
func clearTestEnv(t *testing.T) {
	envVars := []string{
		common.EnvPhemexAPIKey, common.EnvPhemexAPISecret, common.EnvPhemexTestnet,
		common.EnvBaseURL, common.EnvRESTTimeout, common.EnvRedisAddr, common.EnvRedisPassword,
		common.EnvRedisDB, common.EnvListenAddr, common.EnvMetricsPort, common.EnvRelaySecret,
		common.EnvDefaultSymbol, common.EnvSpotVenue, common.EnvIdempotencyTTL, common.EnvMaxSlippage,
		common.EnvFeeBuffer, common.EnvTakerFee, common.EnvMinNotionalUSDT, common.EnvMarginBuffer,
		common.EnvSizingMode, common.EnvRiskPct, common.EnvAllocPct, common.EnvLeverageDefault,
		common.EnvReconcileRetries, common.EnvReconcileInterval, common.EnvPositionMode,
		common.EnvConfigFile, common.EnvForceLive, common.EnvLogFormat, common.EnvLogLevel,
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
	_ = t
}
