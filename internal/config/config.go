// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Trading     TradingConfig     `yaml:"trading"`
	Trigger     TriggerConfig     `yaml:"trigger"`
	Guards      GuardConfig       `yaml:"guards"`
	Exit        ExitConfig        `yaml:"exit"`
	System      SystemConfig      `yaml:"system"`
	Timing      TimingConfig      `yaml:"timing"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// AppConfig contains application-level and startup-gate settings.
type AppConfig struct {
	SessionDir            string `yaml:"session_dir"`
	ConfigOverlayPath     string `yaml:"config_overlay_path"`
	OnInsufficientBudget  string `yaml:"on_insufficient_budget" validate:"oneof=wait observe"`
	StartupWaitTimeoutSec int    `yaml:"startup_wait_timeout_s"`
}

// ExchangeConfig contains the venue credentials and connection settings.
// Only one venue is configured per process (this collapses the
// multi-exchange hierarchy into a single ExchangeClient).
type ExchangeConfig struct {
	Name       string  `yaml:"name" validate:"required"`
	APIKey     Secret  `yaml:"api_key"`
	SecretKey  Secret  `yaml:"secret_key"`
	Passphrase Secret  `yaml:"passphrase"`
	BaseURL    string  `yaml:"base_url"`
	FeeRate    float64 `yaml:"fee_rate" validate:"min=0,max=1"`
	UseStream  bool    `yaml:"use_stream"` // not read by any component; tickers are always polled over REST
}

// TradingConfig contains position-sizing and symbol-universe parameters.
type TradingConfig struct {
	Symbols          []string `yaml:"symbols" validate:"required,min=1"`
	MaxPositions     int      `yaml:"max_positions"`
	PositionSizeUSDT float64  `yaml:"position_size_usdt" validate:"required,min=0"`
	MinSlotUSDT      float64  `yaml:"min_slot_usdt"`
	TradeTTLMin      int      `yaml:"trade_ttl_min"`
}

// TriggerConfig configures the drop-trigger signal pipeline.
type TriggerConfig struct {
	DropTriggerValue      float64 `yaml:"drop_trigger_value" validate:"min=0,max=1"`
	DropTriggerMode       int     `yaml:"drop_trigger_mode" validate:"oneof=1 2 3 4"`
	DropTriggerLookbackMin int    `yaml:"drop_trigger_lookback_min"`
	TakeProfitThreshold   float64 `yaml:"take_profit_threshold"`
	StopLossThreshold     float64 `yaml:"stop_loss_threshold"`
	UseTrailingStop       bool    `yaml:"use_trailing_stop"`
	TrailingActivationPct float64 `yaml:"trailing_activation_pct"`
	TrailingDistancePct   float64 `yaml:"trailing_distance_pct"`
	HysteresisBps         float64 `yaml:"hysteresis_bps"`
	DebounceS             int     `yaml:"debounce_s"`
	ConfirmTicks          int     `yaml:"confirm_ticks"`
	AnchorClampMaxAbovePeakPct float64 `yaml:"anchor_clamp_max_above_peak_pct"`
	AnchorMaxStartDropPct      float64 `yaml:"anchor_max_start_drop_pct"`
	AnchorStaleMinutes         int     `yaml:"anchor_stale_minutes"`
	AnchorMaxAgeHours          int     `yaml:"anchor_max_age_hours"`
}

// GuardConfig enables and thresholds the composable market guards.
type GuardConfig struct {
	UseSpreadGuard     bool    `yaml:"use_spread_guard"`
	MaxSpreadBpsEntry  float64 `yaml:"max_spread_bps_entry"`
	UseVolatilityGuard bool    `yaml:"use_volatility_guard"`
	MaxVolatilityPct   float64 `yaml:"max_volatility_pct"`
	UseVolumeGuard     bool    `yaml:"use_volume_guard"`
	MinVolumeUSDT      float64 `yaml:"min_volume_usdt"`
	UseSMAGuard        bool    `yaml:"use_sma_guard"`
	SMAWindow          int     `yaml:"sma_window"`
	UseBTCFilterGuard  bool    `yaml:"use_btc_filter_guard"`
	BTCMaxDropPct      float64 `yaml:"btc_max_drop_pct"`
	UseFallingCoinsGuard bool  `yaml:"use_falling_coins_guard"`
	FallingCoinsMaxPct   float64 `yaml:"falling_coins_max_pct"`
}

// ExitConfig configures execution caps on exit order placement.
type ExitConfig struct {
	MaxSlippageBpsEntry   float64 `yaml:"max_slippage_bps_entry"`
	MaxSlippageBpsExit    float64 `yaml:"max_slippage_bps_exit"`
	NeverMarketSells      bool    `yaml:"never_market_sells"`
	ExitLadderBps         float64 `yaml:"exit_ladder_bps"`
	ExitEscalationBps     float64 `yaml:"exit_escalation_bps"`
	SymbolCooldownAfterFailedOrderS int `yaml:"symbol_cooldown_after_failed_order_s"`
}

// SystemConfig contains system-wide settings.
type SystemConfig struct {
	LogLevel            string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit        bool   `yaml:"cancel_on_exit"`
	MetricsPort         int    `yaml:"metrics_port"`
	SnapshotStaleTTLSec int    `yaml:"snapshot_stale_ttl_s"`
}

// TimingConfig contains timing/interval settings across components.
type TimingConfig struct {
	PricePollIntervalMs   int `yaml:"price_poll_interval_ms"`
	ReconcileIntervalS    int `yaml:"reconcile_interval_s"`
	OrderRetryDelayMs     int `yaml:"order_retry_delay_ms"`
	RateLimitRetryDelayMs int `yaml:"rate_limit_retry_delay_ms"`
	StatusPrintIntervalS  int `yaml:"status_print_interval_s"`
	HeartbeatIntervalS    int `yaml:"heartbeat_interval_s"`
}

// ConcurrencyConfig contains worker pool settings.
type ConcurrencyConfig struct {
	GuardPoolSize   int `yaml:"guard_pool_size" validate:"min=1,max=100"`
	GuardPoolBuffer int `yaml:"guard_pool_buffer" validate:"min=1,max=10000"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration, including
// the mutually-exclusive-feature checks required at startup.
func (c *Config) Validate() error {
	var errs []string

	if c.Exchange.Name == "" {
		errs = append(errs, ValidationError{Field: "exchange.name", Message: "exchange name is required"}.Error())
	}
	if len(c.Trading.Symbols) == 0 {
		errs = append(errs, ValidationError{Field: "trading.symbols", Message: "at least one symbol is required"}.Error())
	}
	if c.Trading.PositionSizeUSDT <= 0 {
		errs = append(errs, ValidationError{Field: "trading.position_size_usdt", Value: c.Trading.PositionSizeUSDT, Message: "must be positive"}.Error())
	}
	if c.Trigger.DropTriggerMode < 1 || c.Trigger.DropTriggerMode > 4 {
		errs = append(errs, ValidationError{Field: "trigger.drop_trigger_mode", Value: c.Trigger.DropTriggerMode, Message: "must be one of 1,2,3,4"}.Error())
	}
	if c.Trigger.DropTriggerMode == 3 && c.Trigger.DropTriggerLookbackMin <= 0 {
		errs = append(errs, ValidationError{Field: "trigger.drop_trigger_lookback_min", Message: "required when drop_trigger_mode is 3 (rolling window)"}.Error())
	}
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		errs = append(errs, ValidationError{Field: "system.log_level", Value: c.System.LogLevel, Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", "))}.Error())
	}
	if c.App.OnInsufficientBudget != "" && c.App.OnInsufficientBudget != "wait" && c.App.OnInsufficientBudget != "observe" {
		errs = append(errs, ValidationError{Field: "app.on_insufficient_budget", Value: c.App.OnInsufficientBudget, Message: "must be 'wait' or 'observe'"}.Error())
	}

	// NEVER_MARKET_SELLS=true is incompatible with a TTL exit that has no
	// limit-order fallback: the ladder/escalation premiums are how a TTL
	// exit still avoids a market order, so they must be configured.
	if c.Exit.NeverMarketSells && c.Trading.TradeTTLMin > 0 && c.Exit.ExitLadderBps <= 0 {
		errs = append(errs, ValidationError{
			Field:   "exit.never_market_sells",
			Message: "requires exit.exit_ladder_bps > 0 so a TTL exit can still complete without a market order",
		}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

// String returns a string representation of the configuration with
// sensitive fields redacted via Secret.MarshalYAML, used for the
// CONFIG_SNAPSHOT event.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns the documented default values for every config key.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			SessionDir:            "./session",
			OnInsufficientBudget:  "wait",
			StartupWaitTimeoutSec: 300,
		},
		Trading: TradingConfig{
			MaxPositions:     10,
			MinSlotUSDT:      10.0,
			TradeTTLMin:      60,
		},
		Trigger: TriggerConfig{
			DropTriggerValue:           0.98,
			DropTriggerMode:            1,
			AnchorClampMaxAbovePeakPct: 0.5,
			AnchorMaxStartDropPct:      8.0,
			AnchorStaleMinutes:         60,
			AnchorMaxAgeHours:          24,
		},
		Exit: ExitConfig{
			SymbolCooldownAfterFailedOrderS: 60,
		},
		System: SystemConfig{
			LogLevel:            "INFO",
			CancelOnExit:        true,
			MetricsPort:         9090,
			SnapshotStaleTTLSec: 30,
		},
		Timing: TimingConfig{
			PricePollIntervalMs:   1000,
			ReconcileIntervalS:    60,
			OrderRetryDelayMs:     500,
			RateLimitRetryDelayMs: 1000,
			StatusPrintIntervalS:  30,
			HeartbeatIntervalS:    15,
		},
		Concurrency: ConcurrencyConfig{
			GuardPoolSize:   10,
			GuardPoolBuffer: 100,
		},
	}
}
