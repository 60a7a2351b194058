package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Rebalance  RebalanceConfig  `mapstructure:"rebalance"`
	Advisor    AdvisorConfig    `mapstructure:"advisor"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// TradingConfig contains trading settings
type TradingConfig struct {
	Mode               string             `mapstructure:"mode"`    // "paper" or "live"
	Symbols            []string           `mapstructure:"symbols"` // ["BTC-USD", "ETH-USD"]
	InitialCapital     float64            `mapstructure:"initial_capital"`
	PositionSizePct    float64            `mapstructure:"position_size_pct"` // 0.10 = 10% per entry
	MaxPositions       int                `mapstructure:"max_positions"`
	StopLossPct        float64            `mapstructure:"stop_loss_pct"`
	TakeProfitPct      float64            `mapstructure:"take_profit_pct"`
	FeePct             float64            `mapstructure:"fee_pct"`
	SlippagePct        float64            `mapstructure:"slippage_pct"`
	AllowShort         bool               `mapstructure:"allow_short"`
	ShortMinConfidence float64            `mapstructure:"short_min_confidence"` // min confidence for SHORT entries
	MinOrderValue      float64            `mapstructure:"min_order_value"`      // skip entries below this notional
	TickIntervalS      int                `mapstructure:"tick_interval_s"`
	DurationHours      float64            `mapstructure:"duration_hours"` // 0 = unbounded
	SnapshotEvery      int                `mapstructure:"snapshot_every"` // snapshot cadence in ticks
	SnapshotDir        string             `mapstructure:"snapshot_dir"`
	SymbolPriors       map[string]float64 `mapstructure:"symbol_priors"` // per-symbol ranking multiplier
}

// RiskConfig contains risk management settings
type RiskConfig struct {
	MDDWarning              float64 `mapstructure:"mdd_warning"`               // 0.03
	MDDCritical             float64 `mapstructure:"mdd_critical"`              // 0.05
	MDDEmergency            float64 `mapstructure:"mdd_emergency"`             // 0.08
	CircuitBreakerCooldownS int     `mapstructure:"circuit_breaker_cooldown_s"` // 3600
	BlackSwanFreezeS        int     `mapstructure:"black_swan_freeze_s"`       // 86400
	DailyLossLimit          float64 `mapstructure:"daily_loss_limit"`          // 0.08
	GlobalStopLossPct       float64 `mapstructure:"global_stop_loss_pct"`      // 0.20
	MaxPositionPct          float64 `mapstructure:"max_position_pct"`          // per-symbol cap vs portfolio
	VolSpikeFactor          float64 `mapstructure:"vol_spike_factor"`          // 3.0
	FlashCrashWindow        int     `mapstructure:"flash_crash_window"`        // 60 samples
	FlashCrashDropPct       float64 `mapstructure:"flash_crash_drop_pct"`      // 0.15
}

// SourcesConfig contains price-source settings
type SourcesConfig struct {
	TimeoutS          int    `mapstructure:"timeout_s"`      // per HTTP call
	FetchBudgetS      int    `mapstructure:"fetch_budget_s"` // total per tick
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	CoinbaseURL       string `mapstructure:"coinbase_url"`
	KrakenURL         string `mapstructure:"kraken_url"`
	CoinGeckoURL      string `mapstructure:"coingecko_url"`
}

// RedisConfig contains the optional quote-cache settings
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	CacheTTLS int    `mapstructure:"cache_ttl_s"`
}

// RebalanceConfig contains multi-asset rebalancer settings
type RebalanceConfig struct {
	Enabled            bool               `mapstructure:"enabled"`
	Targets            map[string]float64 `mapstructure:"targets"` // symbol -> weight, must sum to 1
	DeviationThreshold float64            `mapstructure:"deviation_threshold"`
	IntervalDays       int                `mapstructure:"interval_days"`
}

// AdvisorConfig contains the optional RL advisor settings
type AdvisorConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Weight  float64 `mapstructure:"weight"` // extra-voter weight in signal synthesis
}

// AlertsConfig contains alert channel settings
type AlertsConfig struct {
	TelegramToken   string  `mapstructure:"telegram_token"`
	TelegramChatIDs []int64 `mapstructure:"telegram_chat_ids"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	EnableMetrics  bool `mapstructure:"enable_metrics"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CRYPTOGUARD")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment variables apply
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Viper lowercases map keys; symbol-keyed maps must match the
	// uppercase trading symbols.
	cfg.Trading.SymbolPriors = upperKeys(cfg.Trading.SymbolPriors)
	cfg.Rebalance.Targets = upperKeys(cfg.Rebalance.Targets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "CryptoGuard")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Trading defaults
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.symbols", []string{"BTC-USD", "ETH-USD", "SOL-USD"})
	v.SetDefault("trading.initial_capital", 1000.0)
	v.SetDefault("trading.position_size_pct", 0.10)
	v.SetDefault("trading.max_positions", 3)
	v.SetDefault("trading.stop_loss_pct", 0.02)
	v.SetDefault("trading.take_profit_pct", 0.03)
	v.SetDefault("trading.fee_pct", 0.001)
	v.SetDefault("trading.slippage_pct", 0.0005)
	v.SetDefault("trading.allow_short", true)
	v.SetDefault("trading.short_min_confidence", 40.0)
	v.SetDefault("trading.min_order_value", 1.0)
	v.SetDefault("trading.tick_interval_s", 30)
	v.SetDefault("trading.duration_hours", 0.0)
	v.SetDefault("trading.snapshot_every", 10)
	v.SetDefault("trading.snapshot_dir", ".")
	v.SetDefault("trading.symbol_priors", map[string]float64{"DOGE-USD": 1.5})

	// Risk defaults
	v.SetDefault("risk.mdd_warning", 0.03)
	v.SetDefault("risk.mdd_critical", 0.05)
	v.SetDefault("risk.mdd_emergency", 0.08)
	v.SetDefault("risk.circuit_breaker_cooldown_s", 3600)
	v.SetDefault("risk.black_swan_freeze_s", 86400)
	v.SetDefault("risk.daily_loss_limit", 0.08)
	v.SetDefault("risk.global_stop_loss_pct", 0.20)
	v.SetDefault("risk.max_position_pct", 0.25)
	v.SetDefault("risk.vol_spike_factor", 3.0)
	v.SetDefault("risk.flash_crash_window", 60)
	v.SetDefault("risk.flash_crash_drop_pct", 0.15)

	// Source defaults
	v.SetDefault("sources.timeout_s", 5)
	v.SetDefault("sources.fetch_budget_s", 10)
	v.SetDefault("sources.requests_per_minute", 60)
	v.SetDefault("sources.coinbase_url", "https://api.exchange.coinbase.com")
	v.SetDefault("sources.kraken_url", "https://api.kraken.com")
	v.SetDefault("sources.coingecko_url", "https://api.coingecko.com/api/v3")

	// Redis quote-cache defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl_s", 15)

	// Rebalancer defaults
	v.SetDefault("rebalance.enabled", false)
	v.SetDefault("rebalance.targets", map[string]float64{
		"BTC-USD":  0.40,
		"ETH-USD":  0.30,
		"SOL-USD":  0.15,
		"USDC-USD": 0.15,
	})
	v.SetDefault("rebalance.deviation_threshold", 0.05)
	v.SetDefault("rebalance.interval_days", 7)

	// Advisor defaults (off unless explicitly enabled)
	v.SetDefault("advisor.enabled", false)
	v.SetDefault("advisor.weight", 1.0)

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.prometheus_port", 9100)
}

// upperKeys rewrites a symbol-keyed map with uppercase keys
func upperKeys(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheTTL returns the quote-cache TTL as time.Duration
func (c *RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLS) * time.Second
}

// TickInterval returns the control-loop period as time.Duration
func (c *TradingConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalS) * time.Second
}

// Duration returns the configured run duration; zero means unbounded
func (c *TradingConfig) Duration() time.Duration {
	return time.Duration(c.DurationHours * float64(time.Hour))
}

// Timeout returns the per-call HTTP timeout as time.Duration
func (c *SourcesConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutS) * time.Second
}

// FetchBudget returns the per-tick total fetch budget as time.Duration
func (c *SourcesConfig) FetchBudget() time.Duration {
	return time.Duration(c.FetchBudgetS) * time.Second
}

// BreakerCooldown returns the circuit-breaker cooldown as time.Duration
func (c *RiskConfig) BreakerCooldown() time.Duration {
	return time.Duration(c.CircuitBreakerCooldownS) * time.Second
}

// FreezeDuration returns the black-swan freeze window as time.Duration
func (c *RiskConfig) FreezeDuration() time.Duration {
	return time.Duration(c.BlackSwanFreezeS) * time.Second
}

// Interval returns the rebalance interval as time.Duration
func (c *RebalanceConfig) Interval() time.Duration {
	return time.Duration(c.IntervalDays) * 24 * time.Hour
}
