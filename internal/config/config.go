package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/bus"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/decision"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/dispatch"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/gates"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/metrics"
)

// GovernorConfig represents the complete configuration for the risk governor
type GovernorConfig struct {
	// Approved bot scope: the only bots the governor may act on
	Bots []BotConfig `json:"bots"`

	// Policy thresholds for the gate checks
	Thresholds ThresholdsConfig `json:"thresholds"`

	// Escalation policy for the decision engine
	Escalation EscalationConfig `json:"escalation"`

	// Portfolio metrics source (exchange account)
	Exchange ExchangeConfig `json:"exchange"`

	// Action delivery settings
	Dispatch DispatchConfig `json:"dispatch"`

	// Audit log settings
	Audit AuditConfig `json:"audit"`

	// Optional intent/audit bus (Redis)
	Bus *BusConfig `json:"bus,omitempty"`

	// Monitoring endpoints
	Monitoring MonitoringConfig `json:"monitoring"`

	// Notification configuration (optional)
	Notifications *NotificationConfig `json:"notifications,omitempty"`

	// Evaluation cadence (e.g. "30s", "1m")
	CycleInterval string `json:"cycle_interval"`

	// Per-cycle budget for the metrics fetch (e.g. "10s")
	FetchTimeout string `json:"fetch_timeout"`
}

// BotConfig describes one bot in the approved scope
type BotConfig struct {
	ID       string `json:"id"`       // Stable bot identifier
	Endpoint string `json:"endpoint"` // Local control endpoint URL
	Enabled  bool   `json:"enabled"`  // Disabled bots are excluded from scope
}

// ThresholdsConfig holds the policy thresholds for gate checks
type ThresholdsConfig struct {
	DailyLossWarningPct  float64 `json:"daily_loss_warning_pct"`  // Warning level, negative
	DailyLossCriticalPct float64 `json:"daily_loss_critical_pct"` // Critical level, negative
	MaxNetExposureQuote  float64 `json:"max_net_exposure_quote"`  // Absolute net exposure cap
	MaxEquitySharePct    float64 `json:"max_equity_share_pct"`    // Concentration cap
	MinTotalEquityQuote  float64 `json:"min_total_equity_quote"`  // Equity floor
	MaxSnapshotAge       string  `json:"max_snapshot_age"`        // Staleness horizon (e.g. "2m")
}

// EscalationConfig holds the decision engine policy
type EscalationConfig struct {
	KillSwitchCriticalThreshold int    `json:"kill_switch_critical_threshold"`
	ConsecutiveRejectThreshold  int    `json:"consecutive_reject_threshold"`
	Cooldown                    string `json:"cooldown"`          // e.g. "15m"
	BusOutageGrace              string `json:"bus_outage_grace"`  // e.g. "5m"
	ResumeResetsRejects         *bool  `json:"resume_resets_rejects,omitempty"`
}

// ExchangeConfig holds the metrics source account settings
type ExchangeConfig struct {
	Name       string `json:"name"`        // Only "bybit" is supported
	APIKey     string `json:"api_key"`     // Overridable via BYBIT_API_KEY
	APISecret  string `json:"api_secret"`  // Overridable via BYBIT_API_SECRET
	Testnet    bool   `json:"testnet"`
	Demo       bool   `json:"demo"`
	SettleCoin string `json:"settle_coin"` // Position settle coin, default USDT
}

// DispatchConfig holds action delivery settings
type DispatchConfig struct {
	MaxRetries      int    `json:"max_retries"`
	InitialDelay    string `json:"initial_delay"`    // e.g. "500ms"
	MaxDelay        string `json:"max_delay"`        // e.g. "10s"
	BackoffFactor   float64 `json:"backoff_factor"`
	DeliveryTimeout string `json:"delivery_timeout"` // Per-attempt HTTP timeout
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	Dir string `json:"dir"` // Audit log directory
}

// BusConfig holds Redis bus settings
type BusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr"`
	Password      string `json:"password,omitempty"` // Overridable via REDIS_PASSWORD
	DB            int    `json:"db"`
	IntentChannel string `json:"intent_channel,omitempty"`
	AuditChannel  string `json:"audit_channel,omitempty"`
	PublishTimeout string `json:"publish_timeout,omitempty"`
}

// MonitoringConfig holds monitoring endpoint ports
type MonitoringConfig struct {
	PrometheusPort int `json:"prometheus_port"`
	HealthPort     int `json:"health_port"`
}

// NotificationConfig holds notification settings
type NotificationConfig struct {
	Enabled       bool   `json:"enabled"`
	TelegramToken string `json:"telegram_token,omitempty"` // Overridable via TELEGRAM_BOT_TOKEN
	TelegramChat  string `json:"telegram_chat,omitempty"`  // Overridable via TELEGRAM_CHAT_ID
}

// Load loads configuration from file, applies environment overrides for
// secrets, fills defaults, and validates.
func Load(configFile string) (*GovernorConfig, error) {
	// If config file doesn't contain path separators, look in configs/ directory
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}

	// Add .json extension if not present
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var config GovernorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	if err := config.setDefaults(); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file.
func (c *GovernorConfig) applyEnvOverrides() {
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" && c.Bus != nil {
		c.Bus.Password = v
	}
	if c.Notifications != nil {
		if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
			c.Notifications.TelegramToken = v
		}
		if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
			c.Notifications.TelegramChat = v
		}
	}
}

// setDefaults sets default values for missing configuration
func (c *GovernorConfig) setDefaults() error {
	if c.CycleInterval == "" {
		c.CycleInterval = "30s"
	}
	if c.FetchTimeout == "" {
		c.FetchTimeout = "10s"
	}

	// Threshold defaults mirror gates.DefaultThresholds
	def := gates.DefaultThresholds()
	if c.Thresholds.DailyLossWarningPct == 0 {
		c.Thresholds.DailyLossWarningPct = def.DailyLossWarningPct
	}
	if c.Thresholds.DailyLossCriticalPct == 0 {
		c.Thresholds.DailyLossCriticalPct = def.DailyLossCriticalPct
	}
	if c.Thresholds.MaxNetExposureQuote == 0 {
		c.Thresholds.MaxNetExposureQuote = def.MaxNetExposureQuote
	}
	if c.Thresholds.MaxEquitySharePct == 0 {
		c.Thresholds.MaxEquitySharePct = def.MaxEquitySharePct
	}
	if c.Thresholds.MinTotalEquityQuote == 0 {
		c.Thresholds.MinTotalEquityQuote = def.MinTotalEquityQuote
	}
	if c.Thresholds.MaxSnapshotAge == "" {
		c.Thresholds.MaxSnapshotAge = "2m"
	}

	// Escalation defaults mirror decision.DefaultConfig
	dec := decision.DefaultConfig()
	if c.Escalation.KillSwitchCriticalThreshold == 0 {
		c.Escalation.KillSwitchCriticalThreshold = dec.KillSwitchCriticalThreshold
	}
	if c.Escalation.ConsecutiveRejectThreshold == 0 {
		c.Escalation.ConsecutiveRejectThreshold = dec.ConsecutiveRejectThreshold
	}
	if c.Escalation.Cooldown == "" {
		c.Escalation.Cooldown = "15m"
	}
	if c.Escalation.BusOutageGrace == "" {
		c.Escalation.BusOutageGrace = "5m"
	}

	if c.Exchange.Name == "" {
		c.Exchange.Name = "bybit"
	}
	if c.Exchange.SettleCoin == "" {
		c.Exchange.SettleCoin = "USDT"
	}

	ret := dispatch.DefaultRetryConfig()
	if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = ret.MaxRetries
	}
	if c.Dispatch.InitialDelay == "" {
		c.Dispatch.InitialDelay = "500ms"
	}
	if c.Dispatch.MaxDelay == "" {
		c.Dispatch.MaxDelay = "10s"
	}
	if c.Dispatch.BackoffFactor == 0 {
		c.Dispatch.BackoffFactor = ret.BackoffFactor
	}
	if c.Dispatch.DeliveryTimeout == "" {
		c.Dispatch.DeliveryTimeout = "10s"
	}

	if c.Audit.Dir == "" {
		c.Audit.Dir = "audit"
	}

	if c.Bus != nil && c.Bus.Enabled {
		if c.Bus.Addr == "" {
			c.Bus.Addr = "localhost:6379"
		}
		if c.Bus.PublishTimeout == "" {
			c.Bus.PublishTimeout = "2s"
		}
	}

	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 8080
	}
	if c.Monitoring.HealthPort == 0 {
		c.Monitoring.HealthPort = 8081
	}

	return nil
}

// Validate checks that the configuration is internally consistent
func (c *GovernorConfig) Validate() error {
	if len(c.EnabledBots()) == 0 {
		return fmt.Errorf("no enabled bots in approved scope")
	}

	seen := make(map[string]bool)
	for _, bot := range c.Bots {
		if bot.ID == "" {
			return fmt.Errorf("bot with empty id in approved scope")
		}
		if seen[bot.ID] {
			return fmt.Errorf("duplicate bot id %s in approved scope", bot.ID)
		}
		seen[bot.ID] = true
		if bot.Enabled && bot.Endpoint == "" {
			return fmt.Errorf("bot %s has no control endpoint", bot.ID)
		}
	}

	if c.Thresholds.DailyLossWarningPct >= 0 || c.Thresholds.DailyLossCriticalPct >= 0 {
		return fmt.Errorf("daily loss thresholds must be negative")
	}
	if c.Thresholds.DailyLossCriticalPct > c.Thresholds.DailyLossWarningPct {
		return fmt.Errorf("daily loss critical threshold must be at or below the warning threshold")
	}

	if c.Exchange.Name != "bybit" && c.Exchange.Name != "static" {
		return fmt.Errorf("unsupported exchange %s", c.Exchange.Name)
	}
	if c.Exchange.Name == "bybit" && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("bybit metrics source requires API credentials")
	}

	durations := map[string]string{
		"cycle_interval":            c.CycleInterval,
		"fetch_timeout":             c.FetchTimeout,
		"thresholds.max_snapshot_age": c.Thresholds.MaxSnapshotAge,
		"escalation.cooldown":         c.Escalation.Cooldown,
		"escalation.bus_outage_grace": c.Escalation.BusOutageGrace,
		"dispatch.initial_delay":      c.Dispatch.InitialDelay,
		"dispatch.max_delay":          c.Dispatch.MaxDelay,
		"dispatch.delivery_timeout":   c.Dispatch.DeliveryTimeout,
	}
	for field, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", field, err)
		}
	}

	if c.Notifications != nil && c.Notifications.Enabled {
		if c.Notifications.TelegramToken == "" || c.Notifications.TelegramChat == "" {
			return fmt.Errorf("notifications enabled but telegram credentials missing")
		}
	}

	return nil
}

// EnabledBots returns the bots that form the approved scope.
func (c *GovernorConfig) EnabledBots() []BotConfig {
	var bots []BotConfig
	for _, bot := range c.Bots {
		if bot.Enabled {
			bots = append(bots, bot)
		}
	}
	return bots
}

// GateThresholds converts the parsed config into gate thresholds.
func (c *GovernorConfig) GateThresholds() gates.Thresholds {
	return gates.Thresholds{
		DailyLossWarningPct:  c.Thresholds.DailyLossWarningPct,
		DailyLossCriticalPct: c.Thresholds.DailyLossCriticalPct,
		MaxNetExposureQuote:  c.Thresholds.MaxNetExposureQuote,
		MaxEquitySharePct:    c.Thresholds.MaxEquitySharePct,
		MinTotalEquityQuote:  c.Thresholds.MinTotalEquityQuote,
		MaxSnapshotAge:       mustDuration(c.Thresholds.MaxSnapshotAge),
	}
}

// DecisionConfig converts the escalation policy into engine config.
func (c *GovernorConfig) DecisionConfig() decision.Config {
	resets := true
	if c.Escalation.ResumeResetsRejects != nil {
		resets = *c.Escalation.ResumeResetsRejects
	}
	return decision.Config{
		KillSwitchCriticalThreshold: c.Escalation.KillSwitchCriticalThreshold,
		ConsecutiveRejectThreshold:  c.Escalation.ConsecutiveRejectThreshold,
		Cooldown:                    mustDuration(c.Escalation.Cooldown),
		BusOutageGrace:              mustDuration(c.Escalation.BusOutageGrace),
		ResumeResetsRejects:         resets,
	}
}

// RetryConfig converts the dispatch section into retry settings.
func (c *GovernorConfig) RetryConfig() dispatch.RetryConfig {
	return dispatch.RetryConfig{
		MaxRetries:    c.Dispatch.MaxRetries,
		InitialDelay:  mustDuration(c.Dispatch.InitialDelay),
		MaxDelay:      mustDuration(c.Dispatch.MaxDelay),
		BackoffFactor: c.Dispatch.BackoffFactor,
	}
}

// BybitConfig converts the exchange section into a metrics source config.
func (c *GovernorConfig) BybitConfig() metrics.BybitConfig {
	return metrics.BybitConfig{
		APIKey:     c.Exchange.APIKey,
		APISecret:  c.Exchange.APISecret,
		Testnet:    c.Exchange.Testnet,
		Demo:       c.Exchange.Demo,
		SettleCoin: c.Exchange.SettleCoin,
	}
}

// RedisConfig converts the bus section into Redis settings. Returns nil when
// the bus is disabled or absent.
func (c *GovernorConfig) RedisConfig() *bus.RedisConfig {
	if c.Bus == nil || !c.Bus.Enabled {
		return nil
	}
	return &bus.RedisConfig{
		Addr:          c.Bus.Addr,
		Password:      c.Bus.Password,
		DB:            c.Bus.DB,
		IntentChannel: c.Bus.IntentChannel,
		AuditChannel:  c.Bus.AuditChannel,
	}
}

// CycleIntervalDuration returns the parsed evaluation cadence.
func (c *GovernorConfig) CycleIntervalDuration() time.Duration {
	return mustDuration(c.CycleInterval)
}

// FetchTimeoutDuration returns the parsed metrics fetch budget.
func (c *GovernorConfig) FetchTimeoutDuration() time.Duration {
	return mustDuration(c.FetchTimeout)
}

// DeliveryTimeoutDuration returns the parsed per-attempt delivery timeout.
func (c *GovernorConfig) DeliveryTimeoutDuration() time.Duration {
	return mustDuration(c.Dispatch.DeliveryTimeout)
}

// BusPublishTimeout returns the parsed bus publish timeout, or zero when the
// bus is disabled.
func (c *GovernorConfig) BusPublishTimeout() time.Duration {
	if c.Bus == nil || c.Bus.PublishTimeout == "" {
		return 0
	}
	return mustDuration(c.Bus.PublishTimeout)
}

// mustDuration parses a duration validated earlier by Validate.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
