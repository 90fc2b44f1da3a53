// Package config provides configuration management for the order core.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

const (
	// defaultTimezone is used when calendar.timezone is unset
	defaultTimezone = "America/New_York"
	// defaultStoragePath is used when storage.path is unset
	defaultStoragePath = "data/ledgers"
	// defaultDashboardPort is used when dashboard.port is unset
	defaultDashboardPort = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Logging     LoggingConfig     `yaml:"logging"`
	Account     AccountConfig     `yaml:"account"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Calendar    CalendarConfig    `yaml:"calendar"`
	Overrides   Overrides         `yaml:"overrides"`
	Strategies  []StrategyConfig  `yaml:"strategies"`
	MarketData  MarketDataConfig  `yaml:"market_data"`
	Runner      RunnerConfig      `yaml:"runner"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// LoggingConfig defines log formatting and rotation.
type LoggingConfig struct {
	Format     string `yaml:"format"` // text | json
	Output     string `yaml:"output"` // stdout or a file path
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AccountConfig seeds the static account provider.
type AccountConfig struct {
	InitialValue    float64 `yaml:"initial_value"`
	PortfolioValue  float64 `yaml:"portfolio_value"`
	MarginRemaining float64 `yaml:"margin_remaining"`
	TotalProfit     float64 `yaml:"total_profit"`
}

// Snapshot converts the account section into the sizing snapshot.
func (a AccountConfig) Snapshot() models.AccountSnapshot {
	return models.AccountSnapshot{
		TotalPortfolioValue: a.PortfolioValue,
		MarginRemaining:     a.MarginRemaining,
		TotalProfit:         a.TotalProfit,
		InitialAccountValue: a.InitialValue,
	}
}

// PricingConfig defines the theoretical pricer inputs.
type PricingConfig struct {
	RiskFreeRate   float64              `yaml:"risk_free_rate"`
	DividendYield  float64              `yaml:"dividend_yield"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures the breaker around the pricer.
type CircuitBreakerConfig struct {
	Enabled      bool     `yaml:"enabled"`
	MaxRequests  uint32   `yaml:"max_requests"`  // requests allowed while half-open
	Interval     Duration `yaml:"interval"`      // count reset interval
	Timeout      Duration `yaml:"timeout"`       // open duration
	MinRequests  uint32   `yaml:"min_requests"`  // requests before tripping
	FailureRatio float64  `yaml:"failure_ratio"` // failure ratio threshold
}

// CalendarConfig defines the trading calendar.
type CalendarConfig struct {
	Timezone string   `yaml:"timezone"` // e.g., "America/New_York"
	Holidays []string `yaml:"holidays"` // YYYY-MM-DD
}

// StrategyConfig declares one strategy instance and its call-site overrides.
type StrategyConfig struct {
	Name       string      `yaml:"name"`
	ID         string      `yaml:"id"`
	Template   string      `yaml:"template"`
	Underlying string      `yaml:"underlying"`
	Legs       []CustomLeg `yaml:"legs"` // custom template only
	Overrides  Overrides   `yaml:"overrides"`
}

// CustomLeg is one (side, type, delta) tuple of a custom strategy.
type CustomLeg struct {
	Side  int     `yaml:"side"`
	Type  string  `yaml:"type"`  // call | put
	Delta float64 `yaml:"delta"` // percent
}

// MarketDataConfig defines the synthetic option chain.
type MarketDataConfig struct {
	Underlying     string  `yaml:"underlying"`
	Spot           float64 `yaml:"spot"`
	Volatility     float64 `yaml:"volatility"`      // annualised at the money
	Skew           float64 `yaml:"skew"`            // added volatility per unit of log-moneyness below spot
	StrikeInterval float64 `yaml:"strike_interval"` // points between strikes
	StrikeCount    int     `yaml:"strike_count"`    // strikes on each side of spot
	Expiries       []int   `yaml:"expiries"`        // days to expiry
	HalfSpread     float64 `yaml:"half_spread"`
	Drift          float64 `yaml:"drift"` // max random spot move per refresh, 0 disables
}

// RunnerConfig controls the evaluation loop.
type RunnerConfig struct {
	Concurrency        int      `yaml:"concurrency"`          // 0 means one goroutine per strategy
	Interval           Duration `yaml:"interval"`             // 0 evaluates once and exits
	LimitCheckInterval Duration `yaml:"limit_check_interval"` // expired limit order sweep
}

// StorageConfig defines where ledger snapshots are written.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the read-only HTTP API.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	c.normalize()

	if c.Account.InitialValue <= 0 {
		return fmt.Errorf("account.initial_value must be > 0")
	}
	if c.Account.PortfolioValue < 0 || c.Account.MarginRemaining < 0 {
		return fmt.Errorf("account.portfolio_value and account.margin_remaining must be >= 0")
	}

	if c.Pricing.RiskFreeRate < 0 || c.Pricing.RiskFreeRate > 1 {
		return fmt.Errorf("pricing.risk_free_rate must be between 0 and 1")
	}
	if c.Pricing.DividendYield < 0 || c.Pricing.DividendYield > 1 {
		return fmt.Errorf("pricing.dividend_yield must be between 0 and 1")
	}
	if cb := c.Pricing.CircuitBreaker; cb.Enabled && (cb.FailureRatio <= 0 || cb.FailureRatio > 1) {
		return fmt.Errorf("pricing.circuit_breaker.failure_ratio must be in (0,1]")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("calendar.timezone invalid: %w", err)
	}
	if _, err := c.HolidayDates(); err != nil {
		return err
	}

	// Environment-level overrides must produce a usable parameter set on their own
	if err := Resolve(Defaults(), &c.Overrides, nil).Validate(); err != nil {
		return fmt.Errorf("overrides: %w", err)
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	seen := make(map[string]bool, len(c.Strategies))
	for i := range c.Strategies {
		s := &c.Strategies[i]
		if s.Name == "" {
			return fmt.Errorf("strategies[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("strategies[%d].name %q is duplicated", i, s.Name)
		}
		seen[s.Name] = true
		if s.Template == "" {
			return fmt.Errorf("strategies[%d].template is required", i)
		}
		if s.Template == "custom" && len(s.Legs) == 0 {
			return fmt.Errorf("strategies[%d]: custom template requires legs", i)
		}
		for j, leg := range s.Legs {
			if leg.Side == 0 {
				return fmt.Errorf("strategies[%d].legs[%d].side must be non-zero", i, j)
			}
			if _, err := models.ParseRight(leg.Type); err != nil {
				return fmt.Errorf("strategies[%d].legs[%d]: %w", i, j, err)
			}
			if leg.Delta <= 0 || leg.Delta > 100 {
				return fmt.Errorf("strategies[%d].legs[%d].delta must be in (0,100]", i, j)
			}
		}
		if err := s.Parameters(&c.Overrides).Validate(); err != nil {
			return fmt.Errorf("strategies[%d] (%s): %w", i, s.Name, err)
		}
	}

	if md := c.MarketData; md.Spot <= 0 || md.Volatility <= 0 || md.StrikeInterval <= 0 || md.StrikeCount < 1 {
		return fmt.Errorf("market_data: spot, volatility, strike_interval and strike_count must be > 0")
	}
	for _, d := range c.MarketData.Expiries {
		if d < 0 {
			return fmt.Errorf("market_data.expiries must be >= 0, got %d", d)
		}
	}
	if c.Runner.Concurrency < 0 {
		return fmt.Errorf("runner.concurrency must be >= 0")
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be between 1 and 65535")
	}

	return nil
}

// Parameters resolves this strategy's parameters on top of the environment overrides.
func (s StrategyConfig) Parameters(env *Overrides) StrategyParameters {
	return Resolve(Defaults(), env, &s.Overrides)
}

// StrategyID returns the configured id or the name with spaces removed.
func (s StrategyConfig) StrategyID() string {
	if s.ID != "" {
		return s.ID
	}
	return strings.ReplaceAll(s.Name, " ", "")
}

// IsPaperTrading returns true if the core is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Location returns the calendar timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Calendar.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		if tz == defaultTimezone {
			// Fallback for minimal containers
			return time.FixedZone("ET", -5*60*60), nil
		}
		return nil, err
	}
	return loc, nil
}

// HolidayDates parses calendar.holidays.
func (c *Config) HolidayDates() ([]time.Time, error) {
	out := make([]time.Time, 0, len(c.Calendar.Holidays))
	for _, h := range c.Calendar.Holidays {
		d, err := time.Parse(models.DateLayout, h)
		if err != nil {
			return nil, fmt.Errorf("calendar.holidays: invalid date %q: %w", h, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// normalize sets default values for optional sections
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Account.PortfolioValue == 0 {
		c.Account.PortfolioValue = c.Account.InitialValue
	}
	if c.Account.MarginRemaining == 0 {
		c.Account.MarginRemaining = c.Account.PortfolioValue
	}
	cb := &c.Pricing.CircuitBreaker
	if cb.MaxRequests == 0 {
		cb.MaxRequests = 3
	}
	if cb.Interval == 0 {
		cb.Interval = Duration(60 * time.Second)
	}
	if cb.Timeout == 0 {
		cb.Timeout = Duration(30 * time.Second)
	}
	if cb.MinRequests == 0 {
		cb.MinRequests = 5
	}
	if cb.FailureRatio == 0 {
		cb.FailureRatio = 0.6
	}
	md := &c.MarketData
	if md.Underlying == "" {
		md.Underlying = "SPX"
	}
	if md.Spot == 0 {
		md.Spot = 4000
	}
	if md.Volatility == 0 {
		md.Volatility = 0.18
	}
	if md.StrikeInterval == 0 {
		md.StrikeInterval = 5
	}
	if md.StrikeCount == 0 {
		md.StrikeCount = 80
	}
	if len(md.Expiries) == 0 {
		md.Expiries = []int{7, 14, 21, 30, 38, 45, 52, 60}
	}
	if md.HalfSpread == 0 {
		md.HalfSpread = 0.05
	}
	if c.Runner.LimitCheckInterval == 0 {
		c.Runner.LimitCheckInterval = Duration(30 * time.Second)
	}
	if c.Storage.Path == "" {
		c.Storage.Path = defaultStoragePath
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
}
