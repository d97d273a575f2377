package risk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"riskwatch/pkg/confkit"
)

// Config controls runtime behaviour for the risk engine. All values are read
// once at startup; the engine never hot-reloads configuration mid-day.
type Config struct {
	DailyStoploss float64 `yaml:"daily_stoploss"` // negative: halt when TotalPnl <= this
	DailyTarget   float64 `yaml:"daily_target"`   // positive: halt when TotalPnl >= this

	MarketStart string `yaml:"market_start"` // "HH:MM" wall clock
	MarketEnd   string `yaml:"market_end"`
	Timezone    string `yaml:"timezone"`

	KillSwitchEnabled bool `yaml:"kill_switch_enabled"`

	PositionTargetEnabled   bool    `yaml:"position_target_enabled"`
	PositionTargetPercent   float64 `yaml:"position_target_percent"`
	PositionStoplossEnabled bool    `yaml:"position_stoploss_enabled"`
	PositionStoplossPercent float64 `yaml:"position_stoploss_percent"`

	TrailingEnabled        bool    `yaml:"trailing_enabled"`
	TrailingActivateProfit float64 `yaml:"trailing_activate_profit"`
	TrailingTrailPercent   float64 `yaml:"trailing_trail_percent"`

	PnlUpdatesEnabled bool `yaml:"pnl_updates_enabled"`
	AlertsOnly        bool `yaml:"alerts_only"`

	StateFile  string `yaml:"state_file"`
	JournalDir string `yaml:"journal_dir"`

	TickInterval       time.Duration `yaml:"-"`
	PnlUpdateInterval  time.Duration `yaml:"-"`
	ActionTimeout      time.Duration `yaml:"-"`
	ErrorAlertCooldown time.Duration `yaml:"-"`

	TickIntervalRaw       string `yaml:"tick_interval"`
	PnlUpdateIntervalRaw  string `yaml:"pnl_update_interval"`
	ActionTimeoutRaw      string `yaml:"action_timeout"`
	ErrorAlertCooldownRaw string `yaml:"error_alert_cooldown"`

	loc              *time.Location
	startMin, endMin int // minutes since midnight
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open risk config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads risk configuration from the default project location and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/risk.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read risk config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal risk config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.MarketStart) == "" {
		c.MarketStart = "09:15"
	}
	if strings.TrimSpace(c.MarketEnd) == "" {
		c.MarketEnd = "15:30"
	}
	if strings.TrimSpace(c.TickIntervalRaw) == "" {
		c.TickIntervalRaw = "30s"
	}
	if strings.TrimSpace(c.PnlUpdateIntervalRaw) == "" {
		c.PnlUpdateIntervalRaw = "5m"
	}
	if strings.TrimSpace(c.ActionTimeoutRaw) == "" {
		c.ActionTimeoutRaw = "10s"
	}
	if strings.TrimSpace(c.ErrorAlertCooldownRaw) == "" {
		c.ErrorAlertCooldownRaw = "10m"
	}
}

func (c *Config) parseDurations() error {
	parse := func(name, raw string, dst *time.Duration) error {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("risk config: invalid %s %q: %w", name, raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("risk config: %s must be positive, got %s", name, d)
		}
		*dst = d
		return nil
	}
	if err := parse("tick_interval", c.TickIntervalRaw, &c.TickInterval); err != nil {
		return err
	}
	if err := parse("pnl_update_interval", c.PnlUpdateIntervalRaw, &c.PnlUpdateInterval); err != nil {
		return err
	}
	if err := parse("action_timeout", c.ActionTimeoutRaw, &c.ActionTimeout); err != nil {
		return err
	}
	return parse("error_alert_cooldown", c.ErrorAlertCooldownRaw, &c.ErrorAlertCooldown)
}

// Validate ensures configuration sanity. Failures here are fatal at startup.
func (c *Config) Validate() error {
	if c.DailyStoploss >= 0 {
		return errors.New("risk config: daily_stoploss must be negative")
	}
	if c.DailyTarget <= 0 {
		return errors.New("risk config: daily_target must be positive")
	}
	if c.TickInterval < time.Second {
		return errors.New("risk config: tick_interval must be at least 1s")
	}

	var err error
	c.startMin, err = parseWallClock(c.MarketStart)
	if err != nil {
		return fmt.Errorf("risk config: invalid market_start: %w", err)
	}
	c.endMin, err = parseWallClock(c.MarketEnd)
	if err != nil {
		return fmt.Errorf("risk config: invalid market_end: %w", err)
	}
	if c.startMin >= c.endMin {
		return errors.New("risk config: market_start must be before market_end")
	}

	c.loc = time.Local
	if strings.TrimSpace(c.Timezone) != "" {
		c.loc, err = time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("risk config: invalid timezone %q: %w", c.Timezone, err)
		}
	}

	if c.PositionTargetEnabled && c.PositionTargetPercent <= 0 {
		return errors.New("risk config: position_target_percent must be positive when enabled")
	}
	if c.PositionStoplossEnabled && c.PositionStoplossPercent <= 0 {
		return errors.New("risk config: position_stoploss_percent must be positive when enabled")
	}
	if c.TrailingEnabled {
		if c.TrailingActivateProfit <= 0 {
			return errors.New("risk config: trailing_activate_profit must be positive when enabled")
		}
		if c.TrailingTrailPercent <= 0 || c.TrailingTrailPercent >= 100 {
			return errors.New("risk config: trailing_trail_percent must be in (0, 100)")
		}
	}
	return nil
}

// Location returns the market timezone.
func (c *Config) Location() *time.Location { return c.loc }

func parseWallClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
