package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile starts from LoadConfig and overlays the YAML file at path.
// ${VAR} references in the file are expanded from the environment.
func LoadFile(path string) (*Config, error) {
	cfg := LoadConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}

// LoadAndValidate loads config and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.BrokerMode {
	case BrokerPaper:
	case BrokerLive:
		if c.BrokerURL == "" {
			return errors.New("broker_url is required in live mode")
		}
		if c.APIToken == "" {
			return errors.New("api_token is required in live mode")
		}
	default:
		return fmt.Errorf("broker_mode must be %q or %q, got %q", BrokerPaper, BrokerLive, c.BrokerMode)
	}

	if c.Symbol == "" {
		return errors.New("symbol is required")
	}
	if c.WindowSize < 20 {
		return fmt.Errorf("window_size must be >= 20, got %d", c.WindowSize)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %v", c.MinConfidence)
	}
	if c.CooldownTicks < 0 {
		return errors.New("cooldown_ticks must be >= 0")
	}

	if c.DurationTicks < 1 {
		return errors.New("duration_ticks must be >= 1")
	}
	if c.ContractSeconds <= 0 {
		return errors.New("contract_seconds must be > 0")
	}
	if c.WatchdogMultiplier < 1 {
		return fmt.Errorf("watchdog_multiplier must be >= 1, got %v", c.WatchdogMultiplier)
	}

	switch c.StakePolicy {
	case PolicyFixed, PolicyMartingale, PolicySoros:
	default:
		return fmt.Errorf("stake_policy must be fixed, martingale or soros, got %q", c.StakePolicy)
	}
	if c.InitialStake <= 0 {
		return errors.New("initial_stake must be > 0")
	}
	if c.MinStake < 0 {
		return errors.New("min_stake must be >= 0")
	}
	if c.MaxStake > 0 && c.MaxStake < c.MinStake {
		return fmt.Errorf("max_stake %v is below min_stake %v", c.MaxStake, c.MinStake)
	}
	if c.ProfitPercent <= 0 {
		return errors.New("profit_percent must be > 0")
	}
	if c.StakePolicy == PolicySoros && c.SorosLevel < 1 {
		return errors.New("soros_level must be >= 1")
	}
	if c.WinsBeforeMartingale < 0 {
		return errors.New("wins_before_martingale must be >= 0")
	}
	if c.TargetProfit < 0 || c.StopLoss < 0 {
		return errors.New("target_profit and stop_loss must be >= 0")
	}
	if c.WinRateWindow < 0 || c.MinWinRate < 0 || c.MinWinRate > 1 {
		return errors.New("win_rate_window must be >= 0 and min_win_rate between 0 and 1")
	}
	if c.LedgerBufferSize < 1 {
		return errors.New("ledger_buffer_size must be >= 1")
	}
	return nil
}
