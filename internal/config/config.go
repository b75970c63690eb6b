// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Data      DataConfig      `mapstructure:"data"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// PortfolioConfig holds the capital and pricing settings the portfolio engine
// is constructed with.
type PortfolioConfig struct {
	StartingCapital         float64 `mapstructure:"starting_capital"`
	MaxCapitalToUse         float64 `mapstructure:"max_capital_to_use"`
	MaxCapitalToUsePerTrade float64 `mapstructure:"max_capital_to_use_per_trade"`
	PricingSource           string  `mapstructure:"pricing_source"`
	PricingConfigPath       string  `mapstructure:"pricing_config_path"`
}

// StrategyConfig holds signal-generation settings for the backtest session.
type StrategyConfig struct {
	Name           string  `mapstructure:"name"`            // currently "strangle"
	TargetDelta    float64 `mapstructure:"target_delta"`    // absolute delta of the short legs
	Quantity       int     `mapstructure:"quantity"`        // lots per signal
	RiskManagement string  `mapstructure:"risk_management"` // hold_to_expiration, profit_target, stop_loss
	ProfitTarget   float64 `mapstructure:"profit_target"`   // currency, for profit_target
	StopLoss       float64 `mapstructure:"stop_loss"`       // currency, for stop_loss
}

// DataConfig holds data source and persistence settings.
type DataConfig struct {
	QuotesFile   string `mapstructure:"quotes_file"`
	DatabasePath string `mapstructure:"database_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-backtester"
	}
	return filepath.Join(home, ".config", "options-backtester")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			if terr := createTemplateConfig(configDir); terr != nil {
				return terr
			}
			return v.ReadInConfig()
		}
		return err
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("portfolio.starting_capital", 1000000.0)
	v.SetDefault("portfolio.max_capital_to_use", 0.5)
	v.SetDefault("portfolio.max_capital_to_use_per_trade", 0.5)
	v.SetDefault("portfolio.pricing_source", "tastyworks")
	v.SetDefault("portfolio.pricing_config_path", "configs/pricing.json")
	v.SetDefault("strategy.name", "strangle")
	v.SetDefault("strategy.target_delta", 0.16)
	v.SetDefault("strategy.quantity", 1)
	v.SetDefault("strategy.risk_management", "hold_to_expiration")
	v.SetDefault("data.database_path", filepath.Join(DefaultConfigDir(), "backtester.db"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKTESTER_PRICING_SOURCE"); v != "" {
		cfg.Portfolio.PricingSource = v
	}
	if v := os.Getenv("BACKTESTER_QUOTES_FILE"); v != "" {
		cfg.Data.QuotesFile = v
	}
	if v := os.Getenv("BACKTESTER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Portfolio.StartingCapital <= 0 {
		return fmt.Errorf("starting_capital must be positive")
	}
	if c.Portfolio.MaxCapitalToUse <= 0 || c.Portfolio.MaxCapitalToUse > 1 {
		return fmt.Errorf("max_capital_to_use must be in (0, 1]")
	}
	if c.Portfolio.MaxCapitalToUsePerTrade <= 0 || c.Portfolio.MaxCapitalToUsePerTrade > 1 {
		return fmt.Errorf("max_capital_to_use_per_trade must be in (0, 1]")
	}
	if c.Portfolio.PricingSource == "" {
		return fmt.Errorf("pricing_source is required")
	}
	if c.Portfolio.PricingConfigPath == "" {
		return fmt.Errorf("pricing_config_path is required")
	}
	if c.Strategy.Quantity <= 0 {
		return fmt.Errorf("strategy quantity must be positive")
	}
	if c.Strategy.TargetDelta <= 0 || c.Strategy.TargetDelta >= 1 {
		return fmt.Errorf("target_delta must be in (0, 1)")
	}
	switch c.Strategy.RiskManagement {
	case "hold_to_expiration", "profit_target", "stop_loss":
	default:
		return fmt.Errorf("unknown risk_management: %s", c.Strategy.RiskManagement)
	}
	return nil
}
