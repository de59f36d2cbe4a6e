package bootstrap

import (
	"fmt"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader and runs pre-flight
// checks that validation alone can't express.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation.
func checkPreFlight(cfg *Config) error {
	if cfg.Exchange.Name != "mock" && (cfg.Exchange.APIKey == "" || cfg.Exchange.SecretKey == "") {
		if cfg.App.OnInsufficientBudget != "wait" {
			return fmt.Errorf("exchange credentials missing for %q and on_insufficient_budget is not 'wait'", cfg.Exchange.Name)
		}
	}
	return nil
}
