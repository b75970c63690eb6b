package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# options-backtester configuration

[portfolio]
starting_capital = 1000000.0
max_capital_to_use = 0.5
max_capital_to_use_per_trade = 0.5
pricing_source = "tastyworks"
pricing_config_path = "configs/pricing.json"

[strategy]
name = "strangle"
target_delta = 0.16
quantity = 1
risk_management = "hold_to_expiration"
# profit_target and stop_loss are currency amounts, used only by the
# matching risk_management setting.
profit_target = 0.0
stop_loss = 0.0

[data]
quotes_file = "data/chain.csv"
# database_path defaults to the config directory if omitted.

[logging]
level = "info"
console = true
file = false
`

// createTemplateConfig writes a starter config.toml so a first run has
// something editable to fail against.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
