package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for operator mistakes before the daemon
// starts touching disk or binding sockets.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, err := c.AdminAddress(); err != nil {
		return fmt.Errorf("config: invalid Admin address: %w", err)
	}
	if c.Secret() == "" {
		return fmt.Errorf("config: auth secret required (set AuthSecret or %s)", AuthSecretEnv)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("config: RateLimitPerMinute must be positive")
	}
	if _, err := c.GenesisAllocations(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
