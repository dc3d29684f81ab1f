package config

import (
	cryptorand "crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"splitvault/crypto"
)

// AuthSecretEnv overrides the configured JWT secret so deployments can keep
// it out of the config file.
const AuthSecretEnv = "SPLITVAULT_AUTH_SECRET"

// GenesisAccount allocates an initial settlement balance to a party. Applied
// only when the node starts on a fresh database.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

type Config struct {
	ListenAddress      string           `toml:"ListenAddress"`
	DataDir            string           `toml:"DataDir"`
	Admin              string           `toml:"Admin"`
	AuthIssuer         string           `toml:"AuthIssuer"`
	AuthAudience       string           `toml:"AuthAudience"`
	AuthSecret         string           `toml:"AuthSecret"`
	RateLimitPerMinute int              `toml:"RateLimitPerMinute"`
	Genesis            []GenesisAccount `toml:"genesis"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./splitvault-data"
	}
	if strings.TrimSpace(cfg.AuthIssuer) == "" {
		cfg.AuthIssuer = "splitvault"
	}
	if strings.TrimSpace(cfg.AuthAudience) == "" {
		cfg.AuthAudience = "splitvault-rpc"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}
}

// createDefault creates and saves a default configuration file. A random
// administrator address is generated so a dev instance starts at all; the
// operator is expected to replace it.
func createDefault(path string) (*Config, error) {
	var admin [20]byte
	if _, err := cryptorand.Read(admin[:]); err != nil {
		return nil, fmt.Errorf("generate default admin: %w", err)
	}
	cfg := &Config{
		ListenAddress: ":8545",
		DataDir:       "./splitvault-data",
		Admin:         crypto.EncodeSVT(admin),
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Secret resolves the JWT signing secret, preferring the environment.
func (c *Config) Secret() string {
	if env := strings.TrimSpace(os.Getenv(AuthSecretEnv)); env != "" {
		return env
	}
	return strings.TrimSpace(c.AuthSecret)
}

// AdminAddress decodes the configured administrator identity.
func (c *Config) AdminAddress() ([20]byte, error) {
	return crypto.DecodeSVT(strings.TrimSpace(c.Admin))
}

// GenesisAllocations decodes the genesis allocation table.
func (c *Config) GenesisAllocations() (map[[20]byte]*big.Int, error) {
	out := make(map[[20]byte]*big.Int, len(c.Genesis))
	for i, account := range c.Genesis {
		addr, err := crypto.DecodeSVT(strings.TrimSpace(account.Address))
		if err != nil {
			return nil, fmt.Errorf("genesis account %d: %w", i, err)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(account.Balance), 10)
		if !ok || balance.Sign() <= 0 {
			return nil, fmt.Errorf("genesis account %d: balance must be a positive integer, got %q", i, account.Balance)
		}
		if existing, ok := out[addr]; ok {
			existing.Add(existing, balance)
			continue
		}
		out[addr] = balance
	}
	return out, nil
}
