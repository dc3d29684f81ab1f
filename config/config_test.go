package config

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"splitvault/crypto"
)

func testBech32(fill byte) string {
	return crypto.EncodeSVT([20]byte{0: fill, 19: fill})
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "Admin = \""+testBech32(0x11)+"\"\nAuthSecret = \"s3cret\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8545" {
		t.Fatalf("default listen address: %s", cfg.ListenAddress)
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Fatalf("default rate limit: %d", cfg.RateLimitPerMinute)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if _, err := cfg.AdminAddress(); err != nil {
		t.Fatalf("generated admin does not decode: %v", err)
	}

	// Reloading parses the persisted file back.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Admin != cfg.Admin {
		t.Fatalf("admin changed across reload: %s vs %s", reloaded.Admin, cfg.Admin)
	}
}

func TestValidateRejectsBadAdmin(t *testing.T) {
	path := writeConfig(t, "Admin = \"not-an-address\"\nAuthSecret = \"s3cret\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected admin validation failure")
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	t.Setenv(AuthSecretEnv, "")
	path := writeConfig(t, "Admin = \""+testBech32(0x11)+"\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected secret validation failure")
	}
	t.Setenv(AuthSecretEnv, "from-env")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("env secret not honoured: %v", err)
	}
	if cfg.Secret() != "from-env" {
		t.Fatalf("secret resolution: %s", cfg.Secret())
	}
}

func TestGenesisAllocations(t *testing.T) {
	addr := testBech32(0x22)
	body := "Admin = \"" + testBech32(0x11) + "\"\nAuthSecret = \"s3cret\"\n" +
		"[[genesis]]\nAddress = \"" + addr + "\"\nBalance = \"100\"\n" +
		"[[genesis]]\nAddress = \"" + addr + "\"\nBalance = \"50\"\n"
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	allocs, err := cfg.GenesisAllocations()
	if err != nil {
		t.Fatalf("allocations: %v", err)
	}
	raw, err := crypto.DecodeSVT(addr)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Duplicate entries accumulate.
	if got := allocs[raw]; got == nil || got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("allocation: %v", got)
	}
}

func TestGenesisRejectsNonPositiveBalance(t *testing.T) {
	body := "Admin = \"" + testBech32(0x11) + "\"\nAuthSecret = \"s3cret\"\n" +
		"[[genesis]]\nAddress = \"" + testBech32(0x22) + "\"\nBalance = \"0\"\n"
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected genesis validation failure")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("balance")) {
		t.Fatalf("unexpected error: %v", err)
	}
}
