package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bondingbot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
telegram:
  token: "123:abc"
chain:
  rpc_url: "http://127.0.0.1:8545"
vault:
  encryption_secret: "independent-secret"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected default address: %q", cfg.Server.Address)
	}
	if cfg.Telegram.APIBase != "https://api.telegram.org" {
		t.Fatalf("unexpected default api base: %q", cfg.Telegram.APIBase)
	}
	if cfg.Sessions.Driver != "memory" || cfg.Outcomes.Driver != "memory" {
		t.Fatalf("unexpected default drivers: %q %q", cfg.Sessions.Driver, cfg.Outcomes.Driver)
	}
	if cfg.Chain.EventTimeoutSeconds != 120 {
		t.Fatalf("unexpected default event timeout: %d", cfg.Chain.EventTimeoutSeconds)
	}
}

func TestLoadRejectsMissingEncryptionSecret(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
chain:
  rpc_url: "http://127.0.0.1:8545"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing encryption secret")
	}
}

func TestLoadRejectsBotTokenReuse(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
chain:
  rpc_url: "http://127.0.0.1:8545"
vault:
  encryption_secret: "123:abc"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when encryption secret reuses the bot token")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VAULT_ENCRYPTION_SECRET", "env-secret")
	t.Setenv("CHAIN_RPC_URL", "http://nodes.internal:8545")
	t.Setenv("CHAIN_ID", "31337")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Vault.EncryptionSecret != "env-secret" {
		t.Fatalf("env override not applied: %q", cfg.Vault.EncryptionSecret)
	}
	if cfg.Chain.RPCURL != "http://nodes.internal:8545" {
		t.Fatalf("env override not applied: %q", cfg.Chain.RPCURL)
	}
	if cfg.Chain.ChainID != 31337 {
		t.Fatalf("env override not applied: %d", cfg.Chain.ChainID)
	}
}
