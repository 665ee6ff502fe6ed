package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	content := []byte(`default: mainnet
chains:
  mainnet:
    rpc_url: https://rpc.example.org
    from: "0x0000000000000000000000000000000000000001"
  sepolia:
    type: evm
    rpc_url: https://sepolia.example.org
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if defs.Default != "mainnet" {
		t.Fatalf("unexpected default: %s", defs.Default)
	}
	names := defs.Names()
	if len(names) != 2 || names[0] != "mainnet" || names[1] != "sepolia" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestLoadChainDefinitionsRejectsUnknownDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	if err := os.WriteFile(path, []byte("default: ghost\nchains: {}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatalf("expected error for undefined default chain")
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs.Chains) != 0 {
		t.Fatalf("expected no chains")
	}
}
