package rules

import (
	"os"
	"path/filepath"
	"testing"

	xerrors "Dexter-Chain/internal/errors"
)

func TestLoadThresholdsDefaultsWhenPathEmpty(t *testing.T) {
	th, err := LoadThresholds("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th.Gas.ETHTransfer != 21000 || th.Efficiency.MaxHops != 3 {
		t.Fatalf("unexpected defaults: %+v", th)
	}
}

func TestLoadThresholdsOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := []byte(`gas:
  simple_swap: 180000
security:
  max_slippage_percent: 0.5
  max_value_without_confirmation: "5000000000000000000"
  allowed_protocols: [uniswap_v3]
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	th, err := LoadThresholds(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th.Gas.SimpleSwap != 180000 || th.Gas.ETHTransfer != 21000 {
		t.Fatalf("unexpected gas thresholds: %+v", th.Gas)
	}
	if th.Security.MaxSlippagePercent != 0.5 {
		t.Fatalf("unexpected slippage: %v", th.Security.MaxSlippagePercent)
	}
	if th.Security.MaxValueWithoutConfirmation.String() != "5000000000000000000" {
		t.Fatalf("unexpected value threshold: %s", th.Security.MaxValueWithoutConfirmation)
	}
	if len(th.Security.AllowedProtocols) != 1 {
		t.Fatalf("unexpected protocols: %v", th.Security.AllowedProtocols)
	}
}

func TestLoadThresholdsRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("efficiency:\n  max_hops: 0\n"), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	_, err := LoadThresholds(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeConfigInvalid {
		t.Fatalf("unexpected code: %s", xerrors.CodeOf(err))
	}
}
