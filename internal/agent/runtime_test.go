package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"Dexter-Chain/internal/config"
	xerrors "Dexter-Chain/internal/errors"
)

func TestNewRuntimeDefaults(t *testing.T) {
	rt, err := NewRuntime(context.Background(), config.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rt.Close()

	if rt.Agent == nil || rt.Evaluator == nil {
		t.Fatalf("expected agent and evaluator to be built")
	}
	if rt.Coordinator == nil || !rt.Evaluator.SubagentsEnabled() {
		t.Fatalf("expected subagents to be enabled by default")
	}
	if rt.Chain != nil {
		t.Fatalf("expected no chain client without web3 config")
	}
}

func TestNewRuntimeWithoutSubagents(t *testing.T) {
	cfg := config.Default()
	disabled := false
	cfg.Evaluator.EnableSubagents = &disabled

	rt, err := NewRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.Coordinator != nil || rt.Evaluator.SubagentsEnabled() {
		t.Fatalf("expected subagents to be disabled")
	}
}

func TestNewRuntimeRejectsBadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("gas: [not, a, map"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	cfg := config.Default()
	cfg.Evaluator.RulesFile = path

	_, err := NewRuntime(context.Background(), cfg)
	if err == nil {
		t.Fatalf("expected error for malformed rules file")
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeConfigInvalid {
		t.Fatalf("unexpected error code: %s", code)
	}
}
