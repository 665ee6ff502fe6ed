package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"Dexter-Chain/sdk/go/dexter"
)

func TestReadRequestAcceptsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.yaml")
	content := "transactions:\n  - to: \"0x1\"\n    value: \"1000\"\nobjective:\n  type: transfer\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write request: %v", err)
	}
	raw, err := readRequest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var req dexter.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if len(req.Transactions) != 1 || req.Transactions[0].Value != "1000" || req.Objective.Type != "transfer" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestRenderFormats(t *testing.T) {
	color.NoColor = true
	batch := dexter.BatchResult{
		AllValid: false,
		Summary:  "All 1 transactions failed validation",
		TransactionResults: []dexter.TransactionResult{{
			Index: 0,
			Results: []dexter.Result{{
				Category:        "correctness",
				Severity:        "critical",
				Message:         "Transaction target doesn't match objective target",
				OptimizationTip: "Ensure transaction is sent to the correct contract",
			}},
		}},
	}

	var human bytes.Buffer
	if err := render(&human, "human", batch, func(p *printer) { p.batch(batch) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(human.String(), "FAIL All 1 transactions failed validation") {
		t.Fatalf("unexpected human output: %s", human.String())
	}

	var yamlOut bytes.Buffer
	if err := render(&yamlOut, "yaml", batch, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(yamlOut.String(), "all_valid: false") {
		t.Fatalf("unexpected yaml output: %s", yamlOut.String())
	}

	if err := render(&bytes.Buffer{}, "xml", batch, nil); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
