package optimizer

import (
	"math"
	"strings"
	"testing"

	"Dexter-Chain/internal/evaluator"
	"Dexter-Chain/internal/validation"
)

func TestOptimizeGasReducesLimit(t *testing.T) {
	tx := validation.Transaction{To: "0x1"}
	tx.WithGas(400000)
	issues := []validation.Result{
		validation.Fail(validation.CategoryGas, validation.SeverityWarning, "Gas limit 400000 exceeds threshold 150000 by >50%", ""),
	}

	out, applied := New().OptimizeTransaction(tx, issues, validation.Objective{})
	if gas, _ := out.GasLimit(); gas != 300000 {
		t.Fatalf("expected 300000 gas, got %d", gas)
	}
	if len(applied) != 1 || !strings.Contains(applied[0], "400000") || !strings.Contains(applied[0], "300000") {
		t.Fatalf("unexpected applied: %v", applied)
	}
	if gas, _ := tx.GasLimit(); gas != 400000 {
		t.Fatalf("input transaction must not be mutated")
	}
}

func TestOptimizeSecurityAddsMEVProtection(t *testing.T) {
	tx := validation.Transaction{To: "0x1", Value: validation.MustAmount("2000000000000000000")}
	issues := []validation.Result{
		validation.Fail(validation.CategorySecurity, validation.SeverityWarning, evaluator.MEVVulnerableMessage, ""),
		validation.Fail(validation.CategorySecurity, validation.SeverityWarning, "Transaction value 2000000000000000000 exceeds confirmation threshold", ""),
		validation.Fail(validation.CategorySecurity, validation.SeverityWarning, "Slippage 5.00% exceeds maximum 2.0%", ""),
	}

	out, applied := New().OptimizeTransaction(tx, issues, validation.Objective{Type: "swap"})
	if !out.FlashbotsBundle {
		t.Fatalf("expected flashbots bundle flag")
	}
	if out.ProtectedPriorityFee.String() != "5000000000" {
		t.Fatalf("unexpected priority fee: %s", out.ProtectedPriorityFee)
	}
	want := []string{"Added MEV protection measures", "Consider splitting into multiple smaller transactions"}
	if strings.Join(applied, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected applied: %v", applied)
	}
	if tx.FlashbotsBundle {
		t.Fatalf("input transaction must not be mutated")
	}
}

func TestOptimizeEfficiencyIsNoop(t *testing.T) {
	tx := validation.Transaction{To: "0x1", Data: "0xabcdef0123456789"}
	issues := []validation.Result{
		validation.Fail(validation.CategoryEfficiency, validation.SeverityWarning, "Using 2-hop path when direct path is available", ""),
		validation.Fail(validation.CategoryEfficiency, validation.SeverityWarning, "Path has 5 hops, exceeds maximum 3", ""),
	}
	out, applied := New().OptimizeTransaction(tx, issues, validation.Objective{})
	if len(applied) != 0 || out.Data != tx.Data {
		t.Fatalf("efficiency hooks should not change anything: %v %s", applied, out.Data)
	}
}

func TestOptimizeCorrectness(t *testing.T) {
	tx := validation.Transaction{To: "0xwrong", Value: validation.MustAmount("1001")}
	tx.WithGas(100001)
	objective := validation.Objective{TargetAddress: "0xright"}

	out, applied := New().OptimizeTransaction(tx, []validation.Result{
		validation.Fail(validation.CategoryCorrectness, validation.SeverityCritical, "Transaction target doesn't match objective target", ""),
		validation.Fail(validation.CategoryCorrectness, validation.SeverityCritical, "Transaction simulation failed: Insufficient balance for transfer", ""),
	}, objective)
	if out.To != "0xright" {
		t.Fatalf("unexpected target: %s", out.To)
	}
	if out.ValueWei().Int64() != 500 {
		t.Fatalf("expected halved value, got %s", out.Value)
	}
	if len(applied) != 2 || applied[0] != "Corrected target address to 0xright" {
		t.Fatalf("unexpected applied: %v", applied)
	}

	out, applied = New().OptimizeTransaction(tx, []validation.Result{
		validation.Fail(validation.CategoryCorrectness, validation.SeverityCritical, "Transaction simulation failed: gas required exceeds allowance (100001)", ""),
	}, objective)
	if gas, _ := out.GasLimit(); gas != 150001 {
		t.Fatalf("expected 150001 gas, got %d", gas)
	}
	if len(applied) != 1 || applied[0] != "Increased gas limit to ensure execution" {
		t.Fatalf("unexpected applied: %v", applied)
	}
}

func TestOptimizeComposesStrategiesInOrder(t *testing.T) {
	tx := validation.Transaction{To: "0x1"}
	tx.WithGas(1000)
	var calls []string
	record := func(name string) Strategy {
		return func(tx validation.Transaction, _ []validation.Result, _ validation.Objective) (validation.Transaction, []string) {
			calls = append(calls, name)
			gas, _ := tx.GasLimit()
			tx.WithGas(gas + 1)
			return tx, []string{name}
		}
	}
	opt := New(WithStrategy(validation.CategoryGas, record("gas")), WithStrategy(validation.CategorySecurity, record("security")))
	out, applied := opt.OptimizeTransaction(tx, []validation.Result{
		validation.Fail(validation.CategorySecurity, validation.SeverityWarning, "a", ""),
		validation.Pass(validation.CategoryGas, "passed results are ignored"),
		validation.Fail(validation.CategoryError, validation.SeverityWarning, "Subagent gas failed: boom", ""),
		validation.Fail(validation.CategoryGas, validation.SeverityWarning, "b", ""),
		validation.Fail(validation.CategorySecurity, validation.SeverityWarning, "c", ""),
	}, validation.Objective{})

	if strings.Join(calls, ",") != "security,gas" {
		t.Fatalf("unexpected strategy order: %v", calls)
	}
	if gas, _ := out.GasLimit(); gas != 1002 {
		t.Fatalf("strategies should compose, got gas %d", gas)
	}
	if len(applied) != 2 {
		t.Fatalf("unexpected applied: %v", applied)
	}
}

func TestGenerateReport(t *testing.T) {
	original := validation.Transaction{}
	original.WithGas(400000)
	optimized := original.Clone()
	optimized.WithGas(300000)

	before := []validation.Result{
		validation.Fail(validation.CategoryGas, validation.SeverityWarning, "x", ""),
		validation.Fail(validation.CategorySecurity, validation.SeverityWarning, "y", ""),
	}
	after := []validation.Result{validation.Pass(validation.CategoryGas, "ok")}

	report := GenerateReport(original, optimized, []string{"Reduced gas limit from 400000 to 300000"}, before, after)
	want := []string{"Reduced gas by 100000 units", "Resolved 2 validation issues"}
	if strings.Join(report.Improvements, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected improvements: %v", report.Improvements)
	}

	report = GenerateReport(original, optimized, nil, before, nil)
	if len(report.Improvements) != 1 {
		t.Fatalf("without after only gas delta is reported: %v", report.Improvements)
	}
}

func TestSuggestAlternatives(t *testing.T) {
	issues := []validation.Result{
		{Category: validation.CategoryGas},
		{Category: validation.CategorySecurity},
		{Category: validation.CategoryEfficiency},
	}
	got := SuggestAlternatives(validation.Objective{Type: "simple_swap"}, issues)
	if len(got) != 3 {
		t.Fatalf("expected three suggestions, got %+v", got)
	}
	if got[0].Approach != "Transaction Batching" || got[1].Approach != "Use Aggregator" || got[2].Approach != "Split Orders" {
		t.Fatalf("unexpected order: %+v", got)
	}

	got = SuggestAlternatives(validation.Objective{Type: "transfer"}, issues[1:2])
	if len(got) != 0 {
		t.Fatalf("security issues outside swaps should not suggest aggregator: %+v", got)
	}
}

func TestScaleGasHandlesLargeLimits(t *testing.T) {
	cases := []struct {
		name     string
		gas      uint64
		num, den uint64
		want     uint64
	}{
		{name: "reduce", gas: 400000, num: 3, den: 4, want: 300000},
		{name: "reduce rounds down", gas: 7, num: 3, den: 4, want: 5},
		{name: "reduce near max", gas: math.MaxUint64, num: 3, den: 4, want: 3<<62 - 1},
		{name: "increase without overflow", gas: 1 << 63, num: 3, den: 2, want: 3 << 62},
		{name: "increase", gas: 100000, num: 3, den: 2, want: 150000},
		{name: "increase saturates", gas: math.MaxUint64, num: 3, den: 2, want: math.MaxUint64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scaleGas(tc.gas, tc.num, tc.den); got != tc.want {
				t.Fatalf("unexpected gas: got %d want %d", got, tc.want)
			}
		})
	}
}

func TestOptimizeGasDoesNotOverflow(t *testing.T) {
	tx := validation.Transaction{To: "0x1"}
	tx.WithGas(math.MaxUint64)
	issues := []validation.Result{
		validation.Fail(validation.CategoryGas, validation.SeverityWarning, "Gas limit exceeds threshold 150000 by >50%", ""),
	}
	out, _ := New().OptimizeTransaction(tx, issues, validation.Objective{})
	gas, _ := out.GasLimit()
	if gas < math.MaxUint64/2 || gas >= math.MaxUint64 {
		t.Fatalf("reduced gas should stay below the original without wrapping: %d", gas)
	}
}
