package rules

import (
	"math/big"
	"strings"
	"testing"

	"Dexter-Chain/internal/validation"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultThresholds())
}

func gasTx(gas uint64) validation.Transaction {
	tx := validation.Transaction{To: "0x1"}
	tx.WithGas(gas)
	return tx
}

func TestValidateGasBoundary(t *testing.T) {
	engine := newTestEngine()
	cases := []struct {
		txType TxType
		gas    uint64
		pass   bool
	}{
		{TxETHTransfer, 21000, true},
		{TxETHTransfer, 31500, true},
		{TxETHTransfer, 31501, false},
		{TxERC20Transfer, 97500, true},
		{TxERC20Transfer, 97501, false},
		{TxSimpleSwap, 225001, false},
		{TxMultiHopSwap, 750000, true},
		{TxType("unknown"), 450000, true},
		{TxType("unknown"), 450001, false},
	}
	for _, tc := range cases {
		res := engine.ValidateGas(gasTx(tc.gas), tc.txType)
		if res.Passed != tc.pass {
			t.Fatalf("ValidateGas(%d, %s) passed=%v, want %v", tc.gas, tc.txType, res.Passed, tc.pass)
		}
		if res.Category != validation.CategoryGas {
			t.Fatalf("unexpected category: %s", res.Category)
		}
		if tc.pass && res.Severity != validation.SeverityInfo {
			t.Fatalf("passing gas check should be info, got %s", res.Severity)
		}
		if !tc.pass {
			if res.Severity != validation.SeverityWarning {
				t.Fatalf("failing gas check should be warning, got %s", res.Severity)
			}
			if !strings.Contains(res.Message, "exceeds threshold") {
				t.Fatalf("unexpected message: %s", res.Message)
			}
			if !strings.Contains(res.OptimizationTip, "Target gas") {
				t.Fatalf("unexpected tip: %s", res.OptimizationTip)
			}
		}
	}
}

func TestValidateSlippage(t *testing.T) {
	engine := newTestEngine()

	res := engine.ValidateSlippage(big.NewInt(0), big.NewInt(10))
	if res.Passed || res.Severity != validation.SeverityCritical || res.Category != validation.CategoryCorrectness {
		t.Fatalf("zero expected output should fail critical: %+v", res)
	}

	res = engine.ValidateSlippage(big.NewInt(1000), big.NewInt(980))
	if !res.Passed {
		t.Fatalf("exactly max slippage should pass: %+v", res)
	}
	if res.Message != "Slippage 2.00% is acceptable" {
		t.Fatalf("unexpected message: %s", res.Message)
	}

	res = engine.ValidateSlippage(big.NewInt(1000), big.NewInt(979))
	if res.Passed || res.Severity != validation.SeverityWarning {
		t.Fatalf("slippage above max should warn: %+v", res)
	}
	if res.Message != "Slippage 2.10% exceeds maximum 2.0%" {
		t.Fatalf("unexpected message: %s", res.Message)
	}

	// 3 * 0.98 不是整数，交叉相乘比较仍然精确。
	res = engine.ValidateSlippage(big.NewInt(300), big.NewInt(294))
	if !res.Passed {
		t.Fatalf("exact 2%% slippage should pass: %+v", res)
	}
}

func TestValidateValue(t *testing.T) {
	engine := newTestEngine()
	oneETH := new(big.Int).Set(OneETH)

	if res := engine.ValidateValue(oneETH, true); !res.Passed {
		t.Fatalf("1 ETH should pass: %+v", res)
	}
	above := new(big.Int).Add(oneETH, big.NewInt(1))
	res := engine.ValidateValue(above, true)
	if res.Passed || res.Severity != validation.SeverityWarning || res.Category != validation.CategorySecurity {
		t.Fatalf("value above threshold should warn: %+v", res)
	}
	if !strings.Contains(res.Message, "exceeds confirmation threshold") {
		t.Fatalf("unexpected message: %s", res.Message)
	}
	if res := engine.ValidateValue(above, false); !res.Passed {
		t.Fatalf("confirmation not required should pass: %+v", res)
	}
}

func TestValidateProtocol(t *testing.T) {
	engine := newTestEngine()
	for _, p := range []string{"uniswap_v3", "sushiswap", "curve", "balancer", "1inch"} {
		if res := engine.ValidateProtocol(p); !res.Passed {
			t.Fatalf("protocol %s should be allowed", p)
		}
	}
	res := engine.ValidateProtocol("Uniswap_V3")
	if res.Passed || res.Severity != validation.SeverityCritical {
		t.Fatalf("protocol match must be case sensitive: %+v", res)
	}
	if !strings.Contains(res.OptimizationTip, "uniswap_v3, sushiswap") {
		t.Fatalf("unexpected tip: %s", res.OptimizationTip)
	}
}

func TestPathFindings(t *testing.T) {
	engine := newTestEngine()
	path := func(n int) []string {
		out := make([]string, n+1)
		for i := range out {
			out[i] = "T"
		}
		return out
	}

	if got := engine.PathFindings(path(1), true); len(got) != 1 || !got[0].Passed {
		t.Fatalf("single hop should pass: %+v", got)
	}
	got := engine.PathFindings(path(2), true)
	if len(got) != 1 || got[0].Passed || !strings.Contains(got[0].Message, "hop path when direct path is available") {
		t.Fatalf("expected direct path finding: %+v", got)
	}
	got = engine.PathFindings(path(4), false)
	if len(got) != 1 || got[0].Passed || !strings.Contains(got[0].Message, "exceeds maximum") {
		t.Fatalf("expected hop count finding: %+v", got)
	}
	got = engine.PathFindings(path(4), true)
	if len(got) != 2 {
		t.Fatalf("both conditions should flag independently: %+v", got)
	}
	if res := engine.ValidatePathEfficiency(path(4), true); !strings.Contains(res.Message, "Path has 4 hops") {
		t.Fatalf("hop count finding should come first: %+v", res)
	}
	if got := engine.PathFindings(nil, true); len(got) != 1 || !got[0].Passed || got[0].Message != "Path with 0 hop(s) is acceptable" {
		t.Fatalf("empty path should count as zero hops: %+v", got)
	}
}

func TestValidatePriceImpact(t *testing.T) {
	engine := newTestEngine()
	if res := engine.ValidatePriceImpact(0.5); !res.Passed {
		t.Fatalf("low impact should pass: %+v", res)
	}
	res := engine.ValidatePriceImpact(1.5)
	if res.Passed || res.Category != validation.CategoryEfficiency {
		t.Fatalf("high impact should warn: %+v", res)
	}
}
