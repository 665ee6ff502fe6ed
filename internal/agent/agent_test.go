package agent

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	xerrors "Dexter-Chain/internal/errors"
	"Dexter-Chain/internal/evaluator"
	"Dexter-Chain/internal/subagent"
	"Dexter-Chain/internal/validation"
)

type stubSimulator struct {
	calls int
	err   error
	fail  func(tx validation.Transaction) string
}

func (s *stubSimulator) Simulate(_ context.Context, tx validation.Transaction) (*validation.SimulationResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.fail != nil {
		if reason := s.fail(tx); reason != "" {
			return validation.SimulationFailed(reason), nil
		}
	}
	return validation.SimulationSucceeded(21000, nil), nil
}

type stubOracle struct {
	fee *big.Int
	err error
}

func (s stubOracle) BaseFee(context.Context) (*big.Int, error) {
	return s.fee, s.err
}

func TestExecuteFixesTargetMismatch(t *testing.T) {
	ag := New(nil, nil)
	req := Request{
		Transactions: []validation.Transaction{{To: "0xaaaa", Data: "0x"}},
		Objective:    validation.Objective{Type: "transfer", TargetAddress: "0xBBBB"},
	}

	outcome, err := ag.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Valid || outcome.Iterations != 1 || len(outcome.Rounds) != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Transactions[0].To != "0xBBBB" {
		t.Fatalf("target not corrected: %+v", outcome.Transactions[0])
	}
	if req.Transactions[0].To != "0xaaaa" {
		t.Fatalf("request transactions must not be mutated")
	}
	applied := outcome.Rounds[1].Applied
	if len(applied) != 1 || applied[0] != "Corrected target address to 0xBBBB" {
		t.Fatalf("unexpected applied optimizations: %v", applied)
	}
	report := outcome.Reports[0]
	if len(report.Improvements) != 1 || report.Improvements[0] != "Resolved 1 validation issues" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(outcome.Suggestions) != 0 {
		t.Fatalf("valid outcome should carry no suggestions: %+v", outcome.Suggestions)
	}
}

func TestExecuteStopsAtMaxIterations(t *testing.T) {
	sim := &stubSimulator{fail: func(validation.Transaction) string { return "execution reverted" }}
	ag := New(nil, nil, WithMaxIterations(2), WithSimulator(sim))
	req := Request{
		Transactions: []validation.Transaction{{To: "0xaaaa", Data: "0x"}},
		Objective:    validation.Objective{Type: "transfer"},
	}

	outcome, err := ag.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Valid || outcome.Iterations != 2 || len(outcome.Rounds) != 3 {
		t.Fatalf("unexpected outcome: valid=%v iterations=%d rounds=%d", outcome.Valid, outcome.Iterations, len(outcome.Rounds))
	}
	if outcome.FinalEvaluation.AllValid {
		t.Fatalf("final evaluation should remain invalid")
	}
}

func TestExecuteUsesProvidedSimulationOnlyForFirstRound(t *testing.T) {
	eight := new(big.Int).Mul(big.NewInt(8), big.NewInt(1_000_000_000_000_000_000))
	ag := New(nil, nil)
	req := Request{
		Transactions:      []validation.Transaction{{To: "0xaaaa", Data: "0x", Value: validation.NewAmount(eight)}},
		Objective:         validation.Objective{Type: "transfer"},
		SimulationResults: []*validation.SimulationResult{validation.SimulationFailed("insufficient balance")},
	}

	outcome, err := ag.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Valid || outcome.Iterations != 1 {
		t.Fatalf("unexpected outcome: valid=%v iterations=%d", outcome.Valid, outcome.Iterations)
	}
	want := new(big.Int).Rsh(eight, 1)
	if got := outcome.Transactions[0].ValueWei(); got.Cmp(want) != 0 {
		t.Fatalf("value should be halved once: got %s want %s", got, want)
	}
	halvings := 0
	for _, round := range outcome.Rounds {
		for _, change := range round.Applied {
			if change == "Reduced transaction value to avoid insufficient balance" {
				halvings++
			}
		}
	}
	if halvings != 1 {
		t.Fatalf("unexpected value reductions: %d", halvings)
	}
}

func TestExecuteValidBatchNeedsNoRounds(t *testing.T) {
	ag := New(nil, nil)
	tx := validation.Transaction{To: "0xaaaa", Data: "0x"}
	tx.WithGas(21000)

	outcome, err := ag.Execute(context.Background(), Request{Transactions: []validation.Transaction{tx}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Valid || outcome.Iterations != 0 || len(outcome.Rounds) != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(outcome.Reports[0].Improvements) != 0 {
		t.Fatalf("unexpected improvements: %+v", outcome.Reports[0])
	}
}

func TestExecuteSimulatesEveryRound(t *testing.T) {
	sim := &stubSimulator{fail: func(tx validation.Transaction) string {
		if tx.ValueWei().Cmp(big.NewInt(1000)) > 0 {
			return "insufficient balance"
		}
		return ""
	}}
	ag := New(nil, nil, WithSimulator(sim))
	req := Request{
		Transactions: []validation.Transaction{{To: "0xaaaa", Value: validation.AmountFromUint64(1600), Data: "0x"}},
		Objective:    validation.Objective{Type: "transfer"},
		// 配置模拟器后忽略请求中的模拟结果。
		SimulationResults: []*validation.SimulationResult{validation.SimulationFailed("stale")},
	}

	outcome, err := ag.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Valid || outcome.Iterations != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if got := outcome.Transactions[0].ValueWei().String(); got != "800" {
		t.Fatalf("value should be halved, got %s", got)
	}
	if sim.calls != 2 {
		t.Fatalf("expected one simulation per round, got %d", sim.calls)
	}
}

func TestEvaluateRecordsSimulatorErrors(t *testing.T) {
	ag := New(nil, nil, WithSimulator(&stubSimulator{err: errors.New("connection refused")}))
	batch, err := ag.Evaluate(context.Background(), Request{
		Transactions: []validation.Transaction{{To: "0xaaaa", Data: "0x"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.AllValid {
		t.Fatalf("simulator error should invalidate the transaction")
	}
	found := false
	for _, r := range batch.TransactionResults[0].Results {
		if strings.Contains(r.Message, "connection refused") {
			found = true
		}
	}
	if !found {
		t.Fatalf("simulator error not reported: %+v", batch.TransactionResults[0].Results)
	}
}

func TestBaseFeeResolution(t *testing.T) {
	var seen []*big.Int
	probe := subagent.AnalyzerFunc(func(_ context.Context, _ validation.Transaction, _ validation.Objective, actx subagent.Context) ([]validation.Result, error) {
		seen = append(seen, actx.BaseFee())
		return nil, nil
	})
	coord := subagent.NewCoordinator(subagent.WithAnalyzer("probe", probe))
	ev := evaluator.New(nil, evaluator.WithCoordinator(coord), evaluator.WithConcurrency(1))
	txs := []validation.Transaction{{To: "0xaaaa", Data: "0x"}}

	cases := []struct {
		name string
		ag   *Agent
		req  Request
		want int64
	}{
		{"request", New(ev, nil, WithBaseFeeOracle(stubOracle{fee: big.NewInt(7)})), Request{Transactions: txs, Context: RequestContext{CurrentBaseFee: validation.AmountFromUint64(5)}}, 5},
		{"oracle", New(ev, nil, WithBaseFeeOracle(stubOracle{fee: big.NewInt(7)})), Request{Transactions: txs}, 7},
		{"oracle error", New(ev, nil, WithBaseFeeOracle(stubOracle{err: errors.New("down")}), WithDefaultBaseFee(big.NewInt(9))), Request{Transactions: txs}, 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			if _, err := tc.ag.Evaluate(context.Background(), tc.req); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(seen) != 1 || seen[0].Int64() != tc.want {
				t.Fatalf("unexpected base fee: %v", seen)
			}
		})
	}
}

func TestExecuteRejectsMalformedRequests(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want xerrors.Code
	}{
		{name: "empty", req: Request{}, want: xerrors.CodeInvalidArgument},
		{
			name: "bad calldata",
			req:  Request{Transactions: []validation.Transaction{{To: "0xaaaa", Data: "0x12"}, {To: "0xaaaa", Data: "0xnothex"}}},
			want: xerrors.CodeInvalidTransaction,
		},
		{
			name: "surplus simulations",
			req: Request{
				Transactions:      []validation.Transaction{{To: "0xaaaa"}},
				SimulationResults: []*validation.SimulationResult{{Success: true}, {Success: true}},
			},
			want: xerrors.CodeInvalidArgument,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(nil, nil).Execute(context.Background(), tc.req)
			if xerrors.CodeOf(err) != tc.want {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestExecuteHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, nil).Execute(ctx, Request{Transactions: []validation.Transaction{{To: "0xaaaa"}}})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}
