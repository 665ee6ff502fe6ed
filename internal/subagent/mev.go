package subagent

import (
	"context"
	"fmt"
	"math/big"

	"Dexter-Chain/internal/validation"

	"github.com/shopspring/decimal"
)

// mevProfitThreshold 是 0.1 ETH。
var mevProfitThreshold = new(big.Int).Div(ether, big.NewInt(10))

// MEVInspector 估算可提取价值并识别夹子与清算抢跑风险。
type MEVInspector struct{}

type attackVector struct {
	kind       string
	mitigation string
}

// Analyze 实现 Analyzer。
func (MEVInspector) Analyze(_ context.Context, _ validation.Transaction, objective validation.Objective, _ Context) ([]validation.Result, error) {
	var results []validation.Result

	if profit := EstimateMEVProfit(objective); profit.Cmp(mevProfitThreshold) > 0 {
		eth := decimal.NewFromBigInt(profit, -18)
		results = append(results, validation.Fail(
			validation.CategorySecurity,
			validation.SeverityCritical,
			fmt.Sprintf("Transaction could be targeted by MEV bots (potential profit: %s ETH)", eth.StringFixed(3)),
			"Use private mempool or implement MEV protection strategies",
		))
	}

	for _, v := range attackVectors(objective) {
		results = append(results, validation.Fail(
			validation.CategorySecurity,
			validation.SeverityWarning,
			fmt.Sprintf("Vulnerable to %s attack", v.kind),
			v.mitigation,
		))
	}
	return results, nil
}

// EstimateMEVProfit 对兑换类目标按 (expected-min)/2 估算可提取价值，其余情况为零。
func EstimateMEVProfit(objective validation.Objective) *big.Int {
	if !objective.IsSwap() {
		return new(big.Int)
	}
	if objective.ExpectedOutput.Sign() == 0 || objective.MinOutput.Sign() == 0 {
		return new(big.Int)
	}
	spread := new(big.Int).Sub(objective.ExpectedOutput.Int(), objective.MinOutput.Int())
	// 向零截断。
	return new(big.Int).Quo(spread, big.NewInt(2))
}

func attackVectors(objective validation.Objective) []attackVector {
	var vectors []attackVector
	if objective.IsSwap() && !objective.MEVProtection {
		vectors = append(vectors, attackVector{
			kind:       "sandwich",
			mitigation: "Use MEV-protected RPC or split into smaller trades",
		})
	}
	if objective.TypeContains("liquidation") {
		vectors = append(vectors, attackVector{
			kind:       "liquidation front-running",
			mitigation: "Use flashloan-based atomic liquidation",
		})
	}
	return vectors
}
