package rules

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"Dexter-Chain/internal/validation"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Engine 执行单属性规则校验，构造后只读，可被多个 goroutine 共享。
type Engine struct {
	th          Thresholds
	maxSlippage decimal.Decimal
	maxValue    *big.Int
	allowed     map[string]struct{}
}

// NewEngine 使用给定阈值创建规则引擎。
func NewEngine(th Thresholds) *Engine {
	allowed := make(map[string]struct{}, len(th.Security.AllowedProtocols))
	for _, p := range th.Security.AllowedProtocols {
		allowed[p] = struct{}{}
	}
	maxValue := OneETH
	if th.Security.MaxValueWithoutConfirmation != nil {
		maxValue = th.Security.MaxValueWithoutConfirmation.Int()
	}
	return &Engine{
		th:          th,
		maxSlippage: decimal.NewFromFloat(th.Security.MaxSlippagePercent),
		maxValue:    maxValue,
		allowed:     allowed,
	}
}

// Thresholds 返回引擎使用的阈值。
func (e *Engine) Thresholds() Thresholds {
	return e.th
}

// Ceiling 返回交易类型的 gas 上限。
func (e *Engine) Ceiling(txType TxType) uint64 {
	return e.th.Gas.Ceiling(txType)
}

// ValidateGas 当 gas 超过上限的 1.5 倍时给出 warning。
func (e *Engine) ValidateGas(tx validation.Transaction, txType TxType) validation.Result {
	ceiling := e.Ceiling(txType)
	gas, _ := tx.GasLimit()
	// gas 为整数，gas > 1.5*ceiling 等价于 gas > ceiling + ceiling/2（整除）。
	if gas > ceiling+ceiling/2 {
		return validation.Fail(
			validation.CategoryGas,
			validation.SeverityWarning,
			fmt.Sprintf("Gas limit %d exceeds threshold %d by >50%%", gas, ceiling),
			fmt.Sprintf("Consider optimizing transaction path or splitting into smaller transactions. Target gas: %d", ceiling),
		)
	}
	return validation.Pass(validation.CategoryGas, fmt.Sprintf("Gas limit %d is within acceptable range", gas))
}

// ValidateSlippage 以精确小数计算滑点百分比。
func (e *Engine) ValidateSlippage(expected, minimum *big.Int) validation.Result {
	slippage, ok := SlippagePercent(expected, minimum)
	if !ok {
		return validation.Fail(validation.CategoryCorrectness, validation.SeverityCritical, "Expected output is zero", "")
	}
	if e.slippageExceeded(expected, minimum) {
		return validation.Fail(
			validation.CategorySecurity,
			validation.SeverityWarning,
			fmt.Sprintf("Slippage %s%% exceeds maximum %s%%", slippage.StringFixed(2), formatPercent(e.th.Security.MaxSlippagePercent)),
			"Reduce transaction size or use a different liquidity source with better depth",
		)
	}
	return validation.Pass(validation.CategorySecurity, fmt.Sprintf("Slippage %s%% is acceptable", slippage.StringFixed(2)))
}

// slippageExceeded 交叉相乘比较 (expected-min)*100 > max*expected，避免除法截断。
func (e *Engine) slippageExceeded(expected, minimum *big.Int) bool {
	exp := decimal.NewFromBigInt(expected, 0)
	diff := exp.Sub(decimal.NewFromBigInt(orZero(minimum), 0)).Mul(hundred)
	return diff.GreaterThan(e.maxSlippage.Mul(exp))
}

// SlippagePercent 返回滑点百分比，expected 为零时返回 false。
func SlippagePercent(expected, minimum *big.Int) (decimal.Decimal, bool) {
	if expected == nil || expected.Sign() == 0 {
		return decimal.Zero, false
	}
	exp := decimal.NewFromBigInt(expected, 0)
	return exp.Sub(decimal.NewFromBigInt(orZero(minimum), 0)).Mul(hundred).Div(exp), true
}

// ValidateValue 对超过免确认上限的金额给出 warning。
func (e *Engine) ValidateValue(value *big.Int, requiresConfirmation bool) validation.Result {
	value = orZero(value)
	if requiresConfirmation && value.Cmp(e.maxValue) > 0 {
		return validation.Fail(
			validation.CategorySecurity,
			validation.SeverityWarning,
			fmt.Sprintf("Transaction value %s exceeds confirmation threshold", value),
			"Consider splitting into smaller transactions or implementing additional confirmation steps",
		)
	}
	return validation.Pass(validation.CategorySecurity, "Transaction value is within limits")
}

// ValidatePriceImpact 对超过上限的价格冲击给出 efficiency warning。
func (e *Engine) ValidatePriceImpact(impactPercent float64) validation.Result {
	impact := decimal.NewFromFloat(impactPercent)
	limit := decimal.NewFromFloat(e.th.Efficiency.MaxPriceImpactPercent)
	if impact.GreaterThan(limit) {
		return validation.Fail(
			validation.CategoryEfficiency,
			validation.SeverityWarning,
			fmt.Sprintf("Price impact %s%% exceeds maximum %s%%", impact.StringFixed(2), formatPercent(e.th.Efficiency.MaxPriceImpactPercent)),
			"Split the order or route through a pool with deeper liquidity",
		)
	}
	return validation.Pass(validation.CategoryEfficiency, fmt.Sprintf("Price impact %s%% is acceptable", impact.StringFixed(2)))
}

// ValidateProtocol 检查协议是否在白名单内，大小写敏感。
func (e *Engine) ValidateProtocol(protocol string) validation.Result {
	if _, ok := e.allowed[protocol]; !ok {
		return validation.Fail(
			validation.CategorySecurity,
			validation.SeverityCritical,
			fmt.Sprintf("Protocol %s is not in allowed list", protocol),
			"Use one of the allowed protocols: "+strings.Join(e.th.Security.AllowedProtocols, ", "),
		)
	}
	return validation.Pass(validation.CategorySecurity, fmt.Sprintf("Protocol %s is allowed", protocol))
}

// ValidatePathEfficiency 返回路径的首个问题；两个条件同时成立时优先报告跳数超限。
func (e *Engine) ValidatePathEfficiency(path []string, directAvailable bool) validation.Result {
	return e.PathFindings(path, directAvailable)[0]
}

// PathFindings 分别检查跳数上限与直连偏好，每个成立的条件各产生一条结论；
// 均不成立时返回一条通过结论。
func (e *Engine) PathFindings(path []string, directAvailable bool) []validation.Result {
	hops := len(path) - 1
	// 空路径按 0 跳处理，不报告负数跳数。
	if hops < 0 {
		hops = 0
	}
	var out []validation.Result
	if hops > e.th.Efficiency.MaxHops {
		out = append(out, validation.Fail(
			validation.CategoryEfficiency,
			validation.SeverityWarning,
			fmt.Sprintf("Path has %d hops, exceeds maximum %d", hops, e.th.Efficiency.MaxHops),
			"Look for more direct routes or split the trade",
		))
	}
	if directAvailable && hops > 1 && e.th.Efficiency.PreferDirectPaths {
		out = append(out, validation.Fail(
			validation.CategoryEfficiency,
			validation.SeverityWarning,
			fmt.Sprintf("Using %d-hop path when direct path is available", hops),
			"Use the direct trading pair for better gas efficiency",
		))
	}
	if len(out) == 0 {
		out = append(out, validation.Pass(validation.CategoryEfficiency, fmt.Sprintf("Path with %d hop(s) is acceptable", hops)))
	}
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
