package optimizer

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"strings"

	"Dexter-Chain/internal/validation"
)

// mevPriorityFee 是启用 MEV 防护时写入的 5 gwei 优先费。
var mevPriorityFee = big.NewInt(5_000_000_000)

// Strategy 针对某一类别的问题改写交易，返回改写后的交易与已应用的修改说明。
type Strategy func(tx validation.Transaction, issues []validation.Result, objective validation.Objective) (validation.Transaction, []string)

// Optimizer 持有类别到策略的查找表。
type Optimizer struct {
	strategies map[validation.Category]Strategy
}

// Option 定义 Optimizer 的可选配置。
type Option func(*Optimizer)

// WithStrategy 注册或替换某一类别的策略。
func WithStrategy(category validation.Category, s Strategy) Option {
	return func(o *Optimizer) {
		if s != nil {
			o.strategies[category] = s
		}
	}
}

// New 创建包含 gas、security、efficiency、correctness 四个策略的优化器。
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		strategies: map[validation.Category]Strategy{
			validation.CategoryGas:         optimizeGas,
			validation.CategorySecurity:    optimizeSecurity,
			validation.CategoryEfficiency:  optimizeEfficiency,
			validation.CategoryCorrectness: optimizeCorrectness,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// OptimizeTransaction 将未通过的结论按类别分组（保持首次出现的顺序），
// 依次交给对应策略处理。没有策略的类别（如 error）被忽略。
func (o *Optimizer) OptimizeTransaction(tx validation.Transaction, results []validation.Result, objective validation.Objective) (validation.Transaction, []string) {
	out := tx.Clone()
	applied := make([]string, 0)

	var order []validation.Category
	grouped := make(map[validation.Category][]validation.Result)
	for _, r := range results {
		if r.Passed {
			continue
		}
		if _, ok := grouped[r.Category]; !ok {
			order = append(order, r.Category)
		}
		grouped[r.Category] = append(grouped[r.Category], r)
	}

	for _, category := range order {
		strategy, ok := o.strategies[category]
		if !ok {
			continue
		}
		var changes []string
		out, changes = strategy(out, grouped[category], objective)
		applied = append(applied, changes...)
	}
	return out, applied
}

func optimizeGas(tx validation.Transaction, issues []validation.Result, objective validation.Objective) (validation.Transaction, []string) {
	var applied []string
	for _, issue := range issues {
		if !strings.Contains(issue.Message, "exceeds threshold") {
			continue
		}
		if tx.HasCalldata() {
			if data := optimizeCalldata(tx.Data, objective); data != tx.Data {
				tx.Data = data
				applied = append(applied, "Optimized calldata encoding for gas efficiency")
			}
		}
		if gas, ok := tx.GasLimit(); ok {
			reduced := scaleGas(gas, 3, 4)
			tx.WithGas(reduced)
			applied = append(applied, fmt.Sprintf("Reduced gas limit from %d to %d", gas, reduced))
		}
	}
	return tx, applied
}

func optimizeSecurity(tx validation.Transaction, issues []validation.Result, objective validation.Objective) (validation.Transaction, []string) {
	var applied []string
	for _, issue := range issues {
		switch {
		case strings.Contains(issue.Message, "Slippage"):
			if protected, ok := tightenSlippage(tx, objective); ok {
				tx = protected
				applied = append(applied, "Added improved slippage protection")
			}
		case strings.Contains(issue.Message, "MEV vulnerable"):
			tx.FlashbotsBundle = true
			tx.ProtectedPriorityFee = validation.NewAmount(mevPriorityFee)
			applied = append(applied, "Added MEV protection measures")
		case strings.Contains(issue.Message, "exceeds confirmation threshold"):
			applied = append(applied, "Consider splitting into multiple smaller transactions")
		}
	}
	return tx, applied
}

func optimizeEfficiency(tx validation.Transaction, issues []validation.Result, objective validation.Objective) (validation.Transaction, []string) {
	var applied []string
	for _, issue := range issues {
		switch {
		case strings.Contains(issue.Message, "hop path when direct path is available"):
			if data, ok := findDirectPath(tx, objective); ok {
				tx.Data = data
				applied = append(applied, "Switched to direct trading path")
			}
		case strings.Contains(issue.Message, "exceeds maximum") && strings.Contains(issue.Message, "hops"):
			if data, ok := reduceHopCount(tx, objective); ok {
				tx.Data = data
				applied = append(applied, "Reduced swap path complexity")
			}
		}
	}
	return tx, applied
}

func optimizeCorrectness(tx validation.Transaction, issues []validation.Result, objective validation.Objective) (validation.Transaction, []string) {
	var applied []string
	for _, issue := range issues {
		switch {
		case strings.Contains(issue.Message, "target doesn't match"):
			if objective.TargetAddress != "" {
				tx.To = objective.TargetAddress
				applied = append(applied, "Corrected target address to "+objective.TargetAddress)
			}
		case strings.Contains(issue.Message, "simulation failed"):
			var fixes []string
			tx, fixes = fixSimulationIssue(tx, issue)
			applied = append(applied, fixes...)
		}
	}
	return tx, applied
}

func fixSimulationIssue(tx validation.Transaction, issue validation.Result) (validation.Transaction, []string) {
	msg := strings.ToLower(issue.Message)
	switch {
	case strings.Contains(msg, "insufficient balance"):
		if value := tx.ValueWei(); value.Sign() > 0 {
			tx.Value = validation.NewAmount(value.Rsh(value, 1))
			return tx, []string{"Reduced transaction value to avoid insufficient balance"}
		}
	case strings.Contains(msg, "gas required exceeds allowance"):
		if gas, ok := tx.GasLimit(); ok {
			tx.WithGas(scaleGas(gas, 3, 2))
			return tx, []string{"Increased gas limit to ensure execution"}
		}
	}
	return tx, nil
}

// scaleGas 计算 gas*num/den（向下取整），超出 uint64 时饱和为最大值。
func scaleGas(gas, num, den uint64) uint64 {
	hi, lo := bits.Mul64(gas, num)
	if hi >= den {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, den)
	return q
}

// 以下函数是尚未实现的改写入口，目前总是返回“无改动”。

// optimizeCalldata 原样返回 calldata。
func optimizeCalldata(data string, _ validation.Objective) string {
	return data
}

// tightenSlippage 需要按具体 DEX 协议改写 calldata 中的最小输出参数。
func tightenSlippage(tx validation.Transaction, _ validation.Objective) (validation.Transaction, bool) {
	return tx, false
}

// findDirectPath 需要查询可用流动性池以找到直连路径。
func findDirectPath(validation.Transaction, validation.Objective) (string, bool) {
	return "", false
}

// reduceHopCount 需要路由搜索以缩短兑换路径。
func reduceHopCount(validation.Transaction, validation.Objective) (string, bool) {
	return "", false
}
