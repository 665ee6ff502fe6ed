package subagent

import (
	"context"
	"math/big"
	"sort"
	"strconv"

	"Dexter-Chain/internal/validation"
)

// Analyzer 是所有子代理共享的分析契约。
type Analyzer interface {
	Analyze(ctx context.Context, tx validation.Transaction, objective validation.Objective, actx Context) ([]validation.Result, error)
}

// AnalyzerFunc 让普通函数满足 Analyzer 接口。
type AnalyzerFunc func(ctx context.Context, tx validation.Transaction, objective validation.Objective, actx Context) ([]validation.Result, error)

// Analyze 调用函数本身。
func (f AnalyzerFunc) Analyze(ctx context.Context, tx validation.Transaction, objective validation.Objective, actx Context) ([]validation.Result, error) {
	return f(ctx, tx, objective, actx)
}

// DefaultBaseFee 是上下文未提供 base fee 时使用的 30 gwei。
var DefaultBaseFee = big.NewInt(30_000_000_000)

// Context 携带分析所需的链上环境信息。
type Context struct {
	CurrentBaseFee *big.Int `json:"current_base_fee,omitempty"`
}

// BaseFee 返回当前 base fee，未设置时返回默认值。
func (c Context) BaseFee() *big.Int {
	if c.CurrentBaseFee == nil {
		return new(big.Int).Set(DefaultBaseFee)
	}
	return new(big.Int).Set(c.CurrentBaseFee)
}

var (
	gwei  = big.NewInt(1_000_000_000)
	ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
