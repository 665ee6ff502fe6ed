package validation

import (
	xerrors "Dexter-Chain/internal/errors"
)

// Category 表示校验结论所属的领域。
type Category string

const (
	CategoryGas         Category = "gas"
	CategorySecurity    Category = "security"
	CategoryEfficiency  Category = "efficiency"
	CategoryCorrectness Category = "correctness"
	// CategoryError 仅用于子代理自身执行失败的合成结论。
	CategoryError Category = "error"
)

// Severity 与统一错误码共用同一套严重程度。
type Severity = xerrors.Severity

const (
	SeverityInfo     = xerrors.SeverityInfo
	SeverityWarning  = xerrors.SeverityWarning
	SeverityCritical = xerrors.SeverityCritical
)

// Result 是一次检查产生的结论，创建后不再修改。
type Result struct {
	Passed          bool     `json:"passed"`
	Category        Category `json:"category"`
	Message         string   `json:"message"`
	Severity        Severity `json:"severity"`
	OptimizationTip string   `json:"optimization_tip,omitempty"`
}

// Pass 构造一个通过的 info 级结论。
func Pass(category Category, message string) Result {
	return Result{Passed: true, Category: category, Message: message, Severity: SeverityInfo}
}

// Note 构造一个带提示的通过结论。
func Note(category Category, message, tip string) Result {
	return Result{Passed: true, Category: category, Message: message, Severity: SeverityInfo, OptimizationTip: tip}
}

// Fail 构造一个未通过的结论。
func Fail(category Category, severity Severity, message, tip string) Result {
	return Result{Passed: false, Category: category, Message: message, Severity: severity, OptimizationTip: tip}
}

// IsCriticalFailure 判断结论是否会使交易无效。
func (r Result) IsCriticalFailure() bool {
	return !r.Passed && r.Severity == SeverityCritical
}

// HasCriticalFailure 当且仅当存在未通过的 critical 结论时返回 true。
func HasCriticalFailure(results []Result) bool {
	for _, r := range results {
		if r.IsCriticalFailure() {
			return true
		}
	}
	return false
}

// Failed 返回未通过的结论，保持原有顺序。
func Failed(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// CountFailed 统计未通过的结论数量。
func CountFailed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
