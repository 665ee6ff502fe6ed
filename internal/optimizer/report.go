package optimizer

import (
	"fmt"

	"Dexter-Chain/internal/validation"
)

// Report 汇总一次优化前后的对比。
type Report struct {
	OriginalTransaction  validation.Transaction `json:"original_transaction"`
	OptimizedTransaction validation.Transaction `json:"optimized_transaction"`
	AppliedOptimizations []string               `json:"applied_optimizations"`
	Improvements         []string               `json:"improvements"`
}

// GenerateReport 计算 gas 节省量，并在提供 after 时比较未通过结论数量的变化。
// after 为 nil 表示尚未重新评估。
func GenerateReport(original, optimized validation.Transaction, applied []string, before, after []validation.Result) Report {
	report := Report{
		OriginalTransaction:  original,
		OptimizedTransaction: optimized,
		AppliedOptimizations: append([]string{}, applied...),
		Improvements:         []string{},
	}

	origGas, ok1 := original.GasLimit()
	newGas, ok2 := optimized.GasLimit()
	if ok1 && ok2 && newGas < origGas {
		report.Improvements = append(report.Improvements, fmt.Sprintf("Reduced gas by %d units", origGas-newGas))
	}

	if after != nil {
		beforeIssues := validation.CountFailed(before)
		afterIssues := validation.CountFailed(after)
		if afterIssues < beforeIssues {
			report.Improvements = append(report.Improvements, fmt.Sprintf("Resolved %d validation issues", beforeIssues-afterIssues))
		}
	}
	return report
}

// Suggestion 是当优化不足以解决问题时的替代方案建议。
type Suggestion struct {
	Approach    string   `json:"approach"`
	Description string   `json:"description"`
	Benefits    []string `json:"benefits"`
}

// SuggestAlternatives 根据问题类别组合给出建议，不修改任何交易。
func SuggestAlternatives(objective validation.Objective, issues []validation.Result) []Suggestion {
	var hasGas, hasSecurity, hasEfficiency bool
	for _, issue := range issues {
		switch issue.Category {
		case validation.CategoryGas:
			hasGas = true
		case validation.CategorySecurity:
			hasSecurity = true
		case validation.CategoryEfficiency:
			hasEfficiency = true
		}
	}

	suggestions := make([]Suggestion, 0)
	if hasGas && hasEfficiency {
		suggestions = append(suggestions, Suggestion{
			Approach:    "Transaction Batching",
			Description: "Combine multiple operations into a single transaction using a multicall contract",
			Benefits:    []string{"Reduced total gas cost", "Atomic execution", "Fewer approvals needed"},
		})
	}
	if hasSecurity && objective.IsSwap() {
		suggestions = append(suggestions, Suggestion{
			Approach:    "Use Aggregator",
			Description: "Use a DEX aggregator like 1inch that handles routing and protection",
			Benefits:    []string{"Built-in MEV protection", "Optimal routing", "Professional slippage handling"},
		})
	}
	if hasEfficiency {
		suggestions = append(suggestions, Suggestion{
			Approach:    "Split Orders",
			Description: "Split large orders into smaller chunks executed over time",
			Benefits:    []string{"Reduced price impact", "Better average execution price", "Lower slippage"},
		})
	}
	return suggestions
}
