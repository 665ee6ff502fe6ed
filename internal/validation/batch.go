package validation

// TransactionResult 是批次中单笔交易的评估结果。
type TransactionResult struct {
	Index   int      `json:"transaction_index"`
	Valid   bool     `json:"valid"`
	Results []Result `json:"results"`
}

// BatchResult 汇总一个批次的评估结论。
type BatchResult struct {
	AllValid           bool                `json:"all_valid"`
	TransactionResults []TransactionResult `json:"transaction_results"`
	OptimizationTips   []string            `json:"optimization_tips"`
	Summary            string              `json:"summary"`
}

// InvalidIndexes 返回无效交易的下标。
func (b BatchResult) InvalidIndexes() []int {
	var out []int
	for _, tr := range b.TransactionResults {
		if !tr.Valid {
			out = append(out, tr.Index)
		}
	}
	return out
}

// FailedCount 统计整个批次中未通过的结论数量。
func (b BatchResult) FailedCount() int {
	n := 0
	for _, tr := range b.TransactionResults {
		n += CountFailed(tr.Results)
	}
	return n
}
