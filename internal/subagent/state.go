package subagent

import (
	"context"
	"fmt"

	"Dexter-Chain/internal/validation"
)

const transferFromSelector = "0x23b872dd"

// StateValidator 针对余额变化、授权与合约状态给出提醒。
type StateValidator struct{}

// Analyze 实现 Analyzer。
func (StateValidator) Analyze(_ context.Context, tx validation.Transaction, objective validation.Objective, _ Context) ([]validation.Result, error) {
	var results []validation.Result

	for _, token := range sortedKeys(objective.ExpectedChanges) {
		results = append(results, validation.Pass(
			validation.CategoryCorrectness,
			fmt.Sprintf("Expecting %s balance change of %s", token, formatFloat(objective.ExpectedChanges[token])),
		))
	}

	if tx.Selector() == transferFromSelector {
		results = append(results, validation.Note(
			validation.CategoryCorrectness,
			"Ensure token approval is set before transferFrom",
			"Check allowance before attempting transfer",
		))
	}

	if objective.ExpectedState != nil {
		results = append(results, validation.Note(
			validation.CategoryCorrectness,
			"Transaction should be simulated to verify state changes",
			"Use transaction simulation to confirm expected state",
		))
	}
	return results, nil
}
