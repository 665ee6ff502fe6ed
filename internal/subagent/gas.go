package subagent

import (
	"context"
	"fmt"
	"math/big"

	"Dexter-Chain/internal/validation"
)

const calldataGasLimit = 50000

var storageHeavySelectors = map[string]string{
	"0x095ea7b3": "approve",
	"0x23b872dd": "transferFrom",
	"0x40c10f19": "mint",
}

// GasAnalyzer 分析 calldata 成本、存储密集型调用与 EIP-1559 费用设置。
type GasAnalyzer struct{}

// Analyze 实现 Analyzer。
func (GasAnalyzer) Analyze(_ context.Context, tx validation.Transaction, _ validation.Objective, actx Context) ([]validation.Result, error) {
	var results []validation.Result

	if tx.HasCalldata() {
		data, err := tx.CalldataBytes()
		if err != nil {
			return nil, fmt.Errorf("decode calldata: %w", err)
		}
		if cost := CalldataGas(data); cost > calldataGasLimit {
			results = append(results, validation.Fail(
				validation.CategoryGas,
				validation.SeverityWarning,
				fmt.Sprintf("Calldata alone costs %d gas", cost),
				"Consider using more efficient encoding or calldata compression",
			))
		}
		if name, ok := storageHeavySelectors[tx.Selector()]; ok {
			results = append(results, validation.Note(
				validation.CategoryGas,
				fmt.Sprintf("Function %s typically involves multiple storage operations", name),
				"Consider batching multiple calls if possible",
			))
		}
	}

	results = append(results, feeFindings(tx, actx)...)
	return results, nil
}

// CalldataGas 按每个零字节 4 gas、非零字节 16 gas 计算 calldata 成本。
func CalldataGas(data []byte) uint64 {
	var gas uint64
	for _, b := range data {
		if b == 0 {
			gas += 4
		} else {
			gas += 16
		}
	}
	return gas
}

func feeFindings(tx validation.Transaction, actx Context) []validation.Result {
	if tx.MaxFeePerGas == nil || tx.MaxPriorityFeePerGas == nil {
		return nil
	}
	var results []validation.Result
	baseFee := actx.BaseFee()

	// maxFee < baseFee*1.25  <=>  maxFee*4 < baseFee*5
	maxFee4 := new(big.Int).Mul(tx.MaxFeePerGas.Int(), big.NewInt(4))
	baseFee5 := new(big.Int).Mul(baseFee, big.NewInt(5))
	if maxFee4.Cmp(baseFee5) < 0 {
		suggested := new(big.Int).Div(new(big.Int).Mul(baseFee, big.NewInt(3)), big.NewInt(2))
		results = append(results, validation.Fail(
			validation.CategoryGas,
			validation.SeverityWarning,
			"Max fee might be too low for timely inclusion",
			fmt.Sprintf("Consider setting maxFeePerGas to at least %s wei", suggested),
		))
	}
	if tx.MaxPriorityFeePerGas.Int().Cmp(gwei) < 0 {
		results = append(results, validation.Fail(
			validation.CategoryGas,
			validation.SeverityWarning,
			"Priority fee too low, transaction might be slow",
			"Set priority fee to at least 2 gwei for reasonable inclusion time",
		))
	}
	return results
}
