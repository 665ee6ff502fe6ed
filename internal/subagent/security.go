package subagent

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"Dexter-Chain/internal/validation"
)

var privilegedSelectors = map[string]string{
	"0x715018a6": "renounceOwnership",
	"0xf2fde38b": "transferOwnership",
	"0x3ccfd60b": "withdraw",
	"0x853828b6": "withdrawAll",
}

// largeSwapValue 是 5 ETH。
var largeSwapValue = new(big.Int).Mul(big.NewInt(5), ether)

// systemAddressPrefix 以此开头的目标视为系统合约，不提示审计。
const systemAddressPrefix = "0x00000"

// SecurityValidator 检查重入暴露、大额兑换抢跑、特权函数调用与目标合约审计提醒。
type SecurityValidator struct{}

// Analyze 实现 Analyzer。
func (SecurityValidator) Analyze(_ context.Context, tx validation.Transaction, objective validation.Objective, _ Context) ([]validation.Result, error) {
	var results []validation.Result
	value := tx.ValueWei()

	if value.Sign() > 0 && tx.HasCalldata() {
		results = append(results, validation.Fail(
			validation.CategorySecurity,
			validation.SeverityWarning,
			"Transaction sends ETH while executing complex logic",
			"Ensure the target contract follows checks-effects-interactions pattern",
		))
	}

	if objective.IsSwap() && value.Cmp(largeSwapValue) > 0 && !objective.MEVProtection {
		results = append(results, validation.Fail(
			validation.CategorySecurity,
			validation.SeverityCritical,
			"Large swap without MEV protection is vulnerable to sandwich attacks",
			"Use Flashbots RPC or implement commit-reveal pattern",
		))
	}

	if name, ok := privilegedSelectors[tx.Selector()]; ok {
		results = append(results, validation.Fail(
			validation.CategorySecurity,
			validation.SeverityCritical,
			fmt.Sprintf("Calling privileged function %s", name),
			"Ensure you have the required permissions before calling",
		))
	}

	to := strings.ToLower(strings.TrimSpace(tx.To))
	if to != "" && !strings.HasPrefix(to, systemAddressPrefix) {
		results = append(results, validation.Pass(validation.CategorySecurity, "Ensure target contract is verified and audited"))
	}
	return results, nil
}
