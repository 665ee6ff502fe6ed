package rules

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	xerrors "Dexter-Chain/internal/errors"
	"Dexter-Chain/internal/validation"

	"gopkg.in/yaml.v3"
)

// TxType 是评估器推断出的交易类型，用于选择 gas 阈值。
type TxType string

const (
	TxETHTransfer   TxType = "eth_transfer"
	TxERC20Transfer TxType = "erc20_transfer"
	TxSimpleSwap    TxType = "simple_swap"
	TxComplexSwap   TxType = "complex_swap"
	TxMultiHopSwap  TxType = "multi_hop_swap"
)

// GasThresholds 定义每种交易类型的 gas 上限。
type GasThresholds struct {
	ETHTransfer   uint64 `yaml:"eth_transfer" json:"eth_transfer"`
	ERC20Transfer uint64 `yaml:"erc20_transfer" json:"erc20_transfer"`
	SimpleSwap    uint64 `yaml:"simple_swap" json:"simple_swap"`
	ComplexSwap   uint64 `yaml:"complex_swap" json:"complex_swap"`
	MultiHopSwap  uint64 `yaml:"multi_hop_swap" json:"multi_hop_swap"`
}

// Ceiling 返回交易类型对应的上限，未知类型按 complex_swap 处理。
func (g GasThresholds) Ceiling(txType TxType) uint64 {
	switch txType {
	case TxETHTransfer:
		return g.ETHTransfer
	case TxERC20Transfer:
		return g.ERC20Transfer
	case TxSimpleSwap:
		return g.SimpleSwap
	case TxMultiHopSwap:
		return g.MultiHopSwap
	default:
		return g.ComplexSwap
	}
}

// SecurityRules 定义安全相关阈值。
type SecurityRules struct {
	MaxSlippagePercent          float64            `yaml:"max_slippage_percent" json:"max_slippage_percent"`
	MaxValueWithoutConfirmation *validation.Amount `yaml:"max_value_without_confirmation" json:"max_value_without_confirmation"`
	AllowedProtocols            []string           `yaml:"allowed_protocols" json:"allowed_protocols"`
	RequireSimulation           bool               `yaml:"require_simulation" json:"require_simulation"`
}

// EfficiencyRules 定义执行效率相关阈值。
type EfficiencyRules struct {
	MaxPriceImpactPercent float64 `yaml:"max_price_impact_percent" json:"max_price_impact_percent"`
	MinOutputRatio        float64 `yaml:"min_output_ratio" json:"min_output_ratio"`
	MaxHops               int     `yaml:"max_hops" json:"max_hops"`
	PreferDirectPaths     bool    `yaml:"prefer_direct_paths" json:"prefer_direct_paths"`
}

// Thresholds 聚合三组规则配置。
type Thresholds struct {
	Gas        GasThresholds   `yaml:"gas" json:"gas"`
	Security   SecurityRules   `yaml:"security" json:"security"`
	Efficiency EfficiencyRules `yaml:"efficiency" json:"efficiency"`
}

// OneETH 是 10^18 wei。
var OneETH = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// DefaultThresholds 返回内置的默认阈值。
func DefaultThresholds() Thresholds {
	return Thresholds{
		Gas: GasThresholds{
			ETHTransfer:   21000,
			ERC20Transfer: 65000,
			SimpleSwap:    150000,
			ComplexSwap:   300000,
			MultiHopSwap:  500000,
		},
		Security: SecurityRules{
			MaxSlippagePercent:          2.0,
			MaxValueWithoutConfirmation: validation.NewAmount(OneETH),
			AllowedProtocols:            []string{"uniswap_v3", "sushiswap", "curve", "balancer", "1inch"},
			RequireSimulation:           true,
		},
		Efficiency: EfficiencyRules{
			MaxPriceImpactPercent: 1.0,
			MinOutputRatio:        0.98,
			MaxHops:               3,
			PreferDirectPaths:     true,
		},
	}
}

// LoadThresholds 读取 YAML 规则文件并覆盖默认值，路径为空时直接返回默认值。
func LoadThresholds(path string) (Thresholds, error) {
	th := DefaultThresholds()
	if strings.TrimSpace(path) == "" {
		return th, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "读取规则文件失败")
	}
	if err := yaml.Unmarshal(content, &th); err != nil {
		return Thresholds{}, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析规则文件失败")
	}
	if err := th.Validate(); err != nil {
		return Thresholds{}, err
	}
	return th, nil
}

// Validate 校验阈值是否合理。
func (t Thresholds) Validate() error {
	ceilings := map[TxType]uint64{
		TxETHTransfer:   t.Gas.ETHTransfer,
		TxERC20Transfer: t.Gas.ERC20Transfer,
		TxSimpleSwap:    t.Gas.SimpleSwap,
		TxComplexSwap:   t.Gas.ComplexSwap,
		TxMultiHopSwap:  t.Gas.MultiHopSwap,
	}
	for txType, ceiling := range ceilings {
		if ceiling == 0 {
			return xerrors.New(xerrors.CodeConfigInvalid, fmt.Sprintf("gas 阈值 %s 不能为 0", txType))
		}
	}
	if t.Security.MaxSlippagePercent < 0 || t.Security.MaxSlippagePercent > 100 {
		return xerrors.New(xerrors.CodeConfigInvalid, "最大滑点必须在 0 到 100 之间")
	}
	if t.Security.MaxValueWithoutConfirmation == nil {
		return xerrors.New(xerrors.CodeConfigInvalid, "未配置免确认金额上限")
	}
	if len(t.Security.AllowedProtocols) == 0 {
		return xerrors.New(xerrors.CodeConfigInvalid, "协议白名单不能为空")
	}
	if t.Efficiency.MaxHops <= 0 {
		return xerrors.New(xerrors.CodeConfigInvalid, "最大跳数必须大于 0")
	}
	if t.Efficiency.MinOutputRatio < 0 || t.Efficiency.MinOutputRatio > 1 {
		return xerrors.New(xerrors.CodeConfigInvalid, "最小输出比例必须在 0 到 1 之间")
	}
	return nil
}
