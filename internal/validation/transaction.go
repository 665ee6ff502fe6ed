package validation

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction 描述待评估的交易。字段名与 JSON-RPC 交易对象保持一致，
// flashbots_bundle 与 max_priority_fee_per_gas 由优化器在加入 MEV 防护时写入。
type Transaction struct {
	To                   string  `json:"to"`
	Value                *Amount `json:"value,omitempty"`
	Data                 string  `json:"data,omitempty"`
	Gas                  *uint64 `json:"gas,omitempty"`
	MaxFeePerGas         *Amount `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *Amount `json:"maxPriorityFeePerGas,omitempty"`
	FlashbotsBundle      bool    `json:"flashbots_bundle,omitempty"`
	ProtectedPriorityFee *Amount `json:"max_priority_fee_per_gas,omitempty"`
}

// Clone 返回深拷贝，优化器只在副本上修改。
func (tx Transaction) Clone() Transaction {
	out := tx
	out.Value = tx.Value.Clone()
	out.MaxFeePerGas = tx.MaxFeePerGas.Clone()
	out.MaxPriorityFeePerGas = tx.MaxPriorityFeePerGas.Clone()
	out.ProtectedPriorityFee = tx.ProtectedPriorityFee.Clone()
	if tx.Gas != nil {
		g := *tx.Gas
		out.Gas = &g
	}
	return out
}

// ValueWei 返回转账金额，缺省为零。
func (tx Transaction) ValueWei() *big.Int {
	return tx.Value.Int()
}

// GasLimit 返回 gas 上限以及是否设置。
func (tx Transaction) GasLimit() (uint64, bool) {
	if tx.Gas == nil {
		return 0, false
	}
	return *tx.Gas, true
}

// WithGas 设置 gas 上限。
func (tx *Transaction) WithGas(gas uint64) {
	tx.Gas = &gas
}

// IsPlainTransfer 判断 data 是否为空或不足以构成函数调用。
func (tx Transaction) IsPlainTransfer() bool {
	return tx.Data == "" || tx.Data == "0x" || len(tx.Data) <= 10
}

// HasCalldata 判断 data 是否携带参数。
func (tx Transaction) HasCalldata() bool {
	return len(tx.Data) > 10
}

// Selector 返回 data 的前 4 字节函数选择器（小写，含 0x 前缀）。
func (tx Transaction) Selector() string {
	if len(tx.Data) < 10 {
		return ""
	}
	return strings.ToLower(tx.Data[:10])
}

// CalldataBytes 解码 data 字段，0x 前缀可省略；奇数长度或非十六进制字符返回错误。
func (tx Transaction) CalldataBytes() ([]byte, error) {
	raw := tx.Data
	if len(raw) >= 2 && raw[0] == '0' && (raw[1] == 'x' || raw[1] == 'X') {
		raw = raw[2:]
	}
	if raw == "" {
		return nil, nil
	}
	return hexutil.Decode("0x" + raw)
}

// ToAddress 将目标地址解析为 go-ethereum 地址类型。
func (tx Transaction) ToAddress() (common.Address, bool) {
	if !common.IsHexAddress(tx.To) {
		return common.Address{}, false
	}
	return common.HexToAddress(tx.To), true
}

// SameAddress 不区分大小写地比较两个地址字符串。
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Objective 描述交易批次应达成的意图。
type Objective struct {
	Type            string             `json:"type"`
	TargetAddress   string             `json:"target_address,omitempty"`
	ExpectedOutput  *Amount            `json:"expected_output,omitempty"`
	MinOutput       *Amount            `json:"min_output,omitempty"`
	ExpectedChanges map[string]float64 `json:"expected_changes,omitempty"`
	MEVProtection   bool               `json:"mev_protection,omitempty"`
	Protocol        string             `json:"protocol,omitempty"`
	ExpectedState   map[string]any     `json:"expected_state,omitempty"`
	// Path 与 DirectPathAvailable 为可选的路由信息，提供时会进行路径效率检查。
	Path                []string `json:"path,omitempty"`
	DirectPathAvailable bool     `json:"direct_path_available,omitempty"`
	PriceImpactPercent  *float64 `json:"price_impact_percent,omitempty"`
}

// TypeContains 对 objective type 做不区分大小写的子串匹配。
func (o Objective) TypeContains(sub string) bool {
	return strings.Contains(strings.ToLower(o.Type), strings.ToLower(sub))
}

// IsSwap 判断目标是否为兑换类操作。
func (o Objective) IsSwap() bool {
	return o.TypeContains("swap")
}

// HasOutputBounds 判断是否同时给出了期望输出和最小输出。
func (o Objective) HasOutputBounds() bool {
	return o.ExpectedOutput != nil && o.MinOutput != nil
}

// SimulationResult 是外部模拟器对单笔交易的执行结果。
// 零值（以及没有任何字段的 JSON 对象）表示“没有模拟”，评估器会跳过模拟检查；
// 在代码中构造失败结果请使用 SimulationFailed，它会标记结果已提供。
type SimulationResult struct {
	Success      bool               `json:"success"`
	Error        string             `json:"error,omitempty"`
	AssetChanges map[string]float64 `json:"asset_changes,omitempty"`
	GasUsed      uint64             `json:"gas_used,omitempty"`

	present bool
}

// UnmarshalJSON 记录对象是否携带任何字段，以区分空对象与失败结果。
func (s *SimulationResult) UnmarshalJSON(data []byte) error {
	type plain SimulationResult
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*s = SimulationResult(decoded)
	s.present = len(fields) > 0
	return nil
}

// Empty 判断模拟结果是否缺失。空对象与 nil 等价，评估器会跳过模拟检查。
func (s *SimulationResult) Empty() bool {
	if s == nil {
		return true
	}
	if s.present {
		return false
	}
	return !s.Success && s.Error == "" && s.AssetChanges == nil && s.GasUsed == 0
}

// SimulationFailed 构造一个失败的模拟结果。
func SimulationFailed(reason string) *SimulationResult {
	return &SimulationResult{Success: false, Error: reason, present: true}
}

// SimulationSucceeded 构造一个成功的模拟结果。
func SimulationSucceeded(gasUsed uint64, changes map[string]float64) *SimulationResult {
	return &SimulationResult{Success: true, GasUsed: gasUsed, AssetChanges: changes, present: true}
}
