package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Amount 是以 wei 为单位的非负整数，JSON 中以十进制字符串输出，
// 读取时兼容数字、十进制字符串和 0x 前缀的十六进制字符串。
type Amount struct {
	v big.Int
}

// NewAmount 复制 x 并返回 Amount，x 为 nil 时返回零值。
func NewAmount(x *big.Int) *Amount {
	a := new(Amount)
	if x != nil {
		a.v.Set(x)
	}
	return a
}

// AmountFromUint64 便于在代码与测试中构造数额。
func AmountFromUint64(x uint64) *Amount {
	a := new(Amount)
	a.v.SetUint64(x)
	return a
}

// ParseAmount 解析十进制、科学计数法或十六进制表示的数额。
func ParseAmount(s string) (*Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(Amount), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := hexutil.DecodeBig(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("invalid hex amount %q: %w", s, err)
		}
		return NewAmount(v), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("amount %q is not an integer", s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	return NewAmount(d.BigInt()), nil
}

// MustAmount 解析失败时 panic，仅用于常量和测试。
func MustAmount(s string) *Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Int 返回数额的副本；nil 视为零。
func (a *Amount) Int() *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(&a.v)
}

// Sign 返回数额的符号；nil 视为零。
func (a *Amount) Sign() int {
	if a == nil {
		return 0
	}
	return a.v.Sign()
}

// Clone 返回独立副本。
func (a *Amount) Clone() *Amount {
	if a == nil {
		return nil
	}
	return NewAmount(&a.v)
}

// String 返回十进制表示。
func (a *Amount) String() string {
	if a == nil {
		return "0"
	}
	return a.v.String()
}

// MarshalJSON 以十进制字符串输出。
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.String())
}

// UnmarshalJSON 兼容数字与字符串两种编码。
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		a.v.SetInt64(0)
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	a.v.Set(&parsed.v)
	return nil
}

// MarshalYAML 与 JSON 保持一致，输出十进制字符串。
func (a Amount) MarshalYAML() (any, error) {
	return a.v.String(), nil
}

// UnmarshalYAML 允许在阈值文件中直接书写数额。
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseAmount(node.Value)
	if err != nil {
		return err
	}
	a.v.Set(&parsed.v)
	return nil
}
