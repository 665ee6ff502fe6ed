package ethereum

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"Dexter-Chain/internal/validation"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

type rpcError struct {
	code int
	msg  string
}

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return e.code }

type stubBackend struct {
	baseFee     *big.Int
	estimate    uint64
	estimateErr error
	callErr     error
	lastMsg     gethcore.CallMsg
}

func (s *stubBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (s *stubBackend) BlockNumber(context.Context) (uint64, error) {
	return 100, nil
}
func (s *stubBackend) HeaderByNumber(context.Context, *big.Int) (*coretypes.Header, error) {
	return &coretypes.Header{Number: big.NewInt(100), BaseFee: s.baseFee}, nil
}
func (s *stubBackend) CallContract(_ context.Context, msg gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	s.lastMsg = msg
	return nil, s.callErr
}
func (s *stubBackend) EstimateGas(_ context.Context, msg gethcore.CallMsg) (uint64, error) {
	return s.estimate, s.estimateErr
}

const target = "0x1111111111111111111111111111111111111111"

func TestSimulateSuccess(t *testing.T) {
	backend := &stubBackend{estimate: 52000}
	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	client := NewClientWithBackend("test", backend, from)

	tx := validation.Transaction{To: target, Value: validation.MustAmount("1000"), Data: "0xa9059cbb00"}
	res, err := client.Simulate(context.Background(), tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.GasUsed != 52000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if backend.lastMsg.From != from || backend.lastMsg.Gas != 52000 || backend.lastMsg.Value.Int64() != 1000 {
		t.Fatalf("unexpected call message: %+v", backend.lastMsg)
	}
}

func TestSimulateRevertBecomesFailedResult(t *testing.T) {
	backend := &stubBackend{estimateErr: rpcError{code: -32000, msg: "insufficient funds for transfer"}}
	client := NewClientWithBackend("test", backend, common.Address{})

	res, err := client.Simulate(context.Background(), validation.Transaction{To: target})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "insufficient balance") {
		t.Fatalf("unexpected result: %+v", res)
	}

	backend = &stubBackend{estimate: 21000, callErr: rpcError{code: 3, msg: "execution reverted"}}
	client = NewClientWithBackend("test", backend, common.Address{})
	res, err = client.Simulate(context.Background(), validation.Transaction{To: target})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Error != "execution reverted" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSimulateTransportError(t *testing.T) {
	backend := &stubBackend{estimateErr: errors.New("connection refused")}
	client := NewClientWithBackend("test", backend, common.Address{})
	if _, err := client.Simulate(context.Background(), validation.Transaction{To: target}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestSimulateInvalidTarget(t *testing.T) {
	client := NewClientWithBackend("test", &stubBackend{}, common.Address{})
	res, err := client.Simulate(context.Background(), validation.Transaction{To: "0xDEAD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "invalid target address") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestBaseFeeAndSnapshot(t *testing.T) {
	client := NewClientWithBackend("test", &stubBackend{baseFee: big.NewInt(12_000_000_000)}, common.Address{})
	fee, err := client.BaseFee(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee.Int64() != 12_000_000_000 {
		t.Fatalf("unexpected base fee: %s", fee)
	}
	snapshot, err := client.FetchChainSnapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot.ChainID != "0x1" || snapshot.BlockNumber != "0x64" || snapshot.BaseFee != "12000000000" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	legacy := NewClientWithBackend("legacy", &stubBackend{}, common.Address{})
	if _, err := legacy.BaseFee(context.Background()); err == nil {
		t.Fatalf("expected error for pre-London header")
	}
}

func TestClosedClient(t *testing.T) {
	client := NewClientWithBackend("test", &stubBackend{}, common.Address{})
	client.Close()
	if _, err := client.BaseFee(context.Background()); err == nil {
		t.Fatalf("expected error after close")
	}
}
