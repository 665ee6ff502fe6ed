package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"Dexter-Chain/internal/validation"
	"Dexter-Chain/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible simulator.
type Config struct {
	Name        string
	RPCURL      string
	From        string
	Notes       string
	CallTimeout time.Duration
}

// chainBackend mirrors the subset of ethclient methods the simulator needs.
type chainBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
}

// Client implements web3.Client for EVM compatible chains using eth_call and
// eth_estimateGas against the latest block.
type Client struct {
	name        string
	notes       string
	from        common.Address
	callTimeout time.Duration
	rpcClient   *gethrpc.Client
	backend     chainBackend
	mu          sync.Mutex
}

var _ web3.Client = (*Client)(nil)

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	from, err := parseFrom(cfg.From)
	if err != nil {
		return nil, err
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	return &Client{
		name:        cfg.Name,
		notes:       cfg.Notes,
		from:        from,
		callTimeout: cfg.CallTimeout,
		rpcClient:   rpcClient,
		backend:     ethclient.NewClient(rpcClient),
	}, nil
}

// NewClientWithBackend wraps an existing backend, typically a test double.
func NewClientWithBackend(name string, backend chainBackend, from common.Address) *Client {
	return &Client{name: name, backend: backend, from: from}
}

func parseFrom(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("无效的模拟发送地址: %s", raw)
	}
	return common.HexToAddress(raw), nil
}

// Name returns the configured chain name.
func (c *Client) Name() string {
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ec, ok := c.backend.(*ethclient.Client); ok {
		ec.Close()
	} else if c.rpcClient != nil {
		c.rpcClient.Close()
	}
	c.rpcClient = nil
	c.backend = nil
}

func (c *Client) chain() (chainBackend, error) {
	if c == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return nil, errors.New("客户端缺少链访问后端")
	}
	return c.backend, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout > 0 {
		return context.WithTimeout(ctx, c.callTimeout)
	}
	return ctx, func() {}
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	backend, err := c.chain()
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	snapshot := web3.ChainSnapshot{
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}
	if baseFee, err := c.BaseFee(ctx); err == nil {
		snapshot.BaseFee = baseFee.String()
	}
	return snapshot, nil
}

// BaseFee returns the base fee of the latest block.
func (c *Client) BaseFee(ctx context.Context) (*big.Int, error) {
	backend, err := c.chain()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("获取最新区块头失败: %w", err)
	}
	if header.BaseFee == nil {
		return nil, errors.New("最新区块没有 base fee")
	}
	return new(big.Int).Set(header.BaseFee), nil
}

// Simulate estimates gas for the transaction and replays it with eth_call.
// Node-side rejections such as reverts or insufficient funds become a failed
// simulation result; transport errors are returned as errors.
func (c *Client) Simulate(ctx context.Context, tx validation.Transaction) (*validation.SimulationResult, error) {
	backend, err := c.chain()
	if err != nil {
		return nil, err
	}
	msg, err := c.callMsg(tx)
	if err != nil {
		return validation.SimulationFailed(err.Error()), nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	gasUsed, err := backend.EstimateGas(ctx, msg)
	if err != nil {
		if isExecutionError(err) {
			return validation.SimulationFailed(normalizeReason(err)), nil
		}
		return nil, fmt.Errorf("估算 gas 失败: %w", err)
	}
	if msg.Gas == 0 {
		msg.Gas = gasUsed
	}
	if _, err := backend.CallContract(ctx, msg, nil); err != nil {
		if isExecutionError(err) {
			return validation.SimulationFailed(normalizeReason(err)), nil
		}
		return nil, fmt.Errorf("模拟调用失败: %w", err)
	}
	return validation.SimulationSucceeded(gasUsed, nil), nil
}

func (c *Client) callMsg(tx validation.Transaction) (gethcore.CallMsg, error) {
	to, ok := tx.ToAddress()
	if !ok {
		return gethcore.CallMsg{}, fmt.Errorf("invalid target address %q", tx.To)
	}
	data, err := tx.CalldataBytes()
	if err != nil {
		return gethcore.CallMsg{}, fmt.Errorf("invalid calldata: %v", err)
	}
	msg := gethcore.CallMsg{
		From:  c.from,
		To:    &to,
		Value: tx.ValueWei(),
		Data:  data,
	}
	if gas, ok := tx.GasLimit(); ok {
		msg.Gas = gas
	}
	if tx.MaxFeePerGas != nil {
		msg.GasFeeCap = tx.MaxFeePerGas.Int()
	}
	if tx.MaxPriorityFeePerGas != nil {
		msg.GasTipCap = tx.MaxPriorityFeePerGas.Int()
	}
	return msg, nil
}

// isExecutionError reports whether the node answered with a JSON-RPC error,
// as opposed to the request never reaching it.
func isExecutionError(err error) bool {
	var rpcErr gethrpc.Error
	return errors.As(err, &rpcErr)
}

// normalizeReason maps geth's "insufficient funds" wording onto the
// "insufficient balance" phrase the optimizer reacts to.
func normalizeReason(err error) string {
	reason := err.Error()
	if strings.Contains(strings.ToLower(reason), "insufficient funds") {
		return "insufficient balance: " + reason
	}
	return reason
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
