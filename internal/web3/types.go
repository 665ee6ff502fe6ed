package web3

import (
	"context"
	"math/big"

	"Dexter-Chain/internal/validation"
)

// ChainSnapshot represents summarized network metadata for health reporting.
type ChainSnapshot struct {
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	BaseFee     string `json:"base_fee,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Simulator executes a transaction against current chain state without
// broadcasting it. Reverts are reported through the returned result; an error
// means the chain could not be reached at all.
type Simulator interface {
	Simulate(ctx context.Context, tx validation.Transaction) (*validation.SimulationResult, error)
}

// BaseFeeOracle reports the base fee of the latest block.
type BaseFeeOracle interface {
	BaseFee(ctx context.Context) (*big.Int, error)
}

// Client defines the common interface that any chain implementation must
// provide so higher layers can interact with different networks uniformly.
type Client interface {
	Simulator
	BaseFeeOracle
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Close()
}
