// Package web3 houses blockchain connectivity used by the evaluator: read-only
// transaction simulation, base fee lookups and multi-chain configuration.
// Nothing in this package signs or broadcasts transactions.
package web3
