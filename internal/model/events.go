package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a committed pool operation.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventAdd    EventKind = "add_liquidity"
	EventRemove EventKind = "remove_liquidity"
	EventSwap   EventKind = "swap"
)

// PoolEvent is the journal record of a committed pool operation. Amount
// fields not used by the event kind are left zero. The trailing reserves and
// share supply describe the pool after the operation, and Version is the
// pool revision that operation committed.
type PoolEvent struct {
	Kind      EventKind      `json:"kind"`
	PairKey   common.Hash    `json:"pair_key"`
	AssetA    common.Address `json:"asset_a"`
	AssetB    common.Address `json:"asset_b"`
	Account   common.Address `json:"account"`
	Timestamp uint64         `json:"timestamp"`

	AmountA   uint64    `json:"amount_a,string,omitempty"`
	AmountB   uint64    `json:"amount_b,string,omitempty"`
	Shares    uint64    `json:"shares,string,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Input     uint64    `json:"input,string,omitempty"`
	Fee       uint64    `json:"fee,string,omitempty"`
	Output    uint64    `json:"output,string,omitempty"`

	FeeNumerator   uint64 `json:"fee_numerator,string"`
	FeeDenominator uint64 `json:"fee_denominator,string"`
	ReserveA       uint64 `json:"reserve_a,string"`
	ReserveB       uint64 `json:"reserve_b,string"`
	TotalShares    uint64 `json:"total_lp_shares,string"`
	Version        uint64 `json:"version"`
}

// NewPoolEvent fills the pool-derived fields of an event.
func NewPoolEvent(kind EventKind, pool Pool, account common.Address, timestamp uint64) PoolEvent {
	return PoolEvent{
		Kind:           kind,
		PairKey:        pool.Key(),
		AssetA:         pool.AssetA,
		AssetB:         pool.AssetB,
		Account:        account,
		Timestamp:      timestamp,
		FeeNumerator:   pool.FeeNumerator,
		FeeDenominator: pool.FeeDenominator,
		ReserveA:       pool.ReserveA,
		ReserveB:       pool.ReserveB,
		TotalShares:    pool.TotalShares,
		Version:        pool.Version,
	}
}
