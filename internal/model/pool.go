package model

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Pool is a two-asset constant-product pool.
type Pool struct {
	AssetA         common.Address `json:"asset_a"`
	AssetB         common.Address `json:"asset_b"`
	ReserveA       uint64         `json:"reserve_a,string"`
	ReserveB       uint64         `json:"reserve_b,string"`
	TotalShares    uint64         `json:"total_lp_shares,string"`
	FeeNumerator   uint64         `json:"fee_numerator,string"`
	FeeDenominator uint64         `json:"fee_denominator,string"`
	ShareIssuer    common.Address `json:"share_issuer"`
	Authority      common.Address `json:"authority"`
	AuthoritySeed  common.Hash    `json:"authority_seed"`

	// Version is the storage revision; it is bumped on every committed write.
	Version uint64 `json:"version"`
}

// Key returns the canonical pair key of the pool.
func (p Pool) Key() common.Hash {
	return PairKey(p.AssetA, p.AssetB)
}

// Initialized reports whether the pool has received its first deposit.
func (p Pool) Initialized() bool {
	return p.ReserveA != 0 && p.ReserveB != 0
}

// PairKey returns keccak256(lo || hi) of the lexically ordered pair, so both
// orderings of the same two assets map to one key.
func PairKey(a, b common.Address) common.Hash {
	lo, hi := a, b
	if bytes.Compare(lo.Bytes(), hi.Bytes()) > 0 {
		lo, hi = hi, lo
	}
	return crypto.Keccak256Hash(lo.Bytes(), hi.Bytes())
}
