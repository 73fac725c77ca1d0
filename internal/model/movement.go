package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MovementKind identifies a ledger balance change.
type MovementKind string

const (
	MovementTransfer MovementKind = "transfer"
	MovementMint     MovementKind = "mint"
	MovementBurn     MovementKind = "burn"
)

// Movement is a single balance change the ledger must execute. Mint leaves
// From empty, Burn leaves To empty.
type Movement struct {
	Kind   MovementKind   `json:"kind"`
	Asset  common.Address `json:"asset"`
	From   common.Address `json:"from,omitempty"`
	To     common.Address `json:"to,omitempty"`
	Amount uint64         `json:"amount,string"`
}

func Transfer(asset, from, to common.Address, amount uint64) Movement {
	return Movement{Kind: MovementTransfer, Asset: asset, From: from, To: to, Amount: amount}
}

func Mint(asset, to common.Address, amount uint64) Movement {
	return Movement{Kind: MovementMint, Asset: asset, To: to, Amount: amount}
}

func Burn(asset, from common.Address, amount uint64) Movement {
	return Movement{Kind: MovementBurn, Asset: asset, From: from, Amount: amount}
}

func (m Movement) String() string {
	switch m.Kind {
	case MovementMint:
		return fmt.Sprintf("mint %d %s -> %s", m.Amount, m.Asset.Hex(), m.To.Hex())
	case MovementBurn:
		return fmt.Sprintf("burn %d %s <- %s", m.Amount, m.Asset.Hex(), m.From.Hex())
	default:
		return fmt.Sprintf("transfer %d %s %s -> %s", m.Amount, m.Asset.Hex(), m.From.Hex(), m.To.Hex())
	}
}
