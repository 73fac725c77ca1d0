package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Direction selects which reserve receives the swap input.
type Direction uint8

const (
	AToB Direction = iota
	BToA
)

func (d Direction) String() string {
	switch d {
	case AToB:
		return "a_to_b"
	case BToA:
		return "b_to_a"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts "a_to_b"/"b_to_a" in any case, with '-' or '_'.
func ParseDirection(input string) (Direction, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(input)), "-", "_")
	switch normalized {
	case "a_to_b", "atob":
		return AToB, nil
	case "b_to_a", "btoa":
		return BToA, nil
	default:
		return 0, fmt.Errorf("invalid direction: %q", input)
	}
}

// DirectionFor returns the direction that spends inputAsset in the pool.
func DirectionFor(pool Pool, inputAsset common.Address) (Direction, error) {
	switch inputAsset {
	case pool.AssetA:
		return AToB, nil
	case pool.AssetB:
		return BToA, nil
	default:
		return 0, fmt.Errorf("asset %s is not part of pool %s/%s", inputAsset.Hex(), pool.AssetA.Hex(), pool.AssetB.Hex())
	}
}

// Reserves returns the (input, output) reserves for the direction.
func (d Direction) Reserves(pool Pool) (uint64, uint64) {
	if d == BToA {
		return pool.ReserveB, pool.ReserveA
	}
	return pool.ReserveA, pool.ReserveB
}

// Assets returns the (input, output) assets for the direction.
func (d Direction) Assets(pool Pool) (common.Address, common.Address) {
	if d == BToA {
		return pool.AssetB, pool.AssetA
	}
	return pool.AssetA, pool.AssetB
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	if d != AToB && d != BToA {
		return nil, fmt.Errorf("invalid direction: %d", uint8(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
