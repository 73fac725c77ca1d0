package aggregate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"constantProduct/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	PairKey        common.Hash
	AssetA         common.Address
	AssetB         common.Address
	FeeNumerator   uint64
	FeeDenominator uint64
	WindowStart    uint64
	WindowEnd      uint64
	SwapCount      uint64
	AddCount       uint64
	RemoveCount    uint64
	VolumeA        *uint256.Int
	VolumeB        *uint256.Int
	FeeA           *uint256.Int
	FeeB           *uint256.Int

	// Pool state after the newest pool revision seen in the window.
	ReserveA    uint64
	ReserveB    uint64
	TotalShares uint64
	Version     uint64
	LastTS      uint64
	FirstTS     uint64
}

func NewAccumulator(event model.PoolEvent, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PairKey:        event.PairKey,
		AssetA:         event.AssetA,
		AssetB:         event.AssetB,
		FeeNumerator:   event.FeeNumerator,
		FeeDenominator: event.FeeDenominator,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		VolumeA:        new(uint256.Int),
		VolumeB:        new(uint256.Int),
		FeeA:           new(uint256.Int),
		FeeB:           new(uint256.Int),
		ReserveA:       event.ReserveA,
		ReserveB:       event.ReserveB,
		TotalShares:    event.TotalShares,
		Version:        event.Version,
		LastTS:         event.Timestamp,
		FirstTS:        event.Timestamp,
	}
}

func (a *Accumulator) AddEvent(event model.PoolEvent) error {
	if event.PairKey != a.PairKey {
		return fmt.Errorf("event for pool %s added to accumulator of %s", event.PairKey.Hex(), a.PairKey.Hex())
	}

	switch event.Kind {
	case model.EventSwap:
		if err := a.applySwap(event); err != nil {
			return err
		}
	case model.EventAdd:
		a.AddCount++
	case model.EventRemove:
		a.RemoveCount++
	case model.EventCreate:
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}

	// Journal order is not commit order; the pool revision is. Events
	// without one fall back to timestamps.
	if event.Version > a.Version || (event.Version == a.Version && event.Timestamp >= a.LastTS) {
		a.Version = event.Version
		a.ReserveA = event.ReserveA
		a.ReserveB = event.ReserveB
		a.TotalShares = event.TotalShares
	}
	if event.Timestamp > a.LastTS {
		a.LastTS = event.Timestamp
	}
	if event.Timestamp < a.FirstTS {
		a.FirstTS = event.Timestamp
	}
	return nil
}

func (a *Accumulator) applySwap(event model.PoolEvent) error {
	if event.Fee > event.Input {
		return fmt.Errorf("swap fee %d exceeds input %d", event.Fee, event.Input)
	}
	input := uint256.NewInt(event.Input)
	fee := uint256.NewInt(event.Fee)

	switch event.Direction {
	case model.AToB:
		a.VolumeA.Add(a.VolumeA, input)
		a.FeeA.Add(a.FeeA, fee)
	case model.BToA:
		a.VolumeB.Add(a.VolumeB, input)
		a.FeeB.Add(a.FeeB, fee)
	default:
		return fmt.Errorf("unknown swap direction %d", uint8(event.Direction))
	}

	a.SwapCount++
	return nil
}
