package model

import "time"

// PoolWindowMetrics stores aggregated activity for a pool window.
type PoolWindowMetrics struct {
	PairKey        string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	AddCount       uint64
	RemoveCount    uint64
	VolumeA        string
	VolumeB        string
	FeeA           string
	FeeB           string
	ReserveA       string
	ReserveB       string
	TotalShares    string
	Price          *string
	FeeRateA       *string
	FeeRateB       *string
	APR            *string
}

// PoolRecord is the descriptive row kept next to window metrics.
type PoolRecord struct {
	PairKey        string
	AssetA         string
	AssetB         string
	FeeNumerator   uint64
	FeeDenominator uint64
	FirstSeenTS    uint64
}
