package aggregate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"constantProduct/internal/model"
	"constantProduct/internal/storage"
)

// Sink receives aggregated rows. The Postgres store implements it.
type Sink interface {
	UpsertPools(ctx context.Context, pools []model.PoolRecord) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator folds journaled pool events into per-window pool metrics.
type Aggregator struct {
	cfg          Config
	sink         Sink
	logger       *zap.Logger
	accumulators map[common.Hash]*Accumulator
	poolSeen     map[common.Hash]model.PoolRecord
	lastTs       uint64
}

// Stats summarises a Run.
type Stats struct {
	Total   int `json:"total"`
	Windows int `json:"windows"`
	Skipped int `json:"skipped"`
	Late    int `json:"late"`
	Failed  int `json:"failed"`
}

func NewAggregator(cfg Config, sink Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[common.Hash]*Accumulator),
		poolSeen:     make(map[common.Hash]model.PoolRecord),
	}
}

// Run aggregates the events of a journal file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Stats, error) {
	var stats Stats
	if a.sink == nil {
		return stats, fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return stats, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return stats, err
	}
	a.lastTs = startTs

	file, err := os.Open(inputPath)
	if err != nil {
		return stats, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.PoolRecord, 0, 64)

	flush := func(acc *Accumulator) {
		metrics, pool := a.flushAccumulator(acc)
		batch = append(batch, metrics)
		stats.Windows++
		if pool != nil {
			pools = append(pools, *pool)
		}
	}

	handle := func(event model.PoolEvent) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Total++

		if event.Timestamp <= startTs {
			stats.Skipped++
			return nil
		}

		start := windowStart(event.Timestamp, a.cfg.WindowSeconds)
		acc := a.accumulators[event.PairKey]
		switch {
		case acc == nil:
			acc = NewAccumulator(event, start, start+a.cfg.WindowSeconds)
			a.accumulators[event.PairKey] = acc
		case start < acc.WindowStart:
			stats.Late++
			a.logger.Warn("late event skipped",
				zap.String("pool", event.PairKey.Hex()),
				zap.Uint64("ts", event.Timestamp),
				zap.Uint64("open_window", acc.WindowStart),
			)
			return nil
		case start > acc.WindowStart:
			flush(acc)
			acc = NewAccumulator(event, start, start+a.cfg.WindowSeconds)
			a.accumulators[event.PairKey] = acc
		}

		if err := acc.AddEvent(event); err != nil {
			stats.Failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", event.PairKey.Hex()), zap.String("kind", string(event.Kind)))
			return nil
		}

		if event.Timestamp > a.lastTs {
			a.lastTs = event.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	onError := func(line int, err error) {
		stats.Failed++
		a.logger.Warn("decode pool event", zap.Int("line", line), zap.Error(err))
	}

	if err := storage.ReadEvents(file, handle, onError); err != nil {
		return stats, err
	}

	for _, acc := range a.accumulators {
		flush(acc)
	}
	a.accumulators = make(map[common.Hash]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return stats, err
		}
	}

	if err := a.saveState(ctx); err != nil {
		return stats, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", stats.Total),
		zap.Int("windows", stats.Windows),
		zap.Int("skipped", stats.Skipped),
		zap.Int("late", stats.Late),
		zap.Int("failed", stats.Failed),
	)

	return stats, nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx, a.cfg.WindowSeconds)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records the newest timestamp whose window is fully flushed.
// Open windows are replayed on the next run, so progress stops just before
// the oldest of them.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.WindowSeconds, a.lastTs)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs--
	}
	return a.cfg.StateStore.Save(ctx, a.cfg.WindowSeconds, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.PoolRecord) error {
	if len(pools) > 0 {
		if err := a.sink.UpsertPools(ctx, pools); err != nil {
			return err
		}
	}
	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) (model.PoolWindowMetrics, *model.PoolRecord) {
	pool := a.registerPool(acc)

	feeRateA, feeRateB := computeFeeRates(acc.FeeA, acc.FeeB, acc.ReserveA, acc.ReserveB)
	metrics := model.PoolWindowMetrics{
		PairKey:        acc.PairKey.Hex(),
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		AddCount:       acc.AddCount,
		RemoveCount:    acc.RemoveCount,
		VolumeA:        formatAmount(acc.VolumeA),
		VolumeB:        formatAmount(acc.VolumeB),
		FeeA:           formatAmount(acc.FeeA),
		FeeB:           formatAmount(acc.FeeB),
		ReserveA:       fmt.Sprintf("%d", acc.ReserveA),
		ReserveB:       fmt.Sprintf("%d", acc.ReserveB),
		TotalShares:    fmt.Sprintf("%d", acc.TotalShares),
		Price:          computePrice(acc.ReserveA, acc.ReserveB),
		FeeRateA:       feeRateA,
		FeeRateB:       feeRateB,
		APR:            computeAPR(acc.FeeA, acc.FeeB, acc.ReserveA, acc.ReserveB, a.cfg.WindowSeconds),
	}
	return metrics, pool
}

// registerPool returns a record the first time a pool is flushed, or again
// when an earlier first-seen timestamp turns up.
func (a *Aggregator) registerPool(acc *Accumulator) *model.PoolRecord {
	pool := model.PoolRecord{
		PairKey:        acc.PairKey.Hex(),
		AssetA:         acc.AssetA.Hex(),
		AssetB:         acc.AssetB.Hex(),
		FeeNumerator:   acc.FeeNumerator,
		FeeDenominator: acc.FeeDenominator,
		FirstSeenTS:    acc.FirstTS,
	}

	existing, ok := a.poolSeen[acc.PairKey]
	if ok && existing.FirstSeenTS <= pool.FirstSeenTS {
		return nil
	}

	a.poolSeen[acc.PairKey] = pool
	return &pool
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func minOpenWindowStart(acc map[common.Hash]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
