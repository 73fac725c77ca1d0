package service

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"constantProduct/internal/amm"
	"constantProduct/internal/model"
	"constantProduct/internal/storage"
)

// Metrics holds the Prometheus collectors of the pool service.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ConflictRetries   prometheus.Counter

	Reserves    *prometheus.GaugeVec
	TotalShares *prometheus.GaugeVec
	SwapVolume  *prometheus.CounterVec
	SwapFees    *prometheus.CounterVec
}

// NewMetrics registers the service collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "amm"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Pool operations by name and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Pool operation latency including retries",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
		ConflictRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "conflict_retries_total",
			Help:      "Units of work retried after a concurrent update conflict",
		}),
		Reserves: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserve",
			Help:      "Pool reserve by side after the last committed operation",
		}, []string{"pair", "side"}),
		TotalShares: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "total_lp_shares",
			Help:      "Outstanding LP shares",
		}, []string{"pair"}),
		SwapVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "swap_input_total",
			Help:      "Swap input by pool and input side",
		}, []string{"pair", "side"}),
		SwapFees: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "swap_fee_total",
			Help:      "Swap fees retained by pool and input side",
		}, []string{"pair", "side"}),
	}
}

func (m *Metrics) observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.ConflictRetries.Inc()
}

func (m *Metrics) recordPool(pool model.Pool) {
	if m == nil {
		return
	}
	pair := pool.Key().Hex()
	m.Reserves.WithLabelValues(pair, "a").Set(float64(pool.ReserveA))
	m.Reserves.WithLabelValues(pair, "b").Set(float64(pool.ReserveB))
	m.TotalShares.WithLabelValues(pair).Set(float64(pool.TotalShares))
}

func (m *Metrics) recordSwap(pool model.Pool, quote amm.SwapQuote) {
	if m == nil {
		return
	}
	pair := pool.Key().Hex()
	side := "a"
	if quote.Direction == model.BToA {
		side = "b"
	}
	m.SwapVolume.WithLabelValues(pair, side).Add(float64(quote.Input))
	m.SwapFees.WithLabelValues(pair, side).Add(float64(quote.Fee))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, amm.ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, amm.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, amm.ErrZeroSwapOutput):
		return "zero_output"
	case errors.Is(err, amm.ErrArithmetic):
		return "arithmetic"
	case errors.Is(err, amm.ErrInvalidAmount),
		errors.Is(err, amm.ErrInvalidFee),
		errors.Is(err, amm.ErrInvalidAssetPair),
		errors.Is(err, storage.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, storage.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrPoolExists):
		return "exists"
	case errors.Is(err, storage.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
