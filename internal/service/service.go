// Package service runs pool operations against a storage backend. Every
// mutating call executes in one unit of work: the pool update and all ledger
// movements it implies either commit together or not at all.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"constantProduct/internal/amm"
	"constantProduct/internal/model"
	"constantProduct/internal/storage"
)

// ErrAuthorityMismatch is returned when a stored pool's authority or share
// issuer is not the one derived from its asset pair.
var ErrAuthorityMismatch = errors.New("pool authority does not match asset pair")

// Config controls retries and the event clock.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
	Now          func() time.Time
}

// Service exposes the pool operations.
type Service struct {
	backend storage.Backend
	journal *storage.EventJournal
	metrics *Metrics
	logger  *zap.Logger
	cfg     Config
}

// New builds a service. journal and metrics may be nil.
func New(backend storage.Backend, journal *storage.EventJournal, metrics *Metrics, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		backend: backend,
		journal: journal,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// DepositReceipt describes a committed deposit. Amounts follow the asset
// order the caller used.
type DepositReceipt struct {
	Pool    model.Pool     `json:"pool"`
	AssetA  common.Address `json:"asset_a"`
	AssetB  common.Address `json:"asset_b"`
	AmountA uint64         `json:"amount_a,string"`
	AmountB uint64         `json:"amount_b,string"`
	Shares  uint64         `json:"shares,string"`
}

// WithdrawReceipt describes a committed withdrawal. Amounts follow the asset
// order the caller used.
type WithdrawReceipt struct {
	Pool     model.Pool     `json:"pool"`
	AssetA   common.Address `json:"asset_a"`
	AssetB   common.Address `json:"asset_b"`
	LPTokens uint64         `json:"lp_tokens,string"`
	AmountA  uint64         `json:"amount_a,string"`
	AmountB  uint64         `json:"amount_b,string"`
}

// SwapReceipt describes a committed swap.
type SwapReceipt struct {
	Pool     model.Pool     `json:"pool"`
	AssetIn  common.Address `json:"asset_in"`
	AssetOut common.Address `json:"asset_out"`
	Quote    amm.SwapQuote  `json:"quote"`
}

func (s *Service) timestamp() uint64 {
	return uint64(s.cfg.Now().Unix())
}

// execute runs fn in a fresh unit of work, retrying the whole unit on
// storage.ErrConflict. The unit is rolled back whenever fn or Commit fails.
func (s *Service) execute(ctx context.Context, operation string, fn func(context.Context, storage.UnitOfWork) error) error {
	start := time.Now()
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(err error) {
		s.metrics.retried()
		s.logger.Debug("retry after conflict", zap.String("operation", operation), zap.Error(err))
	}, func(ctx context.Context) error {
		return s.attempt(ctx, fn)
	})
	s.metrics.observe(operation, start, err)
	return err
}

func (s *Service) attempt(ctx context.Context, fn func(context.Context, storage.UnitOfWork) error) (err error) {
	uow, err := s.backend.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = uow.Rollback(ctx)
		}
	}()

	if err = fn(ctx, uow); err != nil {
		return err
	}
	return uow.Commit(ctx)
}

// read runs fn in a unit of work that is always rolled back.
func (s *Service) read(ctx context.Context, fn func(context.Context, storage.UnitOfWork) error) error {
	uow, err := s.backend.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback(ctx) }()
	return fn(ctx, uow)
}

func loadPool(ctx context.Context, uow storage.UnitOfWork, assetA, assetB common.Address) (model.Pool, error) {
	if assetA == assetB {
		return model.Pool{}, amm.ErrInvalidAssetPair
	}
	pool, err := uow.Pool(ctx, model.PairKey(assetA, assetB))
	if err != nil {
		return model.Pool{}, fmt.Errorf("pool %s/%s: %w", assetA.Hex(), assetB.Hex(), err)
	}
	if !amm.VerifyAuthority(pool) {
		return model.Pool{}, fmt.Errorf("pool %s: %w", pool.Key().Hex(), ErrAuthorityMismatch)
	}
	return pool, nil
}

// reversed reports whether the caller named the pool's assets in the opposite
// order to the stored pool.
func reversed(pool model.Pool, first common.Address) bool {
	return pool.AssetA != first
}

func (s *Service) record(events ...model.PoolEvent) {
	if err := s.journal.Append(events...); err != nil {
		s.logger.Error("journal append", zap.Error(err))
	}
}

// CreatePool creates an empty pool for the pair. Either ordering of an
// existing pair fails with storage.ErrPoolExists.
func (s *Service) CreatePool(ctx context.Context, assetA, assetB common.Address, feeNumerator, feeDenominator uint64) (model.Pool, error) {
	pool, err := amm.CreatePool(assetA, assetB, feeNumerator, feeDenominator)
	if err != nil {
		s.metrics.observe("create_pool", time.Now(), err)
		return model.Pool{}, err
	}

	err = s.execute(ctx, "create_pool", func(ctx context.Context, uow storage.UnitOfWork) error {
		return uow.CreatePool(ctx, pool)
	})
	if err != nil {
		return model.Pool{}, err
	}

	pool.Version = 1
	s.record(model.NewPoolEvent(model.EventCreate, pool, common.Address{}, s.timestamp()))
	s.logger.Info("pool created",
		zap.String("pair", pool.Key().Hex()),
		zap.String("asset_a", assetA.Hex()),
		zap.String("asset_b", assetB.Hex()),
		zap.Uint64("fee_numerator", feeNumerator),
		zap.Uint64("fee_denominator", feeDenominator),
	)
	return pool, nil
}

// AddLiquidity deposits amountA of assetA and amountB of assetB from the
// depositor and mints LP shares to it.
func (s *Service) AddLiquidity(ctx context.Context, depositor, assetA, assetB common.Address, amountA, amountB uint64) (DepositReceipt, error) {
	receipt := DepositReceipt{AssetA: assetA, AssetB: assetB, AmountA: amountA, AmountB: amountB}

	err := s.execute(ctx, "add_liquidity", func(ctx context.Context, uow storage.UnitOfWork) error {
		pool, err := loadPool(ctx, uow, assetA, assetB)
		if err != nil {
			return err
		}
		poolA, poolB := amountA, amountB
		if reversed(pool, assetA) {
			poolA, poolB = amountB, amountA
		}

		next := pool
		shares, err := amm.AddLiquidity(&next, poolA, poolB)
		if err != nil {
			return err
		}
		if err := uow.Apply(ctx, amm.AddLiquiditySettlement(next, depositor, poolA, poolB, shares)...); err != nil {
			return err
		}
		if err := uow.UpdatePool(ctx, next); err != nil {
			return err
		}
		receipt.Pool = next
		receipt.Shares = shares
		return nil
	})
	if err != nil {
		return DepositReceipt{}, err
	}
	// the committed row is one revision ahead of the copy it was built from
	receipt.Pool.Version++

	pool := receipt.Pool
	event := model.NewPoolEvent(model.EventAdd, pool, depositor, s.timestamp())
	event.AmountA, event.AmountB = amountA, amountB
	if reversed(pool, assetA) {
		event.AmountA, event.AmountB = amountB, amountA
	}
	event.Shares = receipt.Shares
	s.record(event)
	s.metrics.recordPool(pool)
	s.logger.Info("liquidity added",
		zap.String("pair", pool.Key().Hex()),
		zap.String("depositor", depositor.Hex()),
		zap.Uint64("shares", receipt.Shares),
		zap.Uint64("reserve_a", pool.ReserveA),
		zap.Uint64("reserve_b", pool.ReserveB),
	)
	return receipt, nil
}

// RemoveLiquidity burns lpTokens of the withdrawer and pays out its pro-rata
// share of both reserves.
func (s *Service) RemoveLiquidity(ctx context.Context, withdrawer, assetA, assetB common.Address, lpTokens uint64) (WithdrawReceipt, error) {
	receipt := WithdrawReceipt{AssetA: assetA, AssetB: assetB, LPTokens: lpTokens}
	var poolA, poolB uint64

	err := s.execute(ctx, "remove_liquidity", func(ctx context.Context, uow storage.UnitOfWork) error {
		pool, err := loadPool(ctx, uow, assetA, assetB)
		if err != nil {
			return err
		}

		next := pool
		poolA, poolB, err = amm.RemoveLiquidity(&next, lpTokens)
		if err != nil {
			return err
		}
		if err := uow.Apply(ctx, amm.RemoveLiquiditySettlement(next, withdrawer, lpTokens, poolA, poolB)...); err != nil {
			return err
		}
		if err := uow.UpdatePool(ctx, next); err != nil {
			return err
		}
		receipt.Pool = next
		return nil
	})
	if err != nil {
		return WithdrawReceipt{}, err
	}
	receipt.Pool.Version++

	pool := receipt.Pool
	receipt.AmountA, receipt.AmountB = poolA, poolB
	if reversed(pool, assetA) {
		receipt.AmountA, receipt.AmountB = poolB, poolA
	}

	event := model.NewPoolEvent(model.EventRemove, pool, withdrawer, s.timestamp())
	event.AmountA, event.AmountB = poolA, poolB
	event.Shares = lpTokens
	s.record(event)
	s.metrics.recordPool(pool)
	s.logger.Info("liquidity removed",
		zap.String("pair", pool.Key().Hex()),
		zap.String("withdrawer", withdrawer.Hex()),
		zap.Uint64("lp_tokens", lpTokens),
		zap.Uint64("amount_a", poolA),
		zap.Uint64("amount_b", poolB),
	)
	return receipt, nil
}

// Swap sells input of assetIn for assetOut. It fails with
// amm.ErrSlippageExceeded when the output is below minimumOutput.
func (s *Service) Swap(ctx context.Context, trader, assetIn, assetOut common.Address, input, minimumOutput uint64) (SwapReceipt, error) {
	receipt := SwapReceipt{AssetIn: assetIn, AssetOut: assetOut}

	err := s.execute(ctx, "swap", func(ctx context.Context, uow storage.UnitOfWork) error {
		pool, err := loadPool(ctx, uow, assetIn, assetOut)
		if err != nil {
			return err
		}
		direction, err := model.DirectionFor(pool, assetIn)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}

		next := pool
		quote, err := amm.ExecuteSwap(&next, input, minimumOutput, direction)
		if err != nil {
			return err
		}
		if err := uow.Apply(ctx, amm.SwapSettlement(next, trader, direction, quote.Input, quote.Output)...); err != nil {
			return err
		}
		if err := uow.UpdatePool(ctx, next); err != nil {
			return err
		}
		receipt.Pool = next
		receipt.Quote = quote
		return nil
	})
	if err != nil {
		return SwapReceipt{}, err
	}
	receipt.Pool.Version++

	pool, quote := receipt.Pool, receipt.Quote
	event := model.NewPoolEvent(model.EventSwap, pool, trader, s.timestamp())
	event.Direction = quote.Direction
	event.Input = quote.Input
	event.Fee = quote.Fee
	event.Output = quote.Output
	s.record(event)
	s.metrics.recordPool(pool)
	s.metrics.recordSwap(pool, quote)
	s.logger.Info("swap",
		zap.String("pair", pool.Key().Hex()),
		zap.String("trader", trader.Hex()),
		zap.Stringer("direction", quote.Direction),
		zap.Uint64("input", quote.Input),
		zap.Uint64("fee", quote.Fee),
		zap.Uint64("output", quote.Output),
	)
	return receipt, nil
}

// QuoteSwap prices a swap of input assetIn against the current pool state
// without changing anything.
func (s *Service) QuoteSwap(ctx context.Context, assetIn, assetOut common.Address, input uint64) (model.Pool, amm.SwapQuote, error) {
	var (
		pool  model.Pool
		quote amm.SwapQuote
	)
	err := s.read(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		var err error
		pool, err = loadPool(ctx, uow, assetIn, assetOut)
		if err != nil {
			return err
		}
		direction, err := model.DirectionFor(pool, assetIn)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		quote, err = amm.QuoteSwap(pool, input, 0, direction)
		return err
	})
	if err != nil {
		return model.Pool{}, amm.SwapQuote{}, err
	}
	return pool, quote, nil
}

// Pool returns the pool of the pair in either ordering.
func (s *Service) Pool(ctx context.Context, assetA, assetB common.Address) (model.Pool, error) {
	var pool model.Pool
	err := s.read(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		var err error
		pool, err = loadPool(ctx, uow, assetA, assetB)
		return err
	})
	return pool, err
}

func (s *Service) Pools(ctx context.Context) ([]model.Pool, error) {
	var pools []model.Pool
	err := s.read(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		var err error
		pools, err = uow.Pools(ctx)
		return err
	})
	return pools, err
}

// Credit mints amount of asset to account and returns the new balance. It is
// the funding entry point for the ledger.
func (s *Service) Credit(ctx context.Context, account, asset common.Address, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, amm.ErrInvalidAmount
	}
	var balance uint64
	err := s.execute(ctx, "credit", func(ctx context.Context, uow storage.UnitOfWork) error {
		if err := uow.Apply(ctx, model.Mint(asset, account, amount)); err != nil {
			return err
		}
		var err error
		balance, err = uow.Balance(ctx, asset, account)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("account credited",
		zap.String("account", account.Hex()),
		zap.String("asset", asset.Hex()),
		zap.Uint64("amount", amount),
	)
	return balance, nil
}

func (s *Service) Balance(ctx context.Context, account, asset common.Address) (uint64, error) {
	var balance uint64
	err := s.read(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		var err error
		balance, err = uow.Balance(ctx, asset, account)
		return err
	})
	return balance, err
}
