package service

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"constantProduct/internal/amm"
	"constantProduct/internal/fixedpoint"
	"constantProduct/internal/model"
	"constantProduct/internal/storage"
	"constantProduct/internal/storage/memory"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fixture struct {
	svc     *Service
	backend storage.Backend
	metrics *Metrics
	journal string
}

func newFixture(t *testing.T, backend storage.Backend) *fixture {
	t.Helper()
	if backend == nil {
		backend = memory.NewBackend()
	}
	journal := filepath.Join(t.TempDir(), "events.jsonl")
	metrics := NewMetrics("test", prometheus.NewRegistry())
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }
	svc := New(backend, storage.NewEventJournal(journal), metrics, Config{MaxRetries: 50, RetryBackoff: time.Microsecond, Now: clock}, nil)
	return &fixture{svc: svc, backend: backend, metrics: metrics, journal: journal}
}

func (f *fixture) fund(t *testing.T, account common.Address, amountA, amountB uint64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Credit(ctx, account, tokenA, amountA)
	require.NoError(t, err)
	_, err = f.svc.Credit(ctx, account, tokenB, amountB)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, account, asset common.Address) uint64 {
	t.Helper()
	balance, err := f.svc.Balance(context.Background(), account, asset)
	require.NoError(t, err)
	return balance
}

func (f *fixture) events(t *testing.T) []model.PoolEvent {
	t.Helper()
	file, err := os.Open(f.journal)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	defer file.Close()

	var events []model.PoolEvent
	require.NoError(t, storage.ReadEvents(file, func(e model.PoolEvent) error {
		events = append(events, e)
		return nil
	}, nil))
	return events
}

// assertBacked checks that the authority's ledger balances equal the reserves.
func (f *fixture) assertBacked(t *testing.T, pool model.Pool) {
	t.Helper()
	assert.Equal(t, pool.ReserveA, f.balance(t, pool.Authority, pool.AssetA))
	assert.Equal(t, pool.ReserveB, f.balance(t, pool.Authority, pool.AssetB))
}

func TestDepositSwapWithdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, alice, 2000, 1000)

	pool, err := f.svc.CreatePool(ctx, tokenA, tokenB, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pool.Version)

	deposit, err := f.svc.AddLiquidity(ctx, alice, tokenA, tokenB, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), deposit.Shares)
	assert.Equal(t, uint64(2000), f.balance(t, alice, pool.ShareIssuer))
	f.assertBacked(t, deposit.Pool)

	swap, err := f.svc.Swap(ctx, alice, tokenA, tokenB, 100, 90)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), swap.Quote.Output)
	assert.Equal(t, model.AToB, swap.Quote.Direction)
	assert.Equal(t, uint64(1100), swap.Pool.ReserveA)
	assert.Equal(t, uint64(910), swap.Pool.ReserveB)
	assert.Equal(t, uint64(900), f.balance(t, alice, tokenA))
	assert.Equal(t, uint64(90), f.balance(t, alice, tokenB))
	f.assertBacked(t, swap.Pool)

	withdraw, err := f.svc.RemoveLiquidity(ctx, alice, tokenA, tokenB, 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), withdraw.AmountA)
	assert.Equal(t, uint64(910), withdraw.AmountB)
	assert.Zero(t, withdraw.Pool.TotalShares)
	assert.Zero(t, f.balance(t, alice, pool.ShareIssuer))
	assert.Equal(t, uint64(2000), f.balance(t, alice, tokenA))
	assert.Equal(t, uint64(1000), f.balance(t, alice, tokenB))
	f.assertBacked(t, withdraw.Pool)

	current, err := f.svc.Pool(ctx, tokenB, tokenA)
	require.NoError(t, err)
	assert.Equal(t, withdraw.Pool, current)
	assert.Equal(t, uint64(4), current.Version)

	events := f.events(t)
	require.Len(t, events, 4)
	assert.Equal(t, model.EventCreate, events[0].Kind)
	assert.Equal(t, model.EventAdd, events[1].Kind)
	assert.Equal(t, model.EventSwap, events[2].Kind)
	assert.Equal(t, uint64(90), events[2].Output)
	assert.Equal(t, model.EventRemove, events[3].Kind)
	assert.Equal(t, uint64(1_700_000_000), events[3].Timestamp)
	for i, event := range events {
		assert.Equal(t, uint64(i+1), event.Version, "event %d carries its committed revision", i)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("swap", "ok")))
	assert.Equal(t, 100.0, testutil.ToFloat64(f.metrics.SwapVolume.WithLabelValues(pool.Key().Hex(), "a")))
}

func TestCallerAssetOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, alice, 100, 200)

	_, err := f.svc.CreatePool(ctx, tokenA, tokenB, 3, 1000)
	require.NoError(t, err)

	deposit, err := f.svc.AddLiquidity(ctx, alice, tokenB, tokenA, 200, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), deposit.Pool.ReserveA)
	assert.Equal(t, uint64(200), deposit.Pool.ReserveB)
	assert.Equal(t, uint64(300), deposit.Shares)

	withdraw, err := f.svc.RemoveLiquidity(ctx, alice, tokenB, tokenA, 150)
	require.NoError(t, err)
	assert.Equal(t, tokenB, withdraw.AssetA)
	assert.Equal(t, uint64(100), withdraw.AmountA)
	assert.Equal(t, uint64(50), withdraw.AmountB)

	swap, err := f.svc.Swap(ctx, alice, tokenB, tokenA, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, model.BToA, swap.Quote.Direction)
	f.assertBacked(t, swap.Pool)
}

func TestCreatePoolEitherOrderExists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.CreatePool(ctx, tokenA, tokenB, 3, 1000)
	require.NoError(t, err)
	_, err = f.svc.CreatePool(ctx, tokenB, tokenA, 3, 1000)
	require.ErrorIs(t, err, storage.ErrPoolExists)

	_, err = f.svc.CreatePool(ctx, tokenA, tokenA, 3, 1000)
	require.ErrorIs(t, err, amm.ErrInvalidAssetPair)
	_, err = f.svc.CreatePool(ctx, tokenA, bob, 3, 0)
	require.ErrorIs(t, err, amm.ErrInvalidFee)

	pools, err := f.svc.Pools(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 1)
}

func TestFailedSettlementLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, alice, 1000, 10)

	pool, err := f.svc.CreatePool(ctx, tokenA, tokenB, 3, 1000)
	require.NoError(t, err)

	_, err = f.svc.AddLiquidity(ctx, alice, tokenA, tokenB, 1000, 1000)
	require.ErrorIs(t, err, storage.ErrInsufficientBalance)

	current, err := f.svc.Pool(ctx, tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, pool, current)
	assert.Equal(t, uint64(1000), f.balance(t, alice, tokenA))
	assert.Zero(t, f.balance(t, alice, pool.ShareIssuer))
	assert.Zero(t, f.balance(t, pool.Authority, tokenA))
	assert.Len(t, f.events(t), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("add_liquidity", "insufficient_balance")))
}

func TestSwapRejectionsChangeNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, alice, 2000, 1000)

	_, err := f.svc.Swap(ctx, alice, tokenA, tokenB, 10, 0)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.svc.CreatePool(ctx, tokenA, tokenB, 0, 1)
	require.NoError(t, err)
	_, err = f.svc.Swap(ctx, alice, tokenA, tokenB, 10, 0)
	require.ErrorIs(t, err, amm.ErrInsufficientLiquidity)

	deposit, err := f.svc.AddLiquidity(ctx, alice, tokenA, tokenB, 1000, 1000)
	require.NoError(t, err)

	_, err = f.svc.Swap(ctx, alice, tokenA, tokenB, 100, 91)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)
	_, err = f.svc.Swap(ctx, alice, tokenA, tokenB, 1, 0)
	require.ErrorIs(t, err, amm.ErrZeroSwapOutput)
	_, err = f.svc.Swap(ctx, alice, tokenA, tokenB, 0, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
	_, err = f.svc.Swap(ctx, bob, tokenA, tokenB, 100, 0)
	require.ErrorIs(t, err, storage.ErrInsufficientBalance)

	current, err := f.svc.Pool(ctx, tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, deposit.Pool, current)
	assert.Equal(t, uint64(1000), f.balance(t, alice, tokenA))
	f.assertBacked(t, current)
}

func TestQuoteSwapMatchesExecution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, alice, 20000, 10000)

	_, err := f.svc.CreatePool(ctx, tokenA, tokenB, 3, 1000)
	require.NoError(t, err)
	_, err = f.svc.AddLiquidity(ctx, alice, tokenA, tokenB, 10000, 10000)
	require.NoError(t, err)

	pool, quote, err := f.svc.QuoteSwap(ctx, tokenA, tokenB, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), quote.Fee)
	assert.Equal(t, uint64(997), quote.NetInput)
	assert.Equal(t, uint64(906), quote.Output)
	assert.Equal(t, uint64(10000), pool.ReserveA)

	swap, err := f.svc.Swap(ctx, alice, tokenA, tokenB, 1000, quote.Output)
	require.NoError(t, err)
	assert.Equal(t, quote, swap.Quote)
	assert.Equal(t, uint64(11000), swap.Pool.ReserveA)
	assert.Equal(t, uint64(9094), swap.Pool.ReserveB)
}

func TestRemoveMoreThanHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, alice, 100, 100)
	f.fund(t, bob, 100, 100)

	_, err := f.svc.CreatePool(ctx, tokenA, tokenB, 3, 1000)
	require.NoError(t, err)
	_, err = f.svc.AddLiquidity(ctx, alice, tokenA, tokenB, 100, 100)
	require.NoError(t, err)
	_, err = f.svc.AddLiquidity(ctx, bob, tokenA, tokenB, 100, 100)
	require.NoError(t, err)

	// 300 of 400 shares exist in the pool but bob only holds 200.
	_, err = f.svc.RemoveLiquidity(ctx, bob, tokenA, tokenB, 300)
	require.ErrorIs(t, err, storage.ErrInsufficientBalance)

	_, err = f.svc.RemoveLiquidity(ctx, bob, tokenA, tokenB, 401)
	require.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}

func TestAuthorityMismatch(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	f := newFixture(t, backend)

	pool, err := amm.CreatePool(tokenA, tokenB, 3, 1000)
	require.NoError(t, err)
	pool.Authority = bob

	uow, err := backend.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.CreatePool(ctx, pool))
	require.NoError(t, uow.Commit(ctx))

	_, err = f.svc.Pool(ctx, tokenA, tokenB)
	require.ErrorIs(t, err, ErrAuthorityMismatch)
}

func TestCreditOverflowAndZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.Credit(ctx, alice, tokenA, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)

	balance, err := f.svc.Credit(ctx, alice, tokenA, ^uint64(0))
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), balance)

	_, err = f.svc.Credit(ctx, alice, tokenA, 1)
	require.ErrorIs(t, err, fixedpoint.ErrOverflow)
	assert.Equal(t, ^uint64(0), f.balance(t, alice, tokenA))
}

// conflictingBackend fails the first n commits with storage.ErrConflict.
type conflictingBackend struct {
	storage.Backend
	mu        sync.Mutex
	conflicts int
}

type conflictingUnit struct {
	storage.UnitOfWork
	backend *conflictingBackend
}

func (b *conflictingBackend) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	uow, err := b.Backend.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &conflictingUnit{UnitOfWork: uow, backend: b}, nil
}

func (u *conflictingUnit) Commit(ctx context.Context) error {
	u.backend.mu.Lock()
	defer u.backend.mu.Unlock()
	if u.backend.conflicts > 0 {
		u.backend.conflicts--
		_ = u.UnitOfWork.Rollback(ctx)
		return storage.ErrConflict
	}
	return u.UnitOfWork.Commit(ctx)
}

func TestConflictIsRetried(t *testing.T) {
	ctx := context.Background()
	backend := &conflictingBackend{Backend: memory.NewBackend()}
	f := newFixture(t, backend)
	f.fund(t, alice, 1000, 1000)

	_, err := f.svc.CreatePool(ctx, tokenA, tokenB, 3, 1000)
	require.NoError(t, err)

	backend.conflicts = 3
	deposit, err := f.svc.AddLiquidity(ctx, alice, tokenA, tokenB, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), deposit.Shares)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.ConflictRetries))
	assert.Equal(t, uint64(2000), f.balance(t, alice, deposit.Pool.ShareIssuer))
}

func TestConflictRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	backend := &conflictingBackend{Backend: memory.NewBackend()}
	f := newFixture(t, backend)
	f.svc.cfg.MaxRetries = 2

	backend.conflicts = 10
	_, err := f.svc.CreatePool(ctx, tokenA, tokenB, 3, 1000)
	require.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, 7, backend.conflicts)

	pools, err := f.svc.Pools(ctx)
	require.NoError(t, err)
	assert.Empty(t, pools)
}

func TestConcurrentSwapsSerialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	traders := make([]common.Address, 8)
	for i := range traders {
		traders[i] = common.BigToAddress(big.NewInt(int64(1000 + i)))
		f.fund(t, traders[i], 1000, 1000)
	}
	f.fund(t, alice, 1_000_000, 1_000_000)

	_, err := f.svc.CreatePool(ctx, tokenA, tokenB, 3, 1000)
	require.NoError(t, err)
	seeded, err := f.svc.AddLiquidity(ctx, alice, tokenA, tokenB, 1_000_000, 1_000_000)
	require.NoError(t, err)
	k := fixedpoint.Product(seeded.Pool.ReserveA, seeded.Pool.ReserveB)

	var g errgroup.Group
	for i, trader := range traders {
		in, out := tokenA, tokenB
		if i%2 == 1 {
			in, out = tokenB, tokenA
		}
		g.Go(func() error {
			for j := 0; j < 5; j++ {
				if _, err := f.svc.Swap(ctx, trader, in, out, 100, 0); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	pool, err := f.svc.Pool(ctx, tokenA, tokenB)
	require.NoError(t, err)
	f.assertBacked(t, pool)
	assert.False(t, fixedpoint.Product(pool.ReserveA, pool.ReserveB).Lt(k))
	assert.Len(t, f.events(t), 2+len(traders)*5)

	for i, trader := range traders {
		spent := tokenA
		if i%2 == 1 {
			spent = tokenB
		}
		assert.Equal(t, uint64(500), f.balance(t, trader, spent))
	}
}
