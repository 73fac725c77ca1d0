package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"constantProduct/internal/fixedpoint"
	"constantProduct/internal/model"
	"constantProduct/internal/storage"
)

// Store is the Postgres storage.Backend. Each unit of work is a database
// transaction; pool rows are locked with SELECT ... FOR UPDATE when loaded.
type Store struct {
	pool *Pool
}

var _ storage.Backend = (*Store)(nil)

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and returns a store owning the connection pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying connection pool, e.g. for migrations.
func (s *Store) Pool() *Pool {
	return s.pool
}

func (s *Store) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &unitOfWork{tx: tx}, nil
}

const poolColumns = `
	asset_a, asset_b, reserve_a::text, reserve_b::text, total_shares::text,
	fee_numerator::text, fee_denominator::text, share_issuer, authority, authority_seed, version`

type unitOfWork struct {
	tx     pgx.Tx
	failed error
	done   bool
}

func (u *unitOfWork) usable() error {
	if u.done {
		return storage.ErrClosed
	}
	if u.failed != nil {
		return fmt.Errorf("unit of work failed earlier: %w", u.failed)
	}
	return nil
}

func (u *unitOfWork) fail(err error) error {
	err = asConflict(err)
	u.failed = err
	return err
}

// asConflict marks deadlocks and serialization failures as storage.ErrConflict
// so callers retry them.
func asConflict(err error) error {
	if isRetryableError(err) && !errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%w: %w", storage.ErrConflict, err)
	}
	return err
}

func scanPool(row pgx.Row) (model.Pool, error) {
	var (
		pool                                    model.Pool
		assetA, assetB, issuer, authority, seed string
		reserveA, reserveB, shares, num, den    string
		version                                 int64
	)
	if err := row.Scan(&assetA, &assetB, &reserveA, &reserveB, &shares, &num, &den, &issuer, &authority, &seed, &version); err != nil {
		return model.Pool{}, err
	}

	var err error
	if pool.ReserveA, err = parseAmount("reserve_a", reserveA); err != nil {
		return model.Pool{}, err
	}
	if pool.ReserveB, err = parseAmount("reserve_b", reserveB); err != nil {
		return model.Pool{}, err
	}
	if pool.TotalShares, err = parseAmount("total_shares", shares); err != nil {
		return model.Pool{}, err
	}
	if pool.FeeNumerator, err = parseAmount("fee_numerator", num); err != nil {
		return model.Pool{}, err
	}
	if pool.FeeDenominator, err = parseAmount("fee_denominator", den); err != nil {
		return model.Pool{}, err
	}
	pool.AssetA = common.HexToAddress(assetA)
	pool.AssetB = common.HexToAddress(assetB)
	pool.ShareIssuer = common.HexToAddress(issuer)
	pool.Authority = common.HexToAddress(authority)
	pool.AuthoritySeed = common.HexToHash(seed)
	pool.Version = uint64(version)
	return pool, nil
}

func (u *unitOfWork) Pool(ctx context.Context, key common.Hash) (model.Pool, error) {
	if err := u.usable(); err != nil {
		return model.Pool{}, err
	}
	row := u.tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE pair_key = $1 FOR UPDATE`, key.Hex())
	pool, err := scanPool(row)
	if err != nil {
		if isNotFoundError(err) {
			return model.Pool{}, storage.ErrNotFound
		}
		return model.Pool{}, u.fail(fmt.Errorf("load pool: %w", err))
	}
	return pool, nil
}

func (u *unitOfWork) Pools(ctx context.Context) ([]model.Pool, error) {
	if err := u.usable(); err != nil {
		return nil, err
	}
	rows, err := u.tx.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY pair_key`)
	if err != nil {
		return nil, u.fail(fmt.Errorf("list pools: %w", err))
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, u.fail(fmt.Errorf("scan pool: %w", err))
		}
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, u.fail(fmt.Errorf("iterate pools: %w", err))
	}
	return pools, nil
}

func (u *unitOfWork) CreatePool(ctx context.Context, pool model.Pool) error {
	if err := u.usable(); err != nil {
		return err
	}
	_, err := u.tx.Exec(ctx, `
		INSERT INTO pools (
			pair_key, asset_a, asset_b, reserve_a, reserve_b, total_shares,
			fee_numerator, fee_denominator, share_issuer, authority, authority_seed,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, 1, now(), now())
	`,
		pool.Key().Hex(),
		pool.AssetA.Hex(),
		pool.AssetB.Hex(),
		formatAmount(pool.ReserveA),
		formatAmount(pool.ReserveB),
		formatAmount(pool.TotalShares),
		formatAmount(pool.FeeNumerator),
		formatAmount(pool.FeeDenominator),
		pool.ShareIssuer.Hex(),
		pool.Authority.Hex(),
		pool.AuthoritySeed.Hex(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return u.fail(storage.ErrPoolExists)
		}
		return u.fail(fmt.Errorf("insert pool: %w", err))
	}
	return nil
}

func (u *unitOfWork) UpdatePool(ctx context.Context, pool model.Pool) error {
	if err := u.usable(); err != nil {
		return err
	}
	tag, err := u.tx.Exec(ctx, `
		UPDATE pools SET
			reserve_a = $2::numeric,
			reserve_b = $3::numeric,
			total_shares = $4::numeric,
			version = version + 1,
			updated_at = now()
		WHERE pair_key = $1 AND version = $5
	`,
		pool.Key().Hex(),
		formatAmount(pool.ReserveA),
		formatAmount(pool.ReserveB),
		formatAmount(pool.TotalShares),
		int64(pool.Version),
	)
	if err != nil {
		return u.fail(fmt.Errorf("update pool: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return u.fail(storage.ErrConflict)
	}
	return nil
}

func (u *unitOfWork) Balance(ctx context.Context, asset, account common.Address) (uint64, error) {
	if err := u.usable(); err != nil {
		return 0, err
	}
	var amount string
	err := u.tx.QueryRow(ctx, `SELECT amount::text FROM balances WHERE asset = $1 AND account = $2`, asset.Hex(), account.Hex()).Scan(&amount)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, u.fail(fmt.Errorf("load balance: %w", err))
	}
	return parseAmount("amount", amount)
}

func (u *unitOfWork) Apply(ctx context.Context, movements ...model.Movement) error {
	if err := u.usable(); err != nil {
		return err
	}
	for _, m := range movements {
		var err error
		switch m.Kind {
		case model.MovementTransfer:
			if err = u.debit(ctx, m.Asset, m.From, m.Amount); err == nil {
				err = u.credit(ctx, m.Asset, m.To, m.Amount)
			}
		case model.MovementMint:
			err = u.credit(ctx, m.Asset, m.To, m.Amount)
		case model.MovementBurn:
			err = u.debit(ctx, m.Asset, m.From, m.Amount)
		default:
			err = fmt.Errorf("%w: movement kind %q", storage.ErrInvalidInput, m.Kind)
		}
		if err != nil {
			return u.fail(err)
		}
	}
	return nil
}

func (u *unitOfWork) debit(ctx context.Context, asset, account common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	tag, err := u.tx.Exec(ctx, `
		UPDATE balances SET amount = amount - $3::numeric, updated_at = now()
		WHERE asset = $1 AND account = $2 AND amount >= $3::numeric
	`, asset.Hex(), account.Hex(), formatAmount(amount))
	if err != nil {
		return fmt.Errorf("debit %s: %w", account.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s needs %d of %s", storage.ErrInsufficientBalance, account.Hex(), amount, asset.Hex())
	}
	return nil
}

func (u *unitOfWork) credit(ctx context.Context, asset, account common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	_, err := u.tx.Exec(ctx, `
		INSERT INTO balances (asset, account, amount, updated_at)
		VALUES ($1, $2, $3::numeric, now())
		ON CONFLICT (asset, account) DO UPDATE
		SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
	`, asset.Hex(), account.Hex(), formatAmount(amount))
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("credit %s: %w", account.Hex(), fixedpoint.ErrOverflow)
		}
		return fmt.Errorf("credit %s: %w", account.Hex(), err)
	}
	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.usable(); err != nil {
		return err
	}
	u.done = true
	if err := u.tx.Commit(ctx); err != nil {
		return asConflict(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return storage.ErrClosed
	}
	u.done = true
	return u.tx.Rollback(ctx)
}
