// Package memory is an in-process storage.Backend with optimistic
// concurrency: units of work stage their writes and are validated against
// everything they read when they commit.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"

	"constantProduct/internal/fixedpoint"
	"constantProduct/internal/model"
	"constantProduct/internal/storage"
)

type balanceKey struct {
	Asset   common.Address
	Account common.Address
}

// ErrLocked is returned by OpenBackend when another backend holds the
// snapshot file.
var ErrLocked = errors.New("state file is locked by another process")

// Backend keeps pools and balances in memory, optionally mirrored to a
// snapshot file after every commit. A backend opened on a file owns it
// exclusively until Close.
type Backend struct {
	mu       sync.Mutex
	pools    map[common.Hash]model.Pool
	balances map[balanceKey]uint64
	snapshot *SnapshotStore
	lock     *flock.Flock
}

var _ storage.Backend = (*Backend)(nil)

func NewBackend() *Backend {
	return &Backend{
		pools:    make(map[common.Hash]model.Pool),
		balances: make(map[balanceKey]uint64),
	}
}

// OpenBackend loads the snapshot at path, if any, and keeps it updated.
func OpenBackend(path string) (*Backend, error) {
	b := NewBackend()
	if path == "" {
		return b, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock state file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	b.snapshot = NewSnapshotStore(path)
	pools, balances, ok, err := b.snapshot.Load()
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if ok {
		b.pools = pools
		b.balances = balances
	}
	b.lock = lock
	return b, nil
}

func (b *Backend) Begin(_ context.Context) (storage.UnitOfWork, error) {
	return &unitOfWork{
		backend:     b,
		poolsSeen:   make(map[common.Hash]poolObservation),
		poolsStaged: make(map[common.Hash]model.Pool),
		balSeen:     make(map[balanceKey]uint64),
		balStaged:   make(map[balanceKey]uint64),
	}, nil
}

// Close releases the snapshot file. The in-memory state stays readable.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lock != nil {
		_ = b.lock.Unlock()
		b.lock = nil
	}
}

func (b *Backend) readPool(key common.Hash) (model.Pool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pool, ok := b.pools[key]
	return pool, ok
}

func (b *Backend) readBalance(key balanceKey) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[key]
}

type poolObservation struct {
	exists  bool
	version uint64
}

type unitOfWork struct {
	backend *Backend

	poolsSeen   map[common.Hash]poolObservation
	poolsStaged map[common.Hash]model.Pool
	balSeen     map[balanceKey]uint64
	balStaged   map[balanceKey]uint64

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

func (u *unitOfWork) observePool(key common.Hash) (model.Pool, bool) {
	if staged, ok := u.poolsStaged[key]; ok {
		return staged, true
	}
	pool, ok := u.backend.readPool(key)
	if _, seen := u.poolsSeen[key]; !seen {
		u.poolsSeen[key] = poolObservation{exists: ok, version: pool.Version}
	}
	return pool, ok
}

func (u *unitOfWork) Pool(_ context.Context, key common.Hash) (model.Pool, error) {
	if err := u.usable(); err != nil {
		return model.Pool{}, err
	}
	pool, ok := u.observePool(key)
	if !ok {
		return model.Pool{}, storage.ErrNotFound
	}
	return pool, nil
}

func (u *unitOfWork) Pools(_ context.Context) ([]model.Pool, error) {
	if err := u.usable(); err != nil {
		return nil, err
	}

	// Every listed pool joins the read set, so a commit fails if any of them
	// changed since.
	u.backend.mu.Lock()
	merged := maps.Clone(u.backend.pools)
	u.backend.mu.Unlock()
	for key, pool := range merged {
		if _, seen := u.poolsSeen[key]; !seen {
			u.poolsSeen[key] = poolObservation{exists: true, version: pool.Version}
		}
	}
	for key, pool := range u.poolsStaged {
		merged[key] = pool
	}

	pools := make([]model.Pool, 0, len(merged))
	for _, pool := range merged {
		pools = append(pools, pool)
	}
	sort.Slice(pools, func(i, j int) bool {
		ki, kj := pools[i].Key(), pools[j].Key()
		return bytes.Compare(ki.Bytes(), kj.Bytes()) < 0
	})
	return pools, nil
}

func (u *unitOfWork) CreatePool(_ context.Context, pool model.Pool) error {
	if err := u.usable(); err != nil {
		return err
	}
	key := pool.Key()
	if _, ok := u.observePool(key); ok {
		return storage.ErrPoolExists
	}
	pool.Version = 0
	u.poolsStaged[key] = pool
	return nil
}

func (u *unitOfWork) UpdatePool(_ context.Context, pool model.Pool) error {
	if err := u.usable(); err != nil {
		return err
	}
	key := pool.Key()
	current, ok := u.observePool(key)
	if !ok {
		return storage.ErrNotFound
	}
	if current.Version != pool.Version {
		return storage.ErrConflict
	}
	u.poolsStaged[key] = pool
	return nil
}

func (u *unitOfWork) balance(key balanceKey) uint64 {
	if staged, ok := u.balStaged[key]; ok {
		return staged
	}
	value := u.backend.readBalance(key)
	if _, seen := u.balSeen[key]; !seen {
		u.balSeen[key] = value
	}
	return value
}

func (u *unitOfWork) Balance(_ context.Context, asset, account common.Address) (uint64, error) {
	if err := u.usable(); err != nil {
		return 0, err
	}
	return u.balance(balanceKey{Asset: asset, Account: account}), nil
}

func (u *unitOfWork) Apply(_ context.Context, movements ...model.Movement) error {
	if err := u.usable(); err != nil {
		return err
	}
	for _, m := range movements {
		if err := u.apply(m); err != nil {
			u.failed = err
			return err
		}
	}
	return nil
}

func (u *unitOfWork) apply(m model.Movement) error {
	switch m.Kind {
	case model.MovementTransfer:
		if err := u.debit(m.Asset, m.From, m.Amount); err != nil {
			return err
		}
		return u.credit(m.Asset, m.To, m.Amount)
	case model.MovementMint:
		return u.credit(m.Asset, m.To, m.Amount)
	case model.MovementBurn:
		return u.debit(m.Asset, m.From, m.Amount)
	default:
		return fmt.Errorf("%w: movement kind %q", storage.ErrInvalidInput, m.Kind)
	}
}

func (u *unitOfWork) debit(asset, account common.Address, amount uint64) error {
	key := balanceKey{Asset: asset, Account: account}
	current := u.balance(key)
	if current < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", storage.ErrInsufficientBalance, account.Hex(), current, asset.Hex(), amount)
	}
	u.balStaged[key] = current - amount
	return nil
}

func (u *unitOfWork) credit(asset, account common.Address, amount uint64) error {
	key := balanceKey{Asset: asset, Account: account}
	next, err := fixedpoint.Add(u.balance(key), amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", account.Hex(), err)
	}
	u.balStaged[key] = next
	return nil
}

func (u *unitOfWork) Commit(_ context.Context) error {
	if err := u.usable(); err != nil {
		return err
	}
	u.done = true

	b := u.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snapshot != nil && b.lock == nil {
		return storage.ErrClosed
	}
	for key, seen := range u.poolsSeen {
		current, exists := b.pools[key]
		if exists != seen.exists || current.Version != seen.version {
			return storage.ErrConflict
		}
	}
	for key, seen := range u.balSeen {
		if b.balances[key] != seen {
			return storage.ErrConflict
		}
	}

	pools, balances := b.pools, b.balances
	if b.snapshot != nil {
		pools, balances = maps.Clone(pools), maps.Clone(balances)
	}
	for key, pool := range u.poolsStaged {
		pool.Version = u.poolsSeen[key].version + 1
		pools[key] = pool
	}
	for key, value := range u.balStaged {
		if value == 0 {
			delete(balances, key)
			continue
		}
		balances[key] = value
	}

	if b.snapshot != nil {
		if err := b.snapshot.Save(pools, balances); err != nil {
			return err
		}
		b.pools, b.balances = pools, balances
	}
	return nil
}

func (u *unitOfWork) Rollback(_ context.Context) error {
	if u.done {
		return storage.ErrClosed
	}
	u.done = true
	return nil
}
