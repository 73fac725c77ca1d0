package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"constantProduct/internal/model"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPoolExists          = errors.New("pool already exists")
	ErrConflict            = errors.New("concurrent update conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidInput        = errors.New("invalid input")
	ErrClosed              = errors.New("unit of work already finished")
)

// Backend opens units of work spanning pool records and ledger balances.
type Backend interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	Close()
}

// UnitOfWork is an all-or-nothing transaction. Nothing it does is visible to
// other units until Commit succeeds; Rollback discards everything. Either
// call ends the unit.
type UnitOfWork interface {
	// Pool loads a pool by its canonical pair key.
	Pool(ctx context.Context, key common.Hash) (model.Pool, error)
	Pools(ctx context.Context) ([]model.Pool, error)
	CreatePool(ctx context.Context, pool model.Pool) error
	// UpdatePool writes a pool previously loaded by this unit.
	UpdatePool(ctx context.Context, pool model.Pool) error

	Balance(ctx context.Context, asset, account common.Address) (uint64, error)
	// Apply executes ledger movements in order. A failing movement leaves the
	// unit unusable except for Rollback.
	Apply(ctx context.Context, movements ...model.Movement) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
