package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"constantProduct/internal/amm"
	"constantProduct/internal/storage"
)

// ErrInvalidBody is returned when a request body is not the expected JSON.
var ErrInvalidBody = fiber.NewError(fiber.StatusBadRequest, "invalid request body")

// newInvalidAddress returns a 400 for a malformed address parameter.
func newInvalidAddress(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+" address")
}

// newInvalidAmount returns a 400 for a malformed amount parameter.
func newInvalidAmount(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+": must be a base-10 unsigned integer")
}

// statusFor maps domain and storage errors to HTTP statuses.
func statusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, amm.ErrInvalidAmount),
		errors.Is(err, amm.ErrInvalidFee),
		errors.Is(err, amm.ErrInvalidAssetPair),
		errors.Is(err, storage.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, storage.ErrPoolExists),
		errors.Is(err, storage.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, amm.ErrSlippageExceeded),
		errors.Is(err, amm.ErrInsufficientLiquidity),
		errors.Is(err, amm.ErrZeroSwapOutput),
		errors.Is(err, amm.ErrArithmetic),
		errors.Is(err, storage.ErrInsufficientBalance):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
