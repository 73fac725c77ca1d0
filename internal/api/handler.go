// Package api serves the pool service over JSON/HTTP. Amounts are carried as
// decimal strings so the full uint64 range survives JSON clients.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"go.uber.org/zap"

	"constantProduct/internal/amm"
	"constantProduct/internal/fixedpoint"
	"constantProduct/internal/model"
	"constantProduct/internal/service"
)

// PoolService is the subset of service.Service the handlers use.
type PoolService interface {
	CreatePool(ctx context.Context, assetA, assetB common.Address, feeNumerator, feeDenominator uint64) (model.Pool, error)
	AddLiquidity(ctx context.Context, depositor, assetA, assetB common.Address, amountA, amountB uint64) (service.DepositReceipt, error)
	RemoveLiquidity(ctx context.Context, withdrawer, assetA, assetB common.Address, lpTokens uint64) (service.WithdrawReceipt, error)
	Swap(ctx context.Context, trader, assetIn, assetOut common.Address, input, minimumOutput uint64) (service.SwapReceipt, error)
	QuoteSwap(ctx context.Context, assetIn, assetOut common.Address, input uint64) (model.Pool, amm.SwapQuote, error)
	Pool(ctx context.Context, assetA, assetB common.Address) (model.Pool, error)
	Pools(ctx context.Context) ([]model.Pool, error)
	Credit(ctx context.Context, account, asset common.Address, amount uint64) (uint64, error)
	Balance(ctx context.Context, account, asset common.Address) (uint64, error)
}

// Handler serves the pool service routes.
type Handler struct {
	svc    PoolService
	logger *zap.Logger
}

// NewApp builds the fiber app. metrics, when non-nil, is mounted at /metrics.
func NewApp(svc PoolService, metrics http.Handler, logger *zap.Logger) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, logger: logger}

	app := fiber.New(fiber.Config{
		AppName:      "amm",
		ErrorHandler: h.handleError,
	})

	app.Post("/pools", h.createPool)
	app.Get("/pools", h.listPools)
	app.Get("/pools/:a/:b", h.getPool)
	app.Post("/pools/:a/:b/deposit", h.deposit)
	app.Post("/pools/:a/:b/withdraw", h.withdraw)
	app.Post("/pools/:a/:b/swap", h.swap)
	app.Get("/pools/:a/:b/quote", h.quote)
	app.Post("/accounts/:account/credit", h.credit)
	app.Get("/accounts/:account/balances/:asset", h.balance)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
	return app
}

type createPoolRequest struct {
	AssetA         string `json:"asset_a"`
	AssetB         string `json:"asset_b"`
	FeeNumerator   string `json:"fee_numerator"`
	FeeDenominator string `json:"fee_denominator"`
}

type depositRequest struct {
	Account string `json:"account"`
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
}

type withdrawRequest struct {
	Account  string `json:"account"`
	LPTokens string `json:"lp_tokens"`
}

type swapRequest struct {
	Account       string `json:"account"`
	Input         string `json:"input"`
	MinimumOutput string `json:"minimum_output"`
}

type creditRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// PoolView is a pool with its spot prices. Prices are absent while the pool
// has no reserves.
type PoolView struct {
	model.Pool
	PairKey   common.Hash `json:"pair_key"`
	PriceAInB *string     `json:"price_a_in_b,omitempty"`
	PriceBInA *string     `json:"price_b_in_a,omitempty"`
}

// QuoteView is the response of the quote endpoint.
type QuoteView struct {
	Pool           PoolView      `json:"pool"`
	Quote          amm.SwapQuote `json:"quote"`
	SpotPrice      *string       `json:"spot_price,omitempty"`
	ExecutionPrice *string       `json:"execution_price,omitempty"`
}

// BalanceView reports one ledger balance.
type BalanceView struct {
	Account common.Address `json:"account"`
	Asset   common.Address `json:"asset"`
	Balance uint64         `json:"balance,string"`
}

func ratio(num, den uint64) *string {
	r, ok := fixedpoint.Ratio(num, den)
	if !ok {
		return nil
	}
	text := r.String()
	return &text
}

// NewPoolView attaches the pair key and spot prices to a pool.
func NewPoolView(pool model.Pool) PoolView {
	view := PoolView{Pool: pool, PairKey: pool.Key()}
	if pool.Initialized() {
		view.PriceAInB = ratio(pool.ReserveB, pool.ReserveA)
		view.PriceBInA = ratio(pool.ReserveA, pool.ReserveB)
	}
	return view
}

func (h *Handler) createPool(c fiber.Ctx) error {
	var req createPoolRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	assetA, err := parseAddress("asset_a", req.AssetA)
	if err != nil {
		return err
	}
	assetB, err := parseAddress("asset_b", req.AssetB)
	if err != nil {
		return err
	}
	num, err := parseAmount("fee_numerator", req.FeeNumerator)
	if err != nil {
		return err
	}
	den, err := parseAmount("fee_denominator", req.FeeDenominator)
	if err != nil {
		return err
	}

	pool, err := h.svc.CreatePool(c.Context(), assetA, assetB, num, den)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(NewPoolView(pool))
}

func (h *Handler) listPools(c fiber.Ctx) error {
	pools, err := h.svc.Pools(c.Context())
	if err != nil {
		return err
	}
	views := make([]PoolView, 0, len(pools))
	for _, pool := range pools {
		views = append(views, NewPoolView(pool))
	}
	return c.JSON(views)
}

func (h *Handler) getPool(c fiber.Ctx) error {
	assetA, assetB, err := pairFromPath(c)
	if err != nil {
		return err
	}
	pool, err := h.svc.Pool(c.Context(), assetA, assetB)
	if err != nil {
		return err
	}
	return c.JSON(NewPoolView(pool))
}

func (h *Handler) deposit(c fiber.Ctx) error {
	assetA, assetB, err := pairFromPath(c)
	if err != nil {
		return err
	}
	var req depositRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		return err
	}
	amountA, err := parseAmount("amount_a", req.AmountA)
	if err != nil {
		return err
	}
	amountB, err := parseAmount("amount_b", req.AmountB)
	if err != nil {
		return err
	}

	receipt, err := h.svc.AddLiquidity(c.Context(), account, assetA, assetB, amountA, amountB)
	if err != nil {
		return err
	}
	return c.JSON(receipt)
}

func (h *Handler) withdraw(c fiber.Ctx) error {
	assetA, assetB, err := pairFromPath(c)
	if err != nil {
		return err
	}
	var req withdrawRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		return err
	}
	lpTokens, err := parseAmount("lp_tokens", req.LPTokens)
	if err != nil {
		return err
	}

	receipt, err := h.svc.RemoveLiquidity(c.Context(), account, assetA, assetB, lpTokens)
	if err != nil {
		return err
	}
	return c.JSON(receipt)
}

// swap sells :a for :b.
func (h *Handler) swap(c fiber.Ctx) error {
	assetIn, assetOut, err := pairFromPath(c)
	if err != nil {
		return err
	}
	var req swapRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		return err
	}
	input, err := parseAmount("input", req.Input)
	if err != nil {
		return err
	}
	var minimum uint64
	if req.MinimumOutput != "" {
		if minimum, err = parseAmount("minimum_output", req.MinimumOutput); err != nil {
			return err
		}
	}

	receipt, err := h.svc.Swap(c.Context(), account, assetIn, assetOut, input, minimum)
	if err != nil {
		return err
	}
	return c.JSON(receipt)
}

func (h *Handler) quote(c fiber.Ctx) error {
	assetIn, assetOut, err := pairFromPath(c)
	if err != nil {
		return err
	}
	input, err := parseAmount("input", c.Query("input"))
	if err != nil {
		return err
	}

	pool, quote, err := h.svc.QuoteSwap(c.Context(), assetIn, assetOut, input)
	if err != nil {
		return err
	}
	return c.JSON(NewQuoteView(pool, quote))
}

// NewQuoteView prices a quote against the pool it was computed on. Prices
// are output units per input unit.
func NewQuoteView(pool model.Pool, quote amm.SwapQuote) QuoteView {
	reserveIn, reserveOut := quote.Direction.Reserves(pool)
	return QuoteView{
		Pool:           NewPoolView(pool),
		Quote:          quote,
		SpotPrice:      ratio(reserveOut, reserveIn),
		ExecutionPrice: ratio(quote.Output, quote.Input),
	}
}

func (h *Handler) credit(c fiber.Ctx) error {
	account, err := parseAddress("account", c.Params("account"))
	if err != nil {
		return err
	}
	var req creditRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return err
	}

	balance, err := h.svc.Credit(c.Context(), account, asset, amount)
	if err != nil {
		return err
	}
	return c.JSON(BalanceView{Account: account, Asset: asset, Balance: balance})
}

func (h *Handler) balance(c fiber.Ctx) error {
	account, err := parseAddress("account", c.Params("account"))
	if err != nil {
		return err
	}
	asset, err := parseAddress("asset", c.Params("asset"))
	if err != nil {
		return err
	}

	balance, err := h.svc.Balance(c.Context(), account, asset)
	if err != nil {
		return err
	}
	return c.JSON(BalanceView{Account: account, Asset: asset, Balance: balance})
}

func pairFromPath(c fiber.Ctx) (common.Address, common.Address, error) {
	a, err := parseAddress("a", c.Params("a"))
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	b, err := parseAddress("b", c.Params("b"))
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return a, b, nil
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, newInvalidAddress(field)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field, value string) (uint64, error) {
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, newInvalidAmount(field)
	}
	return v, nil
}

// decodeBody rejects unknown fields, which fiber's binder accepts.
func decodeBody(c fiber.Ctx, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader(c.Body()))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return ErrInvalidBody
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleError is the app's error handler. Messages of unexpected errors are
// logged and replaced by the status text.
func (h *Handler) handleError(c fiber.Ctx, err error) error {
	status := statusFor(err)
	message := err.Error()
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		message = fiberErr.Message
	case status == fiber.StatusInternalServerError:
		h.logger.Error("request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		message = http.StatusText(status)
	}
	if status != fiber.StatusInternalServerError {
		h.logger.Debug("request rejected", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}
	return c.Status(status).JSON(errorResponse{Error: message})
}
