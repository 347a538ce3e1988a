// Package executor runs triangular trades against the exchange: a guarded
// three-leg state machine with emergency liquidation, a hybrid order router
// and the dedicated trading lane.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/triarbot/internal/arbitrage"
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/market"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRouter places a market order on whichever channel it selects.
type OrderRouter interface {
	PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.TradeLegResult, error)
}

// BalanceSource reports the free balance of an asset.
type BalanceSource interface {
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Config holds the execution parameters.
type Config struct {
	Budgets arbitrage.Budgets
	Fee     decimal.Decimal
	DryRun  bool
	LockKey string
	LockTTL time.Duration
	QuoteDP int32
}

// Stats are the lifetime execution counters.
type Stats struct {
	TradeCount   int64            `json:"trade_count"`
	SuccessCount int64            `json:"success_count"`
	FailureCount int64            `json:"failure_count"`
	State        domain.ExecState `json:"state"`
	Trading      bool             `json:"trading"`
}

// Executor runs one triangular trade at a time.
type Executor struct {
	router   OrderRouter
	balances BalanceSource
	registry *market.Registry
	lock     domain.LockManager
	cfg      Config
	logger   *slog.Logger

	trading atomic.Bool
	state   atomic.Value

	tradeCount   atomic.Int64
	successCount atomic.Int64
	failureCount atomic.Int64
}

// NewExecutor creates an Executor. lock may be nil.
func NewExecutor(router OrderRouter, balances BalanceSource, registry *market.Registry, lock domain.LockManager, cfg Config, logger *slog.Logger) *Executor {
	if cfg.LockKey == "" {
		cfg.LockKey = "triarb:trade"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.QuoteDP <= 0 {
		cfg.QuoteDP = 8
	}
	e := &Executor{
		router:   router,
		balances: balances,
		registry: registry,
		lock:     lock,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "executor")),
	}
	e.state.Store(domain.StateIdle)
	return e
}

var legStates = [3]domain.ExecState{domain.StateLeg1, domain.StateLeg2, domain.StateLeg3}

// Execute runs the trade described by data through BalanceCheck and the
// three legs. A failure in leg 2 or 3 triggers one liquidation attempt of
// the asset currently held back into the starting asset. Concurrent calls
// are rejected with domain.ErrAlreadyTrading.
func (e *Executor) Execute(ctx context.Context, data domain.TradingData) domain.TradeResult {
	res := domain.TradeResult{
		ID:        uuid.NewString(),
		Data:      data,
		DryRun:    e.cfg.DryRun,
		StartedAt: time.Now().UTC(),
	}

	if !e.trading.CompareAndSwap(false, true) {
		return e.reject(res, domain.StateIdle, domain.ErrAlreadyTrading)
	}
	defer func() {
		e.state.Store(domain.StateIdle)
		e.trading.Store(false)
	}()

	e.tradeCount.Add(1)
	log := e.logger.With(
		slog.String("trade_id", res.ID),
		slog.String("path", pathString(data.Path)),
	)

	start := data.Path[0]
	res.Budget = e.cfg.Budgets.For(start)
	if err := e.validate(data, res.Budget); err != nil {
		return e.finish(log, e.reject(res, domain.StateIdle, err))
	}
	if e.router == nil || e.balances == nil {
		return e.finish(log, e.reject(res, domain.StateIdle, domain.ErrClientNotReady))
	}

	if e.lock != nil {
		unlock, err := e.lock.Acquire(ctx, e.cfg.LockKey, e.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				err = fmt.Errorf("%w: %w", domain.ErrAlreadyTrading, err)
			}
			return e.finish(log, e.reject(res, domain.StateIdle, err))
		}
		defer unlock()
	}

	e.state.Store(domain.StateBalanceCheck)
	balance, err := e.balances.Balance(ctx, start)
	if err != nil {
		return e.finish(log, e.reject(res, domain.StateBalanceCheck, fmt.Errorf("%w: balance %s: %w", domain.ErrClientNotReady, start, err)))
	}
	if balance.LessThan(res.Budget) {
		return e.finish(log, e.reject(res, domain.StateBalanceCheck,
			fmt.Errorf("%w: %s %s available, %s required", domain.ErrInsufficientBalance, balance, start, res.Budget)))
	}

	amount := res.Budget
	for i := 0; i < 3; i++ {
		e.state.Store(legStates[i])
		leg, out, err := e.placeLeg(ctx, i, data, amount)
		res.Legs = append(res.Legs, leg)
		if err != nil {
			log.Error("trade leg failed",
				slog.Int("leg", i+1),
				slog.String("symbol", data.Pairs[i]),
				slog.String("error", err.Error()),
			)
			if i == 0 {
				return e.finish(log, e.fail(res, legStates[i], err))
			}
			return e.finish(log, e.liquidate(ctx, res, i, amount, err))
		}
		log.Info("trade leg filled",
			slog.Int("leg", i+1),
			slog.String("symbol", leg.Symbol),
			slog.String("side", string(leg.Side)),
			slog.String("received", out.String()),
			slog.Duration("execution_time", leg.ExecutionTime),
			slog.String("method", leg.Method),
		)
		amount = out
	}

	e.state.Store(domain.StateSuccess)
	res.Status = domain.TradeSuccess
	res.FinalState = domain.StateSuccess
	res.FinalQuantity = amount
	res.Profit = amount.Sub(res.Budget)
	if res.Budget.IsPositive() {
		res.ProfitPercentage = res.Profit.Div(res.Budget).Mul(decimal.NewFromInt(100))
	}
	return e.finish(log, res)
}

func (e *Executor) validate(data domain.TradingData, budget decimal.Decimal) error {
	if data.Path[0] == "" || data.Path[0] != data.Path[3] {
		return fmt.Errorf("%w: path must start and end in the same asset", domain.ErrInvalidPath)
	}
	if data.Path[0] == data.Path[1] || data.Path[1] == data.Path[2] || data.Path[0] == data.Path[2] {
		return fmt.Errorf("%w: currencies must be distinct", domain.ErrInvalidPath)
	}
	if !budget.IsPositive() {
		return fmt.Errorf("%w: no trade budget for %s", domain.ErrInvalidPath, data.Path[0])
	}
	snap := e.registry.Snapshot()
	if snap == nil {
		return domain.ErrRegistryEmpty
	}
	for i, sym := range data.Pairs {
		if _, err := legSide(snap, sym, data.Path[i], data.Path[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// legSide derives the order side for converting from into to on symbol.
func legSide(snap *market.RegistrySnapshot, symbol, from, to string) (domain.OrderSide, error) {
	info, ok := snap.Symbol(symbol)
	if !ok {
		return "", fmt.Errorf("%w: unknown symbol %s", domain.ErrInvalidPath, symbol)
	}
	switch {
	case info.Base == to && info.Quote == from:
		return domain.SideBuy, nil
	case info.Base == from && info.Quote == to:
		return domain.SideSell, nil
	}
	return "", fmt.Errorf("%w: %s does not convert %s to %s", domain.ErrInvalidPath, symbol, from, to)
}

// placeLeg sends leg i spending amountIn of Path[i] and returns the amount
// of Path[i+1] received.
func (e *Executor) placeLeg(ctx context.Context, i int, data domain.TradingData, amountIn decimal.Decimal) (domain.TradeLegResult, decimal.Decimal, error) {
	snap := e.registry.Snapshot()
	symbol := data.Pairs[i]
	from, to := data.Path[i], data.Path[i+1]
	side, err := legSide(snap, symbol, from, to)
	if err != nil {
		return domain.TradeLegResult{Status: domain.LegGeneralError, Symbol: symbol, Error: err.Error()}, decimal.Zero, err
	}
	info, _ := snap.Symbol(symbol)

	req := domain.OrderRequest{Symbol: symbol, Side: side, DryRun: e.cfg.DryRun}
	if side == domain.SideBuy {
		req.QuoteQty = amountIn.Truncate(e.cfg.QuoteDP)
	} else {
		req.Quantity = arbitrage.AdjustQuantityForStepSize(amountIn, info.StepSize)
	}
	return e.send(ctx, req, to, data.Prices[i], info)
}

// send places req and computes the net amount of asset received.
func (e *Executor) send(ctx context.Context, req domain.OrderRequest, received string, refPrice decimal.Decimal, info domain.SymbolInfo) (domain.TradeLegResult, decimal.Decimal, error) {
	fail := func(status domain.LegStatus, err error) (domain.TradeLegResult, decimal.Decimal, error) {
		return domain.TradeLegResult{Status: status, Symbol: req.Symbol, Side: req.Side, Quantity: req.Quantity, Error: err.Error()}, decimal.Zero, err
	}
	if !req.Quantity.IsPositive() && !req.QuoteQty.IsPositive() {
		return fail(domain.LegGeneralError, fmt.Errorf("%w: %s quantity rounds to zero", domain.ErrOrderFailed, req.Symbol))
	}

	began := time.Now()
	leg, err := e.router.PlaceMarketOrder(ctx, req)
	elapsed := time.Since(began)
	if leg.Symbol == "" {
		leg.Symbol = req.Symbol
		leg.Side = req.Side
	}
	if leg.ExecutionTime == 0 {
		leg.ExecutionTime = elapsed
	}
	if err != nil {
		if leg.Status == "" {
			leg.Status = domain.LegGeneralError
		}
		leg.Error = err.Error()
		return leg, decimal.Zero, fmt.Errorf("%w: %s %s: %w", domain.ErrOrderFailed, req.Side, req.Symbol, err)
	}
	if !leg.Status.OK() {
		return leg, decimal.Zero, fmt.Errorf("%w: %s %s: %s %s", domain.ErrOrderFailed, req.Side, req.Symbol, leg.Status, leg.Error)
	}

	if leg.Status == domain.LegTestSuccess {
		return leg, e.estimate(req, refPrice, info), nil
	}
	out := netReceived(leg, received)
	if !out.IsPositive() {
		leg.Status = domain.LegOrderError
		leg.Error = fmt.Sprintf("nothing received: executed %s", leg.ExecutedQty)
		return leg, decimal.Zero, fmt.Errorf("%w: %s %s: %s", domain.ErrOrderFailed, req.Side, req.Symbol, leg.Error)
	}
	return leg, out, nil
}

// netReceived is the gross amount received minus any commission charged in
// that asset.
func netReceived(leg domain.TradeLegResult, asset string) decimal.Decimal {
	gross := leg.QuoteQty
	if leg.Side == domain.SideBuy {
		gross = leg.ExecutedQty
	}
	if leg.CommissionAsset == asset {
		gross = gross.Sub(leg.Commission)
	}
	return gross
}

// estimate prices a test order at the reference price with the fee applied.
func (e *Executor) estimate(req domain.OrderRequest, price decimal.Decimal, info domain.SymbolInfo) decimal.Decimal {
	keep := decimal.NewFromInt(1).Sub(e.cfg.Fee)
	if !price.IsPositive() {
		return decimal.Zero
	}
	if req.Side == domain.SideBuy {
		qty := arbitrage.AdjustQuantityForStepSize(req.QuoteQty.Div(price), info.StepSize)
		return qty.Mul(keep)
	}
	return req.Quantity.Mul(price).Mul(keep)
}

// liquidate handles a failure of leg i (1 or 2): it converts the asset held
// after leg i-1 back into the starting asset with a single order.
func (e *Executor) liquidate(ctx context.Context, res domain.TradeResult, i int, held decimal.Decimal, cause error) domain.TradeResult {
	state := domain.StateEmergencyLiquidate1
	if i == 2 {
		state = domain.StateEmergencyLiquidate2
	}
	e.state.Store(state)

	asset, start := res.Data.Path[i], res.Data.Path[0]
	log := e.logger.With(slog.String("trade_id", res.ID), slog.String("asset", asset))
	log.Warn("emergency liquidation",
		slog.String("quantity", held.String()),
		slog.String("into", start),
	)

	leg, err := e.liquidationOrder(ctx, asset, start, held)
	res.Liquidation = &leg
	if err != nil {
		log.Error("emergency liquidation failed", slog.String("error", err.Error()))
		res = e.fail(res, legStates[i], errors.Join(cause, fmt.Errorf("%w: %w", domain.ErrLiquidationFailed, err)))
		return res
	}
	log.Info("emergency liquidation filled",
		slog.String("symbol", leg.Symbol),
		slog.String("side", string(leg.Side)),
		slog.String("method", leg.Method),
	)
	res = e.fail(res, legStates[i], cause)
	return res
}

func (e *Executor) liquidationOrder(ctx context.Context, asset, start string, qty decimal.Decimal) (domain.TradeLegResult, error) {
	snap := e.registry.Snapshot()
	req := domain.OrderRequest{DryRun: e.cfg.DryRun}
	var info domain.SymbolInfo
	switch {
	case hasPair(snap, asset, start):
		sym, _ := snap.Pair(asset, start)
		info, _ = snap.Symbol(sym)
		req.Symbol, req.Side = sym, domain.SideSell
		req.Quantity = arbitrage.AdjustQuantityForStepSize(qty, info.StepSize)
	case hasPair(snap, start, asset):
		sym, _ := snap.Pair(start, asset)
		info, _ = snap.Symbol(sym)
		req.Symbol, req.Side = sym, domain.SideBuy
		req.QuoteQty = qty.Truncate(e.cfg.QuoteDP)
	default:
		err := fmt.Errorf("%w: no pair between %s and %s", domain.ErrInvalidPath, asset, start)
		return domain.TradeLegResult{Status: domain.LegGeneralError, Error: err.Error()}, err
	}
	leg, _, err := e.send(ctx, req, start, decimal.Zero, info)
	return leg, err
}

func hasPair(snap *market.RegistrySnapshot, base, quote string) bool {
	_, ok := snap.Pair(base, quote)
	return ok
}

func (e *Executor) reject(res domain.TradeResult, at domain.ExecState, err error) domain.TradeResult {
	res.Status = domain.TradeRejected
	res.FinalState = domain.StateFailed
	res.FailedAt = at
	res.Err = err
	res.Error = err.Error()
	return res
}

func (e *Executor) fail(res domain.TradeResult, at domain.ExecState, err error) domain.TradeResult {
	e.state.Store(domain.StateFailed)
	res.Status = domain.TradeFailed
	res.FinalState = domain.StateFailed
	res.FailedAt = at
	res.Err = err
	res.Error = err.Error()
	return res
}

func (e *Executor) finish(log *slog.Logger, res domain.TradeResult) domain.TradeResult {
	res.Duration = time.Since(res.StartedAt)
	switch res.Status {
	case domain.TradeSuccess:
		e.successCount.Add(1)
		log.Info("arbitrage trade completed",
			slog.String("profit", res.Profit.String()),
			slog.String("profit_pct", res.ProfitPercentage.StringFixed(4)),
			slog.Duration("duration", res.Duration),
			slog.Bool("dry_run", res.DryRun),
		)
	default:
		if !errors.Is(res.Err, domain.ErrAlreadyTrading) {
			e.failureCount.Add(1)
		}
		log.Warn("arbitrage trade did not complete",
			slog.String("status", string(res.Status)),
			slog.String("failed_at", string(res.FailedAt)),
			slog.String("error", res.Error),
			slog.Bool("liquidated", res.Liquidation != nil && res.Liquidation.Status.OK()),
		)
	}
	return res
}

// State returns the current state of the machine.
func (e *Executor) State() domain.ExecState {
	return e.state.Load().(domain.ExecState)
}

// Trading reports whether a trade is in flight.
func (e *Executor) Trading() bool {
	return e.trading.Load()
}

// Stats returns the lifetime counters.
func (e *Executor) Stats() Stats {
	return Stats{
		TradeCount:   e.tradeCount.Load(),
		SuccessCount: e.successCount.Load(),
		FailureCount: e.failureCount.Load(),
		State:        e.State(),
		Trading:      e.Trading(),
	}
}

func pathString(p [4]string) string {
	return p[0] + "→" + p[1] + "→" + p[2] + "→" + p[3]
}
