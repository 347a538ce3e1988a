package executor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// Trader executes one trade to completion.
type Trader interface {
	Execute(ctx context.Context, data domain.TradingData) domain.TradeResult
}

// ResultHandler receives every finished trade.
type ResultHandler func(ctx context.Context, res domain.TradeResult)

// Lane runs trades on a dedicated OS thread so detection cycles never wait
// on order round-trips. At most one trade is queued behind the one running.
type Lane struct {
	trader   Trader
	queue    chan domain.TradingData
	timeout  time.Duration
	maxAge   time.Duration
	onResult ResultHandler
	logger   *slog.Logger
}

// NewLane creates a Lane. A non-positive timeout defaults to 30 seconds.
func NewLane(trader Trader, timeout time.Duration, onResult ResultHandler, logger *slog.Logger) *Lane {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Lane{
		trader:   trader,
		queue:    make(chan domain.TradingData, 1),
		timeout:  timeout,
		onResult: onResult,
		logger:   logger.With(slog.String("component", "trading_lane")),
	}
}

// WithMaxAge makes the lane discard a trade whose opportunity is older than
// maxAge when it is dequeued. Zero keeps every trade.
func (l *Lane) WithMaxAge(maxAge time.Duration) *Lane {
	l.maxAge = maxAge
	return l
}

// Submit hands data to the lane without blocking. It returns false when the
// lane already has a trade waiting.
func (l *Lane) Submit(data domain.TradingData) bool {
	select {
	case l.queue <- data:
		return true
	default:
		l.logger.Debug("trading lane busy, opportunity skipped",
			slog.String("opportunity_id", data.OpportunityID),
		)
		return false
	}
}

// Run processes submitted trades until ctx is cancelled. A trade in flight
// when ctx is cancelled keeps its own deadline so the legs are not cut off
// half way.
func (l *Lane) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.logger.Info("trading lane started", slog.Duration("timeout", l.timeout))
	defer l.logger.Info("trading lane stopped")

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case data := <-l.queue:
			if l.stale(data) {
				continue
			}
			l.execute(ctx, data)
		}
	}
}

func (l *Lane) stale(data domain.TradingData) bool {
	if l.maxAge <= 0 || data.Timestamp.IsZero() {
		return false
	}
	age := time.Since(data.Timestamp)
	if age <= l.maxAge {
		return false
	}
	l.logger.Warn("queued trade expired before it started",
		slog.String("opportunity_id", data.OpportunityID),
		slog.Duration("age", age),
		slog.Duration("max_age", l.maxAge),
	)
	return true
}

func (l *Lane) execute(ctx context.Context, data domain.TradingData) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	res := l.trader.Execute(tctx, data)
	if errors.Is(tctx.Err(), context.DeadlineExceeded) && res.Status != domain.TradeSuccess {
		res.Err = errors.Join(domain.ErrTradeTimeout, res.Err)
		res.Error = res.Err.Error()
		l.logger.Error("trade exceeded timeout",
			slog.String("trade_id", res.ID),
			slog.Duration("timeout", l.timeout),
			slog.String("error", res.Error),
		)
	}
	if l.onResult != nil {
		l.onResult(context.WithoutCancel(ctx), res)
	}
}

// drain discards any queued trade that has not started.
func (l *Lane) drain() {
	for {
		select {
		case data := <-l.queue:
			l.logger.Warn("dropping queued trade on shutdown",
				slog.String("opportunity_id", data.OpportunityID),
			)
		default:
			return
		}
	}
}
