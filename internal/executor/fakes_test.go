package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/market"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	errChannelDown = fmt.Errorf("channel down: %w", domain.ErrOrderNotSent)
	errNoResponse  = errors.New("no response within 10s")
)

// fakeChannel records every order and answers through respond.
type fakeChannel struct {
	name      string
	connected bool
	respond   func(req domain.OrderRequest) (domain.TradeLegResult, error)

	mu     sync.Mutex
	orders []domain.OrderRequest
}

func (c *fakeChannel) Name() string    { return c.name }
func (c *fakeChannel) Connected() bool { return c.connected }

func (c *fakeChannel) PlaceMarketOrder(_ context.Context, req domain.OrderRequest) (domain.TradeLegResult, error) {
	c.mu.Lock()
	c.orders = append(c.orders, req)
	c.mu.Unlock()
	if c.respond == nil {
		return domain.TradeLegResult{Status: domain.LegSuccess, Symbol: req.Symbol, Side: req.Side}, nil
	}
	return c.respond(req)
}

func (c *fakeChannel) Orders() []domain.OrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.OrderRequest(nil), c.orders...)
}

type fakeBalances map[string]decimal.Decimal

func (b fakeBalances) Balance(_ context.Context, asset string) (decimal.Decimal, error) {
	return b[asset], nil
}

func triangleRegistry() *market.Registry {
	reg := market.NewRegistry()
	step := d("0.0001")
	reg.Load([]domain.SymbolInfo{
		{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", MinQty: step, StepSize: step, MinNotional: d("10")},
		{Symbol: "ETHBTC", Base: "ETH", Quote: "BTC", MinQty: step, StepSize: step, MinNotional: d("0.0001")},
		{Symbol: "ETHUSDT", Base: "ETH", Quote: "USDT", MinQty: step, StepSize: step, MinNotional: d("10")},
	})
	return reg
}

func triangleData() domain.TradingData {
	return domain.TradingData{
		OpportunityID: "opp-1",
		Path:          [4]string{"USDT", "BTC", "ETH", "USDT"},
		Pairs:         [3]string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
		Prices:        [3]decimal.Decimal{d("50000"), d("0.05"), d("2600")},
	}
}

// filledMarket fills every order at the triangle's prices with no commission.
func filledMarket(req domain.OrderRequest) (domain.TradeLegResult, error) {
	prices := map[string]decimal.Decimal{"BTCUSDT": d("50000"), "ETHBTC": d("0.05"), "ETHUSDT": d("2600")}
	p := prices[req.Symbol]
	res := domain.TradeLegResult{Status: domain.LegSuccess, Symbol: req.Symbol, Side: req.Side, Price: p}
	if req.Side == domain.SideBuy {
		res.QuoteQty = req.QuoteQty
		res.ExecutedQty = req.QuoteQty.Div(p).Truncate(4)
	} else {
		res.ExecutedQty = req.Quantity
		res.QuoteQty = req.Quantity.Mul(p)
	}
	return res, nil
}
