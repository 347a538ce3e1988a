package arbitrage

import (
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/market"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rule(symbol, base, quote, minNotional string) domain.SymbolInfo {
	return domain.SymbolInfo{
		Symbol:      symbol,
		Base:        base,
		Quote:       quote,
		MinQty:      d("0.0001"),
		StepSize:    d("0.0001"),
		MinNotional: d(minNotional),
	}
}

func book(bid, bidQty, ask, askQty string) domain.PriceBook {
	return domain.PriceBook{Bid: d(bid), BidQty: d(bidQty), Ask: d(ask), AskQty: d(askQty)}
}

// scenarioMarket is the BTC/USDT, ETH/BTC, ETH/USDT market used across tests.
func scenarioMarket() (*market.Registry, *market.PriceCache) {
	reg := market.NewRegistry()
	reg.Load([]domain.SymbolInfo{
		rule("BTCUSDT", "BTC", "USDT", "10"),
		rule("ETHBTC", "ETH", "BTC", "0.0001"),
		rule("ETHUSDT", "ETH", "USDT", "10"),
	})
	prices := market.NewPriceCache()
	prices.Update(domain.PriceUpdate{Symbol: "BTCUSDT", Book: book("49990", "1", "50000", "1")})
	prices.Update(domain.PriceUpdate{Symbol: "ETHBTC", Book: book("0.05", "10", "0.05", "10")})
	prices.Update(domain.PriceUpdate{Symbol: "ETHUSDT", Book: book("2600", "5", "2601", "5")})
	return reg, prices
}

func scenarioSimulator(fee string) Simulator {
	return Simulator{
		Fee:             d(fee),
		ProfitThreshold: d("0.001"),
		Budgets:         Budgets{Default: d("100")},
	}
}
