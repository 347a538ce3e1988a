package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SymbolInfo holds the normalized trading rules of one spot pair.
type SymbolInfo struct {
	Symbol      string          `json:"symbol"`
	Base        string          `json:"base"`
	Quote       string          `json:"quote"`
	MinQty      decimal.Decimal `json:"min_qty"`
	StepSize    decimal.Decimal `json:"step_size"`
	MinNotional decimal.Decimal `json:"min_notional"`
}

// PriceBook is the top of book for one pair. All four figures are replaced
// together on every update.
type PriceBook struct {
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	BidQty    decimal.Decimal `json:"bid_qty"`
	AskQty    decimal.Decimal `json:"ask_qty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HasBid reports whether the bid side carries a usable price.
func (b PriceBook) HasBid() bool { return b.Bid.IsPositive() }

// HasAsk reports whether the ask side carries a usable price.
func (b PriceBook) HasAsk() bool { return b.Ask.IsPositive() }

// PriceUpdate is one book-ticker tick delivered by the feed.
type PriceUpdate struct {
	Symbol string
	Book   PriceBook
}

// PriceSnapshot is a point-in-time, read-only view of every known book. It
// must not be mutated once handed out.
type PriceSnapshot map[string]PriceBook

// OrderSide is the direction of a spot market order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)
