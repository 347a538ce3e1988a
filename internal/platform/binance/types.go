// Package binance adapts the spot exchange's REST API, WebSocket order API
// and book-ticker streams to the bot's domain types.
package binance

import (
	"strconv"
	"strings"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// DefaultStreamURL is the combined-stream market data endpoint.
	DefaultStreamURL = "wss://stream.binance.com:9443/stream"

	// DefaultWSAPIURL is the WebSocket API endpoint used for orders.
	DefaultWSAPIURL = "wss://ws-api.binance.com:443/ws-api/v3"

	// TestnetWSAPIURL is the testnet WebSocket API endpoint.
	TestnetWSAPIURL = "wss://ws-api.testnet.binance.vision/ws-api/v3"

	statusTrading = "TRADING"
)

var terminalUnfilled = map[string]bool{
	"EXPIRED":  true,
	"REJECTED": true,
	"CANCELED": true,
}

// fill is one execution reported in a FULL order response.
type fill struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

// orderResult is the FULL order response shared by both order channels.
type orderResult struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Fills               []fill `json:"fills"`
}

// toLegResult converts an accepted order into a domain leg result. Only
// commission charged in the asset received is reported when there is any;
// otherwise the commission in the first other asset is reported. An order
// that ended EXPIRED, REJECTED or CANCELED without any fill is an
// ORDER_ERROR leg.
func (r orderResult) toLegResult(req domain.OrderRequest, assets symbolAssets) domain.TradeLegResult {
	leg := domain.TradeLegResult{
		Status:      domain.LegSuccess,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		ExecutedQty: parseDecimal(r.ExecutedQty),
		QuoteQty:    parseDecimal(r.CummulativeQuoteQty),
	}
	if r.OrderID != 0 {
		leg.OrderID = strconv.FormatInt(r.OrderID, 10)
	}
	if terminalUnfilled[r.Status] && !leg.ExecutedQty.IsPositive() {
		leg.Status = domain.LegOrderError
		leg.Error = "order " + r.Status + " without fill"
		return leg
	}
	if leg.ExecutedQty.IsPositive() {
		leg.Price = leg.QuoteQty.Div(leg.ExecutedQty)
	}

	received := assets.receivedOn(req.Side)
	var other decimal.Decimal
	otherAsset := ""
	for _, f := range r.Fills {
		c := parseDecimal(f.Commission)
		if f.CommissionAsset == received {
			leg.Commission = leg.Commission.Add(c)
			leg.CommissionAsset = received
			continue
		}
		if otherAsset == "" || otherAsset == f.CommissionAsset {
			otherAsset = f.CommissionAsset
			other = other.Add(c)
		}
	}
	if leg.CommissionAsset == "" && otherAsset != "" {
		leg.Commission, leg.CommissionAsset = other, otherAsset
	}
	return leg
}

// symbolAssets names the two sides of an order symbol.
type symbolAssets struct {
	Base  string
	Quote string
}

func (a symbolAssets) receivedOn(side domain.OrderSide) string {
	if side == domain.SideBuy {
		return a.Base
	}
	return a.Quote
}

func parseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return v
}

// AssetLookup resolves the base and quote asset of a symbol.
type AssetLookup func(symbol string) (base, quote string, ok bool)

func lookupAssets(lookup AssetLookup, symbol string) symbolAssets {
	if lookup == nil {
		return symbolAssets{}
	}
	base, quote, _ := lookup(symbol)
	return symbolAssets{Base: base, Quote: quote}
}
