package arbitrage

import (
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/market"
	"github.com/shopspring/decimal"
)

// FailReason classifies why a leg could not be simulated. The zero value
// means the leg succeeded.
type FailReason string

const (
	FailNone        FailReason = ""
	FailNoData      FailReason = "FAIL_NO_DATA"
	FailStepSize    FailReason = "FAIL_STEP_SIZE"
	FailMinQty      FailReason = "FAIL_MIN_QTY"
	FailLiquidity   FailReason = "FAIL_LIQUIDITY"
	FailMinNotional FailReason = "FAIL_MIN_NOTIONAL"
	FailUnknown     FailReason = "UNKNOWN"
)

// FailReasons lists every failure reason in reporting order.
var FailReasons = []FailReason{
	FailLiquidity, FailMinNotional, FailMinQty, FailStepSize, FailNoData, FailUnknown,
}

// AdjustQuantityForStepSize floors q to a whole multiple of step. A zero or
// negative step leaves q unchanged.
func AdjustQuantityForStepSize(q, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return q
	}
	quo, _ := q.QuoRem(step, 0)
	return quo.Mul(step)
}

// LegSim is the simulated fill of one conversion.
type LegSim struct {
	Symbol    string
	Side      domain.OrderSide
	Price     decimal.Decimal
	Rate      decimal.Decimal
	Quantity  decimal.Decimal
	AmountOut decimal.Decimal
}

// SimulateLeg converts amountIn of start into end at the top of book. A pair
// end/start is a buy at the ask; a pair start/end is a sell at the bid.
func SimulateLeg(start, end string, amountIn decimal.Decimal, prices domain.PriceSnapshot, reg *market.RegistrySnapshot) (LegSim, FailReason) {
	if sym, ok := reg.Pair(end, start); ok {
		info, okInfo := reg.Symbol(sym)
		book, okBook := prices[sym]
		if !okInfo || !okBook || !book.HasAsk() {
			return LegSim{}, FailNoData
		}
		price := book.Ask
		qty := AdjustQuantityForStepSize(amountIn.Div(price), info.StepSize)
		if reason := checkRules(qty, price, book.AskQty, info); reason != FailNone {
			return LegSim{}, reason
		}
		return LegSim{
			Symbol:    sym,
			Side:      domain.SideBuy,
			Price:     price,
			Rate:      decimal.NewFromInt(1).Div(price),
			Quantity:  qty,
			AmountOut: qty,
		}, FailNone
	}

	if sym, ok := reg.Pair(start, end); ok {
		info, okInfo := reg.Symbol(sym)
		book, okBook := prices[sym]
		if !okInfo || !okBook || !book.HasBid() {
			return LegSim{}, FailNoData
		}
		price := book.Bid
		qty := AdjustQuantityForStepSize(amountIn, info.StepSize)
		if reason := checkRules(qty, price, book.BidQty, info); reason != FailNone {
			return LegSim{}, reason
		}
		return LegSim{
			Symbol:    sym,
			Side:      domain.SideSell,
			Price:     price,
			Rate:      price,
			Quantity:  qty,
			AmountOut: qty.Mul(price),
		}, FailNone
	}

	return LegSim{}, FailNoData
}

func checkRules(qty, price, visible decimal.Decimal, info domain.SymbolInfo) FailReason {
	switch {
	case !qty.IsPositive():
		return FailStepSize
	case qty.LessThan(info.MinQty):
		return FailMinQty
	case qty.GreaterThan(visible):
		return FailLiquidity
	case qty.Mul(price).LessThan(info.MinNotional):
		return FailMinNotional
	}
	return FailNone
}

// Outcome classifies a simulated triangle.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeProfitable
	OutcomeLowProfitPositive
	OutcomeLowProfitNegative
)

// TriangleResult is the result of simulating one cycle.
type TriangleResult struct {
	Outcome     Outcome
	Reason      FailReason
	Legs        [3]LegSim
	StartAmount decimal.Decimal
	FinalAmount decimal.Decimal
	NetProfit   decimal.Decimal
}

// Budgets maps a starting asset to the amount simulated from it.
type Budgets struct {
	Default  decimal.Decimal
	PerAsset map[string]decimal.Decimal
}

// For returns the simulation amount for asset.
func (b Budgets) For(asset string) decimal.Decimal {
	if v, ok := b.PerAsset[asset]; ok {
		return v
	}
	return b.Default
}

// Simulator chains three legs with fees and classifies the result.
type Simulator struct {
	Fee             decimal.Decimal
	ProfitThreshold decimal.Decimal
	Budgets         Budgets
}

// Chain runs a→b→c→a starting from amount, applying the fee after every leg.
func (s Simulator) Chain(a, b, c string, amount decimal.Decimal, prices domain.PriceSnapshot, reg *market.RegistrySnapshot) TriangleResult {
	res := TriangleResult{StartAmount: amount}
	keep := decimal.NewFromInt(1).Sub(s.Fee)
	path := [4]string{a, b, c, a}

	in := amount
	for i := 0; i < 3; i++ {
		leg, reason := SimulateLeg(path[i], path[i+1], in, prices, reg)
		if reason != FailNone {
			res.Outcome = OutcomeFailed
			res.Reason = reason
			return res
		}
		res.Legs[i] = leg
		in = leg.AmountOut.Mul(keep)
	}

	res.FinalAmount = in
	res.NetProfit = in.Sub(amount)
	switch {
	case res.NetProfit.GreaterThan(amount.Mul(s.ProfitThreshold)):
		res.Outcome = OutcomeProfitable
	case res.NetProfit.IsNegative():
		res.Outcome = OutcomeLowProfitNegative
	default:
		res.Outcome = OutcomeLowProfitPositive
	}
	return res
}

// SimulateTriangle runs the cycle with the configured budget for a. Any panic
// raised while simulating is reported as FailUnknown.
func (s Simulator) SimulateTriangle(a, b, c string, prices domain.PriceSnapshot, reg *market.RegistrySnapshot) (res TriangleResult) {
	defer func() {
		if r := recover(); r != nil {
			res = TriangleResult{Outcome: OutcomeFailed, Reason: FailUnknown}
		}
	}()
	return s.Chain(a, b, c, s.Budgets.For(a), prices, reg)
}

// Opportunity converts a profitable result into an Opportunity.
func (r TriangleResult) Opportunity(a, b, c string) domain.Opportunity {
	opp := domain.Opportunity{
		Path:        [4]string{a, b, c, a},
		StartAmount: r.StartAmount,
		FinalAmount: r.FinalAmount,
		NetProfit:   r.NetProfit,
	}
	for i, leg := range r.Legs {
		opp.Pairs[i] = leg.Symbol
		opp.Sides[i] = leg.Side
		opp.Rates[i] = leg.Rate
		opp.PricesUsed[i] = leg.Price
	}
	return opp
}
