package arbitrage

import (
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/market"
	"github.com/shopspring/decimal"
)

// Investable is the largest amount of the starting asset that every leg can
// absorb from the buffered visible book.
type Investable struct {
	Amount      decimal.Decimal
	LegCapacity [3]decimal.Decimal
	Visible     [3]decimal.Decimal
}

// MaxInvestable computes the buffered capacity of each leg of opp, expresses
// it in the starting currency and takes the minimum. The minimum is then
// re-simulated through the whole cycle; if any leg fails there the amount is
// zero.
func MaxInvestable(opp domain.Opportunity, prices domain.PriceSnapshot, reg *market.RegistrySnapshot, buffer decimal.Decimal, sim Simulator) Investable {
	var inv Investable
	keep := decimal.NewFromInt(1).Sub(sim.Fee)
	toStart := decimal.NewFromInt(1)

	for i := 0; i < 3; i++ {
		info, okInfo := reg.Symbol(opp.Pairs[i])
		book, okBook := prices[opp.Pairs[i]]
		if !okInfo || !okBook {
			inv.LegCapacity[i] = decimal.Zero
			toStart = toStart.Mul(opp.Rates[i]).Mul(keep)
			continue
		}

		price, visible := book.Bid, book.BidQty
		if opp.Sides[i] == domain.SideBuy {
			price, visible = book.Ask, book.AskQty
		}
		inv.Visible[i] = visible

		qty := AdjustQuantityForStepSize(visible.Mul(buffer), info.StepSize)
		if !qty.IsPositive() || qty.LessThan(info.MinQty) || qty.Mul(price).LessThan(info.MinNotional) {
			qty = decimal.Zero
		}

		// Capacity in the leg's input currency.
		capIn := qty
		if opp.Sides[i] == domain.SideBuy {
			capIn = qty.Mul(price)
		}
		if toStart.IsPositive() {
			inv.LegCapacity[i] = capIn.Div(toStart)
		}
		toStart = toStart.Mul(opp.Rates[i]).Mul(keep)
	}

	amount := inv.LegCapacity[0]
	for _, c := range inv.LegCapacity[1:] {
		if c.LessThan(amount) {
			amount = c
		}
	}
	amount = amount.Truncate(8)
	if !amount.IsPositive() {
		return inv
	}

	res := sim.Chain(opp.Path[0], opp.Path[1], opp.Path[2], amount, prices, reg)
	if res.Outcome == OutcomeFailed {
		return inv
	}
	inv.Amount = amount
	return inv
}
