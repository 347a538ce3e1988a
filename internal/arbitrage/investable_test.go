package arbitrage

import (
	"testing"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

func scenarioOpportunity(t *testing.T, sim Simulator) domain.Opportunity {
	t.Helper()
	reg, prices := scenarioMarket()
	res := sim.Chain("USDT", "BTC", "ETH", d("100"), prices.Snapshot(), reg.Snapshot())
	if res.Outcome != OutcomeProfitable {
		t.Fatalf("scenario not profitable: %v %s", res.Outcome, res.Reason)
	}
	return res.Opportunity("USDT", "BTC", "ETH")
}

func TestMaxInvestable(t *testing.T) {
	sim := scenarioSimulator("0")
	opp := scenarioOpportunity(t, sim)
	reg, prices := scenarioMarket()

	inv := MaxInvestable(opp, prices.Snapshot(), reg.Snapshot(), d("0.8"), sim)
	want := [3]string{"40000", "20000", "10000"}
	for i := range want {
		if !inv.LegCapacity[i].Equal(d(want[i])) {
			t.Errorf("leg %d capacity = %s, want %s", i+1, inv.LegCapacity[i], want[i])
		}
	}
	if !inv.Amount.Equal(d("10000")) {
		t.Errorf("investable = %s, want 10000", inv.Amount)
	}
	if !inv.Visible[2].Equal(d("5")) {
		t.Errorf("leg 3 visible = %s, want bid qty 5", inv.Visible[2])
	}
}

func TestMaxInvestableZeroWhenBookTooThin(t *testing.T) {
	sim := scenarioSimulator("0")
	opp := scenarioOpportunity(t, sim)
	reg, prices := scenarioMarket()

	snap := domain.PriceSnapshot{}
	for k, v := range prices.Snapshot() {
		snap[k] = v
	}
	// 0.8 * 0.0001 floors to zero at a 0.0001 step.
	thin := snap["ETHUSDT"]
	thin.BidQty = d("0.0001")
	snap["ETHUSDT"] = thin

	inv := MaxInvestable(opp, snap, reg.Snapshot(), d("0.8"), sim)
	if !inv.Amount.IsZero() {
		t.Fatalf("investable = %s, want 0", inv.Amount)
	}
	if !inv.LegCapacity[2].IsZero() {
		t.Errorf("leg 3 capacity = %s, want 0", inv.LegCapacity[2])
	}
}
