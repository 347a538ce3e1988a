package market

import (
	"testing"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/shopspring/decimal"
)

func sym(symbol, base, quote string) domain.SymbolInfo {
	return domain.SymbolInfo{
		Symbol:      symbol,
		Base:        base,
		Quote:       quote,
		MinQty:      decimal.RequireFromString("0.0001"),
		StepSize:    decimal.RequireFromString("0.0001"),
		MinNotional: decimal.RequireFromString("10"),
	}
}

func TestRegistryLoadAndLookup(t *testing.T) {
	r := NewRegistry()
	if r.Ready() {
		t.Fatal("empty registry reports ready")
	}
	if r.Snapshot() != nil {
		t.Fatal("expected nil snapshot before load")
	}

	r.Load([]domain.SymbolInfo{
		sym("BTCUSDT", "BTC", "USDT"),
		sym("ETHBTC", "ETH", "BTC"),
	})
	if !r.Ready() || r.Len() != 2 {
		t.Fatalf("expected 2 symbols, got %d", r.Len())
	}

	snap := r.Snapshot()
	if got, ok := snap.Pair("BTC", "USDT"); !ok || got != "BTCUSDT" {
		t.Errorf("Pair(BTC, USDT) = %q, %v", got, ok)
	}
	if _, ok := snap.Pair("USDT", "BTC"); ok {
		t.Error("reverse direction must not resolve")
	}
	want := []string{"BTC", "ETH", "USDT"}
	got := snap.Currencies()
	if len(got) != len(want) {
		t.Fatalf("currencies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("currencies[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSelectRelevant(t *testing.T) {
	all := []domain.SymbolInfo{
		sym("BTCUSDT", "BTC", "USDT"),
		sym("XRPBTC", "XRP", "BTC"),
		sym("XRPDOGE", "XRP", "DOGE"),
		sym("DOGEBNB", "DOGE", "BNB"),
	}
	got := SelectRelevant(all, []string{"USDT"})
	if len(got) != 1 || got[0].Symbol != "BTCUSDT" {
		t.Fatalf("USDT only: got %v", got)
	}

	got = SelectRelevant(all, []string{"USDT", "BTC"})
	if len(got) != 2 {
		t.Fatalf("USDT+BTC: expected BTCUSDT and XRPBTC, got %d symbols", len(got))
	}
	if got[0].Symbol != "BTCUSDT" || got[1].Symbol != "XRPBTC" {
		t.Errorf("unexpected selection %s, %s", got[0].Symbol, got[1].Symbol)
	}
}

func TestStreamNames(t *testing.T) {
	got := StreamNames([]domain.SymbolInfo{sym("ETHBTC", "ETH", "BTC")})
	if len(got) != 1 || got[0] != "ethbtc@bookTicker" {
		t.Fatalf("unexpected stream names %v", got)
	}
}

func TestPriceCacheSnapshotIsImmutable(t *testing.T) {
	c := NewPriceCache()
	c.Update(domain.PriceUpdate{Symbol: "BTCUSDT", Book: domain.PriceBook{
		Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(101),
		BidQty: decimal.NewFromInt(1), AskQty: decimal.NewFromInt(2),
	}})

	snap := c.Snapshot()
	c.Update(domain.PriceUpdate{Symbol: "BTCUSDT", Book: domain.PriceBook{
		Bid: decimal.NewFromInt(200), Ask: decimal.NewFromInt(201),
	}})
	c.Update(domain.PriceUpdate{Symbol: "ETHUSDT", Book: domain.PriceBook{
		Bid: decimal.NewFromInt(5), Ask: decimal.NewFromInt(6),
	}})

	if !snap["BTCUSDT"].Bid.Equal(decimal.NewFromInt(100)) {
		t.Errorf("snapshot mutated: bid = %s", snap["BTCUSDT"].Bid)
	}
	if _, ok := snap["ETHUSDT"]; ok {
		t.Error("snapshot gained a symbol after it was taken")
	}

	b, ok := c.Get("BTCUSDT")
	if !ok || !b.Bid.Equal(decimal.NewFromInt(200)) {
		t.Errorf("cache not updated: %v %v", b.Bid, ok)
	}
	if c.Len() != 2 || c.Updates() != 3 {
		t.Errorf("len=%d updates=%d", c.Len(), c.Updates())
	}
}
