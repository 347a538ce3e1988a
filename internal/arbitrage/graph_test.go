package arbitrage

import (
	"testing"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/market"
)

func TestBuildGraphEmptyRegistry(t *testing.T) {
	g := BuildGraph(nil)
	if g.Len() != 0 {
		t.Fatalf("expected empty graph, got %d currencies", g.Len())
	}
	n := 0
	g.Triangles([]string{"USDT"}, func(a, b, c string) { n++ })
	if n != 0 {
		t.Fatalf("expected no triangles, got %d", n)
	}
}

func TestTrianglesAreClosedAndDistinct(t *testing.T) {
	reg := market.NewRegistry()
	reg.Load([]domain.SymbolInfo{
		rule("BTCUSDT", "BTC", "USDT", "10"),
		rule("ETHUSDT", "ETH", "USDT", "10"),
		rule("ETHBTC", "ETH", "BTC", "0.0001"),
		rule("BNBBTC", "BNB", "BTC", "0.0001"),
		rule("BNBETH", "BNB", "ETH", "0.0001"),
		rule("BNBUSDT", "BNB", "USDT", "10"),
		rule("USDCUSDT", "USDC", "USDT", "10"),
		rule("SOLBNB", "SOL", "BNB", "0.0001"),
	})
	snap := reg.Snapshot()
	g := BuildGraph(snap)

	seen := 0
	g.Triangles(snap.Currencies(), func(a, b, c string) {
		seen++
		if a == b || b == c || a == c {
			t.Errorf("non-distinct triangle %s %s %s", a, b, c)
		}
		for _, e := range [][2]string{{a, b}, {b, c}, {c, a}} {
			_, fwd := snap.Pair(e[0], e[1])
			_, rev := snap.Pair(e[1], e[0])
			if !fwd && !rev {
				t.Errorf("triangle %s→%s→%s: no pair for %s-%s", a, b, c, e[0], e[1])
			}
		}
	})
	// K4 over {BTC, ETH, BNB, USDT}: 4 triangles, each visited from 3
	// starting points in 2 directions.
	if seen != 24 {
		t.Fatalf("expected 24 directed triangles, got %d", seen)
	}
}

func TestGraphDeduplicatesNeighbors(t *testing.T) {
	reg := market.NewRegistry()
	reg.Load([]domain.SymbolInfo{
		rule("USDCUSDT", "USDC", "USDT", "1"),
		rule("USDTUSDC", "USDT", "USDC", "1"),
	})
	g := BuildGraph(reg.Snapshot())
	if n := len(g.Neighbors("USDT")); n != 1 {
		t.Fatalf("USDT has %d neighbors, want 1", n)
	}
}
