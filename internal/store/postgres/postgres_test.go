package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDSN(t *testing.T) {
	tests := map[string]struct {
		cfg  ClientConfig
		want string
	}{
		"explicit dsn wins": {
			cfg:  ClientConfig{DSN: "postgres://x", Host: "ignored"},
			want: "postgres://x",
		},
		"defaults": {
			cfg:  ClientConfig{Host: "db", Database: "triarb", User: "bot", Password: "pw"},
			want: "postgres://bot:pw@db:5432/triarb?sslmode=disable",
		},
		"custom port and ssl": {
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "t", User: "u", SSLMode: "require"},
			want: "postgres://u:@db:6543/t?sslmode=require",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001_trades.sql", "002_opportunities.sql"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v", names)
		}
	}
}

func TestOpportunityLegsRoundTrip(t *testing.T) {
	in := domain.PromotedOpportunity{
		Opportunity: domain.Opportunity{
			Pairs:      [3]string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
			Sides:      [3]domain.OrderSide{domain.SideBuy, domain.SideBuy, domain.SideSell},
			PricesUsed: [3]decimal.Decimal{d("50000"), d("0.05"), d("2600")},
		},
		LegCapacity: [3]decimal.Decimal{d("10"), d("20"), d("30")},
	}
	raw, err := encodeLegs(in)
	if err != nil {
		t.Fatal(err)
	}
	var out domain.PromotedOpportunity
	if err := decodeLegs(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.Pairs != in.Pairs || out.Sides != in.Sides {
		t.Fatalf("pairs/sides = %v %v", out.Pairs, out.Sides)
	}
	if !out.PricesUsed[2].Equal(d("2600")) || !out.LegCapacity[1].Equal(d("20")) {
		t.Fatalf("decimals = %v %v", out.PricesUsed, out.LegCapacity)
	}
}

// testClient connects to TRIARB_TEST_POSTGRES_DSN and migrates, or skips.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("TRIARB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TRIARB_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// A second run must be a no-op.
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	return c
}

func TestTradeStoreRoundTrip(t *testing.T) {
	c := testClient(t)
	store := c.TradeStore()
	ctx := context.Background()

	res := domain.TradeResult{
		ID: uuid.NewString(),
		Data: domain.TradingData{
			OpportunityID: "opp-1",
			Path:          [4]string{"USDT", "BTC", "ETH", "USDT"},
			Pairs:         [3]string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
		},
		Status:     domain.TradeFailed,
		FinalState: domain.StateFailed,
		FailedAt:   domain.StateLeg2,
		Budget:     d("100"),
		Legs: []domain.TradeLegResult{
			{Status: domain.LegSuccess, Symbol: "BTCUSDT", Side: domain.SideBuy, QuoteQty: d("100"), ExecutedQty: d("0.002"), ExecutionTime: 40 * time.Millisecond},
			{Status: domain.LegAPIError, Symbol: "ETHBTC", Side: domain.SideBuy, Error: "rejected"},
		},
		Liquidation: &domain.TradeLegResult{Status: domain.LegSuccess, Symbol: "BTCUSDT", Side: domain.SideSell, Quantity: d("0.002")},
		Error:       "order failed",
		StartedAt:   time.Now().UTC().Truncate(time.Millisecond),
		Duration:    1200 * time.Millisecond,
	}
	if err := store.Save(ctx, res); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, res); err != nil {
		t.Fatalf("save twice: %v", err)
	}

	got, err := store.GetByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != res.Status || got.FailedAt != domain.StateLeg2 || !got.Budget.Equal(d("100")) {
		t.Fatalf("got %+v", got)
	}
	if len(got.Legs) != 2 || got.Liquidation == nil || !got.Liquidation.Quantity.Equal(d("0.002")) {
		t.Fatalf("legs = %+v liquidation = %+v", got.Legs, got.Liquidation)
	}
	if got.Legs[0].ExecutionTime != 40*time.Millisecond || got.Duration != 1200*time.Millisecond {
		t.Fatalf("durations = %s %s", got.Legs[0].ExecutionTime, got.Duration)
	}

	if _, err := store.GetByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing trade err = %v", err)
	}

	recent, err := store.ListRecent(ctx, 5)
	if err != nil || len(recent) == 0 {
		t.Fatalf("recent = %v, %v", recent, err)
	}
}

func TestOpportunityStoreRoundTrip(t *testing.T) {
	c := testClient(t)
	store := c.OpportunityStore()
	ctx := context.Background()

	opp := domain.PromotedOpportunity{
		Opportunity: domain.Opportunity{
			ID:          uuid.NewString(),
			Path:        [4]string{"USDT", "BTC", "ETH", "USDT"},
			Pairs:       [3]string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
			StartAmount: d("100"),
			FinalAmount: d("100.5"),
			NetProfit:   d("0.5"),
			DetectedAt:  time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond),
		},
		Investable:   d("55"),
		LifetimeSeen: 3,
	}
	if err := store.Save(ctx, opp); err != nil {
		t.Fatalf("save: %v", err)
	}
	recent, err := store.ListRecent(ctx, 1)
	if err != nil || len(recent) != 1 {
		t.Fatalf("recent = %v, %v", recent, err)
	}
	got := recent[0]
	if got.ID != opp.ID || got.Path != opp.Path || got.Pairs != opp.Pairs || !got.Investable.Equal(d("55")) {
		t.Fatalf("got %+v", got)
	}
}
