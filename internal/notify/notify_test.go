package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordSender struct {
	mu     sync.Mutex
	name   string
	err    error
	titles []string
	sent   chan struct{}
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	r.titles = append(r.titles, title)
	r.mu.Unlock()
	if r.sent != nil {
		r.sent <- struct{}{}
	}
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func (r *recordSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventOpportunity, " summary "}, discardLogger())

	ctx := context.Background()
	if err := n.Notify(ctx, EventOpportunity, "a", "x"); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(ctx, EventSummary, "b", "x"); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(ctx, EventTradeFailed, "c", "x"); err != nil {
		t.Fatal(err)
	}
	if got := s.count(); got != 2 {
		t.Fatalf("delivered %d messages, want 2", got)
	}
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("boom")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventStartup, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("err = %v", err)
	}
	if good.count() != 1 {
		t.Fatal("a failing sender must not block the others")
	}
}

func TestNotifierWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	if n.Enabled() {
		t.Fatal("no senders should mean disabled")
	}
	n.Post(EventStartup, "t", "m")
	if err := n.Notify(context.Background(), EventStartup, "t", "m"); err != nil {
		t.Fatal(err)
	}
}

func TestNotifierPostDeliversAsync(t *testing.T) {
	s := &recordSender{name: "rec", sent: make(chan struct{}, 1)}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.Post(EventOpportunity, "hello", "body")
	select {
	case <-s.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("posted message was not delivered")
	}
}

func TestNotifierPostDropsWhenFull(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())
	for i := 0; i < defaultQueueSize+5; i++ {
		n.Post(EventOpportunity, "t", "m")
	}
	if got := n.Dropped(); got != 5 {
		t.Fatalf("dropped = %d, want 5", got)
	}
}

func TestTelegramSender(t *testing.T) {
	var got telegramPayload
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := sonnet.Unmarshal(body, &got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSenderWithAPI(srv.URL+"/", "TOKEN", "42", srv.Client())
	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Fatalf("path = %s", path)
	}
	if got.ChatID != "42" || got.Text != "*Title*\nbody" || got.ParseMode != "Markdown" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestTelegramSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSenderWithAPI(srv.URL, "TOKEN", "42", srv.Client())
	err := s.Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "unexpected status 400") {
		t.Fatalf("err = %v", err)
	}
}

func TestDiscordSenderTruncates(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = sonnet.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	if err := d.Send(context.Background(), "T", strings.Repeat("x", 3000)); err != nil {
		t.Fatal(err)
	}
	if len(got.Content) != discordContentLimit || !strings.HasPrefix(got.Content, "**T**\n") {
		t.Fatalf("content length %d", len(got.Content))
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEstimatedFees(t *testing.T) {
	got := EstimatedFees(d("100"), d("0.00075"))
	if got.StringFixed(6) != "0.224831" {
		t.Fatalf("fees = %s", got)
	}
	if !EstimatedFees(d("100"), decimal.Zero).IsZero() {
		t.Fatal("zero fee should cost nothing")
	}
}

func TestFormatOpportunity(t *testing.T) {
	opp := domain.PromotedOpportunity{
		Opportunity: domain.Opportunity{
			Path:        [4]string{"USDT", "BTC", "ETH", "USDT"},
			Pairs:       [3]string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
			Sides:       [3]domain.OrderSide{domain.SideBuy, domain.SideBuy, domain.SideSell},
			PricesUsed:  [3]decimal.Decimal{d("50000"), d("0.05"), d("2600")},
			StartAmount: d("100"),
			FinalAmount: d("103.5"),
			NetProfit:   d("3.5"),
			DetectedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Investable:   d("42"),
		LifetimeSeen: 7,
	}
	title, body := FormatOpportunity(opp, d("0.00075"))
	if title != "Arbitrage opportunity" {
		t.Fatalf("title = %q", title)
	}
	for _, want := range []string{
		"`USDT→BTC→ETH→USDT`",
		"`3.5000%`",
		"Final: `103.5000 USDT`",
		"Estimated fees: `0.2248 USDT`",
		"1. `USDT→BTC` (`BTCUSDT` BUY @ `50000.00000000`)",
		"3. `ETH→USDT` (`ETHUSDT` SELL @ `2600.00000000`)",
		"Investable now: `42 USDT`",
		"Time: `03:04:05`",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}

	opp.Anomaly = true
	if title, _ := FormatOpportunity(opp, d("0.00075")); !strings.HasPrefix(title, "Anomalous") {
		t.Fatalf("anomaly title = %q", title)
	}
}

func TestFormatTrade(t *testing.T) {
	base := domain.TradeResult{
		Data:     domain.TradingData{Path: [4]string{"USDT", "BTC", "ETH", "USDT"}},
		Duration: 1500 * time.Millisecond,
	}

	tests := []struct {
		name      string
		mutate    func(*domain.TradeResult)
		wantEvent string
		wantTitle string
		wantBody  string
	}{
		{
			name: "profit",
			mutate: func(r *domain.TradeResult) {
				r.Status = domain.TradeSuccess
				r.Profit = d("4")
				r.ProfitPercentage = d("4")
			},
			wantEvent: EventTradeSuccess,
			wantTitle: "Arbitrage completed",
			wantBody:  "Gain: `4.0000 USDT`",
		},
		{
			name: "loss",
			mutate: func(r *domain.TradeResult) {
				r.Status = domain.TradeSuccess
				r.Profit = d("-0.5")
				r.ProfitPercentage = d("-0.5")
				r.DryRun = true
			},
			wantEvent: EventTradeSuccess,
			wantTitle: "Arbitrage completed at a loss (dry run)",
			wantBody:  "Amount lost: `0.5000 USDT`",
		},
		{
			name: "failure with liquidation",
			mutate: func(r *domain.TradeResult) {
				r.Status = domain.TradeFailed
				r.FailedAt = domain.StateLeg2
				r.Error = "order failed"
				r.Liquidation = &domain.TradeLegResult{Symbol: "BTCUSDT", Side: domain.SideSell, Status: domain.LegSuccess}
			},
			wantEvent: EventTradeFailed,
			wantTitle: "Arbitrage failed",
			wantBody:  "Liquidation: `SELL BTCUSDT` SUCCESS",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := base
			tt.mutate(&res)
			event, title, body := FormatTrade(res)
			if event != tt.wantEvent || title != tt.wantTitle {
				t.Fatalf("event/title = %q / %q", event, title)
			}
			if !strings.Contains(body, tt.wantBody) || !strings.Contains(body, "Time: `1.5s`") {
				t.Fatalf("body:\n%s", body)
			}
		})
	}
}

func TestFormatSummaryAndUptime(t *testing.T) {
	if got := FormatUptime(26*time.Hour + 3*time.Minute + 59*time.Second); got != "1d 2h 3m" {
		t.Fatalf("uptime = %q", got)
	}
	_, body := FormatSummary(Summary{Uptime: time.Hour, Found: 3, LowProfitPositive: 10})
	if !strings.Contains(body, "Opportunities found: `3`") || strings.Contains(body, "Trades") {
		t.Fatalf("body:\n%s", body)
	}
	_, body = FormatSummary(Summary{Trades: 2, TradeSuccesses: 1})
	if !strings.Contains(body, "Trades: `2` (`1` successful)") {
		t.Fatalf("body:\n%s", body)
	}
}
