package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/triarbot/internal/arbitrage"
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/executor"
	"github.com/alanyoungcy/triarbot/internal/server/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCycles struct{ last *arbitrage.CycleStats }

func (f fakeCycles) Phase() arbitrage.Phase        { return arbitrage.PhaseIdle }
func (f fakeCycles) Cycles() int64                 { return 7 }
func (f fakeCycles) Found() int64                  { return 3 }
func (f fakeCycles) LowProfitPositiveTotal() int64 { return 11 }
func (f fakeCycles) LastCycle() (arbitrage.CycleStats, bool) {
	if f.last == nil {
		return arbitrage.CycleStats{}, false
	}
	return *f.last, true
}

type fakePrices struct{}

func (fakePrices) Len() int        { return 42 }
func (fakePrices) Updates() uint64 { return 1000 }

type fakeTrades struct{}

func (fakeTrades) Stats() executor.Stats {
	return executor.Stats{TradeCount: 2, SuccessCount: 1, FailureCount: 1, State: domain.StateIdle}
}

type fakeDrops int64

func (f fakeDrops) Dropped() int64 { return int64(f) }

type fakeTradeStore struct{ trades []domain.TradeResult }

func (f *fakeTradeStore) Save(context.Context, domain.TradeResult) error { return nil }

func (f *fakeTradeStore) GetByID(_ context.Context, id string) (domain.TradeResult, error) {
	for _, t := range f.trades {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.TradeResult{}, domain.ErrNotFound
}

func (f *fakeTradeStore) ListRecent(_ context.Context, limit int) ([]domain.TradeResult, error) {
	return f.trades[:min(limit, len(f.trades))], nil
}

type fakeEvents struct {
	msgs      []domain.StreamMessage
	lastAfter string
}

func (f *fakeEvents) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	f.lastAfter = lastID
	var out []domain.StreamMessage
	for _, m := range f.msgs {
		if m.ID > lastID && len(out) < count {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeEvents) StreamLatest(_ context.Context, _ string, count int) ([]domain.StreamMessage, error) {
	return f.msgs[max(0, len(f.msgs)-count):], nil
}

func newTestServer(t *testing.T, apiKey string, checks map[string]handler.Check) (*httptest.Server, *fakeEvents) {
	t.Helper()
	log := discardLogger()
	events := &fakeEvents{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"type":"opportunity"}`)},
		{ID: "2-0", Payload: []byte(`{"type":"trade"}`)},
	}}
	trades := &fakeTradeStore{trades: []domain.TradeResult{{ID: "t1", Status: domain.TradeSuccess}}}
	last := &arbitrage.CycleStats{Workers: 4, Duration: time.Second}

	srv := NewServer(Config{Port: 0, APIKey: apiKey}, Handlers{
		Health: handler.NewHealthHandler(checks, log),
		Status: handler.NewStatusHandler(handler.StatusSources{
			Mode:     "trade",
			DryRun:   true,
			Symbols:  func() int { return 12 },
			Cycles:   fakeCycles{last: last},
			Prices:   fakePrices{},
			Trades:   fakeTrades{},
			Notifier: fakeDrops(5),
		}),
		History: handler.NewHistoryHandler(trades, nil, events, "triarb:events", log),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "triarb_cycles_total 7\n")
		}),
	}, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, events
}

func get(t *testing.T, url string, headers map[string]string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func TestHealthReportsFailedChecks(t *testing.T) {
	ts, _ := newTestServer(t, "", map[string]handler.Check{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})

	code, body := get(t, ts.URL+"/api/health", nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	var out struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := sonnet.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "degraded" || out.Checks["redis"] != "ok" || out.Checks["postgres"] != "connection refused" {
		t.Fatalf("unexpected health body: %s", body)
	}
}

func TestAuthLeavesHealthAndMetricsOpen(t *testing.T) {
	ts, _ := newTestServer(t, "secret", nil)

	if code, _ := get(t, ts.URL+"/api/health", nil); code != http.StatusOK {
		t.Fatalf("health status = %d", code)
	}
	if code, body := get(t, ts.URL+"/metrics", nil); code != http.StatusOK || !strings.Contains(string(body), "triarb_cycles_total") {
		t.Fatalf("metrics status = %d body = %s", code, body)
	}
	if code, _ := get(t, ts.URL+"/api/status", nil); code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", code)
	}
	if code, _ := get(t, ts.URL+"/api/status", map[string]string{"X-API-Key": "wrong"}); code != http.StatusUnauthorized {
		t.Fatalf("status with wrong key = %d, want 401", code)
	}
	if code, _ := get(t, ts.URL+"/api/status", map[string]string{"Authorization": "Bearer secret"}); code != http.StatusOK {
		t.Fatalf("status with bearer = %d, want 200", code)
	}
}

func TestStatusBody(t *testing.T) {
	ts, _ := newTestServer(t, "", nil)

	code, body := get(t, ts.URL+"/api/status", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var out struct {
		Mode   string `json:"mode"`
		DryRun bool   `json:"dry_run"`
		Market struct {
			Symbols int `json:"symbols"`
			Books   int `json:"books"`
		} `json:"market"`
		Cycle struct {
			Completed int64          `json:"completed"`
			Found     int64          `json:"opportunities_found"`
			Last      map[string]any `json:"last"`
		} `json:"cycle"`
		Trading *struct {
			TradeCount int64 `json:"trade_count"`
		} `json:"trading"`
		Router  map[string]any   `json:"router"`
		Dropped map[string]int64 `json:"dropped"`
	}
	if err := sonnet.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Mode != "trade" || !out.DryRun {
		t.Fatalf("mode/dry_run = %q/%v", out.Mode, out.DryRun)
	}
	if out.Market.Symbols != 12 || out.Market.Books != 42 {
		t.Fatalf("market = %+v", out.Market)
	}
	if out.Cycle.Completed != 7 || out.Cycle.Found != 3 || out.Cycle.Last == nil {
		t.Fatalf("cycle = %+v", out.Cycle)
	}
	if out.Trading == nil || out.Trading.TradeCount != 2 {
		t.Fatalf("trading = %+v", out.Trading)
	}
	if out.Router != nil {
		t.Fatalf("router should be omitted when not configured, got %v", out.Router)
	}
	if out.Dropped["notifications"] != 5 {
		t.Fatalf("dropped = %v", out.Dropped)
	}
}

func TestTradeLookup(t *testing.T) {
	ts, _ := newTestServer(t, "", nil)

	if code, body := get(t, ts.URL+"/api/trades/t1", nil); code != http.StatusOK || !strings.Contains(string(body), `"t1"`) {
		t.Fatalf("get t1 = %d %s", code, body)
	}
	if code, _ := get(t, ts.URL+"/api/trades/missing", nil); code != http.StatusNotFound {
		t.Fatalf("get missing = %d, want 404", code)
	}
	if code, _ := get(t, ts.URL+"/api/opportunities", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("opportunities without store = %d, want 503", code)
	}
}

func TestEventsEmbedPayloads(t *testing.T) {
	ts, events := newTestServer(t, "", nil)

	code, body := get(t, ts.URL+"/api/events?limit=1", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var latest struct {
		Events []struct {
			ID    string         `json:"id"`
			Event map[string]any `json:"event"`
		} `json:"events"`
		Next string `json:"next"`
	}
	if err := sonnet.Unmarshal(body, &latest); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if len(latest.Events) != 1 || latest.Events[0].ID != "2-0" || latest.Events[0].Event["type"] != "trade" {
		t.Fatalf("latest = %s", body)
	}

	code, body = get(t, ts.URL+"/api/events?after=1-0", nil)
	if code != http.StatusOK || events.lastAfter != "1-0" {
		t.Fatalf("after read = %d, lastAfter %q", code, events.lastAfter)
	}
	if !strings.Contains(string(body), `"next":"2-0"`) {
		t.Fatalf("next cursor missing: %s", body)
	}
}
