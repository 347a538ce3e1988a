package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/triarbot/internal/crypto"
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

type wsCapture struct {
	Method string
	Params map[string]any
}

// newWSAPIServer answers every request through respond and reports what it
// received on seen.
func newWSAPIServer(t *testing.T, respond func(req wsRequest) string, seen chan<- wsCapture) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := sonnet.Unmarshal(msg, &req); err != nil {
				return
			}
			if seen != nil {
				seen <- wsCapture{Method: req.Method, Params: req.Params}
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(respond(req))); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startWSClient(t *testing.T, url string) *WSOrderClient {
	t.Helper()
	c := NewWSOrderClient(WSOrderConfig{URL: url, APIKey: "key", APISecret: "secret", RequestTimeout: 2 * time.Second, Assets: assetsFor}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("websocket api client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return c
}

func TestWSOrderPlaceSignedAndFilled(t *testing.T) {
	seen := make(chan wsCapture, 1)
	url := newWSAPIServer(t, func(req wsRequest) string {
		return `{"id":"` + req.ID + `","status":200,"result":{"symbol":"ETHBTC","orderId":7,"status":"FILLED",
			"executedQty":"0.0400","cummulativeQuoteQty":"0.002","fills":[{"price":"0.05","qty":"0.04","commission":"0.00000150","commissionAsset":"BTC"}]}}`
	}, seen)
	c := startWSClient(t, url)

	leg, err := c.PlaceMarketOrder(context.Background(), domain.OrderRequest{Symbol: "ETHBTC", Side: domain.SideSell, Quantity: d("0.04")})
	if err != nil {
		t.Fatal(err)
	}
	if leg.Status != domain.LegSuccess || !leg.QuoteQty.Equal(d("0.002")) || leg.OrderID != "7" {
		t.Fatalf("leg = %+v", leg)
	}
	if leg.CommissionAsset != "BTC" || !leg.Commission.Equal(d("0.0000015")) {
		t.Fatalf("commission = %s %s", leg.Commission, leg.CommissionAsset)
	}

	got := <-seen
	if got.Method != "order.place" {
		t.Fatalf("method = %s", got.Method)
	}
	if got.Params["quantity"] != "0.04" || got.Params["type"] != "MARKET" || got.Params["apiKey"] != "key" {
		t.Fatalf("params = %v", got.Params)
	}
	strParams := make(map[string]string, len(got.Params))
	for k, v := range got.Params {
		switch x := v.(type) {
		case string:
			strParams[k] = x
		case float64:
			strParams[k] = strconv.FormatInt(int64(x), 10)
		}
	}
	auth := &crypto.HMACAuth{Secret: "secret"}
	if want := auth.Sign(crypto.CanonicalQuery(strParams)); got.Params["signature"] != want {
		t.Fatalf("signature mismatch: got %v want %s", got.Params["signature"], want)
	}
}

func TestWSOrderRejectionIsNotChannelFailure(t *testing.T) {
	url := newWSAPIServer(t, func(req wsRequest) string {
		return `{"id":"` + req.ID + `","status":400,"error":{"code":-2010,"msg":"Account has insufficient balance"}}`
	}, nil)
	c := startWSClient(t, url)

	leg, err := c.PlaceMarketOrder(context.Background(), domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.SideBuy, QuoteQty: d("100")})
	if err != nil {
		t.Fatalf("rejection returned error: %v", err)
	}
	if leg.Status != domain.LegAPIError || !strings.Contains(leg.Error, "-2010") {
		t.Fatalf("leg = %+v", leg)
	}
}

func TestWSOrderDryRunUsesOrderTest(t *testing.T) {
	seen := make(chan wsCapture, 1)
	url := newWSAPIServer(t, func(req wsRequest) string {
		return `{"id":"` + req.ID + `","status":200,"result":{}}`
	}, seen)
	c := startWSClient(t, url)

	leg, err := c.PlaceMarketOrder(context.Background(), domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.SideBuy, QuoteQty: d("100"), DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if leg.Status != domain.LegTestSuccess {
		t.Fatalf("status = %s", leg.Status)
	}
	if got := <-seen; got.Method != "order.test" || got.Params["quoteOrderQty"] != "100" {
		t.Fatalf("request = %+v", got)
	}
}

func TestWSOrderNotConnected(t *testing.T) {
	c := NewWSOrderClient(WSOrderConfig{URL: "ws://127.0.0.1:1"}, discardLogger())
	_, err := c.PlaceMarketOrder(context.Background(), domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.SideBuy, QuoteQty: d("1")})
	if !errors.Is(err, domain.ErrWSDisconnect) || !errors.Is(err, domain.ErrOrderNotSent) {
		t.Fatalf("err = %v", err)
	}
}

func TestWSOrderTimeout(t *testing.T) {
	url := newWSAPIServer(t, func(req wsRequest) string {
		return `{"id":"someone-else","status":200,"result":{}}`
	}, nil)
	c := startWSClient(t, url)
	c.timeout = 50 * time.Millisecond

	_, err := c.PlaceMarketOrder(context.Background(), domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.SideBuy, QuoteQty: d("1")})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if errors.Is(err, domain.ErrOrderNotSent) {
		t.Fatalf("a request already written must not report not sent: %v", err)
	}
}
