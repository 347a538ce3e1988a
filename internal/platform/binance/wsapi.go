package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/triarbot/internal/crypto"
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 5 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

type wsRequest struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type wsError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

type wsResponse struct {
	ID     string      `json:"id"`
	Status int         `json:"status"`
	Result orderResult `json:"result"`
	Error  *wsError    `json:"error"`
}

// WSOrderClient places orders over the exchange WebSocket API. It keeps one
// connection open and matches responses to requests by id.
type WSOrderClient struct {
	url     string
	auth    *crypto.HMACAuth
	assets  AssetLookup
	timeout time.Duration
	logger  *slog.Logger

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool

	pendingMu sync.Mutex
	pending   map[string]chan wsResponse
}

// WSOrderConfig configures the WebSocket order client.
type WSOrderConfig struct {
	URL            string
	APIKey         string
	APISecret      string
	RequestTimeout time.Duration
	Assets         AssetLookup
}

// NewWSOrderClient creates a client. Run must be started before orders can
// be placed.
func NewWSOrderClient(cfg WSOrderConfig, logger *slog.Logger) *WSOrderClient {
	url := cfg.URL
	if url == "" {
		url = DefaultWSAPIURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WSOrderClient{
		url:     url,
		auth:    &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret},
		assets:  cfg.Assets,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "binance_ws_api")),
		pending: make(map[string]chan wsResponse),
	}
}

// Name identifies the channel in leg results.
func (c *WSOrderClient) Name() string { return "websocket" }

// Connected reports whether the connection is currently open.
func (c *WSOrderClient) Connected() bool { return c.connected.Load() }

// Run keeps the connection open until ctx is cancelled, reconnecting with
// exponential backoff.
func (c *WSOrderClient) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := c.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("websocket api disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *WSOrderClient) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("binance/wsapi: connect: %w", err)
	}
	defer func() {
		c.connected.Store(false)
		c.failPending()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// The server pings every few minutes; gorilla answers with a pong by default.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.connected.Store(true)
	c.logger.Info("websocket api connected", slog.String("url", c.url))

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.pingLoop(connCtx, conn)
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(message)
	}
}

func (c *WSOrderClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *WSOrderClient) handleMessage(raw []byte) {
	var resp wsResponse
	if err := sonnet.Unmarshal(raw, &resp); err != nil {
		c.logger.Debug("undecodable websocket api message", slog.String("error", err.Error()))
		return
	}
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.pendingMu.Unlock()
	if ok {
		ch <- resp
	}
}

// failPending wakes every waiter after the connection drops.
func (c *WSOrderClient) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// PlaceMarketOrder sends order.place (order.test for dry runs) and waits for
// the matching response. Exchange rejections return an API_ERROR leg with a
// nil error; connection problems and timeouts return an error. Errors raised
// before the request reached the socket wrap domain.ErrOrderNotSent; any
// other error leaves the order outcome unknown.
func (c *WSOrderClient) PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.TradeLegResult, error) {
	leg := domain.TradeLegResult{Symbol: req.Symbol, Side: req.Side, Quantity: req.Quantity, QuoteQty: req.QuoteQty}
	if !c.Connected() {
		return leg, fmt.Errorf("binance/wsapi: %w: %w", domain.ErrOrderNotSent, domain.ErrWSDisconnect)
	}

	method := "order.place"
	if req.DryRun {
		method = "order.test"
	}
	wreq, err := c.buildRequest(method, req, time.Now().UnixMilli())
	if err != nil {
		return leg, fmt.Errorf("%w: %w", domain.ErrOrderNotSent, err)
	}
	data, err := sonnet.Marshal(wreq)
	if err != nil {
		return leg, fmt.Errorf("binance/wsapi: %w: marshal: %w", domain.ErrOrderNotSent, err)
	}

	ch := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[wreq.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, wreq.ID)
		c.pendingMu.Unlock()
	}()

	began := time.Now()
	c.writeMu.Lock()
	conn := c.conn
	if conn == nil {
		c.writeMu.Unlock()
		return leg, fmt.Errorf("binance/wsapi: %w: %w", domain.ErrOrderNotSent, domain.ErrWSDisconnect)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return leg, fmt.Errorf("binance/wsapi: %w: send: %w", domain.ErrOrderNotSent, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return leg, fmt.Errorf("binance/wsapi: %w", domain.ErrWSDisconnect)
		}
		return c.toLeg(req, resp, time.Since(began)), nil
	case <-timer.C:
		return leg, fmt.Errorf("binance/wsapi: no response to %s within %s", wreq.ID, c.timeout)
	case <-ctx.Done():
		return leg, ctx.Err()
	}
}

func (c *WSOrderClient) buildRequest(method string, req domain.OrderRequest, nowMillis int64) (wsRequest, error) {
	params := map[string]string{
		"symbol":           req.Symbol,
		"side":             string(req.Side),
		"type":             "MARKET",
		"newOrderRespType": "FULL",
	}
	switch {
	case req.QuoteQty.IsPositive():
		params["quoteOrderQty"] = req.QuoteQty.String()
	case req.Quantity.IsPositive():
		params["quantity"] = req.Quantity.String()
	default:
		return wsRequest{}, fmt.Errorf("binance/wsapi: %s order without quantity", req.Symbol)
	}
	signed := c.auth.SignParamsAt(params, nowMillis)

	out := make(map[string]any, len(signed))
	for k, v := range signed {
		out[k] = v
	}
	out["timestamp"], _ = strconv.ParseInt(signed["timestamp"], 10, 64)
	return wsRequest{ID: uuid.NewString(), Method: method, Params: out}, nil
}

func (c *WSOrderClient) toLeg(req domain.OrderRequest, resp wsResponse, elapsed time.Duration) domain.TradeLegResult {
	if resp.Error != nil || resp.Status != 200 {
		leg := domain.TradeLegResult{
			Status:        domain.LegAPIError,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Quantity:      req.Quantity,
			ExecutionTime: elapsed,
		}
		if resp.Error != nil {
			leg.Error = fmt.Sprintf("code %d: %s", resp.Error.Code, resp.Error.Msg)
		} else {
			leg.Error = fmt.Sprintf("status %d", resp.Status)
		}
		c.logger.Warn("order rejected",
			slog.String("symbol", req.Symbol),
			slog.String("side", string(req.Side)),
			slog.String("error", leg.Error),
		)
		return leg
	}
	if req.DryRun {
		return domain.TradeLegResult{
			Status:        domain.LegTestSuccess,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Quantity:      req.Quantity,
			QuoteQty:      req.QuoteQty,
			ExecutionTime: elapsed,
		}
	}
	leg := resp.Result.toLegResult(req, lookupAssets(c.assets, req.Symbol))
	leg.ExecutionTime = elapsed
	return leg
}
