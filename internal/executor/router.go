package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// OrderChannel places spot market orders over one transport. A returned
// error means the channel itself failed; an exchange rejection is reported
// through the result status with a nil error.
type OrderChannel interface {
	PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.TradeLegResult, error)
	Name() string
}

// LowLatencyChannel is an OrderChannel that can report its connection state.
type LowLatencyChannel interface {
	OrderChannel
	Connected() bool
}

// RouterStats is a point-in-time view of the router for status reporting.
type RouterStats struct {
	WebsocketEnabled   bool   `json:"websocket_enabled"`
	WebsocketConnected bool   `json:"websocket_connected"`
	WebsocketFailures  int    `json:"websocket_failures"`
	MethodPreference   string `json:"method_preference"`
	LowLatencyOrders   int64  `json:"low_latency_orders"`
	FallbackOrders     int64  `json:"fallback_orders"`
}

// HybridRouter sends orders over the low-latency channel while it is
// preferred and connected, and over the fallback channel otherwise. After
// threshold consecutive low-latency failures the preference is cleared and
// stays cleared until Enable is called.
type HybridRouter struct {
	fast      LowLatencyChannel
	fallback  OrderChannel
	threshold int
	logger    *slog.Logger

	mu       sync.Mutex
	prefer   bool
	failures int

	fastOrders     atomic.Int64
	fallbackOrders atomic.Int64
}

// NewHybridRouter creates a router. fast may be nil, in which case every
// order goes to fallback.
func NewHybridRouter(fast LowLatencyChannel, fallback OrderChannel, threshold int, preferFast bool, logger *slog.Logger) *HybridRouter {
	if threshold < 1 {
		threshold = 3
	}
	return &HybridRouter{
		fast:      fast,
		fallback:  fallback,
		threshold: threshold,
		prefer:    preferFast && fast != nil,
		logger:    logger.With(slog.String("component", "order_router")),
	}
}

// PlaceMarketOrder routes one order. A low-latency failure falls through to
// the fallback channel for the same call only when the order never left
// (domain.ErrOrderNotSent). Any other low-latency error is returned as is:
// the exchange may have filled the order and a resend could fill it twice.
func (r *HybridRouter) PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.TradeLegResult, error) {
	if r.useFast() {
		res, err := r.fast.PlaceMarketOrder(ctx, req)
		if err == nil {
			r.mu.Lock()
			r.failures = 0
			r.mu.Unlock()
			r.fastOrders.Add(1)
			res.Method = r.fast.Name()
			return res, nil
		}
		sent := !errors.Is(err, domain.ErrOrderNotSent)
		r.recordFailure(err, sent)
		if sent {
			r.fastOrders.Add(1)
			res.Method = r.fast.Name()
			return res, err
		}
	}

	if r.fallback == nil {
		return domain.TradeLegResult{}, domain.ErrClientNotReady
	}
	res, err := r.fallback.PlaceMarketOrder(ctx, req)
	r.fallbackOrders.Add(1)
	res.Method = r.fallback.Name()
	return res, err
}

func (r *HybridRouter) useFast() bool {
	r.mu.Lock()
	prefer := r.prefer
	r.mu.Unlock()
	return prefer && r.fast != nil && r.fast.Connected()
}

func (r *HybridRouter) recordFailure(err error, sent bool) {
	r.mu.Lock()
	r.failures++
	failures := r.failures
	disabled := false
	if r.prefer && failures >= r.threshold {
		r.prefer = false
		disabled = true
	}
	r.mu.Unlock()

	msg := "low-latency order channel failed, using fallback"
	if sent {
		msg = "low-latency order outcome unknown, not resending"
	}
	r.logger.Warn(msg,
		slog.Int("failures", failures),
		slog.Int("threshold", r.threshold),
		slog.String("error", err.Error()),
	)
	if disabled {
		r.logger.Warn("too many low-latency failures, switching to fallback channel until re-enabled")
	}
}

// Enable restores the low-latency preference and clears the failure count.
func (r *HybridRouter) Enable() {
	r.mu.Lock()
	r.prefer = r.fast != nil
	r.failures = 0
	r.mu.Unlock()
}

// Stats returns the router state.
func (r *HybridRouter) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RouterStats{
		WebsocketEnabled:  r.prefer,
		WebsocketFailures: r.failures,
		MethodPreference:  "rest_api",
		LowLatencyOrders:  r.fastOrders.Load(),
		FallbackOrders:    r.fallbackOrders.Load(),
	}
	if r.fast != nil {
		st.WebsocketConnected = r.fast.Connected()
	}
	if r.prefer {
		st.MethodPreference = "websocket"
	}
	return st
}
