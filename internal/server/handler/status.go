package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/triarbot/internal/arbitrage"
	"github.com/alanyoungcy/triarbot/internal/executor"
)

// CycleSource exposes the detection loop's progress.
type CycleSource interface {
	Phase() arbitrage.Phase
	LastCycle() (arbitrage.CycleStats, bool)
	Cycles() int64
	Found() int64
	LowProfitPositiveTotal() int64
}

// FeedSource exposes market data connection counters.
type FeedSource interface {
	Connected() int
	Received() int64
}

// PriceSource exposes the price cache size.
type PriceSource interface {
	Len() int
	Updates() uint64
}

// TradeSource exposes execution counters.
type TradeSource interface {
	Stats() executor.Stats
}

// RouterSource exposes the order router's channel state.
type RouterSource interface {
	Stats() executor.RouterStats
}

// DropCounter reports how many queued items were discarded.
type DropCounter interface {
	Dropped() int64
}

// StatusSources groups everything GetStatus reports on. Trades and Router are
// nil in monitor mode; Notifier and Journal are nil when disabled.
type StatusSources struct {
	Mode     string
	DryRun   bool
	Symbols  func() int
	Cycles   CycleSource
	Feed     FeedSource
	Prices   PriceSource
	Trades   TradeSource
	Router   RouterSource
	Notifier DropCounter
	Journal  DropCounter
}

// StatusHandler serves the runtime status of the bot.
type StatusHandler struct {
	src     StatusSources
	started time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(src StatusSources) *StatusHandler {
	return &StatusHandler{src: src, started: time.Now()}
}

type cycleStatus struct {
	Phase                  arbitrage.Phase       `json:"phase"`
	Completed              int64                 `json:"completed"`
	OpportunitiesFound     int64                 `json:"opportunities_found"`
	LowProfitPositiveTotal int64                 `json:"low_profit_positive_total"`
	Last                   *arbitrage.CycleStats `json:"last,omitempty"`
}

type marketStatus struct {
	Symbols         int    `json:"symbols"`
	Books           int    `json:"books"`
	PriceUpdates    uint64 `json:"price_updates"`
	FeedConnections int    `json:"feed_connections"`
	FeedMessages    int64  `json:"feed_messages"`
}

type statusResponse struct {
	Mode            string                `json:"mode"`
	DryRun          bool                  `json:"dry_run"`
	Uptime          string                `json:"uptime"`
	Market          marketStatus          `json:"market"`
	Cycle           cycleStatus           `json:"cycle"`
	Trading         *executor.Stats       `json:"trading,omitempty"`
	Router          *executor.RouterStats `json:"router,omitempty"`
	DroppedMessages map[string]int64      `json:"dropped,omitempty"`
}

// GetStatus responds with cycle, market data and execution counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	s := h.src
	resp := statusResponse{
		Mode:   s.Mode,
		DryRun: s.DryRun,
		Uptime: time.Since(h.started).Round(time.Second).String(),
	}
	if s.Symbols != nil {
		resp.Market.Symbols = s.Symbols()
	}
	if s.Prices != nil {
		resp.Market.Books = s.Prices.Len()
		resp.Market.PriceUpdates = s.Prices.Updates()
	}
	if s.Feed != nil {
		resp.Market.FeedConnections = s.Feed.Connected()
		resp.Market.FeedMessages = s.Feed.Received()
	}
	if s.Cycles != nil {
		resp.Cycle = cycleStatus{
			Phase:                  s.Cycles.Phase(),
			Completed:              s.Cycles.Cycles(),
			OpportunitiesFound:     s.Cycles.Found(),
			LowProfitPositiveTotal: s.Cycles.LowProfitPositiveTotal(),
		}
		if last, ok := s.Cycles.LastCycle(); ok {
			resp.Cycle.Last = &last
		}
	}
	if s.Trades != nil {
		st := s.Trades.Stats()
		resp.Trading = &st
	}
	if s.Router != nil {
		rs := s.Router.Stats()
		resp.Router = &rs
	}
	if s.Notifier != nil || s.Journal != nil {
		resp.DroppedMessages = make(map[string]int64, 2)
		if s.Notifier != nil {
			resp.DroppedMessages["notifications"] = s.Notifier.Dropped()
		}
		if s.Journal != nil {
			resp.DroppedMessages["journal"] = s.Journal.Dropped()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
