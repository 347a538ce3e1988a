package journal

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// Redis names used for mirrored events.
const (
	DefaultStream  = "triarb:events"
	DefaultChannel = "triarb:live"
)

const (
	defaultQueueSize = 1024
	drainTimeout     = 5 * time.Second
	sinkTimeout      = 3 * time.Second
	eventOpportunity = "opportunity"
	eventTrade       = "trade"
	eventSuppressed  = "suppressed"
)

// OpportunityEntry is one line of the opportunities journal.
type OpportunityEntry struct {
	domain.PromotedOpportunity
	ProfitPercent decimal.Decimal `json:"profit_percent"`
	Suppressed    bool            `json:"suppressed"`
}

// Event is the envelope appended to the Redis stream.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

type record struct {
	kind  string
	at    time.Time
	opp   *OpportunityEntry
	trade *domain.TradeResult
}

// RecorderConfig wires the optional sinks. Every field may be nil.
type RecorderConfig struct {
	Files         *FileJournal
	Bus           domain.EventBus
	Trades        domain.TradeStore
	Opportunities domain.OpportunityStore
	Stream        string
	Channel       string
	QueueSize     int
}

// Recorder fans journal records out to every configured sink from a single
// goroutine. Record calls never block; sink failures are logged.
type Recorder struct {
	cfg     RecorderConfig
	queue   chan record
	dropped atomic.Int64
	written atomic.Int64
	logger  *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Recorder{
		cfg:    cfg,
		queue:  make(chan record, cfg.QueueSize),
		logger: logger.With(slog.String("component", "journal")),
	}
}

// RecordOpportunity queues a promoted opportunity for every sink.
func (r *Recorder) RecordOpportunity(opp domain.PromotedOpportunity) {
	if opp.Anomaly {
		r.logger.Warn("anomalous opportunity",
			slog.String("path", opp.PathString()),
			slog.String("profit_pct", opp.ProfitPercent().StringFixed(4)),
			slog.String("id", opp.ID),
		)
	}
	r.enqueue(record{kind: eventOpportunity, at: opp.DetectedAt, opp: &OpportunityEntry{
		PromotedOpportunity: opp,
		ProfitPercent:       opp.ProfitPercent(),
	}})
}

// RecordSuppressed queues an opportunity held back by the cooldown. It only
// reaches the file journal.
func (r *Recorder) RecordSuppressed(opp domain.Opportunity) {
	r.enqueue(record{kind: eventSuppressed, at: opp.DetectedAt, opp: &OpportunityEntry{
		PromotedOpportunity: domain.PromotedOpportunity{Opportunity: opp},
		ProfitPercent:       opp.ProfitPercent(),
		Suppressed:          true,
	}})
}

// RecordTrade queues a trade result for every sink.
func (r *Recorder) RecordTrade(res domain.TradeResult) {
	at := res.StartedAt.Add(res.Duration)
	r.enqueue(record{kind: eventTrade, at: at, trade: &res})
}

func (r *Recorder) enqueue(rec record) {
	if rec.at.IsZero() {
		rec.at = time.Now()
	}
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		r.logger.Warn("journal queue full, dropping record", slog.String("kind", rec.kind))
	}
}

// Dropped returns how many records were discarded on a full queue.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Written returns how many records were processed.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Run writes queued records until ctx is cancelled, then drains what is left
// within a short grace period.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec record) {
	defer r.written.Add(1)

	var (
		fileKind string
		payload  any
	)
	switch {
	case rec.opp != nil:
		fileKind, payload = KindOpportunities, rec.opp
	case rec.trade != nil:
		fileKind, payload = KindTrades, rec.trade
	default:
		return
	}

	if r.cfg.Files != nil {
		if err := r.cfg.Files.Append(fileKind, rec.at, payload); err != nil {
			r.logger.Error("file journal write failed", slog.String("error", err.Error()))
		}
	}
	if rec.kind == eventSuppressed {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if r.cfg.Bus != nil {
		r.publish(sctx, Event{Type: rec.kind, At: rec.at.UTC(), Data: payload})
	}

	switch {
	case rec.opp != nil && r.cfg.Opportunities != nil:
		if err := r.cfg.Opportunities.Save(sctx, rec.opp.PromotedOpportunity); err != nil {
			r.logger.Error("opportunity store failed",
				slog.String("id", rec.opp.ID),
				slog.String("error", err.Error()),
			)
		}
	case rec.trade != nil && r.cfg.Trades != nil:
		if err := r.cfg.Trades.Save(sctx, *rec.trade); err != nil {
			r.logger.Error("trade store failed",
				slog.String("id", rec.trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Recorder) publish(ctx context.Context, ev Event) {
	raw, err := sonnet.Marshal(ev)
	if err != nil {
		r.logger.Error("encode event failed", slog.String("error", err.Error()))
		return
	}
	if err := r.cfg.Bus.StreamAppend(ctx, r.cfg.Stream, raw); err != nil {
		r.logger.Warn("event stream append failed", slog.String("error", err.Error()))
	}
	if err := r.cfg.Bus.Publish(ctx, r.cfg.Channel, raw); err != nil {
		r.logger.Warn("event publish failed", slog.String("error", err.Error()))
	}
}
