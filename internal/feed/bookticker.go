// Package feed keeps the price cache current from the exchange's book
// ticker streams.
package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/metrics"
	"github.com/alanyoungcy/triarbot/internal/platform/binance"
	"golang.org/x/sync/errgroup"
)

// PriceSink receives every decoded price update.
type PriceSink interface {
	Update(u domain.PriceUpdate)
	Len() int
}

// Stream is one open market data connection.
type Stream interface {
	ReadLoop(ctx context.Context, handle func(domain.PriceUpdate), onBad func(error)) error
	Close() error
}

// Dialer opens a connection carrying the given stream names.
type Dialer func(ctx context.Context, streams []string) (Stream, error)

// BinanceDialer dials combined streams at baseURL.
func BinanceDialer(baseURL string) Dialer {
	return func(ctx context.Context, streams []string) (Stream, error) {
		return binance.DialStream(ctx, baseURL, streams)
	}
}

// Config tunes the feed.
type Config struct {
	GroupSize      int
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	HealthInterval time.Duration
}

// BookTickerFeed splits the subscribed streams into groups, one connection
// per group, and reconnects each group independently with exponential
// backoff.
type BookTickerFeed struct {
	streams []string
	dial    Dialer
	sink    PriceSink
	cfg     Config
	logger  *slog.Logger

	received  atomic.Int64
	connected atomic.Int32
}

// NewBookTickerFeed creates a feed for the given stream names.
func NewBookTickerFeed(streams []string, dial Dialer, sink PriceSink, cfg Config, logger *slog.Logger) *BookTickerFeed {
	if cfg.GroupSize <= 0 || cfg.GroupSize > binance.MaxStreamsPerConnection {
		cfg.GroupSize = binance.MaxStreamsPerConnection
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 15 * time.Second
	}
	return &BookTickerFeed{
		streams: streams,
		dial:    dial,
		sink:    sink,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "bookticker_feed")),
	}
}

// Groups returns the stream names split by connection.
func (f *BookTickerFeed) Groups() [][]string {
	var groups [][]string
	for start := 0; start < len(f.streams); start += f.cfg.GroupSize {
		end := start + f.cfg.GroupSize
		if end > len(f.streams) {
			end = len(f.streams)
		}
		groups = append(groups, f.streams[start:end])
	}
	return groups
}

// Received returns the number of updates applied so far.
func (f *BookTickerFeed) Received() int64 { return f.received.Load() }

// Connected returns the number of open connections.
func (f *BookTickerFeed) Connected() int { return int(f.connected.Load()) }

// Run keeps every group connected until ctx is cancelled.
func (f *BookTickerFeed) Run(ctx context.Context) error {
	groups := f.Groups()
	if len(groups) == 0 {
		f.logger.Info("no streams to subscribe, exiting")
		return nil
	}
	f.logger.Info("market data feed starting",
		slog.Int("streams", len(f.streams)),
		slog.Int("connections", len(groups)),
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		g.Go(func() error { return f.runGroup(ctx, i, group) })
	}
	g.Go(func() error { return f.healthLoop(ctx) })
	return g.Wait()
}

func (f *BookTickerFeed) runGroup(ctx context.Context, idx int, streams []string) error {
	log := f.logger.With(slog.Int("group", idx), slog.Int("streams", len(streams)))
	delay := f.cfg.MinBackoff
	for {
		began := time.Now()
		err := f.runConnection(ctx, log, streams)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A connection that stayed up for a while starts the backoff over.
		if time.Since(began) > f.cfg.MaxBackoff {
			delay = f.cfg.MinBackoff
		}
		log.Warn("market data stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.cfg.MaxBackoff {
			delay = f.cfg.MaxBackoff
		}
	}
}

func (f *BookTickerFeed) runConnection(ctx context.Context, log *slog.Logger, streams []string) error {
	conn, err := f.dial(ctx, streams)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.connected.Add(1)
	metrics.FeedConnections.Inc()
	defer func() {
		f.connected.Add(-1)
		metrics.FeedConnections.Dec()
	}()
	log.Info("market data stream connected")

	return conn.ReadLoop(ctx, func(u domain.PriceUpdate) {
		f.sink.Update(u)
		f.received.Add(1)
		metrics.PriceUpdatesTotal.Inc()
	}, func(err error) {
		log.Debug("skipping undecodable stream message", slog.String("error", err.Error()))
	})
}

func (f *BookTickerFeed) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.HealthInterval)
	defer ticker.Stop()
	last := f.received.Load()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := f.received.Load()
			rate := float64(now-last) / f.cfg.HealthInterval.Seconds()
			status := "streaming"
			if now == last {
				status = "idle"
			}
			last = now
			f.logger.Info("market data feed health",
				slog.String("status", status),
				slog.Float64("msgs_per_sec", rate),
				slog.Int64("total", now),
				slog.Int("cached_books", f.sink.Len()),
				slog.Int("connections", f.Connected()),
			)
		}
	}
}
