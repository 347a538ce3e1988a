package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

type blockingTrader struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTrader) Execute(ctx context.Context, data domain.TradingData) domain.TradeResult {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return domain.TradeResult{ID: data.OpportunityID, Status: domain.TradeSuccess}
	case <-ctx.Done():
		return domain.TradeResult{ID: data.OpportunityID, Status: domain.TradeFailed, Err: ctx.Err()}
	}
}

func TestLaneQueuesAtMostOne(t *testing.T) {
	trader := &blockingTrader{started: make(chan struct{}, 4), release: make(chan struct{})}
	results := make(chan domain.TradeResult, 4)
	lane := NewLane(trader, time.Minute, func(_ context.Context, r domain.TradeResult) { results <- r }, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lane.Run(ctx)

	if !lane.Submit(domain.TradingData{OpportunityID: "a"}) {
		t.Fatal("first submit rejected")
	}
	<-trader.started
	if !lane.Submit(domain.TradingData{OpportunityID: "b"}) {
		t.Fatal("second submit should queue")
	}
	if lane.Submit(domain.TradingData{OpportunityID: "c"}) {
		t.Fatal("third submit should be dropped while one is queued")
	}

	close(trader.release)
	for _, want := range []string{"a", "b"} {
		select {
		case r := <-results:
			if r.ID != want {
				t.Fatalf("result %s, want %s", r.ID, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestLaneAppliesTradeTimeout(t *testing.T) {
	trader := &blockingTrader{started: make(chan struct{}, 1), release: make(chan struct{})}
	results := make(chan domain.TradeResult, 1)
	lane := NewLane(trader, 20*time.Millisecond, func(_ context.Context, r domain.TradeResult) { results <- r }, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lane.Run(ctx)

	lane.Submit(domain.TradingData{OpportunityID: "slow"})
	select {
	case r := <-results:
		if !errors.Is(r.Err, domain.ErrTradeTimeout) {
			t.Fatalf("err = %v", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trade was not cut off by the timeout")
	}
}

func TestLaneStopsOnCancel(t *testing.T) {
	lane := NewLane(&blockingTrader{}, time.Second, nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lane.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lane did not stop")
	}
}

func TestLaneDropsQueuedTradeOlderThanMaxAge(t *testing.T) {
	trader := &blockingTrader{started: make(chan struct{}, 4), release: make(chan struct{})}
	results := make(chan domain.TradeResult, 4)
	lane := NewLane(trader, time.Minute, func(_ context.Context, r domain.TradeResult) { results <- r }, discardLogger()).
		WithMaxAge(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lane.Run(ctx)

	lane.Submit(domain.TradingData{OpportunityID: "running", Timestamp: time.Now()})
	<-trader.started
	lane.Submit(domain.TradingData{OpportunityID: "stale", Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)
	close(trader.release)

	if r := <-results; r.ID != "running" {
		t.Fatalf("first result %s", r.ID)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !lane.Submit(domain.TradingData{OpportunityID: "fresh", Timestamp: time.Now()}) {
		if time.Now().After(deadline) {
			t.Fatal("stale trade never left the queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case r := <-results:
		if r.ID != "fresh" {
			t.Fatalf("result %s, want fresh (stale trade must be skipped)", r.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fresh trade never ran")
	}
}
