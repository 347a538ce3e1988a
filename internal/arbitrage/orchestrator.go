package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/market"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Phase is the orchestrator's position within an analysis cycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSnapshot  Phase = "snapshot"
	PhaseDispatch  Phase = "dispatch"
	PhaseCollect   Phase = "collect"
	PhaseAggregate Phase = "aggregate"
	PhaseDone      Phase = "done"
)

// PriceSource yields immutable price snapshots.
type PriceSource interface {
	Snapshot() domain.PriceSnapshot
	Len() int
}

// CycleReport is the outcome of one analysis cycle.
type CycleReport struct {
	Stats      CycleStats
	Promoted   []domain.PromotedOpportunity
	Suppressed []domain.Opportunity
}

// ReportHandler receives every completed cycle report.
type ReportHandler func(ctx context.Context, rep CycleReport)

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Registry         *market.Registry
	Prices           PriceSource
	Finder           *Finder
	Pool             *Pool
	Cooldown         *Cooldown
	Workers          int
	Interval         time.Duration
	CollectTimeout   time.Duration
	SafetyBuffer     decimal.Decimal
	AnomalyThreshold decimal.Decimal
	OnReport         ReportHandler
	Logger           *slog.Logger
}

// Orchestrator drives analysis cycles: it snapshots the market, fans the
// currency universe out over the worker pool, collects results under a
// deadline and applies the cooldown in a single aggregation step.
type Orchestrator struct {
	cfg       OrchestratorConfig
	logger    *slog.Logger
	phase     atomic.Value
	last      atomic.Pointer[CycleStats]
	cycles    atomic.Int64
	lowProfit atomic.Int64
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	o := &Orchestrator{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "orchestrator")),
		now:    time.Now,
	}
	o.phase.Store(PhaseIdle)
	return o
}

// Run executes a cycle on every tick until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("analysis orchestrator started",
		slog.Int("workers", o.cfg.Workers),
		slog.Duration("interval", o.cfg.Interval),
		slog.Duration("collect_timeout", o.cfg.CollectTimeout),
	)
	defer o.logger.Info("analysis orchestrator stopped")

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rep, err := o.RunCycle(ctx)
			if errors.Is(err, domain.ErrRegistryEmpty) {
				o.logger.Info("symbol registry not ready, waiting")
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.logger.Error("analysis cycle failed", slog.String("error", err.Error()))
				continue
			}
			if o.cfg.OnReport != nil {
				o.cfg.OnReport(ctx, rep)
			}
			if o.cycles.Load()%100 == 0 {
				o.cfg.Cooldown.Prune(o.now())
			}
		}
	}
}

// RunCycle performs one analysis cycle. It returns domain.ErrRegistryEmpty
// and stays idle when no symbols are loaded.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	if !o.cfg.Registry.Ready() {
		o.phase.Store(PhaseIdle)
		return CycleReport{}, domain.ErrRegistryEmpty
	}
	start := o.now()

	o.phase.Store(PhaseSnapshot)
	reg := o.cfg.Registry.Snapshot()
	in := &CycleInput{
		Prices:     o.cfg.Prices.Snapshot(),
		Registry:   reg,
		Graph:      BuildGraph(reg),
		Currencies: reg.Currencies(),
	}

	workers := o.cfg.Workers
	if size := o.cfg.Pool.Size(); workers > size {
		workers = size
	}
	chunks := Partition(in.Currencies, workers)

	o.phase.Store(PhaseDispatch)
	dctx, cancel := context.WithTimeout(ctx, o.cfg.CollectTimeout)
	defer cancel()

	// Buffered so a worker finishing after the deadline never blocks.
	results := make(chan ChunkResult, len(chunks))
	dispatched := 0
	for _, chunk := range chunks {
		err := o.cfg.Pool.Submit(dctx, func() {
			results <- o.cfg.Finder.FindInChunk(in, chunk)
		})
		if err != nil {
			break
		}
		dispatched++
	}

	o.phase.Store(PhaseCollect)
	agg := NewStats()
	var found []domain.Opportunity
	reported := 0
collect:
	for reported < dispatched {
		select {
		case r := <-results:
			agg.Merge(r.Stats)
			found = append(found, r.Opportunities...)
			reported++
		case <-dctx.Done():
			break collect
		}
	}
	if ctx.Err() != nil {
		o.phase.Store(PhaseIdle)
		return CycleReport{}, fmt.Errorf("orchestrator: cycle: %w", ctx.Err())
	}
	timedOut := reported < len(chunks)
	if timedOut {
		o.logger.Warn("analysis collection deadline elapsed, abandoning late results",
			slog.Int("reported", reported),
			slog.Int("chunks", len(chunks)),
			slog.Duration("timeout", o.cfg.CollectTimeout),
		)
	}

	o.phase.Store(PhaseAggregate)
	rep := o.aggregate(found, in, start)
	rep.Stats.Stats = agg
	rep.Stats.Duration = o.now().Sub(start)
	rep.Stats.Workers = len(chunks)
	rep.Stats.WorkersReported = reported
	rep.Stats.TimedOut = timedOut
	rep.Stats.Symbols = reg.Len()
	rep.Stats.Books = len(in.Prices)
	rep.Stats.FinishedAt = o.now()

	o.cycles.Add(1)
	o.lowProfit.Add(agg.LowProfitPositive)
	stats := rep.Stats
	o.last.Store(&stats)
	o.logCycle(stats)
	o.phase.Store(PhaseDone)
	return rep, nil
}

// aggregate applies the cooldown to every found opportunity. It is the only
// place the cooldown table is read and written.
func (o *Orchestrator) aggregate(found []domain.Opportunity, in *CycleInput, detectedAt time.Time) CycleReport {
	var rep CycleReport
	now := o.now()
	for _, opp := range found {
		opp.DetectedAt = detectedAt
		if !o.cfg.Cooldown.Admit(opp.Key(), now) {
			rep.Suppressed = append(rep.Suppressed, opp)
			continue
		}
		opp.ID = uuid.NewString()
		inv := MaxInvestable(opp, in.Prices, in.Registry, o.cfg.SafetyBuffer, o.cfg.Finder.Sim)
		rep.Promoted = append(rep.Promoted, domain.PromotedOpportunity{
			Opportunity:  opp,
			Investable:   inv.Amount,
			LegCapacity:  inv.LegCapacity,
			VisibleQty:   inv.Visible,
			Anomaly:      o.cfg.AnomalyThreshold.IsPositive() && opp.ProfitFraction().GreaterThan(o.cfg.AnomalyThreshold),
			LifetimeSeen: o.cfg.Cooldown.Found(),
		})
	}
	rep.Stats.Promoted = len(rep.Promoted)
	rep.Stats.Suppressed = len(rep.Suppressed)
	return rep
}

func (o *Orchestrator) logCycle(s CycleStats) {
	if !s.Detailed() {
		o.logger.Info("analysis cycle complete",
			slog.Duration("duration", s.Duration),
			slog.Int64("triangles", s.TotalTriangles),
			slog.Int("opportunities", s.Opportunities),
		)
		return
	}

	failures := make([]any, 0, len(FailReasons))
	for _, r := range FailReasons {
		failures = append(failures, slog.Int64(string(r), s.Failures[r]))
	}
	o.logger.Info("analysis cycle statistics",
		slog.Duration("duration", s.Duration),
		slog.Int64("triangles", s.TotalTriangles),
		slog.Int64("non_priority_start", s.NonPriorityStart),
		slog.Int64("simulation_failures", s.FailureTotal()),
		slog.Group("failures", failures...),
		slog.Int64("low_profit_negative", s.LowProfitNegative),
		slog.Int64("low_profit_positive", s.LowProfitPositive),
		slog.Int("opportunities", s.Opportunities),
		slog.Int("promoted", s.Promoted),
		slog.Int("suppressed", s.Suppressed),
		slog.Int("workers_reported", s.WorkersReported),
		slog.Int("workers", s.Workers),
	)
}

// Phase returns the current cycle phase.
func (o *Orchestrator) Phase() Phase {
	return o.phase.Load().(Phase)
}

// LastCycle returns the statistics of the most recent completed cycle.
func (o *Orchestrator) LastCycle() (CycleStats, bool) {
	s := o.last.Load()
	if s == nil {
		return CycleStats{}, false
	}
	return *s, true
}

// Cycles returns the number of completed cycles.
func (o *Orchestrator) Cycles() int64 {
	return o.cycles.Load()
}

// LowProfitPositiveTotal returns the lifetime count of positive but
// below-threshold triangles.
func (o *Orchestrator) LowProfitPositiveTotal() int64 {
	return o.lowProfit.Load()
}

// Found returns the lifetime number of promoted opportunities.
func (o *Orchestrator) Found() int64 {
	return o.cfg.Cooldown.Found()
}
