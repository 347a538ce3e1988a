package app

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/triarbot/internal/arbitrage"
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/journal"
	"github.com/alanyoungcy/triarbot/internal/metrics"
	"github.com/alanyoungcy/triarbot/internal/notify"
)

// tradeSubmitter hands an opportunity to the trading lane.
type tradeSubmitter interface {
	Submit(data domain.TradingData) bool
}

// reporter turns cycle reports and trade results into journal records,
// notifications, metrics and trade submissions.
type reporter struct {
	recorder *journal.Recorder
	notifier *notify.Notifier
	lane     tradeSubmitter // nil unless trading
	budgets  arbitrage.Budgets
	fee      decimal.Decimal
	logger   *slog.Logger
}

func (r *reporter) onCycle(ctx context.Context, rep arbitrage.CycleReport) {
	observeCycle(rep.Stats)

	for _, opp := range rep.Suppressed {
		r.recorder.RecordSuppressed(opp)
	}
	for _, opp := range rep.Promoted {
		r.recorder.RecordOpportunity(opp)
		title, body := notify.FormatOpportunity(opp, r.fee)
		r.notifier.Post(notify.EventOpportunity, title, body)

		if r.lane == nil {
			continue
		}
		if opp.Anomaly {
			r.logger.WarnContext(ctx, "anomalous opportunity not traded",
				slog.String("path", opp.PathString()),
				slog.String("profit_pct", opp.ProfitPercent().StringFixed(4)),
			)
			continue
		}
		if budget := r.budgets.For(opp.StartAsset()); opp.Investable.LessThan(budget) {
			r.logger.DebugContext(ctx, "opportunity below trade budget capacity",
				slog.String("path", opp.PathString()),
				slog.String("investable", opp.Investable.String()),
				slog.String("budget", budget.String()),
			)
			continue
		}
		r.lane.Submit(opp.TradingData())
	}
}

func (r *reporter) onTrade(_ context.Context, res domain.TradeResult) {
	observeTrade(res)
	r.recorder.RecordTrade(res)
	event, title, body := notify.FormatTrade(res)
	r.notifier.Post(event, title, body)
}

func observeCycle(s arbitrage.CycleStats) {
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(s.Duration.Seconds())
	metrics.TrianglesTotal.Add(float64(s.TotalTriangles))
	for reason, n := range s.Failures {
		if n > 0 {
			metrics.SimulationFailures.WithLabelValues(string(reason)).Add(float64(n))
		}
	}
	metrics.OpportunitiesTotal.WithLabelValues("promoted").Add(float64(s.Promoted))
	metrics.OpportunitiesTotal.WithLabelValues("suppressed").Add(float64(s.Suppressed))
}

func observeTrade(res domain.TradeResult) {
	metrics.TradesTotal.WithLabelValues(string(res.Status)).Inc()
	for _, leg := range res.Legs {
		metrics.OrdersTotal.WithLabelValues(leg.Method, string(leg.Status)).Inc()
	}
	if res.Liquidation != nil {
		metrics.OrdersTotal.WithLabelValues(res.Liquidation.Method, string(res.Liquidation.Status)).Inc()
	}
}
