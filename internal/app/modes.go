package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/triarbot/internal/arbitrage"
	"github.com/alanyoungcy/triarbot/internal/crypto"
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/executor"
	"github.com/alanyoungcy/triarbot/internal/feed"
	"github.com/alanyoungcy/triarbot/internal/journal"
	"github.com/alanyoungcy/triarbot/internal/market"
	"github.com/alanyoungcy/triarbot/internal/metrics"
	"github.com/alanyoungcy/triarbot/internal/notify"
	"github.com/alanyoungcy/triarbot/internal/platform/binance"
	"github.com/alanyoungcy/triarbot/internal/server"
	"github.com/alanyoungcy/triarbot/internal/server/handler"
)

// MonitorMode detects and reports opportunities without placing orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.run(ctx, deps, false)
}

// TradeMode detects opportunities and, when auto trading is enabled, executes
// them on the trading lane.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	if !a.cfg.Trading.AutoTradeEnabled {
		a.logger.WarnContext(ctx, "trading.auto_trade_enabled is false; opportunities will be reported only")
	}
	return a.run(ctx, deps, a.cfg.Trades())
}

// trading bundles the execution side of trade mode.
type trading struct {
	ws       *binance.WSOrderClient
	router   *executor.HybridRouter
	executor *executor.Executor
	lane     *executor.Lane
}

func (a *App) run(ctx context.Context, deps *Dependencies, trade bool) error {
	started := time.Now()
	bcfg := a.cfg.Binance

	secret := bcfg.APISecret
	if trade {
		var err error
		secret, err = crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:           bcfg.APISecret,
			EncryptedSecretPath: bcfg.EncryptedSecretPath,
			Password:            bcfg.SecretPassword,
		})
		if err != nil {
			return fmt.Errorf("app: load api secret: %w", err)
		}
	}

	registry := market.NewRegistry()
	rest := binance.NewRESTClient(binance.RESTConfig{
		APIKey:    bcfg.APIKey,
		APISecret: secret,
		BaseURL:   bcfg.RESTURL,
		Testnet:   bcfg.Testnet,
		Timeout:   bcfg.RequestTimeout.Duration,
		Assets:    registry.Assets,
	}, a.logger)

	symbols, err := a.loadMarket(ctx, rest, registry)
	if err != nil {
		return err
	}

	prices := market.NewPriceCache()
	bookFeed := feed.NewBookTickerFeed(
		market.StreamNames(symbols),
		feed.BinanceDialer(bcfg.StreamURL),
		prices,
		feed.Config{GroupSize: bcfg.SymbolsPerConnection},
		a.logger,
	)

	recorder := journal.NewRecorder(journal.RecorderConfig{
		Files:         deps.Files,
		Bus:           deps.eventBus(),
		Trades:        deps.TradeStore,
		Opportunities: deps.OpportunityStore,
	}, a.logger)

	rep := &reporter{
		recorder: recorder,
		notifier: deps.Notifier,
		fee:      a.cfg.Arbitrage.Fee,
		logger:   a.logger,
	}

	var tr *trading
	if trade {
		tr = a.buildTrading(bcfg.APIKey, secret, rest, registry, deps, rep.onTrade)
		rep.lane = tr.lane
		rep.budgets = a.tradeBudgets()
	}

	orch, pool, err := a.buildOrchestrator(registry, prices, rep.onCycle)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return clean(bookFeed.Run(ctx)) })
	g.Go(func() error { return clean(pool.Run(ctx)) })
	g.Go(func() error { return clean(orch.Run(ctx)) })
	g.Go(func() error { recorder.Run(ctx); return nil })
	g.Go(func() error { deps.Notifier.Run(ctx); return nil })

	if tr != nil {
		g.Go(func() error { return clean(tr.ws.Run(ctx)) })
		g.Go(func() error { return clean(tr.lane.Run(ctx)) })
	}

	if deps.Blobs != nil {
		archiver := journal.NewArchiver(deps.Files, deps.Blobs, a.logger)
		g.Go(func() error { return clean(archiver.Run(ctx, a.cfg.Journal.ArchiveInterval.Duration)) })
	}

	g.Go(func() error {
		return clean(a.summaryLoop(ctx, started, orch, tr, deps.Notifier))
	})

	if a.cfg.Server.Enabled {
		srv := a.newServer(deps, registry, prices, bookFeed, orch, tr, recorder)
		g.Go(func() error { return srv.Run(ctx) })
	}

	title, body := notify.FormatStartup(a.cfg.Mode, len(symbols), countTriangles(registry, a.cfg.Arbitrage.StartingAssets), a.cfg.Trading.DryRun)
	deps.Notifier.Post(notify.EventStartup, title, body)

	return g.Wait()
}

// loadMarket fetches the exchange rules once and keeps only the symbols that
// can take part in a triangle through a starting asset.
func (a *App) loadMarket(ctx context.Context, rest *binance.RESTClient, registry *market.Registry) ([]domain.SymbolInfo, error) {
	all, err := rest.ExchangeInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: exchange info: %w", err)
	}
	symbols := market.SelectRelevant(all, a.cfg.Arbitrage.StartingAssets)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("app: no tradable symbols for starting assets %v: %w",
			a.cfg.Arbitrage.StartingAssets, domain.ErrRegistryEmpty)
	}
	registry.Load(symbols)
	a.logger.InfoContext(ctx, "symbol registry loaded",
		slog.Int("exchange_symbols", len(all)),
		slog.Int("selected", len(symbols)),
		slog.Int("currencies", len(registry.Snapshot().Currencies())),
	)
	return symbols, nil
}

func (a *App) buildOrchestrator(registry *market.Registry, prices *market.PriceCache, onReport arbitrage.ReportHandler) (*arbitrage.Orchestrator, *arbitrage.Pool, error) {
	acfg := a.cfg.Arbitrage
	sim := arbitrage.Simulator{
		Fee:             acfg.Fee,
		ProfitThreshold: acfg.ProfitThreshold,
		Budgets:         arbitrage.Budgets{Default: acfg.SimulationBudget, PerAsset: acfg.SimulationBudgets},
	}
	if !sim.Budgets.Default.IsPositive() {
		return nil, nil, errors.New("app: arbitrage.simulation_budget must be positive")
	}
	pool := arbitrage.NewPool(acfg.Workers)
	orch := arbitrage.NewOrchestrator(arbitrage.OrchestratorConfig{
		Registry:         registry,
		Prices:           prices,
		Finder:           arbitrage.NewFinder(sim, acfg.StartingAssets),
		Pool:             pool,
		Cooldown:         arbitrage.NewCooldown(acfg.Cooldown.Duration),
		Workers:          acfg.Workers,
		Interval:         acfg.CheckInterval.Duration,
		CollectTimeout:   acfg.CollectTimeout.Duration,
		SafetyBuffer:     acfg.SafetyBuffer,
		AnomalyThreshold: acfg.AnomalyThreshold,
		OnReport:         onReport,
		Logger:           a.logger,
	})
	return orch, pool, nil
}

func (a *App) buildTrading(apiKey, secret string, rest *binance.RESTClient, registry *market.Registry, deps *Dependencies, onResult executor.ResultHandler) *trading {
	tcfg := a.cfg.Trading
	ws := binance.NewWSOrderClient(binance.WSOrderConfig{
		URL:            a.cfg.Binance.WSAPIURL,
		APIKey:         apiKey,
		APISecret:      secret,
		RequestTimeout: a.cfg.Binance.RequestTimeout.Duration,
		Assets:         registry.Assets,
	}, a.logger)
	router := executor.NewHybridRouter(ws, rest, tcfg.WSFailureThreshold, tcfg.PreferWebsocket, a.logger)
	exec := executor.NewExecutor(router, rest, registry, deps.LockManager, executor.Config{
		Budgets: a.tradeBudgets(),
		Fee:     a.cfg.Arbitrage.Fee,
		DryRun:  tcfg.DryRun,
		LockTTL: tcfg.LockTTL.Duration,
	}, a.logger)
	return &trading{
		ws:       ws,
		router:   router,
		executor: exec,
		lane: executor.NewLane(exec, tcfg.Timeout.Duration, onResult, a.logger).
			WithMaxAge(a.cfg.Arbitrage.CheckInterval.Duration),
	}
}

func (a *App) tradeBudgets() arbitrage.Budgets {
	return arbitrage.Budgets{Default: a.cfg.Trading.Budget, PerAsset: a.cfg.Trading.Budgets}
}

// summaryLoop posts the periodic summary until ctx is cancelled.
func (a *App) summaryLoop(ctx context.Context, started time.Time, orch *arbitrage.Orchestrator, tr *trading, n *notify.Notifier) error {
	interval := a.cfg.Arbitrage.SummaryInterval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s := notify.Summary{
				Uptime:            time.Since(started),
				Found:             orch.Found(),
				LowProfitPositive: orch.LowProfitPositiveTotal(),
			}
			if tr != nil {
				st := tr.executor.Stats()
				s.Trades, s.TradeSuccesses = st.TradeCount, st.SuccessCount
			}
			a.logger.InfoContext(ctx, "summary",
				slog.String("uptime", notify.FormatUptime(s.Uptime)),
				slog.Int64("found", s.Found),
				slog.Int64("low_profit_positive", s.LowProfitPositive),
				slog.Int64("trades", s.Trades),
			)
			title, body := notify.FormatSummary(s)
			n.Post(notify.EventSummary, title, body)
		}
	}
}

func (a *App) newServer(deps *Dependencies, registry *market.Registry, prices *market.PriceCache, bookFeed *feed.BookTickerFeed, orch *arbitrage.Orchestrator, tr *trading, recorder *journal.Recorder) *server.Server {
	src := handler.StatusSources{
		Mode:     a.cfg.Mode,
		DryRun:   a.cfg.Trading.DryRun,
		Symbols:  registry.Len,
		Cycles:   orch,
		Feed:     bookFeed,
		Prices:   prices,
		Notifier: deps.Notifier,
		Journal:  recorder,
	}
	if tr != nil {
		src.Trades = tr.executor
		src.Router = tr.router
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Status:  handler.NewStatusHandler(src),
		Metrics: metrics.Handler(),
	}
	if deps.TradeStore != nil || deps.OpportunityStore != nil || deps.EventBus != nil {
		handlers.History = handler.NewHistoryHandler(deps.TradeStore, deps.OpportunityStore, deps.eventReader(), journal.DefaultStream, a.logger)
	}
	return server.NewServer(server.Config{Port: a.cfg.Server.Port, APIKey: a.cfg.Server.APIKey}, handlers, a.logger)
}

// countTriangles counts the directed triangles reachable from the starting
// assets for the startup message.
func countTriangles(registry *market.Registry, starting []string) int {
	n := 0
	arbitrage.BuildGraph(registry.Snapshot()).Triangles(starting, func(_, _, _ string) { n++ })
	return n
}

// clean maps a shutdown-induced context error to nil so the errgroup reports
// only real failures.
func clean(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
