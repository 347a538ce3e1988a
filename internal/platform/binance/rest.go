package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/shopspring/decimal"
)

// RESTConfig configures the REST client.
type RESTConfig struct {
	APIKey    string
	APISecret string
	// BaseURL overrides the API root, e.g. for a local test server.
	BaseURL string
	Testnet bool
	Timeout time.Duration
	// Assets resolves the symbol's base and quote so commission in the
	// received asset can be reported.
	Assets AssetLookup
}

// RESTClient is the REST order channel and exchange metadata source.
type RESTClient struct {
	api    *gobinance.Client
	assets AssetLookup
	logger *slog.Logger
}

// NewRESTClient creates a REST client.
func NewRESTClient(cfg RESTConfig, logger *slog.Logger) *RESTClient {
	api := gobinance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.Testnet {
		api.BaseURL = "https://testnet.binance.vision"
	}
	if cfg.BaseURL != "" {
		api.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	api.HTTPClient = &http.Client{Timeout: timeout}
	return &RESTClient{
		api:    api,
		assets: cfg.Assets,
		logger: logger.With(slog.String("component", "binance_rest")),
	}
}

// Name identifies the channel in leg results.
func (c *RESTClient) Name() string { return "rest_api" }

// ExchangeInfo returns the trading rules of every pair currently trading.
func (c *RESTClient) ExchangeInfo(ctx context.Context) ([]domain.SymbolInfo, error) {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: exchange info: %w", err)
	}

	out := make([]domain.SymbolInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != statusTrading {
			continue
		}
		out = append(out, symbolFromFilters(s.Symbol, s.BaseAsset, s.QuoteAsset, s.Filters))
	}
	c.logger.Info("exchange info loaded",
		slog.Int("symbols", len(info.Symbols)),
		slog.Int("trading", len(out)),
	)
	return out, nil
}

// symbolFromFilters reads LOT_SIZE and NOTIONAL (or the older MIN_NOTIONAL)
// filters into a SymbolInfo. Missing filters leave the rule at zero.
func symbolFromFilters(symbol, base, quote string, filters []map[string]interface{}) domain.SymbolInfo {
	si := domain.SymbolInfo{Symbol: symbol, Base: base, Quote: quote}
	for _, f := range filters {
		switch f["filterType"] {
		case "LOT_SIZE":
			si.MinQty = filterDecimal(f, "minQty")
			si.StepSize = filterDecimal(f, "stepSize")
		case "NOTIONAL":
			si.MinNotional = filterDecimal(f, "minNotional")
		case "MIN_NOTIONAL":
			if si.MinNotional.IsZero() {
				si.MinNotional = filterDecimal(f, "minNotional")
			}
		}
	}
	return si
}

func filterDecimal(f map[string]interface{}, key string) decimal.Decimal {
	switch v := f[key].(type) {
	case string:
		return parseDecimal(v)
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}

// Balance returns the free balance of asset. An asset absent from the
// account has a zero balance.
func (c *RESTClient) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return balances[asset], nil
}

// Balances returns every free balance of the account.
func (c *RESTClient) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: account: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(acct.Balances))
	for _, b := range acct.Balances {
		out[b.Asset] = parseDecimal(b.Free)
	}
	return out, nil
}

// PlaceMarketOrder places a MARKET order. A rejection by the exchange is
// reported as an API_ERROR leg with a nil error; transport failures return
// an error.
func (c *RESTClient) PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.TradeLegResult, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(gobinance.SideType(req.Side)).
		Type(gobinance.OrderTypeMarket).
		NewOrderRespType(gobinance.NewOrderRespTypeFULL)
	if req.QuoteQty.IsPositive() {
		svc = svc.QuoteOrderQty(req.QuoteQty.String())
	} else {
		svc = svc.Quantity(req.Quantity.String())
	}

	began := time.Now()
	if req.DryRun {
		err := svc.Test(ctx)
		leg := domain.TradeLegResult{
			Status:        domain.LegTestSuccess,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Quantity:      req.Quantity,
			QuoteQty:      req.QuoteQty,
			ExecutionTime: time.Since(began),
		}
		return c.classify(leg, err)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		leg := domain.TradeLegResult{Symbol: req.Symbol, Side: req.Side, Quantity: req.Quantity, ExecutionTime: time.Since(began)}
		return c.classify(leg, err)
	}

	r := orderResult{
		Symbol:              resp.Symbol,
		OrderID:             resp.OrderID,
		Status:              string(resp.Status),
		ExecutedQty:         resp.ExecutedQuantity,
		CummulativeQuoteQty: resp.CummulativeQuoteQuantity,
	}
	for _, f := range resp.Fills {
		r.Fills = append(r.Fills, fill{Price: f.Price, Qty: f.Quantity, Commission: f.Commission, CommissionAsset: f.CommissionAsset})
	}
	leg := r.toLegResult(req, lookupAssets(c.assets, req.Symbol))
	leg.ExecutionTime = time.Since(began)
	return leg, nil
}

// classify turns an order error into a leg result. Exchange rejections
// return a nil error.
func (c *RESTClient) classify(leg domain.TradeLegResult, err error) (domain.TradeLegResult, error) {
	if err == nil {
		return leg, nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		leg.Status = domain.LegAPIError
		leg.Error = fmt.Sprintf("code %d: %s", apiErr.Code, apiErr.Message)
		c.logger.Warn("order rejected",
			slog.String("symbol", leg.Symbol),
			slog.String("side", string(leg.Side)),
			slog.Int64("code", apiErr.Code),
			slog.String("message", apiErr.Message),
		)
		return leg, nil
	}
	leg.Status = domain.LegGeneralError
	leg.Error = err.Error()
	return leg, fmt.Errorf("binance: order %s: %w", leg.Symbol, err)
}
