package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingData is the minimal contract handed from detection to execution.
type TradingData struct {
	OpportunityID string             `json:"opportunity_id"`
	Path          [4]string          `json:"path"`
	Pairs         [3]string          `json:"pairs"`
	Prices        [3]decimal.Decimal `json:"prices"`
	Timestamp     time.Time          `json:"timestamp"`
}

// LegStatus is the outcome of one order placement.
type LegStatus string

const (
	LegSuccess      LegStatus = "SUCCESS"
	LegTestSuccess  LegStatus = "TEST_SUCCESS"
	LegAPIError     LegStatus = "API_ERROR"
	LegOrderError   LegStatus = "ORDER_ERROR"
	LegGeneralError LegStatus = "GENERAL_ERROR"
)

// OK reports whether the leg was accepted by the exchange.
func (s LegStatus) OK() bool {
	return s == LegSuccess || s == LegTestSuccess
}

// OrderRequest is a spot market order. A buy may be sized by QuoteQty
// (spend exactly that much quote asset); otherwise Quantity is in base units.
type OrderRequest struct {
	Symbol   string          `json:"symbol"`
	Side     OrderSide       `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	QuoteQty decimal.Decimal `json:"quote_qty"`
	DryRun   bool            `json:"dry_run"`
}

// TradeLegResult records one leg as reported by an order channel.
type TradeLegResult struct {
	Status          LegStatus       `json:"status"`
	Symbol          string          `json:"symbol"`
	Side            OrderSide       `json:"side"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	ExecutedQty     decimal.Decimal `json:"executed_qty"`
	QuoteQty        decimal.Decimal `json:"quote_qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commission_asset,omitempty"`
	OrderID         string          `json:"order_id,omitempty"`
	ExecutionTime   time.Duration   `json:"execution_time"`
	Method          string          `json:"method"`
	Error           string          `json:"error,omitempty"`
}

// ExecState is a state of the trade execution machine.
type ExecState string

const (
	StateIdle                ExecState = "IDLE"
	StateBalanceCheck        ExecState = "BALANCE_CHECK"
	StateLeg1                ExecState = "LEG1"
	StateLeg2                ExecState = "LEG2"
	StateLeg3                ExecState = "LEG3"
	StateEmergencyLiquidate1 ExecState = "EMERGENCY_LIQUIDATE_1"
	StateEmergencyLiquidate2 ExecState = "EMERGENCY_LIQUIDATE_2"
	StateSuccess             ExecState = "SUCCESS"
	StateFailed              ExecState = "FAILED"
)

// TradeStatus is the terminal classification of an execution attempt.
type TradeStatus string

const (
	TradeSuccess  TradeStatus = "SUCCESS"
	TradeFailed   TradeStatus = "FAILED"
	TradeRejected TradeStatus = "REJECTED"
)

// TradeResult is the structured outcome of one arbitrage execution.
type TradeResult struct {
	ID               string           `json:"id"`
	Data             TradingData      `json:"data"`
	Status           TradeStatus      `json:"status"`
	FinalState       ExecState        `json:"final_state"`
	FailedAt         ExecState        `json:"failed_at,omitempty"`
	Budget           decimal.Decimal  `json:"budget"`
	FinalQuantity    decimal.Decimal  `json:"final_quantity"`
	Profit           decimal.Decimal  `json:"profit"`
	ProfitPercentage decimal.Decimal  `json:"profit_percentage"`
	Legs             []TradeLegResult `json:"legs"`
	Liquidation      *TradeLegResult  `json:"liquidation,omitempty"`
	DryRun           bool             `json:"dry_run"`
	Error            string           `json:"error,omitempty"`
	Err              error            `json:"-"`
	StartedAt        time.Time        `json:"started_at"`
	Duration         time.Duration    `json:"duration"`
}
