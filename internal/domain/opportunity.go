package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a simulated triangular cycle A→B→C→A whose net profit
// cleared the configured threshold.
type Opportunity struct {
	ID          string             `json:"id"`
	Path        [4]string          `json:"path"`
	Pairs       [3]string          `json:"pairs"`
	Sides       [3]OrderSide       `json:"sides"`
	Rates       [3]decimal.Decimal `json:"rates"`
	PricesUsed  [3]decimal.Decimal `json:"prices_used"`
	StartAmount decimal.Decimal    `json:"start_amount"`
	FinalAmount decimal.Decimal    `json:"final_amount"`
	NetProfit   decimal.Decimal    `json:"net_profit"`
	DetectedAt  time.Time          `json:"detected_at"`
}

// StartAsset returns the currency the cycle begins and ends in.
func (o Opportunity) StartAsset() string { return o.Path[0] }

// ProfitFraction returns net profit relative to the starting amount.
func (o Opportunity) ProfitFraction() decimal.Decimal {
	if o.StartAmount.IsZero() {
		return decimal.Zero
	}
	return o.NetProfit.Div(o.StartAmount)
}

// ProfitPercent returns net profit as a percentage of the starting amount.
func (o Opportunity) ProfitPercent() decimal.Decimal {
	return o.ProfitFraction().Mul(decimal.NewFromInt(100))
}

// PathString renders the cycle as "A→B→C→A".
func (o Opportunity) PathString() string {
	return strings.Join(o.Path[:], "→")
}

// Key returns the cooldown identity of the cycle.
func (o Opportunity) Key() TriangleKey {
	return NewTriangleKey(o.Path[0], o.Path[1], o.Path[2])
}

// TradingData converts the opportunity into the record handed to execution.
func (o Opportunity) TradingData() TradingData {
	return TradingData{
		OpportunityID: o.ID,
		Path:          o.Path,
		Pairs:         o.Pairs,
		Prices:        o.PricesUsed,
		Timestamp:     o.DetectedAt,
	}
}

// TriangleKey identifies a triangle by its sorted currency set, so every
// rotation and direction of the same cycle maps to one key.
type TriangleKey [3]string

// NewTriangleKey canonicalizes three currencies into a TriangleKey.
func NewTriangleKey(a, b, c string) TriangleKey {
	k := []string{a, b, c}
	sort.Strings(k)
	return TriangleKey{k[0], k[1], k[2]}
}

func (k TriangleKey) String() string {
	return k[0] + "-" + k[1] + "-" + k[2]
}

// PromotedOpportunity is an opportunity that passed the cooldown filter,
// enriched with the amount that can be safely invested.
type PromotedOpportunity struct {
	Opportunity
	Investable   decimal.Decimal    `json:"investable"`
	LegCapacity  [3]decimal.Decimal `json:"leg_capacity"`
	VisibleQty   [3]decimal.Decimal `json:"visible_qty"`
	Anomaly      bool               `json:"anomaly"`
	LifetimeSeen int64              `json:"lifetime_seen"`
}
