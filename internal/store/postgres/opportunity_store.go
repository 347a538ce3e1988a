package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// opportunityLeg is the JSONB shape of one leg in arb_opportunities.legs.
type opportunityLeg struct {
	Pair       string           `json:"pair"`
	Side       domain.OrderSide `json:"side"`
	Rate       decimal.Decimal  `json:"rate"`
	Price      decimal.Decimal  `json:"price"`
	Capacity   decimal.Decimal  `json:"capacity"`
	VisibleQty decimal.Decimal  `json:"visible_qty"`
}

func encodeLegs(opp domain.PromotedOpportunity) ([]byte, error) {
	legs := make([]opportunityLeg, 3)
	for i := range legs {
		legs[i] = opportunityLeg{
			Pair:       opp.Pairs[i],
			Side:       opp.Sides[i],
			Rate:       opp.Rates[i],
			Price:      opp.PricesUsed[i],
			Capacity:   opp.LegCapacity[i],
			VisibleQty: opp.VisibleQty[i],
		}
	}
	return sonnet.Marshal(legs)
}

func decodeLegs(raw []byte, opp *domain.PromotedOpportunity) error {
	var legs []opportunityLeg
	if err := sonnet.Unmarshal(raw, &legs); err != nil {
		return err
	}
	for i := 0; i < len(legs) && i < 3; i++ {
		opp.Pairs[i] = legs[i].Pair
		opp.Sides[i] = legs[i].Side
		opp.Rates[i] = legs[i].Rate
		opp.PricesUsed[i] = legs[i].Price
		opp.LegCapacity[i] = legs[i].Capacity
		opp.VisibleQty[i] = legs[i].VisibleQty
	}
	return nil
}

// Save inserts a promoted opportunity. Duplicate ids are ignored.
func (s *OpportunityStore) Save(ctx context.Context, opp domain.PromotedOpportunity) error {
	legs, err := encodeLegs(opp)
	if err != nil {
		return fmt.Errorf("postgres: encode opportunity legs: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO arb_opportunities (id, path, triangle_key, start_amount, final_amount, net_profit,
			investable, anomaly, lifetime_seen, legs, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		opp.ID, opp.Path[:], opp.Key().String(), opp.StartAmount, opp.FinalAmount, opp.NetProfit,
		opp.Investable, opp.Anomaly, opp.LifetimeSeen, legs, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arb_opportunity: %w", err)
	}
	return nil
}

// ListRecent returns the most recently detected opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.PromotedOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, path, start_amount, final_amount, net_profit, investable, anomaly,
			lifetime_seen, legs, detected_at
		FROM arb_opportunities ORDER BY detected_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arb_opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.PromotedOpportunity
	for rows.Next() {
		var (
			opp  domain.PromotedOpportunity
			path []string
			legs []byte
		)
		if err := rows.Scan(&opp.ID, &path, &opp.StartAmount, &opp.FinalAmount, &opp.NetProfit,
			&opp.Investable, &opp.Anomaly, &opp.LifetimeSeen, &legs, &opp.DetectedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan arb_opportunity: %w", err)
		}
		copy(opp.Path[:], path)
		if err := decodeLegs(legs, &opp); err != nil {
			return nil, fmt.Errorf("postgres: decode opportunity legs %s: %w", opp.ID, err)
		}
		out = append(out, opp)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
