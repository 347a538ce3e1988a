package domain

import "context"

// TradeStore persists trade execution results.
type TradeStore interface {
	Save(ctx context.Context, res TradeResult) error
	GetByID(ctx context.Context, id string) (TradeResult, error)
	ListRecent(ctx context.Context, limit int) ([]TradeResult, error)
}

// OpportunityStore persists promoted opportunities.
type OpportunityStore interface {
	Save(ctx context.Context, opp PromotedOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]PromotedOpportunity, error)
}
