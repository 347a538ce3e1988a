package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/triarbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. Legs and the
// optional emergency liquidation are stored as rows of arb_trade_legs.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, opportunity_id, path, pairs, status, final_state, failed_at,
	budget, final_quantity, profit, profit_percentage, dry_run, error, started_at, duration_ms`

const legSelectCols = `leg_index, liquidation, symbol, side, status, quantity, price,
	executed_qty, quote_qty, commission, commission_asset, order_id, method, execution_ms, error`

// Save inserts a trade result and its legs in one transaction. Saving the
// same id twice is a no-op.
func (s *TradeStore) Save(ctx context.Context, res domain.TradeResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO arb_trades (`+tradeSelectCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`,
		res.ID, res.Data.OpportunityID, res.Data.Path[:], res.Data.Pairs[:],
		string(res.Status), string(res.FinalState), string(res.FailedAt),
		res.Budget, res.FinalQuantity, res.Profit, res.ProfitPercentage,
		res.DryRun, res.Error, res.StartedAt, res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arb_trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	queue := func(idx int, liquidation bool, leg domain.TradeLegResult) {
		batch.Queue(`
			INSERT INTO arb_trade_legs (trade_id, `+legSelectCols+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			res.ID, idx, liquidation, leg.Symbol, string(leg.Side), string(leg.Status),
			leg.Quantity, leg.Price, leg.ExecutedQty, leg.QuoteQty, leg.Commission,
			leg.CommissionAsset, leg.OrderID, leg.Method, leg.ExecutionTime.Milliseconds(), leg.Error,
		)
	}
	for i, leg := range res.Legs {
		queue(i+1, false, leg)
	}
	if res.Liquidation != nil {
		queue(len(res.Legs)+1, true, *res.Liquidation)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("postgres: insert arb_trade_leg %d: %w", i+1, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: close leg batch: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func scanTrade(row pgx.Row) (domain.TradeResult, error) {
	var (
		res                          domain.TradeResult
		path, pairs                  []string
		status, finalState, failedAt string
		durationMs                   int64
	)
	err := row.Scan(
		&res.ID, &res.Data.OpportunityID, &path, &pairs, &status, &finalState, &failedAt,
		&res.Budget, &res.FinalQuantity, &res.Profit, &res.ProfitPercentage,
		&res.DryRun, &res.Error, &res.StartedAt, &durationMs,
	)
	if err != nil {
		return domain.TradeResult{}, err
	}
	copy(res.Data.Path[:], path)
	copy(res.Data.Pairs[:], pairs)
	res.Status = domain.TradeStatus(status)
	res.FinalState = domain.ExecState(finalState)
	res.FailedAt = domain.ExecState(failedAt)
	res.Duration = time.Duration(durationMs) * time.Millisecond
	return res, nil
}

// GetByID returns a trade with its legs.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.TradeResult, error) {
	res, err := scanTrade(s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM arb_trades WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradeResult{}, domain.ErrNotFound
		}
		return domain.TradeResult{}, fmt.Errorf("postgres: get arb_trade %s: %w", id, err)
	}
	if err := s.loadLegs(ctx, &res); err != nil {
		return domain.TradeResult{}, err
	}
	return res, nil
}

func (s *TradeStore) loadLegs(ctx context.Context, res *domain.TradeResult) error {
	rows, err := s.pool.Query(ctx,
		`SELECT `+legSelectCols+` FROM arb_trade_legs WHERE trade_id = $1 ORDER BY leg_index`, res.ID)
	if err != nil {
		return fmt.Errorf("postgres: get arb_trade_legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			leg          domain.TradeLegResult
			idx          int
			liquidation  bool
			side, status string
			execMs       int64
		)
		if err := rows.Scan(
			&idx, &liquidation, &leg.Symbol, &side, &status, &leg.Quantity, &leg.Price,
			&leg.ExecutedQty, &leg.QuoteQty, &leg.Commission, &leg.CommissionAsset,
			&leg.OrderID, &leg.Method, &execMs, &leg.Error,
		); err != nil {
			return fmt.Errorf("postgres: scan arb_trade_leg: %w", err)
		}
		leg.Side = domain.OrderSide(side)
		leg.Status = domain.LegStatus(status)
		leg.ExecutionTime = time.Duration(execMs) * time.Millisecond
		if liquidation {
			l := leg
			res.Liquidation = &l
			continue
		}
		res.Legs = append(res.Legs, leg)
	}
	return rows.Err()
}

// ListRecent returns the most recent trades, newest first, without legs.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM arb_trades ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arb_trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeResult
	for rows.Next() {
		res, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan arb_trade: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
