package holdings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/livefolio/internal/domain"
)

// PgRepository reads holdings of one account from the application's PostgreSQL database.
type PgRepository struct {
	pool      *pgxpool.Pool
	accountID string
}

// NewPgRepository creates a repository scoped to accountID.
func NewPgRepository(pool *pgxpool.Pool, accountID string) *PgRepository {
	return &PgRepository{pool: pool, accountID: accountID}
}

func (r *PgRepository) FetchHoldings(ctx context.Context) ([]domain.Holding, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT symbol, amount, value_usd, change_24h
		 FROM holdings
		 WHERE account_id = $1
		 ORDER BY symbol`,
		r.accountID)
	if err != nil {
		return nil, fmt.Errorf("querying holdings for %s: %w", r.accountID, err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.Symbol, &h.Amount, &h.BaselineValue, &h.BaselineChange24h); err != nil {
			return nil, fmt.Errorf("scanning holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// SaveHoldings replaces the stored holdings of the account in one transaction.
func (r *PgRepository) SaveHoldings(ctx context.Context, holdings []domain.Holding) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning holdings transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE account_id = $1`, r.accountID); err != nil {
		return fmt.Errorf("clearing holdings for %s: %w", r.accountID, err)
	}
	for _, h := range holdings {
		_, err := tx.Exec(ctx,
			`INSERT INTO holdings (account_id, symbol, amount, value_usd, change_24h, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())`,
			r.accountID, domain.NormalizeSymbol(h.Symbol), h.Amount, h.BaselineValue, h.BaselineChange24h)
		if err != nil {
			return fmt.Errorf("inserting holding %s: %w", h.Symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing holdings: %w", err)
	}
	return nil
}
