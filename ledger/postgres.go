package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"hurst-trader/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trades (
    id            TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL,
    contract_id   TEXT NOT NULL,
    symbol        TEXT NOT NULL,
    direction     TEXT NOT NULL,
    strategy      TEXT NOT NULL,
    is_win        BOOLEAN NOT NULL,
    stake         NUMERIC(18,2) NOT NULL,
    profit        NUMERIC(18,2) NOT NULL,
    balance_after NUMERIC(18,2) NOT NULL,
    settled_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_settled_at_idx ON trades (settled_at);
`

// PGStore writes trades to Postgres.
type PGStore struct {
	db *pgxpool.Pool
}

// OpenPGStore connects, pings and ensures the trades table exists.
func OpenPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PGStore{db: pool}, nil
}

func (s *PGStore) Insert(ctx context.Context, r models.TradeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	_, err := s.db.Exec(ctx, `
        INSERT INTO trades (
            id, session_id, contract_id, symbol, direction, strategy,
            is_win, stake, profit, balance_after, settled_at
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (id) DO NOTHING
    `,
		r.ID,
		r.SessionID,
		r.ContractID,
		r.Symbol,
		string(r.Direction),
		r.Strategy,
		r.IsWin,
		r.Stake,
		r.Profit,
		r.BalanceAfter,
		r.Timestamp,
	)
	return err
}

func (s *PGStore) Since(ctx context.Context, from time.Time) ([]models.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rows, err := s.db.Query(ctx, `
        SELECT id, session_id, contract_id, symbol, direction, strategy,
               is_win, stake::float8, profit::float8, balance_after::float8, settled_at
        FROM trades
        WHERE settled_at >= $1
        ORDER BY settled_at
    `, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var r models.TradeRecord
		var dir string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ContractID, &r.Symbol, &dir, &r.Strategy,
			&r.IsWin, &r.Stake, &r.Profit, &r.BalanceAfter, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Direction = models.Signal(dir)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}
