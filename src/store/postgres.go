package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
    id         TEXT PRIMARY KEY,
    balance    NUMERIC NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS symbol_grants (
    id         BIGSERIAL PRIMARY KEY,
    symbol     TEXT NOT NULL,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    amount     NUMERIC NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS orders (
    id         BIGINT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    symbol     TEXT NOT NULL,
    side       TEXT NOT NULL,
    amount     NUMERIC NOT NULL,
    limit_price NUMERIC NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
    execution_id TEXT PRIMARY KEY,
    order_id     BIGINT NOT NULL REFERENCES orders(id),
    shares       NUMERIC NOT NULL,
    price        NUMERIC NOT NULL,
    executed_at  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS cancellations (
    order_id    BIGINT PRIMARY KEY REFERENCES orders(id),
    shares      NUMERIC NOT NULL,
    canceled_at BIGINT NOT NULL
);
`

const (
	accountInsertSQL = `
INSERT INTO accounts (id, balance)
VALUES (@id, @balance)
ON CONFLICT (id) DO NOTHING;
`

	grantInsertSQL = `
INSERT INTO symbol_grants (symbol, account_id, amount)
VALUES (@symbol, @account_id, @amount);
`

	orderInsertSQL = `
INSERT INTO orders (id, account_id, symbol, side, amount, limit_price, created_at)
VALUES (@id, @account_id, @symbol, @side, @amount, @limit_price, @created_at)
ON CONFLICT (id) DO NOTHING;
`

	executionInsertSQL = `
INSERT INTO executions (execution_id, order_id, shares, price, executed_at)
VALUES (@execution_id, @order_id, @shares, @price, @executed_at)
ON CONFLICT (execution_id) DO NOTHING;
`

	cancelInsertSQL = `
INSERT INTO cancellations (order_id, shares, canceled_at)
VALUES (@order_id, @shares, @canceled_at)
ON CONFLICT (order_id) DO NOTHING;
`
)

// Postgres journals exchange state into a relational schema mirroring the
// in-memory model: accounts, symbol grants, orders, executions, cancellations.
type Postgres struct {
	pool *pgxpool.Pool
}

const pgConnectMaxInterval = 5 * time.Second

// NewPostgres connects to url with exponential backoff and bootstraps the
// schema. The caller owns the returned store and must Close it.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = pgConnectMaxInterval

	for {
		err = pool.Ping(ctx)
		if err == nil {
			break
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			pool.Close()
			return nil, err
		}

		log.Warn().
			Err(err).
			Dur("retry_in", sleep).
			Msg("Database not reachable, retrying")

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) SaveAccount(ctx context.Context, id string, balance decimal.Decimal) error {
	_, err := p.pool.Exec(ctx, accountInsertSQL, pgx.NamedArgs{
		"id":      id,
		"balance": balance,
	})
	return err
}

func (p *Postgres) SaveSymbolGrant(ctx context.Context, sym, accountID string, amount decimal.Decimal) error {
	_, err := p.pool.Exec(ctx, grantInsertSQL, pgx.NamedArgs{
		"symbol":     sym,
		"account_id": accountID,
		"amount":     amount,
	})
	return err
}

func (p *Postgres) SaveOrder(ctx context.Context, rec OrderRecord) error {
	_, err := p.pool.Exec(ctx, orderInsertSQL, pgx.NamedArgs{
		"id":          rec.ID,
		"account_id":  rec.AccountID,
		"symbol":      rec.Symbol,
		"side":        rec.Side,
		"amount":      rec.Amount,
		"limit_price": rec.Limit,
		"created_at":  rec.CreatedAt,
	})
	return err
}

func (p *Postgres) SaveFill(ctx context.Context, rec FillRecord) error {
	_, err := p.pool.Exec(ctx, executionInsertSQL, pgx.NamedArgs{
		"execution_id": rec.ExecutionID,
		"order_id":     rec.OrderID,
		"shares":       rec.Shares,
		"price":        rec.Price,
		"executed_at":  rec.Time,
	})
	return err
}

func (p *Postgres) SaveCancel(ctx context.Context, rec CancelRecord) error {
	_, err := p.pool.Exec(ctx, cancelInsertSQL, pgx.NamedArgs{
		"order_id":    rec.OrderID,
		"shares":      rec.Shares,
		"canceled_at": rec.Time,
	})
	return err
}

func (p *Postgres) Close() {
	p.pool.Close()
}
