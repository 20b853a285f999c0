package journal

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StrathCole/oracle-exchange/pkg/config"
)

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS exchange_journal (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	actor       TEXT NOT NULL,
	asset_class TEXT NOT NULL DEFAULT '',
	asset_id    BIGINT,
	amount      NUMERIC NOT NULL,
	escrow      NUMERIC NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
)`

const insertEvent = `
INSERT INTO exchange_journal (id, kind, actor, asset_class, asset_id, amount, escrow, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

// Execer is the subset of pgxpool.Pool used by the journal.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresJournal appends events to the exchange_journal table.
type PostgresJournal struct {
	db Execer
}

var _ Journal = (*PostgresJournal)(nil)

// NewPostgresJournal creates a journal on top of db.
func NewPostgresJournal(db Execer) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// EnsureSchema creates the journal table if it does not exist.
func (p *PostgresJournal) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Append implements Journal.
func (p *PostgresJournal) Append(ctx context.Context, e Event) error {
	var assetID *int64
	if e.AssetID != nil {
		id := int64(*e.AssetID) // #nosec G115 -- ids are allocated sequentially from zero
		assetID = &id
	}

	_, err := p.db.Exec(ctx, insertEvent,
		e.ID, string(e.Kind), e.Actor, e.AssetClass, assetID,
		e.Amount.String(), e.Escrow.String(), e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert journal event %s: %w", e.ID, err)
	}
	return nil
}

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns) // #nosec G115 -- validated config
	poolCfg.MaxConns = int32(cfg.MaxConns) // #nosec G115 -- validated config

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
