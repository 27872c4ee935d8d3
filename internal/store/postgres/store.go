// =============================
// File: internal/store/postgres/store.go
// =============================
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/custody"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/store"
)

const (
	codeUniqueViolation    = "23505"
	codeNumericOutOfRange  = "22003"
	codeCheckViolation     = "23514"
	poolColumns            = `address, mint, bump, reserve_token, reserve_base, phase, lp_supply, created_at, updated_at`
	selectPoolForUpdateSQL = `SELECT ` + poolColumns + ` FROM pools WHERE address = $1 FOR UPDATE`
)

// Store - реализация store.Store поверх Postgres.
// Пул блокируется через SELECT ... FOR UPDATE на время единицы работы.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger.Named("pg_store")}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate создаёт таблицы, если их нет.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Debug("Schema applied")
	return nil
}

func (s *Store) Custody() custody.Custody {
	return &pgCustody{q: s.pool}
}

func (s *Store) Update(ctx context.Context, address solana.PublicKey, fn store.TxFunc) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		utx := &pgTx{tx: tx, custody: &pgCustody{q: tx}}

		staged, err := loadPool(ctx, tx, selectPoolForUpdateSQL, address)
		switch {
		case errors.Is(err, ledger.ErrPoolNotFound):
		case err != nil:
			return err
		default:
			utx.staged = staged
		}

		if err := fn(ctx, utx); err != nil {
			return err
		}
		if utx.staged == nil {
			return nil
		}
		return s.flush(ctx, tx, utx.staged, utx.created)
	})
}

func (s *Store) View(ctx context.Context, address solana.PublicKey) (*ledger.Pool, error) {
	return loadPool(ctx, s.pool, `SELECT `+poolColumns+` FROM pools WHERE address = $1`, address)
}

func (s *Store) List(ctx context.Context) ([]*ledger.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM pools ORDER BY address`)
	if err != nil {
		return nil, err
	}
	addresses, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	out := make([]*ledger.Pool, 0, len(addresses))
	for _, a := range addresses {
		key, err := solana.PublicKeyFromBase58(a)
		if err != nil {
			return nil, fmt.Errorf("stored pool address %q: %w", a, err)
		}
		p, err := s.View(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) flush(ctx context.Context, tx pgx.Tx, p *ledger.Pool, created bool) error {
	reserveToken, err := toInt64(p.ReserveToken)
	if err != nil {
		return err
	}
	reserveBase, err := toInt64(p.ReserveBase)
	if err != nil {
		return err
	}
	lpSupply, err := toInt64(p.LPSupply)
	if err != nil {
		return err
	}

	if created {
		_, err = tx.Exec(ctx, `
			INSERT INTO pools (`+poolColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.Address.String(), p.Mint.String(), int16(p.Bump), reserveToken, reserveBase,
			int16(p.Phase), lpSupply, p.CreatedAt, p.UpdatedAt,
		)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE pools SET
				reserve_token = $2,
				reserve_base = $3,
				phase = $4,
				lp_supply = $5,
				updated_at = $6
			WHERE address = $1`,
			p.Address.String(), reserveToken, reserveBase, int16(p.Phase), lpSupply, p.UpdatedAt,
		)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return fmt.Errorf("pool %s: %w", p.Address, ledger.ErrPoolExists)
		}
		return fmt.Errorf("write pool %s: %w", p.Address, err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM positions WHERE pool = $1`, p.Address.String())
	for owner, shares := range p.Positions {
		v, err := toInt64(shares)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO positions (pool, owner, shares) VALUES ($1, $2, $3)`,
			p.Address.String(), owner.String(), v)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("write positions: %w", err)
		}
	}
	return nil
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadPool(ctx context.Context, q queryer, query string, address solana.PublicKey) (*ledger.Pool, error) {
	var (
		addr, mint                        string
		bump, phase                       int16
		reserveToken, reserveBase, supply int64
		createdAt, updatedAt              time.Time
	)
	err := q.QueryRow(ctx, query, address.String()).Scan(
		&addr, &mint, &bump, &reserveToken, &reserveBase, &phase, &supply, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pool %s: %w", address, ledger.ErrPoolNotFound)
		}
		return nil, fmt.Errorf("load pool %s: %w", address, err)
	}

	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("stored mint %q: %w", mint, err)
	}
	p := &ledger.Pool{
		Address:      address,
		Mint:         mintKey,
		Bump:         uint8(bump),
		ReserveToken: uint64(reserveToken),
		ReserveBase:  uint64(reserveBase),
		Phase:        ledger.Phase(phase),
		LPSupply:     uint64(supply),
		Positions:    make(map[solana.PublicKey]uint64),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}

	rows, err := q.Query(ctx, `SELECT owner, shares FROM positions WHERE pool = $1`, address.String())
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			owner  string
			shares int64
		)
		if err := rows.Scan(&owner, &shares); err != nil {
			return nil, err
		}
		key, err := solana.PublicKeyFromBase58(owner)
		if err != nil {
			return nil, fmt.Errorf("stored owner %q: %w", owner, err)
		}
		p.Positions[key] = uint64(shares)
	}
	return p, rows.Err()
}

func toInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("value %d does not fit BIGINT: %w", v, ledger.ErrArithmeticOverflow)
	}
	return int64(v), nil
}

type pgTx struct {
	tx      pgx.Tx
	staged  *ledger.Pool
	created bool
	custody *pgCustody
}

func (t *pgTx) Pool() (*ledger.Pool, error) {
	if t.staged == nil {
		return nil, ledger.ErrPoolNotFound
	}
	return t.staged, nil
}

func (t *pgTx) CreatePool(pool *ledger.Pool) error {
	if t.staged != nil {
		return fmt.Errorf("pool %s: %w", pool.Address, ledger.ErrPoolExists)
	}
	t.staged = pool
	t.created = true
	return nil
}

func (t *pgTx) Custody() custody.Custody {
	return t.custody
}
