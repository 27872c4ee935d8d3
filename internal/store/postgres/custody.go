// =============================
// File: internal/store/postgres/custody.go
// =============================
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rovshanmuradov/fairlaunch/internal/custody"
)

// pgCustody хранит балансы в таблице balances. Внутри транзакции
// изменения видны только ей и откатываются вместе с ней.
type pgCustody struct {
	q queryer
}

func (c *pgCustody) Balance(ctx context.Context, owner, asset solana.PublicKey) (uint64, error) {
	var amount int64
	err := c.q.QueryRow(ctx,
		`SELECT amount FROM balances WHERE owner = $1 AND asset = $2`,
		owner.String(), asset.String(),
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(amount), nil
}

func (c *pgCustody) Debit(ctx context.Context, owner, asset solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	v, err := toInt64(amount)
	if err != nil {
		return err
	}
	tag, err := c.q.Exec(ctx,
		`UPDATE balances SET amount = amount - $3 WHERE owner = $1 AND asset = $2 AND amount >= $3`,
		owner.String(), asset.String(), v,
	)
	if err != nil {
		return fmt.Errorf("debit %s: %w", owner, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s needs %d", custody.ErrInsufficientBalance, owner, asset, amount)
	}
	return nil
}

func (c *pgCustody) Credit(ctx context.Context, owner, asset solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	v, err := toInt64(amount)
	if err != nil {
		return fmt.Errorf("%w: %v", custody.ErrBalanceOverflow, err)
	}
	_, err = c.q.Exec(ctx, `
		INSERT INTO balances (owner, asset, amount) VALUES ($1, $2, $3)
		ON CONFLICT (owner, asset)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		owner.String(), asset.String(), v,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == codeNumericOutOfRange || pgErr.Code == codeCheckViolation) {
			return fmt.Errorf("%w: %s/%s", custody.ErrBalanceOverflow, owner, asset)
		}
		return fmt.Errorf("credit %s: %w", owner, err)
	}
	return nil
}
