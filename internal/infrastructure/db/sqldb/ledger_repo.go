package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
)

type ledgerRepository struct {
	db *DB
}

func NewLedgerRepository(config ...interface{}) (domain.LedgerRepository, error) {
	db, err := configDB(config...)
	if err != nil {
		return nil, err
	}
	return &ledgerRepository{db}, nil
}

func (r *ledgerRepository) GetBalance(
	ctx context.Context, owner domain.LedgerOwner, asset chanlib.Address,
) (*uint256.Int, error) {
	var amount string
	if err := r.db.queryRow(
		ctx,
		`SELECT amount FROM ledger_entry WHERE owner = ? AND asset = ?`,
		owner.String(), asset.String(),
	).Scan(&amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uint256.NewInt(0), nil
		}
		return nil, err
	}
	balance, err := uint256.FromDecimal(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %s", amount, err)
	}
	return balance, nil
}

func (r *ledgerRepository) SetBalance(
	ctx context.Context, owner domain.LedgerOwner, asset chanlib.Address, amount *uint256.Int,
) error {
	if amount == nil || amount.IsZero() {
		_, err := r.db.exec(
			ctx,
			`DELETE FROM ledger_entry WHERE owner = ? AND asset = ?`,
			owner.String(), asset.String(),
		)
		return err
	}
	_, err := r.db.exec(
		ctx,
		`INSERT INTO ledger_entry (owner, asset, amount) VALUES (?, ?, ?)
		ON CONFLICT (owner, asset) DO UPDATE SET amount = excluded.amount`,
		owner.String(), asset.String(), amount.Dec(),
	)
	return err
}

func (r *ledgerRepository) GetBalances(
	ctx context.Context, owner domain.LedgerOwner,
) ([]domain.LedgerEntry, error) {
	rows, err := r.db.query(
		ctx,
		`SELECT asset, amount FROM ledger_entry WHERE owner = ? ORDER BY asset`,
		owner.String(),
	)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var asset, amount string
		if err := rows.Scan(&asset, &amount); err != nil {
			return nil, err
		}
		entry := domain.LedgerEntry{Owner: owner}
		if entry.Asset, err = chanlib.ParseAddress(asset); err != nil {
			return nil, err
		}
		if err := entry.Amount.SetFromDecimal(amount); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %s", amount, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *ledgerRepository) Close() {}
