package sqldb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
)

const swapColumns = `id, staker, recipient, asset, amount, hashlock, deadline, timeout,
	redeem_start, multichain_id, leg, redeemed, refunded, preimage, created_at, updated_at`

type swapRepository struct {
	db *DB
}

func NewSwapRepository(config ...interface{}) (domain.SwapRepository, error) {
	db, err := configDB(config...)
	if err != nil {
		return nil, err
	}
	return &swapRepository{db}, nil
}

func (r *swapRepository) Add(ctx context.Context, swap *domain.Swap) error {
	if _, err := r.db.exec(
		ctx,
		`INSERT INTO swap (`+swapColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		swap.ID.String(), swap.Staker.String(), swap.Recipient.String(), swap.Asset.String(),
		swap.Amount.Dec(), hex.EncodeToString(swap.Hashlock[:]), swap.Deadline, swap.Timeout,
		swap.RedeemStart, hex.EncodeToString(swap.MultichainID[:]), int(swap.Leg),
		swap.Redeemed, swap.Refunded, hex.EncodeToString(swap.Preimage),
		swap.CreatedAt, swap.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert swap: %w", err)
	}
	return nil
}

func (r *swapRepository) Get(ctx context.Context, id chanlib.SwapID) (*domain.Swap, error) {
	swap, err := scanSwap(r.db.queryRow(
		ctx, `SELECT `+swapColumns+` FROM swap WHERE id = ?`, id.String(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSwapNotFound
		}
		return nil, err
	}
	return swap, nil
}

func (r *swapRepository) Update(ctx context.Context, swap *domain.Swap) error {
	res, err := r.db.exec(
		ctx,
		`UPDATE swap SET redeemed = ?, refunded = ?, preimage = ?, updated_at = ?
		WHERE id = ?`,
		swap.Redeemed, swap.Refunded, hex.EncodeToString(swap.Preimage), swap.UpdatedAt,
		swap.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update swap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSwapNotFound
	}
	return nil
}

func (r *swapRepository) Delete(ctx context.Context, id chanlib.SwapID) error {
	res, err := r.db.exec(ctx, `DELETE FROM swap WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete swap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSwapNotFound
	}
	return nil
}

func (r *swapRepository) GetByMultichainID(
	ctx context.Context, multichainID [chanlib.HashSize]byte,
) ([]domain.Swap, error) {
	rows, err := r.db.query(
		ctx,
		`SELECT `+swapColumns+` FROM swap WHERE multichain_id = ? ORDER BY created_at`,
		hex.EncodeToString(multichainID[:]),
	)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()

	swaps := make([]domain.Swap, 0)
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, *swap)
	}
	return swaps, rows.Err()
}

func (r *swapRepository) GetReclaimable(
	ctx context.Context, before int64,
) ([]chanlib.SwapID, error) {
	rows, err := r.db.query(
		ctx,
		`SELECT id FROM swap WHERE timeout < ? AND (redeemed OR refunded) ORDER BY timeout`,
		before,
	)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()

	ids := make([]chanlib.SwapID, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := chanlib.ParseSwapID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *swapRepository) Close() {}

type scanner interface {
	Scan(dest ...any) error
}

func scanSwap(row scanner) (*domain.Swap, error) {
	var (
		id, staker, recipient, asset, amount string
		hashlock, multichainID, preimage     string
		leg                                  int
	)
	swap := &domain.Swap{}
	if err := row.Scan(
		&id, &staker, &recipient, &asset, &amount, &hashlock, &swap.Deadline, &swap.Timeout,
		&swap.RedeemStart, &multichainID, &leg, &swap.Redeemed, &swap.Refunded, &preimage,
		&swap.CreatedAt, &swap.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if swap.ID, err = chanlib.ParseSwapID(id); err != nil {
		return nil, err
	}
	if swap.Staker, err = chanlib.ParseAddress(staker); err != nil {
		return nil, err
	}
	if swap.Recipient, err = chanlib.ParseAddress(recipient); err != nil {
		return nil, err
	}
	if swap.Asset, err = chanlib.ParseAddress(asset); err != nil {
		return nil, err
	}
	if err := swap.Amount.SetFromDecimal(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %s", amount, err)
	}
	if err := decodeHash(hashlock, swap.Hashlock[:]); err != nil {
		return nil, err
	}
	if err := decodeHash(multichainID, swap.MultichainID[:]); err != nil {
		return nil, err
	}
	if preimage != "" {
		if swap.Preimage, err = hex.DecodeString(preimage); err != nil {
			return nil, fmt.Errorf("invalid preimage: %s", err)
		}
	}
	swap.Leg = chanlib.Leg(leg)
	return swap, nil
}
