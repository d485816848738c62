package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/timshannon/badgerhold/v4"
)

type ledgerRepository struct {
	store     *badgerhold.Store
	ownsStore bool
}

type ledgerEntryDTO struct {
	Owner  string `badgerhold:"index"`
	Asset  string
	Amount string
}

// NewLedgerRepository accepts either a shared store or [baseDir, logger].
func NewLedgerRepository(config ...interface{}) (domain.LedgerRepository, error) {
	store, owns, err := storeFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %s", err)
	}
	return &ledgerRepository{store, owns}, nil
}

func (r *ledgerRepository) GetBalance(
	ctx context.Context, owner domain.LedgerOwner, asset chanlib.Address,
) (*uint256.Int, error) {
	var dto ledgerEntryDTO
	var err error
	key := ledgerKey(owner, asset)
	if tx := txFromContext(ctx); tx != nil {
		err = r.store.TxGet(tx, key, &dto)
	} else {
		err = r.store.Get(key, &dto)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	return uint256.FromDecimal(dto.Amount)
}

func (r *ledgerRepository) SetBalance(
	ctx context.Context, owner domain.LedgerOwner, asset chanlib.Address, amount *uint256.Int,
) error {
	key := ledgerKey(owner, asset)
	if amount == nil || amount.IsZero() {
		err := withRetry(ctx, func() error {
			if tx := txFromContext(ctx); tx != nil {
				return r.store.TxDelete(tx, key, ledgerEntryDTO{})
			}
			return r.store.Delete(key, ledgerEntryDTO{})
		})
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}

	dto := ledgerEntryDTO{
		Owner:  owner.String(),
		Asset:  asset.String(),
		Amount: amount.Dec(),
	}
	return withRetry(ctx, func() error {
		if tx := txFromContext(ctx); tx != nil {
			return r.store.TxUpsert(tx, key, dto)
		}
		return r.store.Upsert(key, dto)
	})
}

func (r *ledgerRepository) GetBalances(
	ctx context.Context, owner domain.LedgerOwner,
) ([]domain.LedgerEntry, error) {
	query := badgerhold.Where("Owner").Eq(owner.String()).Index("Owner")
	dtos := make([]ledgerEntryDTO, 0)
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = r.store.TxFind(tx, &dtos, query)
	} else {
		err = r.store.Find(&dtos, query)
	}
	if err != nil {
		return nil, err
	}

	entries := make([]domain.LedgerEntry, 0, len(dtos))
	for _, dto := range dtos {
		asset, err := chanlib.ParseAddress(dto.Asset)
		if err != nil {
			return nil, err
		}
		entry := domain.LedgerEntry{Owner: owner, Asset: asset}
		if err := entry.Amount.SetFromDecimal(dto.Amount); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %s", dto.Amount, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *ledgerRepository) Close() {
	if r.ownsStore {
		// nolint:all
		r.store.Close()
	}
}

func ledgerKey(owner domain.LedgerOwner, asset chanlib.Address) string {
	return fmt.Sprintf("%s/%s", owner, asset)
}
