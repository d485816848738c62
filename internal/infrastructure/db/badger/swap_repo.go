package badgerdb

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/timshannon/badgerhold/v4"
)

type swapRepository struct {
	store     *badgerhold.Store
	ownsStore bool
}

type swapDTO struct {
	ID           string
	Staker       string
	Recipient    string
	Asset        string
	Amount       string
	Hashlock     []byte
	Deadline     int64
	Timeout      int64 `badgerhold:"index"`
	RedeemStart  int64
	MultichainID string `badgerhold:"index"`
	Leg          int
	Redeemed     bool
	Refunded     bool
	Preimage     []byte
	CreatedAt    int64
	UpdatedAt    int64
}

// NewSwapRepository accepts either a shared store or [baseDir, logger].
func NewSwapRepository(config ...interface{}) (domain.SwapRepository, error) {
	store, owns, err := storeFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open swap store: %s", err)
	}
	return &swapRepository{store, owns}, nil
}

func (r *swapRepository) Add(ctx context.Context, swap *domain.Swap) error {
	dto := toSwapDTO(swap)
	err := withRetry(ctx, func() error {
		if tx := txFromContext(ctx); tx != nil {
			return r.store.TxInsert(tx, dto.ID, dto)
		}
		return r.store.Insert(dto.ID, dto)
	})
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return fmt.Errorf("swap %s already exists", dto.ID)
	}
	return err
}

func (r *swapRepository) Get(ctx context.Context, id chanlib.SwapID) (*domain.Swap, error) {
	var dto swapDTO
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = r.store.TxGet(tx, id.String(), &dto)
	} else {
		err = r.store.Get(id.String(), &dto)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrSwapNotFound
		}
		return nil, err
	}
	return dto.toDomain()
}

func (r *swapRepository) Update(ctx context.Context, swap *domain.Swap) error {
	dto := toSwapDTO(swap)
	err := withRetry(ctx, func() error {
		if tx := txFromContext(ctx); tx != nil {
			return r.store.TxUpdate(tx, dto.ID, dto)
		}
		return r.store.Update(dto.ID, dto)
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return domain.ErrSwapNotFound
	}
	return err
}

func (r *swapRepository) Delete(ctx context.Context, id chanlib.SwapID) error {
	err := withRetry(ctx, func() error {
		if tx := txFromContext(ctx); tx != nil {
			return r.store.TxDelete(tx, id.String(), swapDTO{})
		}
		return r.store.Delete(id.String(), swapDTO{})
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return domain.ErrSwapNotFound
	}
	return err
}

func (r *swapRepository) GetByMultichainID(
	ctx context.Context, multichainID [chanlib.HashSize]byte,
) ([]domain.Swap, error) {
	query := badgerhold.Where("MultichainID").Eq(hex.EncodeToString(multichainID[:])).
		Index("MultichainID")
	dtos, err := r.find(ctx, query)
	if err != nil {
		return nil, err
	}

	swaps := make([]domain.Swap, 0, len(dtos))
	for _, dto := range dtos {
		swap, err := dto.toDomain()
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, *swap)
	}
	return swaps, nil
}

func (r *swapRepository) GetReclaimable(
	ctx context.Context, before int64,
) ([]chanlib.SwapID, error) {
	query := badgerhold.Where("Timeout").Lt(before).
		And("Redeemed").Eq(true).
		Or(badgerhold.Where("Timeout").Lt(before).And("Refunded").Eq(true))
	dtos, err := r.find(ctx, query)
	if err != nil {
		return nil, err
	}

	ids := make([]chanlib.SwapID, 0, len(dtos))
	for _, dto := range dtos {
		id, err := chanlib.ParseSwapID(dto.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *swapRepository) Close() {
	if r.ownsStore {
		// nolint:all
		r.store.Close()
	}
}

func (r *swapRepository) find(ctx context.Context, query *badgerhold.Query) ([]swapDTO, error) {
	dtos := make([]swapDTO, 0)
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = r.store.TxFind(tx, &dtos, query)
	} else {
		err = r.store.Find(&dtos, query)
	}
	return dtos, err
}

func toSwapDTO(s *domain.Swap) swapDTO {
	return swapDTO{
		ID:           s.ID.String(),
		Staker:       s.Staker.String(),
		Recipient:    s.Recipient.String(),
		Asset:        s.Asset.String(),
		Amount:       s.Amount.Dec(),
		Hashlock:     append([]byte{}, s.Hashlock[:]...),
		Deadline:     s.Deadline,
		Timeout:      s.Timeout,
		RedeemStart:  s.RedeemStart,
		MultichainID: hex.EncodeToString(s.MultichainID[:]),
		Leg:          int(s.Leg),
		Redeemed:     s.Redeemed,
		Refunded:     s.Refunded,
		Preimage:     append([]byte{}, s.Preimage...),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (d swapDTO) toDomain() (*domain.Swap, error) {
	id, err := chanlib.ParseSwapID(d.ID)
	if err != nil {
		return nil, err
	}
	staker, err := chanlib.ParseAddress(d.Staker)
	if err != nil {
		return nil, err
	}
	recipient, err := chanlib.ParseAddress(d.Recipient)
	if err != nil {
		return nil, err
	}
	asset, err := chanlib.ParseAddress(d.Asset)
	if err != nil {
		return nil, err
	}
	multichainID, err := hex.DecodeString(d.MultichainID)
	if err != nil {
		return nil, fmt.Errorf("invalid multichain id: %s", err)
	}

	s := &domain.Swap{
		ID:          id,
		Staker:      staker,
		Recipient:   recipient,
		Asset:       asset,
		Deadline:    d.Deadline,
		Timeout:     d.Timeout,
		RedeemStart: d.RedeemStart,
		Leg:         chanlib.Leg(d.Leg),
		Redeemed:    d.Redeemed,
		Refunded:    d.Refunded,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if err := s.Amount.SetFromDecimal(d.Amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %s", d.Amount, err)
	}
	copy(s.Hashlock[:], d.Hashlock)
	copy(s.MultichainID[:], multichainID)
	if len(d.Preimage) > 0 {
		s.Preimage = append([]byte{}, d.Preimage...)
	}
	return s, nil
}
