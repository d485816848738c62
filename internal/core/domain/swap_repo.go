package domain

import (
	"context"
	"errors"

	"github.com/lockstep-labs/chand/pkg/chanlib"
)

var ErrSwapNotFound = errors.New("swap not found")

type SwapRepository interface {
	Add(ctx context.Context, swap *Swap) error
	Get(ctx context.Context, id chanlib.SwapID) (*Swap, error)
	Update(ctx context.Context, swap *Swap) error
	Delete(ctx context.Context, id chanlib.SwapID) error
	GetByMultichainID(ctx context.Context, multichainID [chanlib.HashSize]byte) ([]Swap, error)
	// GetReclaimable returns the finalized swaps whose timeout is before the
	// given time.
	GetReclaimable(ctx context.Context, before int64) ([]chanlib.SwapID, error)
	Close()
}
