package ports

import (
	"context"

	"github.com/lockstep-labs/chand/internal/core/domain"
)

// PayoutHook is notified after funds leave an escrow, once the operation
// that released them is committed. It stands for the external transfer of
// the released funds and may call back into the service.
type PayoutHook interface {
	OnPayout(ctx context.Context, payouts []domain.Payout) error
}
