package ports

import (
	"context"

	"github.com/lockstep-labs/chand/internal/core/domain"
)

type RepoManager interface {
	Events() domain.EventRepository
	Channels() domain.ChannelRepository
	Swaps() domain.SwapRepository
	Ledger() domain.LedgerRepository
	// RunInTx runs fn in one transaction spanning channels, swaps and ledger.
	// Repositories called with the context passed to fn join the transaction,
	// which is rolled back if fn returns an error.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	Close()
}
