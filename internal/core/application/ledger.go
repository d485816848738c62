package application

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
)

// tokenLedger moves funds between ledger owners. It must be used with the
// transactional context passed to RunInTx so that a failed operation leaves
// no partial movement behind.
type tokenLedger struct {
	repo domain.LedgerRepository
}

func (l tokenLedger) balance(
	ctx context.Context, owner domain.LedgerOwner, asset chanlib.Address,
) (*uint256.Int, errors.Error) {
	balance, err := l.repo.GetBalance(ctx, owner, asset)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"owner": owner.String(), "asset": asset.String()})
	}
	return balance, nil
}

func (l tokenLedger) credit(
	ctx context.Context, owner domain.LedgerOwner, asset chanlib.Address, amount *uint256.Int,
) errors.Error {
	if amount.IsZero() {
		return nil
	}
	balance, err := l.balance(ctx, owner, asset)
	if err != nil {
		return err
	}
	if _, overflow := balance.AddOverflow(balance, amount); overflow {
		return errors.INTERNAL_ERROR.New("balance overflow for %s", owner).
			WithMetadata(map[string]any{"owner": owner.String(), "asset": asset.String()})
	}
	if err := l.repo.SetBalance(ctx, owner, asset, balance); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"owner": owner.String(), "asset": asset.String()})
	}
	return nil
}

func (l tokenLedger) debit(
	ctx context.Context, owner domain.LedgerOwner, asset chanlib.Address, amount *uint256.Int,
) errors.Error {
	if amount.IsZero() {
		return nil
	}
	balance, err := l.balance(ctx, owner, asset)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return errors.INSUFFICIENT_FUNDS.New(
			"%s holds %s of asset %s, %s required", owner, balance.Dec(), asset, amount.Dec(),
		).WithMetadata(errors.InsufficientFundsMetadata{
			Owner:     owner.String(),
			Asset:     asset.String(),
			Available: balance.Dec(),
			Required:  amount.Dec(),
		})
	}
	balance.Sub(balance, amount)
	if err := l.repo.SetBalance(ctx, owner, asset, balance); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"owner": owner.String(), "asset": asset.String()})
	}
	return nil
}

func (l tokenLedger) transfer(
	ctx context.Context, from, to domain.LedgerOwner, asset chanlib.Address, amount *uint256.Int,
) errors.Error {
	if err := l.debit(ctx, from, asset, amount); err != nil {
		return err
	}
	return l.credit(ctx, to, asset, amount)
}

// checkEscrow verifies that the channel escrow holds exactly the funds the
// channel state accounts for.
func (l tokenLedger) checkEscrow(ctx context.Context, channel *domain.Channel) errors.Error {
	totals, err := channel.Totals()
	if err != nil {
		return errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}
	owner := domain.ChannelEscrowOwner(channel.ID)
	entries, err := l.repo.GetBalances(ctx, owner)
	if err != nil {
		return errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}
	held := make(map[chanlib.Address]*uint256.Int, len(entries))
	for i := range entries {
		held[entries[i].Asset] = &entries[i].Amount
	}
	for asset, total := range totals {
		amount, ok := held[asset]
		if !ok {
			amount = new(uint256.Int)
		}
		if !amount.Eq(total) {
			return escrowMismatchErr(channel.ID, asset, amount, total)
		}
		delete(held, asset)
	}
	for asset, amount := range held {
		if !amount.IsZero() {
			return escrowMismatchErr(channel.ID, asset, amount, new(uint256.Int))
		}
	}
	return nil
}

func escrowMismatchErr(
	id chanlib.ChannelID, asset chanlib.Address, held, expected *uint256.Int,
) errors.Error {
	return errors.INTERNAL_ERROR.New(
		"escrow of channel %s holds %s of asset %s, expected %s",
		id, held.Dec(), asset, expected.Dec(),
	).WithMetadata(map[string]any{
		"channel_id": id.String(),
		"asset":      asset.String(),
	})
}
