package application

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type adminService struct {
	repoManager ports.RepoManager
	liveStore   ports.LiveStore
}

func NewAdminService(repoManager ports.RepoManager, liveStore ports.LiveStore) AdminService {
	return &adminService{repoManager, liveStore}
}

// Deposit credits funds received from outside the system to the owner's
// account and returns the new balance.
func (a *adminService) Deposit(
	ctx context.Context, owner, asset chanlib.Address, amount *uint256.Int,
) (*uint256.Int, errors.Error) {
	if err := validateAdminAmount(owner, amount); err != nil {
		return nil, err
	}

	var balance *uint256.Int
	if err := a.run(ctx, "deposit", true, func(ctx context.Context) error {
		ledger := tokenLedger{a.repoManager.Ledger()}
		if err := ledger.credit(ctx, domain.AccountOwner(owner), asset, amount); err != nil {
			return err
		}
		b, err := ledger.balance(ctx, domain.AccountOwner(owner), asset)
		if err != nil {
			return err
		}
		balance = b
		return nil
	}); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"owner":  owner.String(),
		"asset":  asset.String(),
		"amount": amount.Dec(),
	}).Debug("deposited funds")
	return balance, nil
}

// Withdraw debits funds leaving the system from the owner's account and
// returns the new balance.
func (a *adminService) Withdraw(
	ctx context.Context, owner, asset chanlib.Address, amount *uint256.Int,
) (*uint256.Int, errors.Error) {
	if err := validateAdminAmount(owner, amount); err != nil {
		return nil, err
	}

	var balance *uint256.Int
	if err := a.run(ctx, "withdraw", false, func(ctx context.Context) error {
		ledger := tokenLedger{a.repoManager.Ledger()}
		if err := ledger.debit(ctx, domain.AccountOwner(owner), asset, amount); err != nil {
			return err
		}
		b, err := ledger.balance(ctx, domain.AccountOwner(owner), asset)
		if err != nil {
			return err
		}
		balance = b
		return nil
	}); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"owner":  owner.String(),
		"asset":  asset.String(),
		"amount": amount.Dec(),
	}).Debug("withdrew funds")
	return balance, nil
}

func (a *adminService) GetBalance(
	ctx context.Context, owner, asset chanlib.Address,
) (*uint256.Int, errors.Error) {
	return tokenLedger{a.repoManager.Ledger()}.balance(ctx, domain.AccountOwner(owner), asset)
}

func (a *adminService) GetBalances(
	ctx context.Context, owner domain.LedgerOwner,
) ([]domain.LedgerEntry, errors.Error) {
	entries, err := a.repoManager.Ledger().GetBalances(ctx, owner)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"owner": owner.String()})
	}
	return entries, nil
}

func (a *adminService) GetChannel(
	ctx context.Context, id chanlib.ChannelID,
) (*domain.Channel, errors.Error) {
	return getChannel(ctx, a.repoManager.Channels(), id)
}

func (a *adminService) GetSwap(ctx context.Context, id chanlib.SwapID) (*domain.Swap, errors.Error) {
	return getSwap(ctx, a.repoManager.Swaps(), id)
}

// run executes fn in a transaction under the execution lock. When ctx
// already holds it, fn runs inline only if reentrant is set: funds may be
// credited from a payout hook but never sent out of the system.
func (a *adminService) run(
	ctx context.Context, operation string, reentrant bool,
	fn func(ctx context.Context) error,
) errors.Error {
	if token, ok := ctx.Value(executionTokenKey{}).(*executionToken); ok {
		if !reentrant {
			return errors.REENTRANT_CALL.New(
				"%s called while %s is in progress", operation, token.operation,
			).WithMetadata(errors.OperationMetadata{Operation: operation})
		}
		return toTypedError(a.repoManager.RunInTx(ctx, fn))
	}

	release, err := a.liveStore.ExecutionLock().Lock(ctx)
	if err != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to acquire lock: %w", err)).
			WithMetadata(map[string]any{"operation": operation})
	}
	defer release()
	return toTypedError(a.repoManager.RunInTx(ctx, fn))
}

func validateAdminAmount(owner chanlib.Address, amount *uint256.Int) errors.Error {
	if owner.IsZero() {
		return errors.INVALID_MESSAGE.New("missing owner").
			WithMetadata(errors.MessageMetadata{Reason: "missing owner"})
	}
	if amount == nil || amount.IsZero() {
		return errors.INVALID_MESSAGE.New("amount must be greater than zero").
			WithMetadata(errors.MessageMetadata{Reason: "zero amount"})
	}
	return nil
}
