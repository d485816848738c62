package application

import (
	"context"
	"encoding/hex"

	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
)

type swapEngine struct {
	repoManager ports.RepoManager
	verifier    ports.SignatureVerifier
	owner       chanlib.Address
}

func (e *swapEngine) ledger() tokenLedger {
	return tokenLedger{e.repoManager.Ledger()}
}

func (e *swapEngine) stake(
	ctx context.Context, now int64, req *StakeRequest,
) (*outcome, errors.Error) {
	msg, id := req.stake, req.id

	if err := verifySigners(
		e.verifier, req.Message, req.Signatures, e.owner, msg.Staker,
	); err != nil {
		return nil, err
	}

	switch {
	case msg.Deadline >= msg.Timeout:
		return nil, invalidTimelockErr(id, msg, "deadline must be before timeout")
	case now >= msg.Deadline:
		return nil, invalidTimelockErr(id, msg, "deadline already passed")
	case msg.RedeemStart >= msg.Timeout:
		return nil, invalidTimelockErr(id, msg, "redeem start must be before timeout")
	}

	repo := e.repoManager.Swaps()
	// The replaced slot is released first so that a stake can take over an
	// expired record with its own id.
	if req.ReplaceID != nil {
		old, err := getSwap(ctx, repo, *req.ReplaceID)
		if err != nil {
			return nil, err
		}
		if !old.Reclaimable(now) {
			return nil, slotInUseErr(old.ID, "swap %s is still active", old.ID)
		}
		if err := repo.Delete(ctx, old.ID); err != nil {
			return nil, errors.INTERNAL_ERROR.Wrap(err).
				WithMetadata(map[string]any{"swap_id": old.ID.String()})
		}
	}

	exists, err := swapExists(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, slotInUseErr(id, "swap %s already exists", id)
	}

	swap := domain.NewSwap(id, msg, now)
	if swap.IsMultichain() {
		legs, err := repo.GetByMultichainID(ctx, swap.MultichainID)
		if err != nil {
			return nil, errors.INTERNAL_ERROR.Wrap(err).
				WithMetadata(map[string]any{"swap_id": id.String()})
		}
		if err := checkLegs(swap, legs); err != nil {
			return nil, err
		}
	}

	if err := e.ledger().transfer(
		ctx, domain.AccountOwner(swap.Staker), domain.SwapEscrowOwner(id),
		swap.Asset, &swap.Amount,
	); err != nil {
		return nil, err
	}
	if err := repo.Add(ctx, swap); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"swap_id": id.String()})
	}

	return &outcome{
		result: &Result{SwapID: &id},
		event: domain.Swapped{
			SwapEvent: newSwapEvent(domain.EventTypeSwapped, id, now),
		},
	}, nil
}

func (e *swapEngine) redeem(
	ctx context.Context, now int64, req *RedeemRequest,
) (*outcome, errors.Error) {
	swap, err := getSwap(ctx, e.repoManager.Swaps(), req.SwapID)
	if err != nil {
		return nil, err
	}

	if swap.Redeemed {
		return &outcome{
			result: &Result{SwapID: &swap.ID, Redeemed: false},
			event: domain.MultichainRedeemed{
				SwapEvent: newSwapEvent(domain.EventTypeMultichainRedeemed, swap.ID, now),
				Redeemed:  false,
			},
		}, nil
	}
	if swap.Refunded || now >= swap.RedeemCutoff() {
		return nil, errors.TIMEOUT_EXPIRED.New("swap %s can't be redeemed anymore", swap.ID).
			WithMetadata(errors.TimelockMetadata{
				ID:       swap.ID.String(),
				Now:      now,
				Deadline: swap.Deadline,
				Timeout:  swap.Timeout,
			})
	}
	if now < swap.RedeemStart {
		return nil, errors.TIMEOUT_NOT_REACHED.New(
			"swap %s can be redeemed from %d", swap.ID, swap.RedeemStart,
		).WithMetadata(errors.TimelockMetadata{
			ID:      swap.ID.String(),
			Now:     now,
			Timeout: swap.RedeemStart,
		})
	}
	if chanlib.Hashlock(req.Preimage) != swap.Hashlock {
		return nil, errors.WRONG_PREIMAGE.New("preimage doesn't unlock swap %s", swap.ID).
			WithMetadata(errors.PreimageMetadata{ID: swap.ID.String()})
	}

	if err := e.ledger().transfer(
		ctx, domain.SwapEscrowOwner(swap.ID), domain.AccountOwner(swap.Recipient),
		swap.Asset, &swap.Amount,
	); err != nil {
		return nil, err
	}
	if err := swap.Redeem(req.Preimage, now); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"swap_id": swap.ID.String()})
	}
	if err := e.repoManager.Swaps().Update(ctx, swap); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"swap_id": swap.ID.String()})
	}

	return &outcome{
		result: &Result{SwapID: &swap.ID, Redeemed: true},
		event: domain.MultichainRedeemed{
			SwapEvent: newSwapEvent(domain.EventTypeMultichainRedeemed, swap.ID, now),
			Redeemed:  true,
			Preimage:  hex.EncodeToString(req.Preimage),
		},
		payouts: []domain.Payout{{
			Participant: swap.Recipient,
			Asset:       swap.Asset,
			Amount:      swap.Amount,
		}},
	}, nil
}

func (e *swapEngine) refund(
	ctx context.Context, now int64, req *RefundRequest,
) (*outcome, errors.Error) {
	swap, err := getSwap(ctx, e.repoManager.Swaps(), req.SwapID)
	if err != nil {
		return nil, err
	}
	if swap.IsFinalized() {
		return nil, slotInUseErr(swap.ID, "swap %s is already finalized", swap.ID)
	}
	if !swap.IsExpired(now) {
		return nil, errors.TIMEOUT_NOT_REACHED.New(
			"swap %s can be refunded from %d", swap.ID, swap.Timeout,
		).WithMetadata(errors.TimelockMetadata{
			ID:      swap.ID.String(),
			Now:     now,
			Timeout: swap.Timeout,
		})
	}

	if err := e.ledger().transfer(
		ctx, domain.SwapEscrowOwner(swap.ID), domain.AccountOwner(swap.Staker),
		swap.Asset, &swap.Amount,
	); err != nil {
		return nil, err
	}
	if err := swap.Refund(now); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"swap_id": swap.ID.String()})
	}
	if err := e.repoManager.Swaps().Update(ctx, swap); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"swap_id": swap.ID.String()})
	}

	return &outcome{
		result: &Result{SwapID: &swap.ID},
		event: domain.SwapRefunded{
			SwapEvent: newSwapEvent(domain.EventTypeSwapRefunded, swap.ID, now),
		},
		payouts: []domain.Payout{{
			Participant: swap.Staker,
			Asset:       swap.Asset,
			Amount:      swap.Amount,
		}},
		alerts: []alert{{ports.SwapRefunded, ports.SwapAlert{
			SwapID:    swap.ID.String(),
			Staker:    swap.Staker.String(),
			Recipient: swap.Recipient.String(),
			Asset:     swap.Asset.String(),
			Amount:    swap.Amount.Dec(),
		}}},
	}, nil
}

// checkLegs validates the timelocks of a new leg against every correlated
// leg of the opposite side already registered.
func checkLegs(swap *domain.Swap, legs []domain.Swap) errors.Error {
	for i := range legs {
		other := &legs[i]
		if other.Leg == swap.Leg {
			continue
		}
		pay, receive := swap, other
		if swap.Leg == chanlib.LegReceive {
			pay, receive = other, swap
		}
		if err := domain.ValidateLegOrdering(pay, receive); err != nil {
			return errors.INVALID_TIMELOCK.Wrap(err).
				WithMetadata(errors.InvalidTimelockMetadata{
					ID:           swap.ID.String(),
					MultichainID: hex.EncodeToString(swap.MultichainID[:]),
					Reason:       err.Error(),
				})
		}
	}
	return nil
}

func invalidTimelockErr(id chanlib.SwapID, msg *chanlib.Stake, reason string) errors.Error {
	md := errors.InvalidTimelockMetadata{ID: id.String(), Reason: reason}
	if msg.MultichainID != [chanlib.HashSize]byte{} {
		md.MultichainID = hex.EncodeToString(msg.MultichainID[:])
	}
	return errors.INVALID_TIMELOCK.New("%s", reason).WithMetadata(md)
}

func slotInUseErr(id chanlib.SwapID, format string, args ...any) errors.Error {
	return errors.SLOT_IN_USE.New(format, args...).
		WithMetadata(errors.SwapMetadata{SwapID: id.String()})
}
