package application

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
)

// verifySigners recovers the signers of raw and checks that every required
// address signed it. Extra signers are ignored.
func verifySigners(
	verifier ports.SignatureVerifier, raw []byte, signatures [][]byte,
	required ...chanlib.Address,
) errors.Error {
	signers, err := verifier.Recover(chanlib.Digest(raw), signatures)
	if err != nil {
		var typedErr errors.Error
		if stderrors.As(err, &typedErr) {
			return typedErr
		}
		return errors.INVALID_SIGNATURE.Wrap(err)
	}

	signed := make(map[chanlib.Address]struct{}, len(signers))
	for _, s := range signers {
		signed[s] = struct{}{}
	}
	missing := make([]string, 0)
	for _, addr := range required {
		if _, ok := signed[addr]; !ok {
			missing = append(missing, addr.String())
		}
	}
	if len(missing) > 0 {
		return errors.MISSING_SIGNATURE.New("missing %d required signature(s)", len(missing)).
			WithMetadata(errors.MissingSignatureMetadata{Missing: missing})
	}
	return nil
}

// toTypedError returns err as is if it carries a code, otherwise it wraps
// it as an internal error.
func toTypedError(err error) errors.Error {
	if err == nil {
		return nil
	}
	var typedErr errors.Error
	if stderrors.As(err, &typedErr) {
		return typedErr
	}
	return errors.INTERNAL_ERROR.Wrap(err)
}

func getChannel(
	ctx context.Context, repo domain.ChannelRepository, id chanlib.ChannelID,
) (*domain.Channel, errors.Error) {
	channel, err := repo.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, domain.ErrChannelNotFound) {
			return nil, errors.UNKNOWN_CHANNEL.New("channel %s not found", id).
				WithMetadata(errors.ChannelMetadata{ChannelID: id.String()})
		}
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": id.String()})
	}
	return channel, nil
}

func getSwap(
	ctx context.Context, repo domain.SwapRepository, id chanlib.SwapID,
) (*domain.Swap, errors.Error) {
	swap, err := repo.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, domain.ErrSwapNotFound) {
			return nil, errors.UNKNOWN_SWAP.New("swap %s not found", id).
				WithMetadata(errors.SwapMetadata{SwapID: id.String()})
		}
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"swap_id": id.String()})
	}
	return swap, nil
}

func channelExists(
	ctx context.Context, repo domain.ChannelRepository, id chanlib.ChannelID,
) (bool, errors.Error) {
	if _, err := repo.Get(ctx, id); err != nil {
		if stderrors.Is(err, domain.ErrChannelNotFound) {
			return false, nil
		}
		return false, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": id.String()})
	}
	return true, nil
}

func swapExists(
	ctx context.Context, repo domain.SwapRepository, id chanlib.SwapID,
) (bool, errors.Error) {
	if _, err := repo.Get(ctx, id); err != nil {
		if stderrors.Is(err, domain.ErrSwapNotFound) {
			return false, nil
		}
		return false, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"swap_id": id.String()})
	}
	return true, nil
}

func newChannelEvent(t domain.EventType, id chanlib.ChannelID, now int64) domain.ChannelEvent {
	return domain.ChannelEvent{Id: id.String(), Type: t, Timestamp: now}
}

func newSwapEvent(t domain.EventType, id chanlib.SwapID, now int64) domain.SwapEvent {
	return domain.SwapEvent{Id: id.String(), Type: t, Timestamp: now}
}

func addressesToStrings(addrs []chanlib.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func newRequestId() string {
	return uuid.New().String()
}
