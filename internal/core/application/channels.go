package application

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
)

// outcome is what an operation leaves to do once its transaction commits.
type outcome struct {
	result  *Result
	event   domain.Event
	payouts []domain.Payout
	alerts  []alert
	// withdrawableAt, if set, is when a disputed channel can be withdrawn.
	withdrawableAt int64
}

type alert struct {
	topic   ports.Topic
	message any
}

type channelStateMachine struct {
	repoManager ports.RepoManager
	verifier    ports.SignatureVerifier
	owner       chanlib.Address
}

func (m *channelStateMachine) ledger() tokenLedger {
	return tokenLedger{m.repoManager.Ledger()}
}

func (m *channelStateMachine) anchor(
	ctx context.Context, now int64, req *AnchorRequest,
) (*outcome, errors.Error) {
	state := req.state
	id := state.ChannelID()

	if state.Nonce != 0 {
		return nil, errors.INVALID_MESSAGE.New("anchor nonce must be 0, got %d", state.Nonce).
			WithMetadata(errors.MessageMetadata{Kind: state.Type.String(), Reason: "non zero nonce"})
	}
	if state.Type != chanlib.MessageTypeRegular || len(state.Shards) > 0 {
		return nil, errors.INVALID_MESSAGE.New("anchor state must not carry shards").
			WithMetadata(errors.MessageMetadata{Kind: state.Type.String(), Reason: "shards"})
	}

	required := append([]chanlib.Address{m.owner}, state.Participants...)
	if err := verifySigners(m.verifier, req.Message, req.Signatures, required...); err != nil {
		return nil, err
	}

	exists, err := channelExists(ctx, m.repoManager.Channels(), id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.DUPLICATE_CHANNEL.New("channel %s already exists", id).
			WithMetadata(errors.ChannelMetadata{ChannelID: id.String()})
	}
	closed, cerr := m.repoManager.Channels().IsClosed(ctx, id)
	if cerr != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(cerr).
			WithMetadata(map[string]any{"channel_id": id.String()})
	}
	if closed {
		return nil, errors.DUPLICATE_CHANNEL.New("channel %s was already closed", id).
			WithMetadata(errors.ChannelMetadata{ChannelID: id.String()})
	}

	if state.Deadline <= now {
		return nil, errors.DEADLINE_EXPIRED.New("anchor deadline %d already passed", state.Deadline).
			WithMetadata(errors.TimelockMetadata{ID: id.String(), Now: now, Deadline: state.Deadline})
	}

	channel := domain.NewChannel(state, chanlib.Digest(req.Message), now)
	escrow := domain.ChannelEscrowOwner(id)
	ledger := m.ledger()
	for _, a := range channel.Allocations {
		for i, p := range channel.Participants {
			if err := ledger.transfer(
				ctx, domain.AccountOwner(p), escrow, a.Asset, &a.Balances[i],
			); err != nil {
				return nil, err
			}
		}
	}

	if err := m.repoManager.Channels().Add(ctx, channel); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": id.String()})
	}
	if err := ledger.checkEscrow(ctx, channel); err != nil {
		return nil, err
	}

	return &outcome{
		result: &Result{ChannelID: &id, Nonce: channel.Nonce},
		event: domain.Anchored{
			ChannelEvent: newChannelEvent(domain.EventTypeAnchored, id, now),
			Participants: addressesToStrings(channel.Participants),
		},
	}, nil
}

func (m *channelStateMachine) update(
	ctx context.Context, now int64, req *UpdateRequest,
) (*outcome, errors.Error) {
	state := req.state
	channel, err := getChannel(ctx, m.repoManager.Channels(), state.ChannelID())
	if err != nil {
		return nil, err
	}
	if channel.Status != domain.ChannelStatusOpen {
		return nil, invalidChannelStateErr(channel, "channel is %s", channel.Status)
	}
	if err := verifySigners(
		m.verifier, req.Message, req.Signatures, channel.Participants...,
	); err != nil {
		return nil, err
	}
	if state.Nonce <= channel.Nonce {
		return nil, staleNonceErr(channel, state.Nonce)
	}
	if err := checkConservation(channel, state); err != nil {
		return nil, err
	}

	channel.Apply(state, chanlib.Digest(req.Message), now)
	if err := m.repoManager.Channels().Update(ctx, channel); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}

	return &outcome{
		result: &Result{ChannelID: &channel.ID, Nonce: channel.Nonce},
	}, nil
}

func (m *channelStateMachine) addFunds(
	ctx context.Context, now int64, req *AddFundsRequest,
) (*outcome, errors.Error) {
	state := req.state
	channel, err := getChannel(ctx, m.repoManager.Channels(), state.ChannelID())
	if err != nil {
		return nil, err
	}
	if channel.Status != domain.ChannelStatusOpen {
		return nil, invalidChannelStateErr(channel, "channel is %s", channel.Status)
	}
	if err := verifySigners(
		m.verifier, req.Message, req.Signatures, channel.Participants...,
	); err != nil {
		return nil, err
	}
	if state.Nonce <= channel.Nonce {
		return nil, staleNonceErr(channel, state.Nonce)
	}

	deltas, err := fundingDeltas(channel, state)
	if err != nil {
		return nil, err
	}

	escrow := domain.ChannelEscrowOwner(channel.ID)
	ledger := m.ledger()
	for _, d := range deltas {
		if err := ledger.transfer(
			ctx, domain.AccountOwner(d.Participant), escrow, d.Asset, &d.Amount,
		); err != nil {
			return nil, err
		}
	}

	channel.Apply(state, chanlib.Digest(req.Message), now)
	if err := m.repoManager.Channels().Update(ctx, channel); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}
	if err := ledger.checkEscrow(ctx, channel); err != nil {
		return nil, err
	}

	return &outcome{
		result: &Result{ChannelID: &channel.ID, Nonce: channel.Nonce},
		event: domain.FundsAddedToChannel{
			ChannelEvent: newChannelEvent(domain.EventTypeFundsAddedToChannel, channel.ID, now),
			Nonce:        channel.Nonce,
			Participants: addressesToStrings(channel.Participants),
		},
	}, nil
}

func (m *channelStateMachine) startDispute(
	ctx context.Context, now int64, req *StartDisputeRequest,
) (*outcome, errors.Error) {
	state := req.state
	channel, err := getChannel(ctx, m.repoManager.Channels(), state.ChannelID())
	if err != nil {
		return nil, err
	}
	if !channel.IsParticipant(req.Caller) {
		return nil, errors.UNAUTHORIZED.New(
			"%s is not a participant of channel %s", req.Caller, channel.ID,
		).WithMetadata(errors.CallerMetadata{
			Caller:    req.Caller.String(),
			ChannelID: channel.ID.String(),
		})
	}
	if err := verifySigners(
		m.verifier, req.Message, req.Signatures, channel.Participants...,
	); err != nil {
		return nil, err
	}
	if now >= channel.Deadline {
		return nil, errors.DEADLINE_EXPIRED.New(
			"dispute window of channel %s closed at %d", channel.ID, channel.Deadline,
		).WithMetadata(errors.TimelockMetadata{
			ID:       channel.ID.String(),
			Now:      now,
			Deadline: channel.Deadline,
		})
	}
	// A disputed channel may only be superseded by a newer state, otherwise
	// resubmitting it would reset the shards already resolved.
	if state.Nonce < channel.Nonce || (channel.IsDisputed() && state.Nonce == channel.Nonce) {
		return nil, staleNonceErr(channel, state.Nonce)
	}
	if err := checkConservation(channel, state); err != nil {
		return nil, err
	}

	timeout, deadline := channel.Timeout, channel.Deadline
	channel.Apply(state, chanlib.Digest(req.Message), now)
	channel.Timeout = timeout
	channel.Deadline = deadline
	channel.Status = domain.ChannelStatusDisputing
	if err := m.repoManager.Channels().Update(ctx, channel); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}

	return &outcome{
		result: &Result{ChannelID: &channel.ID, Nonce: channel.Nonce},
		event: domain.DisputeStarted{
			ChannelEvent: newChannelEvent(domain.EventTypeDisputeStarted, channel.ID, now),
			Nonce:        channel.Nonce,
			MessageType:  channel.MessageType.String(),
		},
		alerts:         []alert{{ports.DisputeStarted, channelAlert(channel)}},
		withdrawableAt: channel.Timeout,
	}, nil
}

func (m *channelStateMachine) settle(
	ctx context.Context, now int64, req *SettleRequest,
) (*outcome, errors.Error) {
	state := req.state
	channel, err := getChannel(ctx, m.repoManager.Channels(), state.ChannelID())
	if err != nil {
		return nil, err
	}
	if err := verifySigners(
		m.verifier, req.Message, req.Signatures, channel.Participants...,
	); err != nil {
		return nil, err
	}
	if state.Nonce < channel.Nonce {
		return nil, staleNonceErr(channel, state.Nonce)
	}
	if len(state.Shards) > 0 {
		return nil, errors.INVALID_MESSAGE.New("settlement state must not carry shards").
			WithMetadata(errors.MessageMetadata{Kind: state.Type.String(), Reason: "shards"})
	}
	if err := checkConservation(channel, state); err != nil {
		return nil, err
	}

	channel.Apply(state, chanlib.Digest(req.Message), now)
	payouts, perr := channel.Payouts()
	if perr != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(perr).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}
	if err := m.close(ctx, channel, payouts); err != nil {
		return nil, err
	}

	return &outcome{
		result: &Result{ChannelID: &channel.ID, Nonce: channel.Nonce},
		event: domain.Settled{
			ChannelEvent: newChannelEvent(domain.EventTypeSettled, channel.ID, now),
			Participants: addressesToStrings(channel.Participants),
		},
		payouts: payouts,
	}, nil
}

func (m *channelStateMachine) settleSubset(
	ctx context.Context, now int64, req *SettleSubsetRequest,
) (*outcome, errors.Error) {
	msg := req.settlement
	channel, err := getChannel(ctx, m.repoManager.Channels(), msg.ChannelID)
	if err != nil {
		return nil, err
	}
	if err := verifySigners(
		m.verifier, req.Message, req.Signatures, channel.Participants...,
	); err != nil {
		return nil, err
	}
	if msg.Nonce <= channel.Nonce {
		return nil, staleNonceErr(channel, msg.Nonce)
	}

	for _, s := range msg.Shards {
		shard, ok := channel.Shard(s.Number)
		if !ok {
			return nil, unknownShardErr(channel, s.Number)
		}
		if shard.IsResolved() {
			return nil, shardResolvedErr(channel, shard)
		}
	}
	for _, s := range msg.Shards {
		if err := channel.FoldShard(s.Number, s.Outcome); err != nil {
			return nil, errors.INTERNAL_ERROR.Wrap(err).
				WithMetadata(map[string]any{"channel_id": channel.ID.String()})
		}
	}

	channel.Nonce = msg.Nonce
	channel.UpdatedAt = now
	if channel.Status == domain.ChannelStatusDisputing {
		channel.Status = domain.ChannelStatusSettledSubset
	}
	if err := m.repoManager.Channels().Update(ctx, channel); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}
	if err := m.ledger().checkEscrow(ctx, channel); err != nil {
		return nil, err
	}

	return &outcome{
		result: &Result{ChannelID: &channel.ID, Nonce: channel.Nonce},
		event: domain.SettledSubset{
			ChannelEvent: newChannelEvent(domain.EventTypeSettledSubset, channel.ID, now),
			Nonce:        channel.Nonce,
			Payload:      hexOrEmpty(req.Message),
		},
	}, nil
}

func (m *channelStateMachine) changeShardState(
	ctx context.Context, now int64, req *ChangeShardStateRequest,
) (*outcome, errors.Error) {
	channel, err := getChannel(ctx, m.repoManager.Channels(), req.ChannelID)
	if err != nil {
		return nil, err
	}
	if !channel.IsDisputed() {
		return nil, invalidChannelStateErr(channel, "channel is not disputed")
	}
	if channel.MessageType != chanlib.MessageTypeSharded {
		return nil, invalidChannelStateErr(channel, "channel state carries no shards")
	}
	if now >= channel.Timeout {
		return nil, errors.TIMEOUT_EXPIRED.New(
			"channel %s timed out at %d", channel.ID, channel.Timeout,
		).WithMetadata(errors.TimelockMetadata{
			ID:      channel.ID.String(),
			Now:     now,
			Timeout: channel.Timeout,
		})
	}

	hash := chanlib.Hashlock(req.Preimage)
	statuses := make([]domain.ShardStatus, 0, len(req.ShardNumbers))
	for _, n := range req.ShardNumbers {
		shard, ok := channel.Shard(n)
		if !ok {
			return nil, unknownShardErr(channel, n)
		}
		if shard.IsResolved() {
			return nil, shardResolvedErr(channel, shard)
		}
		switch {
		case hash == shard.Hashlock:
			statuses = append(statuses, domain.ShardStatusCompleted)
		case shard.RevertHashlock != nil && hash == *shard.RevertHashlock:
			statuses = append(statuses, domain.ShardStatusReverted)
		default:
			return nil, errors.WRONG_PREIMAGE.New(
				"preimage doesn't unlock shard %d", n,
			).WithMetadata(errors.PreimageMetadata{ID: channel.ID.String(), Shard: n})
		}
	}
	for i, n := range req.ShardNumbers {
		shard, _ := channel.Shard(n)
		shard.Status = statuses[i]
	}
	channel.UpdatedAt = now

	if err := m.repoManager.Channels().Update(ctx, channel); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}

	return &outcome{
		result: &Result{ChannelID: &channel.ID, Nonce: channel.Nonce},
		event: domain.ShardStateChanged{
			ChannelEvent: newChannelEvent(domain.EventTypeShardStateChanged, channel.ID, now),
			ShardNumbers: append([]uint32{}, req.ShardNumbers...),
			Preimage:     hex.EncodeToString(req.Preimage),
			MessageHash:  hex.EncodeToString(channel.Commitment[:]),
		},
	}, nil
}

func (m *channelStateMachine) withdraw(
	ctx context.Context, now int64, req *WithdrawRequest,
) (*outcome, errors.Error) {
	channel, err := getChannel(ctx, m.repoManager.Channels(), req.ChannelID)
	if err != nil {
		return nil, err
	}
	if !channel.IsDisputed() {
		return nil, invalidChannelStateErr(channel, "channel is not disputed")
	}
	if now < channel.Timeout {
		return nil, errors.TIMEOUT_NOT_REACHED.New(
			"channel %s can be withdrawn from %d", channel.ID, channel.Timeout,
		).WithMetadata(errors.TimelockMetadata{
			ID:      channel.ID.String(),
			Now:     now,
			Timeout: channel.Timeout,
		})
	}

	payouts, perr := channel.Payouts()
	if perr != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(perr).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}
	if err := m.close(ctx, channel, payouts); err != nil {
		return nil, err
	}

	return &outcome{
		result: &Result{ChannelID: &channel.ID, Nonce: channel.Nonce},
		event: domain.Settled{
			ChannelEvent: newChannelEvent(domain.EventTypeSettled, channel.ID, now),
			Participants: addressesToStrings(channel.Participants),
			Withdrawn:    true,
		},
		payouts: payouts,
		alerts:  []alert{{ports.ChannelWithdrawn, channelAlert(channel)}},
	}, nil
}

// close pays out the channel escrow and deletes the channel.
func (m *channelStateMachine) close(
	ctx context.Context, channel *domain.Channel, payouts []domain.Payout,
) errors.Error {
	escrow := domain.ChannelEscrowOwner(channel.ID)
	ledger := m.ledger()
	for i := range payouts {
		p := &payouts[i]
		if err := ledger.transfer(
			ctx, escrow, domain.AccountOwner(p.Participant), p.Asset, &p.Amount,
		); err != nil {
			return err
		}
	}

	left, err := m.repoManager.Ledger().GetBalances(ctx, escrow)
	if err != nil {
		return errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}
	for _, e := range left {
		if !e.Amount.IsZero() {
			return escrowMismatchErr(channel.ID, e.Asset, &e.Amount, new(uint256.Int))
		}
	}

	if err := m.repoManager.Channels().Delete(ctx, channel.ID); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}
	return nil
}

// checkConservation rejects a state whose per asset totals differ from the
// channel's ones.
func checkConservation(channel *domain.Channel, state *chanlib.State) errors.Error {
	current, err := channel.Totals()
	if err != nil {
		return errors.INTERNAL_ERROR.Wrap(err).
			WithMetadata(map[string]any{"channel_id": channel.ID.String()})
	}
	next, err := state.Totals()
	if err != nil {
		return invalidMessageErr(chanlib.Kind(state.Type), err)
	}
	for asset, total := range current {
		got, ok := next[asset]
		if !ok {
			got = new(uint256.Int)
		}
		if !got.Eq(total) {
			return errors.INVALID_MESSAGE.New(
				"asset %s total changed from %s to %s", asset, total.Dec(), got.Dec(),
			).WithMetadata(errors.MessageMetadata{
				Kind:   state.Type.String(),
				Reason: "funds not conserved",
			})
		}
	}
	for asset, total := range next {
		if _, ok := current[asset]; !ok && !total.IsZero() {
			return errors.INVALID_MESSAGE.New(
				"asset %s not held by the channel", asset,
			).WithMetadata(errors.MessageMetadata{
				Kind:   state.Type.String(),
				Reason: "funds not conserved",
			})
		}
	}
	return nil
}

type fundingDelta struct {
	Participant chanlib.Address
	Asset       chanlib.Address
	Amount      uint256.Int
}

// fundingDeltas returns the per participant increase of every balance.
// Balances can't decrease and shards must hold the same funds as before.
func fundingDeltas(channel *domain.Channel, state *chanlib.State) ([]fundingDelta, errors.Error) {
	notFunding := func(reason string) errors.Error {
		return errors.INVALID_MESSAGE.New("invalid funding state: %s", reason).
			WithMetadata(errors.MessageMetadata{Kind: state.Type.String(), Reason: reason})
	}

	shardTotals := func(assets map[chanlib.Address]*uint256.Int, shards []chanlib.Shard) {
		for i := range shards {
			sum, ok := assets[shards[i].Asset]
			if !ok {
				sum = new(uint256.Int)
				assets[shards[i].Asset] = sum
			}
			sum.Add(sum, &shards[i].Amount)
		}
	}
	before := make(map[chanlib.Address]*uint256.Int)
	stored := make([]chanlib.Shard, 0, len(channel.Shards))
	for _, s := range channel.Shards {
		stored = append(stored, s.Shard)
	}
	shardTotals(before, stored)
	after := make(map[chanlib.Address]*uint256.Int)
	shardTotals(after, state.Shards)
	if len(before) != len(after) {
		return nil, notFunding("shard funds changed")
	}
	for asset, amount := range before {
		if got, ok := after[asset]; !ok || !got.Eq(amount) {
			return nil, notFunding("shard funds changed")
		}
	}

	deltas := make([]fundingDelta, 0)
	for _, a := range state.Allocations {
		for i, p := range state.Participants {
			current := channel.Balance(a.Asset, i)
			if a.Balances[i].Lt(current) {
				return nil, notFunding("balance decreased")
			}
			if a.Balances[i].Eq(current) {
				continue
			}
			d := fundingDelta{Participant: p, Asset: a.Asset}
			d.Amount.Sub(&a.Balances[i], current)
			deltas = append(deltas, d)
		}
	}
	for _, a := range channel.Allocations {
		found := false
		for _, b := range state.Allocations {
			if b.Asset == a.Asset {
				found = true
				break
			}
		}
		if !found {
			for i := range a.Balances {
				if !a.Balances[i].IsZero() {
					return nil, notFunding("balance decreased")
				}
			}
		}
	}
	if len(deltas) <= 0 {
		return nil, notFunding("no funds added")
	}
	return deltas, nil
}

func channelAlert(channel *domain.Channel) ports.ChannelAlert {
	return ports.ChannelAlert{
		ChannelID:    channel.ID.String(),
		Participants: addressesToStrings(channel.Participants),
		Nonce:        channel.Nonce,
		Status:       channel.Status.String(),
		Timeout:      time.Unix(channel.Timeout, 0).UTC().Format(time.RFC3339),
	}
}

func staleNonceErr(channel *domain.Channel, got uint64) errors.Error {
	return errors.STALE_NONCE.New(
		"nonce %d is stale, channel %s is at %d", got, channel.ID, channel.Nonce,
	).WithMetadata(errors.NonceMetadata{
		ChannelID:   channel.ID.String(),
		StoredNonce: channel.Nonce,
		GotNonce:    got,
	})
}

func invalidChannelStateErr(channel *domain.Channel, format string, args ...any) errors.Error {
	return errors.INVALID_CHANNEL_STATE.New(format, args...).
		WithMetadata(errors.ChannelStateMetadata{
			ChannelID: channel.ID.String(),
			Status:    channel.Status.String(),
		})
}

func unknownShardErr(channel *domain.Channel, number uint32) errors.Error {
	return errors.INVALID_MESSAGE.New("shard %d not found in channel %s", number, channel.ID).
		WithMetadata(errors.MessageMetadata{Reason: "unknown shard"})
}

func shardResolvedErr(channel *domain.Channel, shard *domain.Shard) errors.Error {
	return errors.SHARD_ALREADY_RESOLVED.New("shard %d is already %s", shard.Number, shard.Status).
		WithMetadata(errors.ShardMetadata{
			ChannelID: channel.ID.String(),
			Shard:     shard.Number,
			Status:    shard.Status.String(),
		})
}
