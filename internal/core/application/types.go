package application

import (
	"context"
	"encoding/hex"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
)

// Service is the gateway every state-mutating request goes through.
type Service interface {
	Start() errors.Error
	Stop()
	Submit(ctx context.Context, req Request) (*Result, errors.Error)
	GetEventsChannel(ctx context.Context) <-chan domain.Event
}

type AdminService interface {
	Deposit(
		ctx context.Context, owner, asset chanlib.Address, amount *uint256.Int,
	) (*uint256.Int, errors.Error)
	Withdraw(
		ctx context.Context, owner, asset chanlib.Address, amount *uint256.Int,
	) (*uint256.Int, errors.Error)
	GetBalance(ctx context.Context, owner, asset chanlib.Address) (*uint256.Int, errors.Error)
	GetBalances(ctx context.Context, owner domain.LedgerOwner) ([]domain.LedgerEntry, errors.Error)
	GetChannel(ctx context.Context, id chanlib.ChannelID) (*domain.Channel, errors.Error)
	GetSwap(ctx context.Context, id chanlib.SwapID) (*domain.Swap, errors.Error)
}

type Operation string

const (
	OpAnchor           Operation = "anchor"
	OpUpdate           Operation = "update"
	OpAddFunds         Operation = "add-funds"
	OpSettle           Operation = "settle"
	OpSettleSubset     Operation = "settle-subset"
	OpStartDispute     Operation = "start-dispute"
	OpWithdraw         Operation = "withdraw"
	OpChangeShardState Operation = "change-shard-state"
	OpStake            Operation = "stake"
	OpRedeem           Operation = "redeem"
	OpRefund           Operation = "refund"
)

// Request is one of the operation variants below. Each variant decodes and
// validates its own fields before it is dispatched.
type Request interface {
	Operation() Operation
	// exempt operations never move funds and may run while a guarded
	// operation holds the execution token.
	exempt() bool
	decode() errors.Error
}

type Result struct {
	Operation Operation
	ChannelID *chanlib.ChannelID
	SwapID    *chanlib.SwapID
	Nonce     uint64
	Redeemed  bool
}

type AnchorRequest struct {
	Message    []byte
	Signatures [][]byte

	state *chanlib.State
}

func (r *AnchorRequest) Operation() Operation { return OpAnchor }
func (r *AnchorRequest) exempt() bool         { return false }
func (r *AnchorRequest) decode() (err errors.Error) {
	r.state, err = decodeState(r.Message, r.Signatures)
	return
}

type UpdateRequest struct {
	Message    []byte
	Signatures [][]byte
	Nonce      uint64

	state *chanlib.State
}

func (r *UpdateRequest) Operation() Operation { return OpUpdate }
func (r *UpdateRequest) exempt() bool         { return true }
func (r *UpdateRequest) decode() errors.Error {
	state, err := decodeState(r.Message, r.Signatures)
	if err != nil {
		return err
	}
	if state.Nonce != r.Nonce {
		return errors.INVALID_MESSAGE.New(
			"request nonce %d doesn't match message nonce %d", r.Nonce, state.Nonce,
		).WithMetadata(errors.MessageMetadata{Kind: state.Type.String(), Reason: "nonce mismatch"})
	}
	r.state = state
	return nil
}

type AddFundsRequest struct {
	Message    []byte
	Signatures [][]byte

	state *chanlib.State
}

func (r *AddFundsRequest) Operation() Operation { return OpAddFunds }
func (r *AddFundsRequest) exempt() bool         { return false }
func (r *AddFundsRequest) decode() (err errors.Error) {
	r.state, err = decodeState(r.Message, r.Signatures)
	return
}

type SettleRequest struct {
	Message    []byte
	Signatures [][]byte

	state *chanlib.State
}

func (r *SettleRequest) Operation() Operation { return OpSettle }
func (r *SettleRequest) exempt() bool         { return false }
func (r *SettleRequest) decode() (err errors.Error) {
	r.state, err = decodeState(r.Message, r.Signatures)
	return
}

type SettleSubsetRequest struct {
	Message    []byte
	Signatures [][]byte

	settlement *chanlib.SubsetSettlement
}

func (r *SettleSubsetRequest) Operation() Operation { return OpSettleSubset }
func (r *SettleSubsetRequest) exempt() bool         { return false }
func (r *SettleSubsetRequest) decode() errors.Error {
	if len(r.Signatures) <= 0 {
		return missingSignaturesErr(chanlib.KindSubsetSettlement)
	}
	var msg chanlib.SubsetSettlement
	if err := msg.Decode(r.Message); err != nil {
		return invalidMessageErr(chanlib.KindSubsetSettlement, err)
	}
	r.settlement = &msg
	return nil
}

type StartDisputeRequest struct {
	Message     []byte
	Signatures  [][]byte
	MessageType chanlib.MessageType
	// Caller is the authenticated identity submitting the dispute.
	Caller chanlib.Address

	state *chanlib.State
}

func (r *StartDisputeRequest) Operation() Operation { return OpStartDispute }
func (r *StartDisputeRequest) exempt() bool         { return true }
func (r *StartDisputeRequest) decode() errors.Error {
	state, err := decodeState(r.Message, r.Signatures)
	if err != nil {
		return err
	}
	if state.Type != r.MessageType {
		return errors.INVALID_MESSAGE.New(
			"message type %s doesn't match encoded type %s", r.MessageType, state.Type,
		).WithMetadata(errors.MessageMetadata{Kind: state.Type.String(), Reason: "type mismatch"})
	}
	if r.Caller.IsZero() {
		return errors.UNAUTHORIZED.New("missing caller")
	}
	r.state = state
	return nil
}

type WithdrawRequest struct {
	ChannelID chanlib.ChannelID
}

func (r *WithdrawRequest) Operation() Operation { return OpWithdraw }
func (r *WithdrawRequest) exempt() bool         { return false }
func (r *WithdrawRequest) decode() errors.Error { return nil }

type ChangeShardStateRequest struct {
	ChannelID    chanlib.ChannelID
	Preimage     []byte
	ShardNumbers []uint32
}

func (r *ChangeShardStateRequest) Operation() Operation { return OpChangeShardState }
func (r *ChangeShardStateRequest) exempt() bool         { return false }
func (r *ChangeShardStateRequest) decode() errors.Error {
	if err := validatePreimage(r.Preimage); err != nil {
		return err
	}
	if len(r.ShardNumbers) <= 0 {
		return errors.INVALID_MESSAGE.New("missing shard numbers").
			WithMetadata(errors.MessageMetadata{Reason: "no shards"})
	}
	seen := make(map[uint32]struct{}, len(r.ShardNumbers))
	for _, n := range r.ShardNumbers {
		if _, ok := seen[n]; ok {
			return errors.INVALID_MESSAGE.New("duplicate shard number %d", n).
				WithMetadata(errors.MessageMetadata{Reason: "duplicate shard"})
		}
		seen[n] = struct{}{}
	}
	return nil
}

type StakeRequest struct {
	Message    []byte
	Signatures [][]byte
	// ReplaceID optionally names a finalized, expired record whose slot the
	// new swap takes over.
	ReplaceID *chanlib.SwapID

	stake *chanlib.Stake
	id    chanlib.SwapID
}

func (r *StakeRequest) Operation() Operation { return OpStake }
func (r *StakeRequest) exempt() bool         { return false }
func (r *StakeRequest) decode() errors.Error {
	if len(r.Signatures) <= 0 {
		return missingSignaturesErr(chanlib.KindStake)
	}
	var msg chanlib.Stake
	if err := msg.Decode(r.Message); err != nil {
		return invalidMessageErr(chanlib.KindStake, err)
	}
	id, err := msg.SwapID()
	if err != nil {
		return invalidMessageErr(chanlib.KindStake, err)
	}
	r.stake = &msg
	r.id = id
	return nil
}

type RedeemRequest struct {
	SwapID   chanlib.SwapID
	Preimage []byte
}

func (r *RedeemRequest) Operation() Operation { return OpRedeem }
func (r *RedeemRequest) exempt() bool         { return false }
func (r *RedeemRequest) decode() errors.Error { return validatePreimage(r.Preimage) }

type RefundRequest struct {
	SwapID chanlib.SwapID
}

func (r *RefundRequest) Operation() Operation { return OpRefund }
func (r *RefundRequest) exempt() bool         { return false }
func (r *RefundRequest) decode() errors.Error { return nil }

func decodeState(buf []byte, sigs [][]byte) (*chanlib.State, errors.Error) {
	kind, err := chanlib.PeekKind(buf)
	if err != nil {
		return nil, invalidMessageErr(0, err)
	}
	if len(sigs) <= 0 {
		return nil, missingSignaturesErr(kind)
	}
	var state chanlib.State
	if err := state.Decode(buf); err != nil {
		return nil, invalidMessageErr(kind, err)
	}
	return &state, nil
}

func validatePreimage(preimage []byte) errors.Error {
	if len(preimage) <= 0 || len(preimage) > chanlib.MaxPreimageSize {
		return errors.INVALID_MESSAGE.New(
			"preimage must be between 1 and %d bytes", chanlib.MaxPreimageSize,
		).WithMetadata(errors.MessageMetadata{Reason: "invalid preimage size"})
	}
	return nil
}

func invalidMessageErr(kind chanlib.Kind, err error) errors.Error {
	md := errors.MessageMetadata{Reason: err.Error()}
	if kind != 0 {
		md.Kind = kind.String()
	}
	return errors.INVALID_MESSAGE.Wrap(err).WithMetadata(md)
}

func missingSignaturesErr(kind chanlib.Kind) errors.Error {
	return errors.INVALID_SIGNATURE.New("missing %s signatures", kind)
}

func hexOrEmpty(buf []byte) string {
	if len(buf) <= 0 {
		return ""
	}
	return hex.EncodeToString(buf)
}
