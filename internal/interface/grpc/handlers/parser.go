package handlers

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
	chandv1 "github.com/lockstep-labs/chand/api-spec/chand/v1"
	"github.com/lockstep-labs/chand/internal/core/application"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/pkg/chanlib"
)

func parseSignedMessage(message string, signatures []string) ([]byte, [][]byte, error) {
	if len(message) <= 0 {
		return nil, nil, fmt.Errorf("missing message")
	}
	msg, err := hex.DecodeString(message)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid message format, must be hex")
	}
	if len(signatures) <= 0 {
		return nil, nil, fmt.Errorf("missing signatures")
	}
	sigs := make([][]byte, 0, len(signatures))
	for i, s := range signatures {
		sig, err := hex.DecodeString(s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid signature %d format, must be hex", i)
		}
		sigs = append(sigs, sig)
	}
	return msg, sigs, nil
}

func parsePreimage(preimage string) ([]byte, error) {
	if len(preimage) <= 0 {
		return nil, fmt.Errorf("missing preimage")
	}
	buf, err := hex.DecodeString(preimage)
	if err != nil {
		return nil, fmt.Errorf("invalid preimage format, must be hex")
	}
	return buf, nil
}

func parseChannelID(id string) (chanlib.ChannelID, error) {
	if len(id) <= 0 {
		return chanlib.ChannelID{}, fmt.Errorf("missing channel id")
	}
	return chanlib.ParseChannelID(id)
}

func parseSwapID(id string) (chanlib.SwapID, error) {
	if len(id) <= 0 {
		return chanlib.SwapID{}, fmt.Errorf("missing swap id")
	}
	return chanlib.ParseSwapID(id)
}

func parseAddress(name, addr string) (chanlib.Address, error) {
	if len(addr) <= 0 {
		return chanlib.Address{}, fmt.Errorf("missing %s", name)
	}
	a, err := chanlib.ParseAddress(addr)
	if err != nil {
		return chanlib.Address{}, fmt.Errorf("invalid %s: %s", name, err)
	}
	return a, nil
}

// parseAsset defaults to the native asset when empty.
func parseAsset(asset string) (chanlib.Address, error) {
	if len(asset) <= 0 {
		return chanlib.NativeAsset, nil
	}
	return parseAddress("asset", asset)
}

func parseAmount(amount string) (*uint256.Int, error) {
	if len(amount) <= 0 {
		return nil, fmt.Errorf("missing amount")
	}
	a, err := uint256.FromDecimal(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %s", err)
	}
	if a.IsZero() {
		return nil, fmt.Errorf("amount must be greater than 0")
	}
	return a, nil
}

type result application.Result

func (r result) toProto() *chandv1.OperationResponse {
	resp := &chandv1.OperationResponse{
		Operation: string(r.Operation),
		Nonce:     r.Nonce,
		Redeemed:  r.Redeemed,
	}
	if r.ChannelID != nil {
		resp.ChannelId = r.ChannelID.String()
	}
	if r.SwapID != nil {
		resp.SwapId = r.SwapID.String()
	}
	return resp
}

type channel domain.Channel

func (c channel) toProto() chandv1.Channel {
	participants := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		participants = append(participants, p.String())
	}

	allocations := make([]chandv1.Allocation, 0, len(c.Allocations))
	for _, a := range c.Allocations {
		balances := make([]string, 0, len(a.Balances))
		for i := range a.Balances {
			balances = append(balances, a.Balances[i].Dec())
		}
		allocations = append(allocations, chandv1.Allocation{
			Asset:    a.Asset.String(),
			Balances: balances,
		})
	}

	shards := make([]chandv1.Shard, 0, len(c.Shards))
	for _, s := range c.Shards {
		shard := chandv1.Shard{
			Number:   s.Number,
			Asset:    s.Asset.String(),
			Amount:   s.Amount.Dec(),
			From:     uint32(s.From),
			To:       uint32(s.To),
			Hashlock: hex.EncodeToString(s.Hashlock[:]),
			Status:   s.Status.String(),
		}
		if s.RevertHashlock != nil {
			shard.RevertHashlock = hex.EncodeToString(s.RevertHashlock[:])
		}
		shards = append(shards, shard)
	}

	return chandv1.Channel{
		Id:           c.ID.String(),
		Participants: participants,
		Allocations:  allocations,
		Shards:       shards,
		Nonce:        c.Nonce,
		Timeout:      c.Timeout,
		Deadline:     c.Deadline,
		Status:       c.Status.String(),
		MessageType:  c.MessageType.String(),
		Commitment:   hex.EncodeToString(c.Commitment[:]),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type swap domain.Swap

func (s swap) toProto() chandv1.Swap {
	sw := chandv1.Swap{
		Id:          s.ID.String(),
		Staker:      s.Staker.String(),
		Recipient:   s.Recipient.String(),
		Asset:       s.Asset.String(),
		Amount:      s.Amount.Dec(),
		Hashlock:    hex.EncodeToString(s.Hashlock[:]),
		Deadline:    s.Deadline,
		Timeout:     s.Timeout,
		RedeemStart: s.RedeemStart,
		Leg:         s.Leg.String(),
		Redeemed:    s.Redeemed,
		Refunded:    s.Refunded,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.MultichainID != [chanlib.HashSize]byte{} {
		sw.MultichainId = hex.EncodeToString(s.MultichainID[:])
	}
	if len(s.Preimage) > 0 {
		sw.Preimage = hex.EncodeToString(s.Preimage)
	}
	return sw
}

type ledgerEntries []domain.LedgerEntry

func (l ledgerEntries) toProto() []chandv1.BalanceResponse {
	list := make([]chandv1.BalanceResponse, 0, len(l))
	for _, e := range l {
		list = append(list, chandv1.BalanceResponse{
			Owner:  e.Owner.String(),
			Asset:  e.Asset.String(),
			Amount: e.Amount.Dec(),
		})
	}
	return list
}

// toEvent converts a domain event and returns the topics it's published
// to: the channel or swap id and the channel participants.
func toEvent(event domain.Event) (*chandv1.Event, []string) {
	ev := &chandv1.Event{
		Type:  event.GetType().String(),
		Topic: event.GetTopic(),
		Id:    event.GetId(),
	}
	topics := []string{event.GetId()}

	switch e := event.(type) {
	case domain.Anchored:
		ev.Timestamp = e.Timestamp
		ev.Participants = e.Participants
	case domain.FundsAddedToChannel:
		ev.Timestamp = e.Timestamp
		ev.Nonce = e.Nonce
		ev.Participants = e.Participants
	case domain.Settled:
		ev.Timestamp = e.Timestamp
		ev.Participants = e.Participants
		ev.Withdrawn = e.Withdrawn
	case domain.SettledSubset:
		ev.Timestamp = e.Timestamp
		ev.Nonce = e.Nonce
		ev.Payload = e.Payload
	case domain.DisputeStarted:
		ev.Timestamp = e.Timestamp
		ev.Nonce = e.Nonce
		ev.MessageType = e.MessageType
	case domain.ShardStateChanged:
		ev.Timestamp = e.Timestamp
		ev.ShardNumbers = e.ShardNumbers
		ev.Preimage = e.Preimage
		ev.MessageHash = e.MessageHash
	case domain.Swapped:
		ev.Timestamp = e.Timestamp
	case domain.MultichainRedeemed:
		ev.Timestamp = e.Timestamp
		ev.Redeemed = e.Redeemed
		ev.Preimage = e.Preimage
	case domain.SwapRefunded:
		ev.Timestamp = e.Timestamp
	default:
		return nil, nil
	}

	return ev, append(topics, ev.Participants...)
}
