package chanlib

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Kind tags every encoded message right after the version byte.
type Kind uint8

const (
	KindRegularState Kind = iota + 1
	KindShardedState
	KindSubsetSettlement
	KindStake
)

func (k Kind) String() string {
	switch k {
	case KindRegularState:
		return "regular"
	case KindShardedState:
		return "sharded"
	case KindSubsetSettlement:
		return "subset-settlement"
	case KindStake:
		return "stake"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// PeekKind returns the kind of an encoded message without decoding it.
func PeekKind(buf []byte) (Kind, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("message truncated")
	}
	if buf[0] != Version {
		return 0, fmt.Errorf("unsupported message version %d", buf[0])
	}
	return Kind(buf[1]), nil
}

// MessageType distinguishes plain balance states from states carrying
// hash-locked shards.
type MessageType uint8

const (
	MessageTypeRegular MessageType = MessageType(KindRegularState)
	MessageTypeSharded MessageType = MessageType(KindShardedState)
)

func (t MessageType) String() string {
	return Kind(t).String()
}

func ParseMessageType(s string) (MessageType, error) {
	switch s {
	case "regular":
		return MessageTypeRegular, nil
	case "sharded":
		return MessageTypeSharded, nil
	default:
		return 0, fmt.Errorf("unknown message type %q", s)
	}
}

// Allocation holds one balance per participant for a single asset, in
// participant order.
type Allocation struct {
	Asset    Address
	Balances []uint256.Int
}

// Shard is a hash-locked conditional payment between two participants. It
// completes when the preimage of Hashlock is revealed and reverts when the
// preimage of RevertHashlock is.
type Shard struct {
	Number         uint32
	Asset          Address
	Amount         uint256.Int
	From           uint8
	To             uint8
	Hashlock       [HashSize]byte
	RevertHashlock *[HashSize]byte
}

// State is a channel state jointly signed by all participants.
type State struct {
	Type         MessageType
	Participants []Address
	Salt         [HashSize]byte
	Nonce        uint64
	Timeout      int64
	Deadline     int64
	Allocations  []Allocation
	Shards       []Shard
}

func (s *State) ChannelID() ChannelID {
	return DeriveChannelID(s.Participants, s.Salt)
}

func (s *State) Encode() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	e := &encoder{}
	e.uint8(Version)
	e.uint8(uint8(s.Type))
	e.varint(len(s.Participants))
	for _, p := range s.Participants {
		e.address(p)
	}
	e.hash(s.Salt)
	e.uint64(s.Nonce)
	e.timestamp(s.Timeout)
	e.timestamp(s.Deadline)
	e.varint(len(s.Allocations))
	for _, a := range s.Allocations {
		e.address(a.Asset)
		for i := range a.Balances {
			e.amount(&a.Balances[i])
		}
	}
	if s.Type == MessageTypeSharded {
		e.varint(len(s.Shards))
		for i := range s.Shards {
			sh := &s.Shards[i]
			e.uint32(sh.Number)
			e.address(sh.Asset)
			e.amount(&sh.Amount)
			e.uint8(sh.From)
			e.uint8(sh.To)
			e.hash(sh.Hashlock)
			if sh.RevertHashlock == nil {
				e.uint8(0)
				continue
			}
			e.uint8(1)
			e.hash(*sh.RevertHashlock)
		}
	}
	return e.bytes()
}

func (s *State) Decode(buf []byte) error {
	d := newDecoder(buf)
	kind := Kind(d.header())
	if d.err == nil && kind != KindRegularState && kind != KindShardedState {
		return fmt.Errorf("invalid state message kind: %s", kind)
	}
	s.Type = MessageType(kind)

	count := d.listLen()
	if d.err == nil && (count < MinParticipants || count > MaxParticipants) {
		return fmt.Errorf(
			"invalid participant count %d, must be in [%d, %d]",
			count, MinParticipants, MaxParticipants,
		)
	}
	s.Participants = make([]Address, count)
	for i := range s.Participants {
		s.Participants[i] = d.address()
	}
	s.Salt = d.hash()
	s.Nonce = d.uint64()
	s.Timeout = d.timestamp()
	s.Deadline = d.timestamp()

	numAssets := d.listLen()
	s.Allocations = make([]Allocation, numAssets)
	for i := range s.Allocations {
		s.Allocations[i].Asset = d.address()
		s.Allocations[i].Balances = make([]uint256.Int, count)
		for j := range s.Allocations[i].Balances {
			s.Allocations[i].Balances[j] = d.amount()
		}
	}

	s.Shards = nil
	if s.Type == MessageTypeSharded {
		numShards := d.listLen()
		s.Shards = make([]Shard, numShards)
		for i := range s.Shards {
			sh := &s.Shards[i]
			sh.Number = d.uint32()
			sh.Asset = d.address()
			sh.Amount = d.amount()
			sh.From = d.uint8()
			sh.To = d.uint8()
			sh.Hashlock = d.hash()
			hasRevert := d.uint8()
			switch hasRevert {
			case 0:
			case 1:
				h := d.hash()
				sh.RevertHashlock = &h
			default:
				if d.err == nil {
					d.err = fmt.Errorf("invalid revert hashlock flag %d", hasRevert)
				}
			}
		}
	}

	if err := d.finish(); err != nil {
		return err
	}
	return s.Validate()
}

// Validate checks the structural rules every state must satisfy regardless
// of the channel it is applied to.
func (s *State) Validate() error {
	if s.Type != MessageTypeRegular && s.Type != MessageTypeSharded {
		return fmt.Errorf("invalid message type %d", s.Type)
	}
	n := len(s.Participants)
	if n < MinParticipants || n > MaxParticipants {
		return fmt.Errorf(
			"invalid participant count %d, must be in [%d, %d]",
			n, MinParticipants, MaxParticipants,
		)
	}
	seen := make(map[Address]struct{}, n)
	for _, p := range s.Participants {
		if _, ok := seen[p]; ok {
			return fmt.Errorf("duplicate participant %s", p)
		}
		seen[p] = struct{}{}
	}
	if s.Timeout <= s.Deadline {
		return fmt.Errorf("timeout %d must be greater than deadline %d", s.Timeout, s.Deadline)
	}
	if len(s.Allocations) == 0 {
		return fmt.Errorf("missing allocations")
	}

	assets := make(map[Address]struct{}, len(s.Allocations))
	for _, a := range s.Allocations {
		if _, ok := assets[a.Asset]; ok {
			return fmt.Errorf("duplicate allocation for asset %s", a.Asset)
		}
		assets[a.Asset] = struct{}{}
		if len(a.Balances) != n {
			return fmt.Errorf(
				"asset %s has %d balances, expected %d", a.Asset, len(a.Balances), n,
			)
		}
	}

	if s.Type == MessageTypeRegular {
		if len(s.Shards) > 0 {
			return fmt.Errorf("regular state must not carry shards")
		}
		return nil
	}

	numbers := make(map[uint32]struct{}, len(s.Shards))
	for _, sh := range s.Shards {
		if _, ok := numbers[sh.Number]; ok {
			return fmt.Errorf("duplicate shard number %d", sh.Number)
		}
		numbers[sh.Number] = struct{}{}
		if int(sh.From) >= n || int(sh.To) >= n {
			return fmt.Errorf("shard %d references unknown participant", sh.Number)
		}
		if sh.From == sh.To {
			return fmt.Errorf("shard %d pays its own sender", sh.Number)
		}
		if sh.Amount.IsZero() {
			return fmt.Errorf("shard %d has zero amount", sh.Number)
		}
		if _, ok := assets[sh.Asset]; !ok {
			return fmt.Errorf("shard %d uses asset %s with no allocation", sh.Number, sh.Asset)
		}
		if sh.RevertHashlock != nil && *sh.RevertHashlock == sh.Hashlock {
			return fmt.Errorf("shard %d uses the same hashlock to complete and revert", sh.Number)
		}
	}
	return nil
}

// Totals sums balances and shard amounts per asset.
func (s *State) Totals() (map[Address]*uint256.Int, error) {
	totals := make(map[Address]*uint256.Int, len(s.Allocations))
	for _, a := range s.Allocations {
		sum := new(uint256.Int)
		for i := range a.Balances {
			if _, overflow := sum.AddOverflow(sum, &a.Balances[i]); overflow {
				return nil, fmt.Errorf("balance overflow for asset %s", a.Asset)
			}
		}
		totals[a.Asset] = sum
	}
	for i := range s.Shards {
		sh := &s.Shards[i]
		sum, ok := totals[sh.Asset]
		if !ok {
			return nil, fmt.Errorf("shard %d uses asset %s with no allocation", sh.Number, sh.Asset)
		}
		if _, overflow := sum.AddOverflow(sum, &sh.Amount); overflow {
			return nil, fmt.Errorf("balance overflow for asset %s", sh.Asset)
		}
	}
	return totals, nil
}
