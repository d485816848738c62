package domain

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/pkg/chanlib"
)

type ChannelStatus uint8

const (
	ChannelStatusOpen ChannelStatus = iota
	ChannelStatusDisputing
	ChannelStatusSettledSubset
)

func (s ChannelStatus) String() string {
	switch s {
	case ChannelStatusOpen:
		return "open"
	case ChannelStatusDisputing:
		return "disputing"
	case ChannelStatusSettledSubset:
		return "settled-subset"
	default:
		return "unknown"
	}
}

type ShardStatus uint8

const (
	ShardStatusPending ShardStatus = iota
	ShardStatusCompleted
	ShardStatusReverted
)

func (s ShardStatus) String() string {
	switch s {
	case ShardStatusPending:
		return "pending"
	case ShardStatusCompleted:
		return "completed"
	case ShardStatusReverted:
		return "reverted"
	default:
		return "unknown"
	}
}

type Shard struct {
	chanlib.Shard
	Status ShardStatus
}

func (s Shard) IsResolved() bool {
	return s.Status != ShardStatusPending
}

// Beneficiary is the index of the participant the shard amount is paid to
// when the channel is closed.
func (s Shard) Beneficiary() uint8 {
	if s.Status == ShardStatusCompleted {
		return s.To
	}
	return s.From
}

type Channel struct {
	ID           chanlib.ChannelID
	Participants []chanlib.Address
	Salt         [chanlib.HashSize]byte
	Allocations  []chanlib.Allocation
	Shards       []Shard
	Nonce        uint64
	Timeout      int64
	Deadline     int64
	Status       ChannelStatus
	MessageType  chanlib.MessageType
	Commitment   [chanlib.HashSize]byte
	CreatedAt    int64
	UpdatedAt    int64
}

// NewChannel opens a channel from its first jointly signed state.
func NewChannel(state *chanlib.State, commitment [chanlib.HashSize]byte, now int64) *Channel {
	c := &Channel{
		ID:           state.ChannelID(),
		Participants: append([]chanlib.Address{}, state.Participants...),
		Salt:         state.Salt,
		Status:       ChannelStatusOpen,
		CreatedAt:    now,
	}
	c.Apply(state, commitment, now)
	return c
}

// Apply replaces the agreed state. All shards of the new state start pending.
func (c *Channel) Apply(state *chanlib.State, commitment [chanlib.HashSize]byte, now int64) {
	c.Allocations = cloneAllocations(state.Allocations)
	c.Shards = make([]Shard, 0, len(state.Shards))
	for _, s := range state.Shards {
		c.Shards = append(c.Shards, Shard{Shard: s, Status: ShardStatusPending})
	}
	c.Nonce = state.Nonce
	c.Timeout = state.Timeout
	c.Deadline = state.Deadline
	c.MessageType = state.Type
	c.Commitment = commitment
	c.UpdatedAt = now
}

func (c *Channel) IsDisputed() bool {
	return c.Status == ChannelStatusDisputing || c.Status == ChannelStatusSettledSubset
}

func (c *Channel) ParticipantIndex(addr chanlib.Address) int {
	for i, p := range c.Participants {
		if p == addr {
			return i
		}
	}
	return -1
}

func (c *Channel) IsParticipant(addr chanlib.Address) bool {
	return c.ParticipantIndex(addr) >= 0
}

// SameParticipants reports whether state refers to this channel.
func (c *Channel) SameParticipants(state *chanlib.State) bool {
	return state.ChannelID() == c.ID
}

func (c *Channel) Shard(number uint32) (*Shard, bool) {
	for i := range c.Shards {
		if c.Shards[i].Number == number {
			return &c.Shards[i], true
		}
	}
	return nil, false
}

func (c *Channel) Balance(asset chanlib.Address, participant int) *uint256.Int {
	for _, a := range c.Allocations {
		if a.Asset == asset {
			return new(uint256.Int).Set(&a.Balances[participant])
		}
	}
	return new(uint256.Int)
}

// FoldShard removes a shard and credits its amount to the balance of the
// participant the outcome designates.
func (c *Channel) FoldShard(number uint32, outcome chanlib.ShardOutcome) error {
	idx := -1
	for i := range c.Shards {
		if c.Shards[i].Number == number {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("shard %d not found", number)
	}
	shard := c.Shards[idx]
	beneficiary := shard.From
	if outcome == chanlib.ShardOutcomeComplete {
		beneficiary = shard.To
	}
	if err := c.credit(shard.Asset, int(beneficiary), &shard.Amount); err != nil {
		return err
	}
	c.Shards = append(c.Shards[:idx], c.Shards[idx+1:]...)
	return nil
}

// Totals returns, per asset, the funds the channel must hold in escrow.
func (c *Channel) Totals() (map[chanlib.Address]*uint256.Int, error) {
	totals := make(map[chanlib.Address]*uint256.Int, len(c.Allocations))
	for _, a := range c.Allocations {
		sum := new(uint256.Int)
		for i := range a.Balances {
			if _, overflow := sum.AddOverflow(sum, &a.Balances[i]); overflow {
				return nil, fmt.Errorf("balance overflow for asset %s", a.Asset)
			}
		}
		totals[a.Asset] = sum
	}
	for _, s := range c.Shards {
		sum, ok := totals[s.Asset]
		if !ok {
			return nil, fmt.Errorf("shard %d uses unknown asset %s", s.Number, s.Asset)
		}
		if _, overflow := sum.AddOverflow(sum, &s.Amount); overflow {
			return nil, fmt.Errorf("balance overflow for asset %s", s.Asset)
		}
	}
	return totals, nil
}

type Payout struct {
	Participant chanlib.Address
	Asset       chanlib.Address
	Amount      uint256.Int
}

// Payouts computes the final distribution of the channel funds. Completed
// shards go to their receiver, any other shard goes back to its sender.
func (c *Channel) Payouts() ([]Payout, error) {
	final := &Channel{Allocations: cloneAllocations(c.Allocations)}
	for _, s := range c.Shards {
		if err := final.credit(s.Asset, int(s.Beneficiary()), &s.Amount); err != nil {
			return nil, err
		}
	}

	payouts := make([]Payout, 0, len(c.Participants)*len(final.Allocations))
	for _, a := range final.Allocations {
		for i, p := range c.Participants {
			if a.Balances[i].IsZero() {
				continue
			}
			payouts = append(payouts, Payout{
				Participant: p,
				Asset:       a.Asset,
				Amount:      a.Balances[i],
			})
		}
	}
	return payouts, nil
}

func (c *Channel) credit(asset chanlib.Address, participant int, amount *uint256.Int) error {
	for i := range c.Allocations {
		if c.Allocations[i].Asset != asset {
			continue
		}
		balance := &c.Allocations[i].Balances[participant]
		if _, overflow := balance.AddOverflow(balance, amount); overflow {
			return fmt.Errorf("balance overflow for asset %s", asset)
		}
		return nil
	}
	return fmt.Errorf("asset %s not allocated", asset)
}

func cloneAllocations(allocations []chanlib.Allocation) []chanlib.Allocation {
	out := make([]chanlib.Allocation, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, chanlib.Allocation{
			Asset:    a.Asset,
			Balances: append([]uint256.Int{}, a.Balances...),
		})
	}
	return out
}
