package domain

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/lockstep-labs/chand/pkg/chanlib"
)

type Swap struct {
	ID           chanlib.SwapID
	Staker       chanlib.Address
	Recipient    chanlib.Address
	Asset        chanlib.Address
	Amount       uint256.Int
	Hashlock     [chanlib.HashSize]byte
	Deadline     int64
	Timeout      int64
	RedeemStart  int64
	MultichainID [chanlib.HashSize]byte
	Leg          chanlib.Leg
	Redeemed     bool
	Refunded     bool
	Preimage     []byte
	CreatedAt    int64
	UpdatedAt    int64
}

func NewSwap(id chanlib.SwapID, stake *chanlib.Stake, now int64) *Swap {
	return &Swap{
		ID:           id,
		Staker:       stake.Staker,
		Recipient:    stake.Recipient,
		Asset:        stake.Asset,
		Amount:       stake.Amount,
		Hashlock:     stake.Hashlock,
		Deadline:     stake.Deadline,
		Timeout:      stake.Timeout,
		RedeemStart:  stake.RedeemStart,
		MultichainID: stake.MultichainID,
		Leg:          stake.Leg,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *Swap) IsMultichain() bool {
	return s.MultichainID != [chanlib.HashSize]byte{}
}

func (s *Swap) IsFinalized() bool {
	return s.Redeemed || s.Refunded
}

func (s *Swap) IsExpired(now int64) bool {
	return now >= s.Timeout
}

// RedeemCutoff is the first instant at which redemption is refused. The
// secret holder must redeem a receive leg by its deadline.
func (s *Swap) RedeemCutoff() int64 {
	if s.Leg == chanlib.LegReceive {
		return s.Deadline
	}
	return s.Timeout
}

// Reclaimable reports whether the record's slot can be reused or pruned.
func (s *Swap) Reclaimable(now int64) bool {
	return s.IsExpired(now) && s.IsFinalized()
}

func (s *Swap) Redeem(preimage []byte, now int64) error {
	if s.IsFinalized() {
		return fmt.Errorf("swap %s already finalized", s.ID)
	}
	if chanlib.Hashlock(preimage) != s.Hashlock {
		return fmt.Errorf("preimage does not match hashlock")
	}
	s.Redeemed = true
	s.Preimage = append([]byte{}, preimage...)
	s.UpdatedAt = now
	return nil
}

func (s *Swap) Refund(now int64) error {
	if s.IsFinalized() {
		return fmt.Errorf("swap %s already finalized", s.ID)
	}
	s.Refunded = true
	s.UpdatedAt = now
	return nil
}

// ValidateLegOrdering checks the timelocks of two correlated legs so that
// the secret holder can't reveal the secret on the receive leg too late
// for the counterparty to redeem the pay leg.
func ValidateLegOrdering(pay, receive *Swap) error {
	if pay.Leg != chanlib.LegPay || receive.Leg != chanlib.LegReceive {
		return fmt.Errorf("expected a pay and a receive leg, got %s and %s", pay.Leg, receive.Leg)
	}
	if receive.Timeout >= pay.Timeout {
		return fmt.Errorf(
			"receive leg timeout %d must be before pay leg timeout %d",
			receive.Timeout, pay.Timeout,
		)
	}
	if receive.Deadline >= receive.Timeout {
		return fmt.Errorf(
			"receive leg deadline %d must be before its timeout %d",
			receive.Deadline, receive.Timeout,
		)
	}
	if receive.Deadline >= pay.RedeemStart {
		return fmt.Errorf(
			"receive leg deadline %d must be before pay leg redeem start %d",
			receive.Deadline, pay.RedeemStart,
		)
	}
	return nil
}
