package chanlib

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/holiman/uint256"
)

// Leg is the role of a swap record within a multichain swap, seen from the
// secret holder: on the pay leg they lock funds, on the receive leg they
// redeem by revealing the secret.
type Leg uint8

const (
	LegStandalone Leg = iota
	LegPay
	LegReceive
)

func (l Leg) String() string {
	switch l {
	case LegStandalone:
		return "standalone"
	case LegPay:
		return "pay"
	case LegReceive:
		return "receive"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(l))
	}
}

// Stake locks Amount of Asset from Staker until Hashlock's preimage is
// revealed for Recipient or Timeout passes.
type Stake struct {
	Staker       Address
	Recipient    Address
	Asset        Address
	Amount       uint256.Int
	Hashlock     [HashSize]byte
	Deadline     int64
	Timeout      int64
	RedeemStart  int64
	MultichainID [HashSize]byte
	Leg          Leg
	Salt         [HashSize]byte
}

func (m *Stake) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	e := &encoder{}
	e.uint8(Version)
	e.uint8(uint8(KindStake))
	e.address(m.Staker)
	e.address(m.Recipient)
	e.address(m.Asset)
	e.amount(&m.Amount)
	e.hash(m.Hashlock)
	e.timestamp(m.Deadline)
	e.timestamp(m.Timeout)
	e.timestamp(m.RedeemStart)
	e.hash(m.MultichainID)
	e.uint8(uint8(m.Leg))
	e.hash(m.Salt)
	return e.bytes()
}

func (m *Stake) Decode(buf []byte) error {
	d := newDecoder(buf)
	kind := Kind(d.header())
	if d.err == nil && kind != KindStake {
		return fmt.Errorf("invalid stake message kind: %s", kind)
	}
	m.Staker = d.address()
	m.Recipient = d.address()
	m.Asset = d.address()
	m.Amount = d.amount()
	m.Hashlock = d.hash()
	m.Deadline = d.timestamp()
	m.Timeout = d.timestamp()
	m.RedeemStart = d.timestamp()
	m.MultichainID = d.hash()
	m.Leg = Leg(d.uint8())
	m.Salt = d.hash()
	if err := d.finish(); err != nil {
		return err
	}
	return m.Validate()
}

// Validate checks the rules a stake must satisfy on its own. Ordering
// against correlated legs needs the registry and is checked by the engine.
func (m *Stake) Validate() error {
	if m.Amount.IsZero() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if m.Staker.IsZero() || m.Recipient.IsZero() {
		return fmt.Errorf("missing staker or recipient")
	}
	if m.Leg > LegReceive {
		return fmt.Errorf("invalid leg %d", m.Leg)
	}
	isMultichain := m.MultichainID != [HashSize]byte{}
	if isMultichain && m.Leg == LegStandalone {
		return fmt.Errorf("multichain swap leg must be pay or receive")
	}
	if !isMultichain && m.Leg != LegStandalone {
		return fmt.Errorf("%s leg requires a multichain id", m.Leg)
	}
	return nil
}

// SwapID derives the registry key from the canonical encoding.
func (m *Stake) SwapID() (SwapID, error) {
	buf, err := m.Encode()
	if err != nil {
		return SwapID{}, err
	}
	return SwapID(*chainhash.TaggedHash(tagSwapID, buf)), nil
}
